package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// defaultKeepAlive is the SSE comment frame interval when Deps.KeepAlive is
// unset. Comments keep intermediaries from closing an idle stream.
const defaultKeepAlive = 20 * time.Second

// Pre-allocated byte slices for SSE formatting. These avoid heap allocations
// on every write in the streaming hot path.
var (
	sseDataPrefix = []byte("data: ")
	sseNewline    = []byte("\n\n")
	sseDone       = []byte("data: [DONE]\n\n")
	sseKeepAlive  = []byte(":\n\n")
)

// Pre-allocated header value slices for SSE responses.
// Direct map assignment avoids the []string{v} alloc that Header.Set creates.
var (
	sseContentType  = []string{"text/event-stream; charset=utf-8"}
	sseCacheControl = []string{"no-cache"}
	sseConnection   = []string{"keep-alive"}
	sseAccelBuf     = []string{"no"}
)

// writeSSEHeaders sets the response headers for an SSE stream.
func writeSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h["Content-Type"] = sseContentType
	h["Cache-Control"] = sseCacheControl
	h["Connection"] = sseConnection
	h["X-Accel-Buffering"] = sseAccelBuf
	w.WriteHeader(http.StatusOK)
}

// writeSSEData writes a single SSE data frame: "data: <payload>\n\n".
func writeSSEData(w http.ResponseWriter, data []byte) {
	w.Write(sseDataPrefix)
	w.Write(data)
	w.Write(sseNewline)
}

// writeSSEError emits the error envelope as a data frame so streaming
// clients receive the same reference_id and timestamp a unary caller would.
func writeSSEError(w http.ResponseWriter, r *http.Request, err error) {
	_, body := errorPayload(r, err)
	data, merr := json.Marshal(body)
	if merr != nil {
		slog.Error("failed to encode stream error", "error", merr)
		return
	}
	writeSSEData(w, data)
}

// streamSSE relays dispatch chunks to the client until the stream ends, an
// error chunk arrives, or the client disconnects. Every exit path that still
// owns the connection terminates with the [DONE] sentinel.
func (s *server) streamSSE(w http.ResponseWriter, r *http.Request, ch <-chan gateway.StreamChunk) {
	writeSSEHeaders(w)
	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("response writer does not implement http.Flusher")
		return
	}
	flusher.Flush()

	interval := s.deps.KeepAlive
	if interval <= 0 {
		interval = defaultKeepAlive
	}
	keepAlive := time.NewTicker(interval)
	defer keepAlive.Stop()

	for {
		select {
		case chunk, open := <-ch:
			if !open {
				w.Write(sseDone)
				flusher.Flush()
				return
			}
			if chunk.Err != nil {
				writeSSEError(w, r, chunk.Err)
				w.Write(sseDone)
				flusher.Flush()
				return
			}
			if chunk.Done {
				w.Write(sseDone)
				flusher.Flush()
				return
			}
			writeSSEData(w, chunk.Data)
			flusher.Flush()

		case <-keepAlive.C:
			w.Write(sseKeepAlive)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
