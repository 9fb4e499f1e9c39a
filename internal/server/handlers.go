package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// Request body caps: JSON endpoints stay small, multipart uploads (audio,
// image edits) get headroom.
const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = 25 << 20
)

// decodeJSON reads a size-capped JSON body into v. Returns the body size for
// request tracking; on failure the error response is already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) (int, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorParts(w, r, http.StatusRequestEntityTooLarge,
				"invalid_request_error", "body_too_large", "request body exceeds the 1 MB limit")
			return 0, false
		}
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "failed to read request body")
		return 0, false
	}
	if err := json.Unmarshal(data, v); err != nil {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "invalid request body: "+err.Error())
		return 0, false
	}
	return len(data), true
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req gateway.ChatRequest
	size, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}

	if req.Stream {
		ch, err := s.deps.Dispatch.ChatCompletionStream(r.Context(), &req, size)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.streamSSE(w, r, ch)
		return
	}

	resp, err := s.deps.Dispatch.ChatCompletion(r.Context(), &req, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleResponses(w http.ResponseWriter, r *http.Request) {
	var req gateway.ResponsesRequest
	size, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}

	if req.Stream {
		ch, err := s.deps.Dispatch.CreateResponseStream(r.Context(), &req, size)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.streamSSE(w, r, ch)
		return
	}

	resp, err := s.deps.Dispatch.CreateResponse(r.Context(), &req, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req gateway.EmbeddingRequest
	size, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}
	resp, err := s.deps.Dispatch.CreateEmbeddings(r.Context(), &req, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleModerations(w http.ResponseWriter, r *http.Request) {
	var req gateway.ModerationRequest
	size, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}
	resp, err := s.deps.Dispatch.ModerateContent(r.Context(), &req, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
