package sseutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// ReadSSEStream reads SSE lines from resp and sends them as StreamChunks on
// ch. It handles the standard "[DONE]" sentinel, extracts usage from the
// final chunk, and surfaces delta text in StreamChunk.Text so the dispatcher
// can estimate tokens when the upstream never reports usage. Adapters
// speaking the OpenAI chunk format share this reader. The channel is closed
// when done.
func ReadSSEStream(ctx context.Context, providerName string, resp *http.Response, ch chan<- gateway.StreamChunk) {
	defer close(ch)
	defer resp.Body.Close()

	scanner := NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		_, data, ok := ParseSSELine(line)
		if !ok {
			continue
		}
		if data == "[DONE]" {
			ch <- gateway.StreamChunk{Done: true}
			return
		}

		chunk := gateway.StreamChunk{Data: []byte(data)}
		parsed := gjson.ParseBytes(chunk.Data)
		if t := parsed.Get("choices.0.delta.content"); t.Type == gjson.String {
			chunk.Text = t.String()
		}
		// Extract usage from final chunk if present.
		if u := parsed.Get("usage"); u.Exists() && u.Type == gjson.JSON {
			var usage gateway.Usage
			if json.Unmarshal([]byte(u.Raw), &usage) == nil && usage.TotalTokens > 0 {
				chunk.Usage = &usage
			}
		}

		select {
		case ch <- chunk:
		case <-ctx.Done():
			ch <- gateway.StreamChunk{Err: ctx.Err()}
			return
		}
	}
	if err := scanner.Err(); err != nil {
		ch <- gateway.StreamChunk{Err: fmt.Errorf("%s: read stream: %w", providerName, err)}
	}
}
