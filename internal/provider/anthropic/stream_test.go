package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

const sampleStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4-5","usage":{"input_tokens":12}}}

event: content_block_start
data: {"type":"content_block_start","index":0}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hmm"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":4}}

event: message_stop
data: {"type":"message_stop"}

`

func TestChatCompletionStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("stream should be true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sampleStream)
	}))
	defer srv.Close()

	client := testClient(srv.URL+"/v1", nil)
	ch, err := client.ChatCompletionStream(context.Background(), &gateway.ChatRequest{
		Model:    "claude-sonnet",
		Messages: []gateway.Message{{Role: "user", Content: json.RawMessage(`"hi"`)}},
	})
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}

	var text strings.Builder
	var sawReasoning, done bool
	var usage *gateway.Usage
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("stream error: %v", c.Err)
		}
		text.WriteString(c.Text)
		if strings.Contains(string(c.Data), "reasoning_content") {
			sawReasoning = true
		}
		if c.Usage != nil {
			usage = c.Usage
		}
		if c.Done {
			done = true
		}
		// Every rewritten chunk reports the client-facing model name.
		if len(c.Data) > 0 {
			var chunk struct {
				Model string `json:"model"`
			}
			if err := json.Unmarshal(c.Data, &chunk); err != nil {
				t.Fatalf("invalid chunk JSON: %v", err)
			}
			if chunk.Model != "claude-sonnet" {
				t.Errorf("chunk model = %q, want claude-sonnet", chunk.Model)
			}
		}
	}

	if text.String() != "Hello" {
		t.Errorf("accumulated text = %q, want Hello", text.String())
	}
	if !sawReasoning {
		t.Error("expected a reasoning_content chunk from thinking_delta")
	}
	if usage == nil || usage.TotalTokens != 16 {
		t.Errorf("usage = %+v, want total 16", usage)
	}
	if !done {
		t.Error("stream should end with Done")
	}
}

func TestHandleEventError(t *testing.T) {
	t.Parallel()

	var state streamState
	chunks := state.handleEvent("error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	if len(chunks) != 1 || chunks[0].Err == nil {
		t.Fatalf("chunks = %+v, want one error chunk", chunks)
	}
	if !strings.Contains(chunks[0].Err.Error(), "Overloaded") {
		t.Errorf("err = %v, want upstream message preserved", chunks[0].Err)
	}
}

func TestHandleEventIgnoresPing(t *testing.T) {
	t.Parallel()

	var state streamState
	if chunks := state.handleEvent("ping", `{"type":"ping"}`); chunks != nil {
		t.Errorf("ping produced chunks: %+v", chunks)
	}
}
