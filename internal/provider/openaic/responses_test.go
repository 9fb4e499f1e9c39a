package openaic

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

func TestCreateResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path = %s, want /v1/responses", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"resp-1","object":"response","status":"completed","model":"gpt-5",`+
			`"output":[{"type":"message","content":[{"type":"output_text","text":"hi there"}]}],`+
			`"usage":{"input_tokens":12,"output_tokens":4,"total_tokens":16}}`)
	}))
	defer srv.Close()

	client := testClient(srv.URL+"/v1", VariantOpenAI, nil)
	resp, err := client.CreateResponse(context.Background(), &gateway.ResponsesRequest{
		Model: "gpt-5",
		Input: json.RawMessage(`"hello"`),
	})
	if err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}
	if resp.Status != "completed" {
		t.Errorf("status = %q, want completed", resp.Status)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 16 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChatToResponses(t *testing.T) {
	t.Parallel()

	maxTokens := 4
	req := &gateway.ChatRequest{
		Model: "gpt-5.1-codex",
		Messages: []gateway.Message{
			{Role: "system", Content: json.RawMessage(`"be terse"`)},
			{Role: "user", Content: json.RawMessage(`"first"`)},
			{Role: "assistant", Content: json.RawMessage(`"ok"`)},
			{Role: "user", Content: json.RawMessage(`"second"`)},
		},
		MaxTokens:       &maxTokens,
		ReasoningEffort: "high",
	}
	out := chatToResponses(req)

	// History collapses into Role: content lines; only the last message
	// becomes the input.
	wantInstructions := "System: be terse\nUser: first\nAssistant: ok"
	if out.Instructions != wantInstructions {
		t.Errorf("instructions = %q, want %q", out.Instructions, wantInstructions)
	}
	var input string
	if err := json.Unmarshal(out.Input, &input); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if input != "second" {
		t.Errorf("input = %q, want the last message's text", input)
	}

	if out.Reasoning == nil || out.Reasoning.Effort != "high" {
		t.Errorf("reasoning = %+v, want high effort", out.Reasoning)
	}
	// max_output_tokens must respect the endpoint floor.
	if out.MaxOutputTokens == nil || *out.MaxOutputTokens != minOutputTokens {
		t.Errorf("max_output_tokens = %v, want %d", out.MaxOutputTokens, minOutputTokens)
	}
}

func TestChatToResponsesSingleMessage(t *testing.T) {
	t.Parallel()

	out := chatToResponses(&gateway.ChatRequest{
		Model:    "gpt-5-codex",
		Messages: []gateway.Message{{Role: "user", Content: json.RawMessage(`"just this"`)}},
	})

	if out.Instructions != "" {
		t.Errorf("instructions = %q, want empty with no history", out.Instructions)
	}
	var input string
	if err := json.Unmarshal(out.Input, &input); err != nil || input != "just this" {
		t.Errorf("input = %q (%v)", input, err)
	}
}

func TestResponsesToChat(t *testing.T) {
	t.Parallel()

	resp := &gateway.ResponsesResponse{
		ID:     "resp-1",
		Status: "completed",
		Output: json.RawMessage(`[
			{"type":"reasoning","summary":[{"type":"summary_text","text":"thinking..."}]},
			{"type":"message","content":[{"type":"output_text","text":"answer"}]}
		]`),
		Usage: &gateway.ResponsesUsage{
			InputTokens:         10,
			OutputTokens:        20,
			TotalTokens:         30,
			OutputTokensDetails: &gateway.OutputTokensDetails{ReasoningTokens: 15},
		},
	}
	out := responsesToChat(resp, "codex-mini")

	if out.Model != "codex-mini" {
		t.Errorf("model = %q, want codex-mini", out.Model)
	}
	if got := gateway.ContentText(out.Choices[0].Message.Content); got != "answer" {
		t.Errorf("content = %q, want answer", got)
	}
	var reasoning string
	if err := json.Unmarshal(out.Choices[0].Message.ReasoningContent, &reasoning); err != nil || reasoning != "thinking..." {
		t.Errorf("reasoning_content = %q (%v)", reasoning, err)
	}
	if out.Usage.CompletionTokensDetails == nil || out.Usage.CompletionTokensDetails.ReasoningTokens != 15 {
		t.Errorf("usage details = %+v", out.Usage.CompletionTokensDetails)
	}
}

func TestChatCompletionCodexRewrite(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Codex chat requests must land on /responses, not /chat/completions.
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path = %s, want /v1/responses", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"resp-9","status":"completed","model":"gpt-5.1-codex",`+
			`"output":[{"type":"message","content":[{"type":"output_text","text":"done"}]}],`+
			`"usage":{"input_tokens":3,"output_tokens":1,"total_tokens":4}}`)
	}))
	defer srv.Close()

	client := testClient(srv.URL+"/v1", VariantOpenAI, nil)
	resp, err := client.ChatCompletion(context.Background(), &gateway.ChatRequest{
		Model:    "gpt-5.1-codex",
		Messages: []gateway.Message{{Role: "user", Content: json.RawMessage(`"go"`)}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if resp.Object != "chat.completion" {
		t.Errorf("object = %q, want chat.completion", resp.Object)
	}
	if got := gateway.ContentText(resp.Choices[0].Message.Content); got != "done" {
		t.Errorf("content = %q, want done", got)
	}
}

func TestChatStreamCodexTranslation(t *testing.T) {
	t.Parallel()

	events := `data: {"type":"response.created","response":{"id":"resp-1"}}` + "\n\n" +
		`data: {"type":"response.output_text.delta","delta":"hel"}` + "\n\n" +
		`data: {"type":"response.output_text.delta","delta":"lo"}` + "\n\n" +
		`data: {"type":"response.completed","response":{"usage":{"input_tokens":2,"output_tokens":2,"total_tokens":4}}}` + "\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path = %s, want /v1/responses", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, events)
	}))
	defer srv.Close()

	client := testClient(srv.URL+"/v1", VariantOpenAI, nil)
	ch, err := client.ChatCompletionStream(context.Background(), &gateway.ChatRequest{
		Model:    "codex-mini-latest",
		Messages: []gateway.Message{{Role: "user", Content: json.RawMessage(`"hi"`)}},
	})
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}

	var text strings.Builder
	var usage *gateway.Usage
	var done bool
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("stream error: %v", c.Err)
		}
		text.WriteString(c.Text)
		if c.Usage != nil {
			usage = c.Usage
		}
		if c.Done {
			done = true
		}
		// Translated chunks must be valid chat completion chunks.
		if len(c.Data) > 0 {
			var chunk map[string]any
			if err := json.Unmarshal(c.Data, &chunk); err != nil {
				t.Fatalf("invalid chunk JSON: %v", err)
			}
			if chunk["object"] != "chat.completion.chunk" {
				t.Errorf("object = %v, want chat.completion.chunk", chunk["object"])
			}
		}
	}

	if text.String() != "hello" {
		t.Errorf("accumulated text = %q, want hello", text.String())
	}
	if usage == nil || usage.TotalTokens != 4 {
		t.Errorf("usage = %+v, want total 4", usage)
	}
	if !done {
		t.Error("stream should end with Done")
	}
}

func TestCreateResponseStreamPassthrough(t *testing.T) {
	t.Parallel()

	events := `data: {"type":"response.output_text.delta","delta":"raw"}` + "\n\n" +
		`data: {"type":"response.completed","response":{"usage":{"input_tokens":1,"output_tokens":1,"total_tokens":2}}}` + "\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, events)
	}))
	defer srv.Close()

	client := testClient(srv.URL+"/v1", VariantOpenAI, nil)
	ch, err := client.CreateResponseStream(context.Background(), &gateway.ResponsesRequest{
		Model: "gpt-5",
		Input: json.RawMessage(`"hi"`),
	})
	if err != nil {
		t.Fatalf("CreateResponseStream: %v", err)
	}

	var chunks []gateway.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3 (2 events + done)", len(chunks))
	}
	if chunks[0].Text != "raw" {
		t.Errorf("delta text = %q, want raw", chunks[0].Text)
	}
	// Raw event must pass through unmodified.
	if !strings.Contains(string(chunks[0].Data), "response.output_text.delta") {
		t.Errorf("raw event not preserved: %s", chunks[0].Data)
	}
	if chunks[1].Usage == nil || chunks[1].Usage.TotalTokens != 2 {
		t.Errorf("usage = %+v", chunks[1].Usage)
	}
	if !chunks[2].Done {
		t.Error("last chunk should be Done")
	}
}
