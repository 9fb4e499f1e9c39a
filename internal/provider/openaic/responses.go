package openaic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider/sseutil"
)

// CreateResponse sends a non-streaming /responses request.
func (c *Client) CreateResponse(ctx context.Context, req *gateway.ResponsesRequest) (*gateway.ResponsesResponse, error) {
	outReq := *req
	outReq.Model = c.cfg.MappedModel(req.Model)
	outReq.Stream = false

	var out gateway.ResponsesResponse
	if err := c.postJSON(ctx, "/responses", &outReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateResponseStream sends a streaming /responses request. Raw SSE events
// are forwarded; delta text and final usage are extracted for accounting.
func (c *Client) CreateResponseStream(ctx context.Context, req *gateway.ResponsesRequest) (<-chan gateway.StreamChunk, error) {
	outReq := *req
	outReq.Model = c.cfg.MappedModel(req.Model)
	outReq.Stream = true

	resp, err := c.post(ctx, "/responses", &outReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, provider.ParseAPIError(c.cfg.Name, resp)
	}

	ch := make(chan gateway.StreamChunk, 8)
	go c.readResponsesStream(ctx, resp, ch, nil)
	return ch, nil
}

// minOutputTokens is the floor the responses endpoint enforces on
// max_output_tokens.
const minOutputTokens = 16

// chatToResponses rewrites a chat completion request into the responses
// protocol. Conversation history (everything before the last message) is
// flattened into the instructions block as "Role: content" lines; only the
// last message travels as input.
func chatToResponses(req *gateway.ChatRequest) *gateway.ResponsesRequest {
	var instructions strings.Builder
	var lastText string
	if n := len(req.Messages); n > 0 {
		for _, m := range req.Messages[:n-1] {
			if instructions.Len() > 0 {
				instructions.WriteByte('\n')
			}
			instructions.WriteString(roleLabel(m.Role))
			instructions.WriteString(": ")
			instructions.WriteString(gateway.ContentText(m.Content))
		}
		lastText = gateway.ContentText(req.Messages[n-1].Content)
	}
	input, _ := json.Marshal(lastText)

	out := &gateway.ResponsesRequest{
		Model:        req.Model,
		Input:        input,
		Instructions: instructions.String(),
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		User:         req.User,
	}
	if req.ReasoningEffort != "" {
		out.Reasoning = &gateway.Reasoning{Effort: req.ReasoningEffort}
	}

	maxTokens := req.MaxCompletionTokens
	if maxTokens == nil {
		maxTokens = req.MaxTokens
	}
	if maxTokens != nil {
		n := max(*maxTokens, minOutputTokens)
		out.MaxOutputTokens = &n
	}
	return out
}

// roleLabel renders a message role as its history line prefix.
func roleLabel(role string) string {
	if role == "" {
		return "User"
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

// responsesToChat maps a responses result back into chat completion shape.
func responsesToChat(resp *gateway.ResponsesResponse, model string) *gateway.ChatResponse {
	var text, reasoning string
	for _, item := range gjson.ParseBytes(resp.Output).Array() {
		switch item.Get("type").String() {
		case "message":
			for _, part := range item.Get("content").Array() {
				if part.Get("type").String() == "output_text" {
					text += part.Get("text").String()
				}
			}
		case "reasoning":
			for _, part := range item.Get("summary").Array() {
				reasoning += part.Get("text").String()
			}
		}
	}

	content, _ := json.Marshal(text)
	msg := gateway.Message{Role: "assistant", Content: content}
	if reasoning != "" {
		rc, _ := json.Marshal(reasoning)
		msg.ReasoningContent = rc
	}

	out := &gateway.ChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.CreatedAt,
		Model:   model,
		Choices: []gateway.Choice{{Index: 0, Message: msg, FinishReason: "stop"}},
	}
	if resp.Usage != nil {
		out.Usage = &gateway.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
		if d := resp.Usage.OutputTokensDetails; d != nil && d.ReasoningTokens > 0 {
			out.Usage.CompletionTokensDetails = &gateway.CompletionTokensDetails{ReasoningTokens: d.ReasoningTokens}
		}
	}
	return out
}

// chatViaResponses serves a chat completion for a responses-only model.
func (c *Client) chatViaResponses(ctx context.Context, req *gateway.ChatRequest) (*gateway.ChatResponse, error) {
	resp, err := c.CreateResponse(ctx, chatToResponses(req))
	if err != nil {
		return nil, err
	}
	return responsesToChat(resp, req.Model), nil
}

// chatStreamViaResponses serves a streaming chat completion for a
// responses-only model by translating responses SSE events into chat chunks.
func (c *Client) chatStreamViaResponses(ctx context.Context, req *gateway.ChatRequest) (<-chan gateway.StreamChunk, error) {
	outReq := chatToResponses(req)
	outReq.Stream = true

	resp, err := c.post(ctx, "/responses", outReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, provider.ParseAPIError(c.cfg.Name, resp)
	}

	ch := make(chan gateway.StreamChunk, 8)
	translate := &chatTranslator{
		id:    "chatcmpl-" + uuid.Must(uuid.NewV7()).String(),
		model: req.Model,
	}
	go c.readResponsesStream(ctx, resp, ch, translate)
	return ch, nil
}

// chatTranslator rewrites responses-protocol SSE events into chat completion
// chunks for clients that asked for /chat/completions.
type chatTranslator struct {
	id    string
	model string
}

// readResponsesStream reads responses-protocol SSE events. With a nil
// translator the raw events pass through; otherwise they are rewritten into
// chat chunks. Either way delta text and final usage are extracted.
func (c *Client) readResponsesStream(ctx context.Context, resp *http.Response, ch chan<- gateway.StreamChunk, tr *chatTranslator) {
	defer close(ch)
	defer resp.Body.Close()

	scanner := sseutil.NewScanner(resp.Body)
	for scanner.Scan() {
		_, data, ok := sseutil.ParseSSELine(scanner.Text())
		if !ok {
			continue
		}
		if data == "[DONE]" {
			ch <- gateway.StreamChunk{Done: true}
			return
		}

		parsed := gjson.Parse(data)
		chunk, emit := translateResponsesEvent(parsed, data, tr)
		if !emit {
			continue
		}
		select {
		case ch <- chunk:
		case <-ctx.Done():
			ch <- gateway.StreamChunk{Err: ctx.Err()}
			return
		}

		// The responses stream has no [DONE] sentinel; completed is final.
		if tr != nil && parsed.Get("type").String() == "response.completed" {
			ch <- gateway.StreamChunk{Data: sseutil.BuildFinishChunk(tr.id, tr.model, "stop")}
			ch <- gateway.StreamChunk{Done: true}
			return
		}
	}
	if err := scanner.Err(); err != nil {
		ch <- gateway.StreamChunk{Err: fmt.Errorf("%s: read stream: %w", c.cfg.Name, err)}
		return
	}
	ch <- gateway.StreamChunk{Done: true}
}

// translateResponsesEvent maps one responses SSE event to a StreamChunk.
// emit=false drops bookkeeping events the client has no use for.
func translateResponsesEvent(parsed gjson.Result, data string, tr *chatTranslator) (gateway.StreamChunk, bool) {
	eventType := parsed.Get("type").String()

	if tr == nil {
		chunk := gateway.StreamChunk{Data: []byte(data)}
		if eventType == "response.output_text.delta" {
			chunk.Text = parsed.Get("delta").String()
		}
		if u := parsed.Get("response.usage"); u.Exists() {
			chunk.Usage = responsesUsageFromJSON(u)
		}
		return chunk, true
	}

	switch eventType {
	case "response.output_text.delta":
		delta := parsed.Get("delta").String()
		return gateway.StreamChunk{
			Data: sseutil.BuildDeltaChunk(tr.id, tr.model, map[string]any{"content": delta}, ""),
			Text: delta,
		}, true
	case "response.reasoning_summary_text.delta":
		return gateway.StreamChunk{
			Data: sseutil.BuildReasoningDeltaChunk(tr.id, tr.model, parsed.Get("delta").String()),
		}, true
	case "response.completed":
		usage := responsesUsageFromJSON(parsed.Get("response.usage"))
		if usage == nil {
			return gateway.StreamChunk{}, false
		}
		return gateway.StreamChunk{
			Data:  sseutil.BuildUsageChunk(tr.id, tr.model, usage),
			Usage: usage,
		}, true
	case "response.failed", "error":
		msg := parsed.Get("response.error.message").String()
		if msg == "" {
			msg = parsed.Get("message").String()
		}
		return gateway.StreamChunk{Err: fmt.Errorf("upstream stream error: %s", msg)}, true
	default:
		return gateway.StreamChunk{}, false
	}
}

// responsesUsageFromJSON converts responses-protocol usage JSON to the chat
// usage shape used for accounting.
func responsesUsageFromJSON(u gjson.Result) *gateway.Usage {
	if !u.Exists() {
		return nil
	}
	usage := &gateway.Usage{
		PromptTokens:     int(u.Get("input_tokens").Int()),
		CompletionTokens: int(u.Get("output_tokens").Int()),
		TotalTokens:      int(u.Get("total_tokens").Int()),
	}
	if usage.TotalTokens == 0 {
		return nil
	}
	if rt := u.Get("output_tokens_details.reasoning_tokens").Int(); rt > 0 {
		usage.CompletionTokensDetails = &gateway.CompletionTokensDetails{ReasoningTokens: int(rt)}
	}
	return usage
}
