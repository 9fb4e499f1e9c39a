package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider/sseutil"
)

// CreateResponse serves a responses-protocol request over the Messages API.
func (c *Client) CreateResponse(ctx context.Context, req *gateway.ResponsesRequest) (*gateway.ResponsesResponse, error) {
	aReq := translateResponsesRequest(req, c.cfg.MappedModel(req.Model))
	aReq.Stream = false

	resp, err := c.postMessages(ctx, aReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(c.cfg.Name, resp)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", c.cfg.Name, err)
	}
	return translateMessagesResult(respBody, req.Model), nil
}

// CreateResponseStream serves a streaming responses-protocol request.
// Anthropic SSE events are rewritten into responses-protocol events.
func (c *Client) CreateResponseStream(ctx context.Context, req *gateway.ResponsesRequest) (<-chan gateway.StreamChunk, error) {
	aReq := translateResponsesRequest(req, c.cfg.MappedModel(req.Model))
	aReq.Stream = true

	resp, err := c.postMessages(ctx, aReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, provider.ParseAPIError(c.cfg.Name, resp)
	}

	ch := make(chan gateway.StreamChunk, 8)
	go readResponsesStream(ctx, c.cfg.Name, req.Model, resp.Body, ch)
	return ch, nil
}

// translateResponsesRequest converts a responses-protocol request to an
// Anthropic Messages API request addressed at upstreamModel. Instructions and
// any system turns inside the input are hoisted into the system array.
func translateResponsesRequest(req *gateway.ResponsesRequest, upstreamModel string) *anthropicRequest {
	out := &anthropicRequest{
		Model:       upstreamModel,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.MaxOutputTokens != nil {
		out.MaxTokens = *req.MaxOutputTokens
	}

	var system []systemBlock
	if req.Instructions != "" {
		system = append(system, systemBlock{Type: "text", Text: req.Instructions})
	}

	parsed := gjson.ParseBytes(req.Input)
	if parsed.Type == gjson.String {
		// A bare string is a single user turn.
		content, _ := json.Marshal(parsed.String())
		out.Messages = append(out.Messages, anthropicMsg{Role: "user", Content: content})
	} else {
		parsed.ForEach(func(_, m gjson.Result) bool {
			text := inputText(m.Get("content"))
			switch m.Get("role").String() {
			case "system", "developer":
				system = append(system, systemBlock{Type: "text", Text: text})
			case "assistant":
				content, _ := json.Marshal(text)
				out.Messages = append(out.Messages, anthropicMsg{Role: "assistant", Content: content})
			default:
				content, _ := json.Marshal(text)
				out.Messages = append(out.Messages, anthropicMsg{Role: "user", Content: content})
			}
			return true
		})
	}
	if len(system) > 0 {
		system[len(system)-1].CacheControl = ephemeralCache
		out.System, _ = json.Marshal(system)
	}

	if req.Reasoning != nil {
		applyThinking(out, req.Reasoning.Effort)
	}
	return out
}

// inputText flattens responses-protocol content (a string or a part array)
// into plain text.
func inputText(c gjson.Result) string {
	if c.Type == gjson.String {
		return c.String()
	}
	var b strings.Builder
	c.ForEach(func(_, part gjson.Result) bool {
		if part.Get("type").String() == "input_text" {
			b.WriteString(part.Get("text").String())
		}
		return true
	})
	return b.String()
}

// translateMessagesResult converts an Anthropic Messages API JSON response to
// a responses-protocol response. Thinking blocks become a reasoning output
// item placed before the assistant message.
func translateMessagesResult(data []byte, model string) *gateway.ResponsesResponse {
	result := gjson.ParseBytes(data)
	id := result.Get("id").String()

	var text, reasoning strings.Builder
	result.Get("content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			text.WriteString(block.Get("text").String())
		case "thinking":
			reasoning.WriteString(block.Get("thinking").String())
		}
		return true
	})

	var output []any
	if reasoning.Len() > 0 {
		output = append(output, map[string]any{
			"type":    "reasoning",
			"id":      "rs_" + id,
			"summary": []map[string]any{{"type": "summary_text", "text": reasoning.String()}},
		})
	}
	output = append(output, map[string]any{
		"type":    "message",
		"role":    "assistant",
		"status":  "completed",
		"content": []map[string]any{{"type": "output_text", "text": text.String()}},
	})
	outJSON, _ := json.Marshal(output)

	status := "completed"
	if result.Get("stop_reason").String() == "max_tokens" {
		status = "incomplete"
	}

	var usage *gateway.ResponsesUsage
	if u := result.Get("usage"); u.Exists() {
		in := int(u.Get("input_tokens").Int())
		outTok := int(u.Get("output_tokens").Int())
		usage = &gateway.ResponsesUsage{InputTokens: in, OutputTokens: outTok, TotalTokens: in + outTok}
	}

	return &gateway.ResponsesResponse{
		ID:     id,
		Object: "response",
		Status: status,
		Model:  model,
		Output: outJSON,
		Usage:  usage,
	}
}

// responsesStreamState rewrites Anthropic SSE events into responses-protocol
// events. The first thinking delta is preceded by a synthetic reasoning
// message item, which lands before any text because Anthropic streams
// thinking blocks first.
type responsesStreamState struct {
	id            string
	model         string
	inputTokens   int
	outputTokens  int
	reasoningOpen bool
}

func readResponsesStream(ctx context.Context, providerName, model string, body io.ReadCloser, ch chan<- gateway.StreamChunk) {
	defer close(ch)
	defer body.Close()

	state := responsesStreamState{model: model}
	scanner := sseutil.NewScanner(body)

	var currentEvent string
	for scanner.Scan() {
		event, data, ok := sseutil.ParseSSELine(scanner.Text())
		if !ok {
			continue
		}
		if event != "" {
			currentEvent = event
			continue
		}
		if data == "" {
			continue
		}

		for _, c := range state.handleEvent(currentEvent, data) {
			select {
			case ch <- c:
			case <-ctx.Done():
				ch <- gateway.StreamChunk{Err: ctx.Err()}
				return
			}
		}
		currentEvent = ""
	}
	if err := scanner.Err(); err != nil {
		ch <- gateway.StreamChunk{Err: fmt.Errorf("%s: read stream: %w", providerName, err)}
	}
}

func (s *responsesStreamState) handleEvent(event, data string) []gateway.StreamChunk {
	r := gjson.Parse(data)

	switch event {
	case "message_start":
		s.id = r.Get("message.id").String()
		s.inputTokens = int(r.Get("message.usage.input_tokens").Int())
		return []gateway.StreamChunk{{Data: responsesEvent("response.created", map[string]any{
			"response": map[string]any{"id": s.id, "model": s.model, "status": "in_progress"},
		})}}

	case "content_block_delta":
		switch r.Get("delta.type").String() {
		case "text_delta":
			text := r.Get("delta.text").String()
			return []gateway.StreamChunk{{
				Data: responsesEvent("response.output_text.delta", map[string]any{"delta": text}),
				Text: text,
			}}
		case "thinking_delta":
			chunks := make([]gateway.StreamChunk, 0, 2)
			if !s.reasoningOpen {
				s.reasoningOpen = true
				chunks = append(chunks, gateway.StreamChunk{Data: responsesEvent("response.output_item.added", map[string]any{
					"item": map[string]any{"type": "reasoning", "id": "rs_" + s.id},
				})})
			}
			chunks = append(chunks, gateway.StreamChunk{Data: responsesEvent("response.reasoning_summary_text.delta", map[string]any{
				"delta": r.Get("delta.thinking").String(),
			})})
			return chunks
		}
		return nil

	case "message_delta":
		s.outputTokens = int(r.Get("usage.output_tokens").Int())
		return nil

	case "message_stop":
		usage := &gateway.Usage{
			PromptTokens:     s.inputTokens,
			CompletionTokens: s.outputTokens,
			TotalTokens:      s.inputTokens + s.outputTokens,
		}
		done := responsesEvent("response.completed", map[string]any{
			"response": map[string]any{
				"id":     s.id,
				"status": "completed",
				"usage": map[string]any{
					"input_tokens":  s.inputTokens,
					"output_tokens": s.outputTokens,
					"total_tokens":  s.inputTokens + s.outputTokens,
				},
			},
		})
		return []gateway.StreamChunk{{Data: done, Usage: usage}, {Done: true}}

	case "error":
		msg := r.Get("error.message").String()
		return []gateway.StreamChunk{{Err: fmt.Errorf("upstream stream error: %s", msg)}}

	default:
		// ping, content_block_start, content_block_stop
		return nil
	}
}

// responsesEvent marshals one responses-protocol SSE event payload.
func responsesEvent(eventType string, fields map[string]any) []byte {
	fields["type"] = eventType
	b, _ := json.Marshal(fields)
	return b
}
