package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// defaultMaxTokens applies when the client sends no max_tokens; the Messages
// API requires one.
const defaultMaxTokens = 4096

// thinkingBudgets maps reasoning_effort to Anthropic thinking token budgets.
var thinkingBudgets = map[string]int{
	"low":    1024,
	"medium": 2048,
	"high":   4096,
}

// anthropicRequest is the Anthropic Messages API request body.
type anthropicRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Messages    []anthropicMsg  `json:"messages"`
	System      json.RawMessage `json:"system,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       json.RawMessage `json:"tools,omitempty"`
	StopSeqs    json.RawMessage `json:"stop_sequences,omitempty"`
	Thinking    *thinkingConfig `json:"thinking,omitempty"`
}

type anthropicMsg struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// systemBlock is one entry of the top-level system array.
type systemBlock struct {
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	CacheControl json.RawMessage `json:"cache_control,omitempty"`
}

var ephemeralCache = json.RawMessage(`{"type":"ephemeral"}`)

// marshalRequest serializes an anthropicRequest.
func marshalRequest(aReq *anthropicRequest) ([]byte, error) {
	return json.Marshal(aReq)
}

// translateRequest converts an OpenAI-format ChatRequest to an Anthropic
// Messages API request addressed at upstreamModel.
//
// System messages are hoisted into the top-level system array; the last block
// is marked ephemeral so Anthropic caches the prefix across turns. A
// reasoning_effort maps to a thinking budget, which forces temperature to 1.0
// and guarantees max_tokens exceeds the budget as the API requires.
func translateRequest(req *gateway.ChatRequest, upstreamModel string) *anthropicRequest {
	out := &anthropicRequest{
		Model:       upstreamModel,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Tools:       req.Tools,
		StopSeqs:    req.Stop,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	} else if req.MaxCompletionTokens != nil {
		out.MaxTokens = *req.MaxCompletionTokens
	}

	var system []systemBlock
	for _, m := range req.Messages {
		switch m.Role {
		case "system", "developer":
			system = append(system, systemBlock{Type: "text", Text: gateway.ContentText(m.Content)})
		case "user", "assistant":
			out.Messages = append(out.Messages, anthropicMsg{Role: m.Role, Content: m.Content})
		case "tool":
			// Tool results map to user role in Anthropic's format.
			toolResult := fmt.Sprintf(`[{"type":"tool_result","tool_use_id":%q,"content":%s}]`,
				m.ToolCallID, string(m.Content))
			out.Messages = append(out.Messages, anthropicMsg{Role: "user", Content: json.RawMessage(toolResult)})
		}
	}
	if len(system) > 0 {
		system[len(system)-1].CacheControl = ephemeralCache
		out.System, _ = json.Marshal(system)
	}

	applyThinking(out, req.ReasoningEffort)
	return out
}

// applyThinking enables extended thinking for a recognized effort level.
// Thinking requires temperature 1.0 and max_tokens above the budget.
func applyThinking(out *anthropicRequest, effort string) {
	budget, ok := thinkingBudgets[effort]
	if !ok {
		return
	}
	out.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: budget}
	if out.MaxTokens <= budget {
		out.MaxTokens = budget + 1
	}
	one := 1.0
	out.Temperature = &one
	out.TopP = nil
}

// thinkingBlock is one thinking content block surfaced to the client. The
// signature must survive the round trip: Anthropic rejects resent thinking
// content without it.
type thinkingBlock struct {
	Type      string `json:"type"`
	Thinking  string `json:"thinking"`
	Signature string `json:"signature,omitempty"`
}

// translateResponse converts an Anthropic Messages API JSON response to an
// OpenAI-format ChatResponse. Thinking blocks surface as a reasoning_content
// array preserving per-block signatures.
func translateResponse(data []byte, model string) *gateway.ChatResponse {
	result := gjson.ParseBytes(data)

	stopReason := mapStopReason(result.Get("stop_reason").String())

	var contentText strings.Builder
	var thinking []thinkingBlock
	var toolCalls []json.RawMessage
	result.Get("content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			contentText.WriteString(block.Get("text").String())
		case "thinking":
			thinking = append(thinking, thinkingBlock{
				Type:      "thinking",
				Thinking:  block.Get("thinking").String(),
				Signature: block.Get("signature").String(),
			})
		case "tool_use":
			tc, _ := json.Marshal(map[string]any{
				"id":   block.Get("id").String(),
				"type": "function",
				"function": map[string]any{
					"name":      block.Get("name").String(),
					"arguments": block.Get("input").Raw,
				},
			})
			toolCalls = append(toolCalls, tc)
		}
		return true
	})

	msg := gateway.Message{Role: "assistant"}
	if contentText.Len() > 0 {
		ct, _ := json.Marshal(contentText.String())
		msg.Content = ct
	}
	if len(thinking) > 0 {
		rc, _ := json.Marshal(thinking)
		msg.ReasoningContent = rc
	}
	if len(toolCalls) > 0 {
		tc, _ := json.Marshal(toolCalls)
		msg.ToolCalls = tc
		if stopReason == "" {
			stopReason = "tool_calls"
		}
	}

	var usage *gateway.Usage
	if u := result.Get("usage"); u.Exists() {
		usage = &gateway.Usage{
			PromptTokens:     int(u.Get("input_tokens").Int()),
			CompletionTokens: int(u.Get("output_tokens").Int()),
			TotalTokens:      int(u.Get("input_tokens").Int()) + int(u.Get("output_tokens").Int()),
		}
	}

	return &gateway.ChatResponse{
		ID:      result.Get("id").String(),
		Object:  "chat.completion",
		Model:   model,
		Choices: []gateway.Choice{{Index: 0, Message: msg, FinishReason: stopReason}},
		Usage:   usage,
	}
}

// mapStopReason converts Anthropic stop reasons to OpenAI finish reasons.
// Unknown reasons map to empty so the finish_reason serializes as null.
func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	case "refusal":
		return "content_filter"
	default:
		return ""
	}
}
