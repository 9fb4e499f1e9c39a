// Package tokencount provides token estimation for window reservation and
// billing fallback. Counts come from tiktoken codecs where a model maps to
// one; a ~4 chars/token heuristic covers everything else.
package tokencount

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// Counter estimates token counts for requests and text.
type Counter struct {
	mu     sync.Mutex
	codecs map[string]tokenizer.Codec // model prefix -> codec, lazily built
}

// NewCounter creates a new Counter.
func NewCounter() *Counter {
	return &Counter{codecs: make(map[string]tokenizer.Codec)}
}

// EstimateRequest estimates the total token count for a chat completion
// request, including per-message formatting overhead.
func (c *Counter) EstimateRequest(model string, messages []gateway.Message) int {
	total := 0
	for _, m := range messages {
		total += messageOverhead
		total += c.CountText(model, m.Role)
		total += c.CountText(model, gateway.ContentText(m.Content))
		if m.Name != "" {
			total += c.CountText(model, m.Name) + 1 // name costs 1 extra token
		}
		if len(m.ToolCalls) > 0 {
			total += c.CountText(model, string(m.ToolCalls))
		}
	}
	total += 3 // every reply is primed with <|start|>assistant<|message|>
	return max(total, 1)
}

// CountText counts tokens for a plain text string under the model's codec,
// falling back to the byte heuristic when no codec matches.
func (c *Counter) CountText(model, text string) int {
	if text == "" {
		return 0
	}
	if codec := c.codecFor(model); codec != nil {
		if n, err := codec.Count(text); err == nil {
			return n
		}
	}
	return heuristicTokens(text)
}

// messageOverhead is the per-message framing cost for GPT-4o-era chat formats.
const messageOverhead = 4

// codecFor returns a cached tiktoken codec for the model, or nil when the
// model family is unknown (Anthropic, image, video models).
func (c *Counter) codecFor(model string) tokenizer.Codec {
	key := codecKey(model)
	if key == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if codec, ok := c.codecs[key]; ok {
		return codec
	}

	var (
		codec tokenizer.Codec
		err   error
	)
	switch key {
	case "gpt-5":
		codec, err = tokenizer.ForModel(tokenizer.GPT5)
	case "gpt-4o":
		codec, err = tokenizer.ForModel(tokenizer.GPT4o)
	case "gpt-4":
		codec, err = tokenizer.ForModel(tokenizer.GPT4)
	case "o-series":
		codec, err = tokenizer.Get(tokenizer.O200kBase)
	default:
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
	}
	if err != nil {
		codec = nil // cache the miss; heuristic takes over
	}
	c.codecs[key] = codec
	return codec
}

// codecKey buckets model ids into codec families. Empty string means no
// codec applies.
func codecKey(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "gpt-5"):
		return "gpt-5"
	case strings.HasPrefix(m, "gpt-4o"):
		return "gpt-4o"
	case strings.HasPrefix(m, "gpt-4"):
		return "gpt-4"
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return "o-series"
	case strings.HasPrefix(m, "text-embedding"):
		return "embedding"
	case strings.HasPrefix(m, "claude"), strings.Contains(m, "/"):
		// Anthropic and vendor-prefixed models have no public tiktoken
		// vocabulary; the heuristic is close enough for reservations.
		return ""
	default:
		return ""
	}
}

// heuristicTokens uses the ~4 bytes per token approximation for English text.
func heuristicTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 3) / 4
}
