// Package openaic implements the adapter for OpenAI and OpenAI-compatible
// upstreams (OpenAI itself, Azure-style gateways, xAI, and any aggregator
// speaking the same wire format). Variant hooks cover the places where a
// compatible upstream deviates from OpenAI proper.
package openaic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider/sseutil"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Variants tweak request shapes for compatible-but-not-identical upstreams.
const (
	VariantOpenAI = ""    // OpenAI proper
	VariantXAI    = "xai" // rejects presence/frequency penalties
)

var _ gateway.Adapter = (*Client)(nil)

// Client talks to one OpenAI-compatible upstream account.
type Client struct {
	provider.Unsupported

	cfg     gateway.ProviderConfiguration
	baseURL string
	http    *http.Client
	variant string
}

// New creates a Client from a provider configuration. The auth decorator is
// chosen from the configuration (Bearer key or OAuth client credentials) on
// top of baseTransport.
func New(cfg gateway.ProviderConfiguration, variant string, baseTransport http.RoundTripper) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		Unsupported: provider.Unsupported{Provider: cfg.Name},
		cfg:         cfg,
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        provider.NewHTTPClient(&cfg, baseTransport, "Authorization", "Bearer "),
		variant:     variant,
	}
}

// NewFactory returns a registry factory for this family bound to a variant
// and the shared pooled transport.
func NewFactory(variant string, baseTransport http.RoundTripper) provider.Factory {
	return func(cfg gateway.ProviderConfiguration) gateway.Adapter {
		return New(cfg, variant, baseTransport)
	}
}

// Name returns the instance identifier.
func (c *Client) Name() string { return c.cfg.Name }

// Capabilities returns the endpoint families this account is configured for.
func (c *Client) Capabilities() []gateway.Capability { return c.cfg.Capabilities }

// ChatCompletion sends a non-streaming chat completion request.
// Codex-family models only speak the responses protocol, so their chat
// requests are rewritten to /responses and the result mapped back.
func (c *Client) ChatCompletion(ctx context.Context, req *gateway.ChatRequest) (*gateway.ChatResponse, error) {
	outReq := c.prepareChat(req)
	if isCodexModel(outReq.Model) {
		return c.chatViaResponses(ctx, outReq)
	}

	var out gateway.ChatResponse
	if err := c.postJSON(ctx, "/chat/completions", outReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatCompletionStream sends a streaming chat completion request. Raw SSE
// payloads are forwarded in StreamChunk.Data; delta text and final usage are
// extracted for accounting.
func (c *Client) ChatCompletionStream(ctx context.Context, req *gateway.ChatRequest) (<-chan gateway.StreamChunk, error) {
	outReq := c.prepareChat(req)
	if isCodexModel(outReq.Model) {
		return c.chatStreamViaResponses(ctx, outReq)
	}

	outReq.Stream = true
	if outReq.StreamOptions == nil {
		outReq.StreamOptions = &gateway.StreamOptions{IncludeUsage: true}
	}

	resp, err := c.post(ctx, "/chat/completions", outReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, provider.ParseAPIError(c.cfg.Name, resp)
	}

	ch := make(chan gateway.StreamChunk, 8)
	go sseutil.ReadSSEStream(ctx, c.cfg.Name, resp, ch)
	return ch, nil
}

// CreateEmbeddings sends an embedding request.
func (c *Client) CreateEmbeddings(ctx context.Context, req *gateway.EmbeddingRequest) (*gateway.EmbeddingResponse, error) {
	outReq := *req
	outReq.Model = c.cfg.MappedModel(req.Model)

	var out gateway.EmbeddingResponse
	if err := c.postJSON(ctx, "/embeddings", &outReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModerateContent sends a moderation request.
func (c *Client) ModerateContent(ctx context.Context, req *gateway.ModerationRequest) (*gateway.ModerationResponse, error) {
	outReq := *req
	if outReq.Model != "" {
		outReq.Model = c.cfg.MappedModel(req.Model)
	}

	var out gateway.ModerationResponse
	if err := c.postJSON(ctx, "/moderations", &outReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// prepareChat clones the request with the upstream model name and applies
// per-model and per-variant shape fixes.
func (c *Client) prepareChat(req *gateway.ChatRequest) *gateway.ChatRequest {
	out := *req
	out.Model = c.cfg.MappedModel(req.Model)

	// Reasoning models reject max_tokens in favor of max_completion_tokens.
	if isReasoningModel(out.Model) && out.MaxTokens != nil && out.MaxCompletionTokens == nil {
		out.MaxCompletionTokens = out.MaxTokens
		out.MaxTokens = nil
	}

	if c.variant == VariantXAI {
		out.PresencePenalty = nil
		out.FrequencyPenalty = nil
	}
	return &out
}

// isReasoningModel reports whether model is in the o-series / gpt-5 family
// that uses max_completion_tokens.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return true
	case strings.HasPrefix(m, "gpt-5"):
		return true
	}
	return false
}

// isCodexModel reports whether model only speaks the responses protocol.
func isCodexModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "codex")
}

// post sends a JSON POST and returns the raw response.
func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.cfg.Name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.cfg.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: do request: %w", c.cfg.Name, err)
	}
	return resp, nil
}

// postJSON sends a JSON POST and decodes a JSON response into out.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	resp, err := c.post(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.ParseAPIError(c.cfg.Name, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.cfg.Name, err)
	}
	return nil
}

// getJSON sends a GET and decodes a JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.cfg.Name, err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: do request: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.ParseAPIError(c.cfg.Name, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.cfg.Name, err)
	}
	return nil
}
