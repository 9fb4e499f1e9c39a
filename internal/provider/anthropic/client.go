// Package anthropic implements the adapter for the Anthropic Messages API,
// translating between the OpenAI-compatible wire format and Anthropic's.
package anthropic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

var _ gateway.Adapter = (*Client)(nil)

// Client talks to one Anthropic upstream account.
type Client struct {
	provider.Unsupported

	cfg     gateway.ProviderConfiguration
	baseURL string
	http    *http.Client
}

// New creates a Client from a provider configuration. Anthropic authenticates
// with an x-api-key header rather than a Bearer token.
func New(cfg gateway.ProviderConfiguration, baseTransport http.RoundTripper) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		Unsupported: provider.Unsupported{Provider: cfg.Name},
		cfg:         cfg,
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        provider.NewHTTPClient(&cfg, baseTransport, "x-api-key", ""),
	}
}

// NewFactory returns a registry factory bound to the shared pooled transport.
func NewFactory(baseTransport http.RoundTripper) provider.Factory {
	return func(cfg gateway.ProviderConfiguration) gateway.Adapter {
		return New(cfg, baseTransport)
	}
}

// Name returns the instance identifier.
func (c *Client) Name() string { return c.cfg.Name }

// Capabilities returns the endpoint families this account is configured for.
func (c *Client) Capabilities() []gateway.Capability { return c.cfg.Capabilities }

// ChatCompletion sends a non-streaming messages request and translates the
// result back to chat completion shape.
func (c *Client) ChatCompletion(ctx context.Context, req *gateway.ChatRequest) (*gateway.ChatResponse, error) {
	aReq := translateRequest(req, c.cfg.MappedModel(req.Model))
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
	return translateResponse(respBody, req.Model), nil
}

// ChatCompletionStream sends a streaming messages request. Anthropic SSE
// events are rewritten into OpenAI chat chunks on the fly.
func (c *Client) ChatCompletionStream(ctx context.Context, req *gateway.ChatRequest) (<-chan gateway.StreamChunk, error) {
	aReq := translateRequest(req, c.cfg.MappedModel(req.Model))
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
	go readStream(ctx, c.cfg.Name, req.Model, resp.Body, ch)
	return ch, nil
}

func (c *Client) postMessages(ctx context.Context, aReq *anthropicRequest) (*http.Response, error) {
	body, err := marshalRequest(aReq)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.cfg.Name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.cfg.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: do request: %w", c.cfg.Name, err)
	}
	return resp, nil
}
