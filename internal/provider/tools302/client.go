// Package tools302 implements the adapter for the 302.AI aggregator. Chat
// goes through its OpenAI-compatible endpoint; image generation uses a side
// channel that returns base64 payloads, which are re-hosted on a CDN so
// clients receive plain URLs.
package tools302

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider/openaic"
)

const defaultBaseURL = "https://api.302.ai/v1"

var _ gateway.Adapter = (*Client)(nil)

// Client talks to one 302.AI upstream account. The embedded OpenAI-compatible
// client serves every operation except image generation.
type Client struct {
	*openaic.Client

	cfg     gateway.ProviderConfiguration
	baseURL string
	cdnURL  string
	http    *http.Client
}

// New creates a Client. cdnURL is the base of the asset store generated
// images are uploaded to; empty disables re-hosting and surfaces an error on
// image requests.
func New(cfg gateway.ProviderConfiguration, cdnURL string, baseTransport http.RoundTripper) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		Client:  openaic.New(cfg, openaic.VariantOpenAI, baseTransport),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cdnURL:  strings.TrimRight(cdnURL, "/"),
		http:    provider.NewHTTPClient(&cfg, baseTransport, "Authorization", "Bearer "),
	}
}

// NewFactory returns a registry factory bound to a CDN base URL and the
// shared pooled transport.
func NewFactory(cdnURL string, baseTransport http.RoundTripper) provider.Factory {
	return func(cfg gateway.ProviderConfiguration) gateway.Adapter {
		return New(cfg, cdnURL, baseTransport)
	}
}

// sideChannelRequest is the 302.AI image submit payload.
type sideChannelRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	ImageSize string `json:"image_size,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// sideChannelResponse carries base64 image payloads.
type sideChannelResponse struct {
	Images []struct {
		B64 string `json:"b64_json"`
	} `json:"images"`
}

// GenerateImages submits a generation job on the side channel, uploads each
// returned image to the CDN, and answers with hosted URLs.
func (c *Client) GenerateImages(ctx context.Context, req *gateway.ImageGenerationRequest) (*gateway.ImagesResponse, error) {
	if c.cdnURL == "" {
		return nil, fmt.Errorf("%s: no cdn configured for image re-hosting", c.cfg.Name)
	}

	// The aggregator expects its own model ids without the routing prefix.
	model := strings.TrimPrefix(c.cfg.MappedModel(req.Model), "302/")
	scReq := sideChannelRequest{
		Model:     model,
		Prompt:    req.Prompt,
		ImageSize: req.Size,
		BatchSize: req.N,
	}
	body, err := json.Marshal(scReq)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.cfg.Name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.cfg.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: do request: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(c.cfg.Name, resp)
	}

	var scResp sideChannelResponse
	if err := json.NewDecoder(resp.Body).Decode(&scResp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", c.cfg.Name, err)
	}
	if len(scResp.Images) == 0 {
		return nil, fmt.Errorf("%s: side channel returned no images", c.cfg.Name)
	}

	out := &gateway.ImagesResponse{Created: time.Now().Unix()}
	for _, img := range scResp.Images {
		raw, err := base64.StdEncoding.DecodeString(img.B64)
		if err != nil {
			return nil, fmt.Errorf("%s: decode image payload: %w", c.cfg.Name, err)
		}
		url, err := c.uploadToCDN(ctx, raw)
		if err != nil {
			return nil, err
		}
		out.Data = append(out.Data, gateway.ImageData{URL: url})
	}
	return out, nil
}

// uploadToCDN PUTs raw image bytes under a fresh object name and returns the
// public URL.
func (c *Client) uploadToCDN(ctx context.Context, raw []byte) (string, error) {
	url := c.cdnURL + "/" + uuid.Must(uuid.NewV7()).String() + ".png"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%s: create upload: %w", c.cfg.Name, err)
	}
	httpReq.Header.Set("Content-Type", "image/png")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s: upload image: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", provider.ParseAPIError(c.cfg.Name, resp)
	}
	return url, nil
}
