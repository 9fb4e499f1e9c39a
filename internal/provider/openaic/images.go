package openaic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider"
)

// GenerateImages sends an image generation request.
func (c *Client) GenerateImages(ctx context.Context, req *gateway.ImageGenerationRequest) (*gateway.ImagesResponse, error) {
	outReq := *req
	outReq.Model = c.cfg.MappedModel(req.Model)

	var out gateway.ImagesResponse
	if err := c.postJSON(ctx, "/images/generations", &outReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditImages sends a multipart image edit request.
func (c *Client) EditImages(ctx context.Context, req *gateway.ImageEditRequest) (*gateway.ImagesResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// gpt-image models accept multiple source images under image[].
	field := "image"
	if len(req.Images) > 1 {
		field = "image[]"
	}
	for _, img := range req.Images {
		fw, err := w.CreateFormFile(field, img.Name)
		if err != nil {
			return nil, fmt.Errorf("%s: build form: %w", c.cfg.Name, err)
		}
		if _, err := fw.Write(img.Content); err != nil {
			return nil, fmt.Errorf("%s: build form: %w", c.cfg.Name, err)
		}
	}
	if req.Mask != nil {
		fw, err := w.CreateFormFile("mask", req.Mask.Name)
		if err != nil {
			return nil, fmt.Errorf("%s: build form: %w", c.cfg.Name, err)
		}
		if _, err := fw.Write(req.Mask.Content); err != nil {
			return nil, fmt.Errorf("%s: build form: %w", c.cfg.Name, err)
		}
	}

	fields := map[string]string{
		"model":           c.cfg.MappedModel(req.Model),
		"prompt":          req.Prompt,
		"size":            req.Size,
		"response_format": req.ResponseFormat,
	}
	if req.N > 0 {
		fields["n"] = strconv.Itoa(req.N)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("%s: build form: %w", c.cfg.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: build form: %w", c.cfg.Name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", &buf)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.cfg.Name, err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: do request: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(c.cfg.Name, resp)
	}

	var out gateway.ImagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", c.cfg.Name, err)
	}
	return &out, nil
}
