package openaic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider"
)

// TextToSpeech sends a speech synthesis request and returns the raw audio.
func (c *Client) TextToSpeech(ctx context.Context, req *gateway.SpeechRequest) ([]byte, error) {
	outReq := *req
	outReq.Model = c.cfg.MappedModel(req.Model)

	resp, err := c.post(ctx, "/audio/speech", &outReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(c.cfg.Name, resp)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read audio: %w", c.cfg.Name, err)
	}
	return audio, nil
}

// AudioTranscription sends a multipart transcription (or translation) request.
func (c *Client) AudioTranscription(ctx context.Context, req *gateway.TranscriptionRequest) (*gateway.TranscriptionResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("%s: build form: %w", c.cfg.Name, err)
	}
	if _, err := fw.Write(req.File); err != nil {
		return nil, fmt.Errorf("%s: build form: %w", c.cfg.Name, err)
	}

	fields := map[string]string{
		"model":           c.cfg.MappedModel(req.Model),
		"language":        req.Language,
		"prompt":          req.Prompt,
		"response_format": req.ResponseFormat,
	}
	if req.Temperature != nil {
		fields["temperature"] = strconv.FormatFloat(*req.Temperature, 'f', -1, 64)
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

	path := "/audio/transcriptions"
	if req.Translate {
		path = "/audio/translations"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
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

	// Non-JSON response formats (text, srt, vtt) come back as plain bodies.
	if req.ResponseFormat != "" && req.ResponseFormat != "json" && req.ResponseFormat != "verbose_json" {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: read transcription: %w", c.cfg.Name, err)
		}
		return &gateway.TranscriptionResponse{Text: string(body)}, nil
	}

	var out gateway.TranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", c.cfg.Name, err)
	}
	return &out, nil
}
