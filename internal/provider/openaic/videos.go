package openaic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/provider"
)

// CreateVideo starts a video generation job.
func (c *Client) CreateVideo(ctx context.Context, req *gateway.VideoCreateRequest) (*gateway.Video, error) {
	outReq := *req
	outReq.Model = c.cfg.MappedModel(req.Model)

	var out gateway.Video
	if err := c.postJSON(ctx, "/videos", &outReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetVideoStatus fetches the current state of a video job.
func (c *Client) GetVideoStatus(ctx context.Context, videoID string) (*gateway.Video, error) {
	var out gateway.Video
	if err := c.getJSON(ctx, "/videos/"+url.PathEscape(videoID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadVideo fetches rendered content for a completed job. variant selects
// the asset ("video", "thumbnail", "spritesheet"); empty means the video.
func (c *Client) DownloadVideo(ctx context.Context, videoID, variant string) (*gateway.VideoContent, error) {
	path := "/videos/" + url.PathEscape(videoID) + "/content"
	if variant != "" {
		path += "?variant=" + url.QueryEscape(variant)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.cfg.Name, err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: do request: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(c.cfg.Name, resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read video content: %w", c.cfg.Name, err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "video/mp4"
	}
	return &gateway.VideoContent{ContentType: ct, Body: body}, nil
}

// ListVideos lists video jobs on the upstream account.
func (c *Client) ListVideos(ctx context.Context) (*gateway.VideoList, error) {
	var out gateway.VideoList
	if err := c.getJSON(ctx, "/videos", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteVideo removes a video job and its assets.
func (c *Client) DeleteVideo(ctx context.Context, videoID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/videos/"+url.PathEscape(videoID), nil)
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
	return nil
}

// RemixVideo re-prompts an existing video job.
func (c *Client) RemixVideo(ctx context.Context, videoID string, req *gateway.VideoRemixRequest) (*gateway.Video, error) {
	var out gateway.Video
	if err := c.postJSON(ctx, "/videos/"+url.PathEscape(videoID)+"/remix", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
