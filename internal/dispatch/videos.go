package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/registry"
)

// CreateVideo dispatches a video generation job and binds the returned
// provider video id to the upstream account that owns it, so later status,
// download, delete and remix calls route back to the same account.
func (d *Dispatcher) CreateVideo(ctx context.Context, req *gateway.VideoCreateRequest, bodySize int) (*gateway.Video, error) {
	p, err := d.prepare(ctx, registry.EndpointVideos, req.Model, false, req.Prompt, bodySize, 0, maxVideoRetries)
	if err != nil {
		return nil, err
	}

	video, sel, attempt, err := run(ctx, d, p, func(ctx context.Context, a gateway.Adapter) (*gateway.Video, error) {
		return a.CreateVideo(ctx, req)
	})
	if err != nil {
		d.settleFailure(ctx, p, attempt, err)
		return nil, err
	}

	job := &gateway.VideoJob{
		ID:            video.ID,
		UserID:        p.user.ID,
		Model:         req.Model,
		ProviderName:  sel.Provider.Name,
		SubProviderID: subProviderID(sel),
		Status:        video.Status,
		Size:          video.Size,
		Seconds:       video.Seconds,
		CreatedAt:     d.now(),
	}
	if err := d.videoJobs.CreateVideoJob(context.WithoutCancel(ctx), job); err != nil {
		// The upstream job exists; losing the binding only breaks later
		// routing, so surface it loudly but return the video.
		d.logger.LogAttrs(ctx, slog.LevelError, "video job binding failed",
			slog.String("video_id", video.ID),
			slog.String("error", err.Error()),
		)
	}

	d.settleSuccess(ctx, p, sel, 0, jsonSize(video), attempt)
	return video, nil
}

// jobAdapter resolves the owning adapter for a bound video id, enforcing
// that the caller owns the job.
func (d *Dispatcher) jobAdapter(ctx context.Context, videoID string) (gateway.Adapter, *gateway.VideoJob, error) {
	user := gateway.UserFromContext(ctx)
	if user == nil {
		return nil, nil, gateway.ErrForbidden
	}

	job, err := d.videoJobs.GetVideoJob(ctx, videoID)
	if err != nil {
		return nil, nil, err
	}
	if job.UserID != user.ID && !user.IsAdmin() {
		return nil, nil, gateway.ErrNotFound // do not leak other users' jobs
	}

	if job.SubProviderID != "" {
		sub, err := d.subProviders.GetSubProvider(ctx, job.SubProviderID)
		if err == nil {
			key, derr := d.vault.Decrypt(sub.EncryptedAPIKey, sub.Salt)
			if derr != nil {
				return nil, nil, fmt.Errorf("decrypt sub-provider key %s: %w", sub.ID, derr)
			}
			a, aerr := d.adapters.WithKey(job.ProviderName, key, sub)
			return a, job, aerr
		}
		if !errors.Is(err, gateway.ErrNotFound) {
			return nil, nil, err
		}
		// Sub-provider deleted since the job was created; fall back to the
		// provider's default adapter.
	}
	a, err := d.adapters.Get(job.ProviderName)
	return a, job, err
}

// GetVideoStatus polls the owning upstream and keeps the binding's status
// column fresh.
func (d *Dispatcher) GetVideoStatus(ctx context.Context, videoID string) (*gateway.Video, error) {
	a, job, err := d.jobAdapter(ctx, videoID)
	if err != nil {
		return nil, err
	}
	video, err := a.GetVideoStatus(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.Status != job.Status {
		if err := d.videoJobs.UpdateVideoJobStatus(ctx, videoID, video.Status); err != nil {
			d.logger.LogAttrs(ctx, slog.LevelWarn, "video status update failed",
				slog.String("video_id", videoID),
				slog.String("error", err.Error()),
			)
		}
	}
	return video, nil
}

// DownloadVideo relays finished content from the owning upstream.
func (d *Dispatcher) DownloadVideo(ctx context.Context, videoID, variant string) (*gateway.VideoContent, error) {
	a, _, err := d.jobAdapter(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return a.DownloadVideo(ctx, videoID, variant)
}

// ListVideos returns the caller's video jobs from the binding table.
func (d *Dispatcher) ListVideos(ctx context.Context) (*gateway.VideoList, error) {
	user := gateway.UserFromContext(ctx)
	if user == nil {
		return nil, gateway.ErrForbidden
	}
	jobs, err := d.videoJobs.ListVideoJobsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	list := &gateway.VideoList{Object: "list", Data: make([]gateway.Video, 0, len(jobs))}
	for _, j := range jobs {
		list.Data = append(list.Data, gateway.Video{
			ID:        j.ID,
			Object:    "video",
			Model:     j.Model,
			Status:    j.Status,
			Size:      j.Size,
			Seconds:   j.Seconds,
			CreatedAt: j.CreatedAt.Unix(),
		})
	}
	return list, nil
}

// DeleteVideo removes the job upstream and drops the binding.
func (d *Dispatcher) DeleteVideo(ctx context.Context, videoID string) error {
	a, _, err := d.jobAdapter(ctx, videoID)
	if err != nil {
		return err
	}
	if err := a.DeleteVideo(ctx, videoID); err != nil {
		return err
	}
	if err := d.videoJobs.DeleteVideoJob(context.WithoutCancel(ctx), videoID); err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "video binding delete failed",
			slog.String("video_id", videoID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// RemixVideo re-prompts a finished job on its owning account. The remix is
// billed and tracked like a fresh generation.
func (d *Dispatcher) RemixVideo(ctx context.Context, videoID string, req *gateway.VideoRemixRequest, bodySize int) (*gateway.Video, error) {
	a, job, err := d.jobAdapter(ctx, videoID)
	if err != nil {
		return nil, err
	}

	p, err := d.prepare(ctx, registry.EndpointVideos, job.Model, false, req.Prompt, bodySize, 0, 1)
	if err != nil {
		return nil, err
	}

	start := d.now()
	video, err := a.RemixVideo(ctx, videoID, req)
	if err != nil {
		d.settleFailure(ctx, p, 0, err)
		return nil, err
	}

	remixJob := &gateway.VideoJob{
		ID:            video.ID,
		UserID:        p.user.ID,
		Model:         job.Model,
		ProviderName:  job.ProviderName,
		SubProviderID: job.SubProviderID,
		Status:        video.Status,
		Size:          video.Size,
		Seconds:       video.Seconds,
		CreatedAt:     start,
	}
	if err := d.videoJobs.CreateVideoJob(context.WithoutCancel(ctx), remixJob); err != nil {
		d.logger.LogAttrs(ctx, slog.LevelError, "video job binding failed",
			slog.String("video_id", video.ID),
			slog.String("error", err.Error()),
		)
	}

	d.settleSuccess(ctx, p, nil, 0, jsonSize(video), 0)
	return video, nil
}
