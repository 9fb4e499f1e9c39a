package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

func videoReq() *gateway.VideoCreateRequest {
	return &gateway.VideoCreateRequest{Model: "sora-2", Prompt: "a fox in the snow", Size: "1280x720", Seconds: "8"}
}

func TestCreateVideoBindsJob(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.adapter.video = &gateway.Video{ID: "video_1", Object: "video", Model: "sora-2", Status: "queued", Size: "1280x720", Seconds: "8"}

	v, err := e.d.CreateVideo(e.ctx(), videoReq(), 256)
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	if v.ID != "video_1" {
		t.Errorf("video id = %q", v.ID)
	}

	job, err := e.jobs.GetVideoJob(context.Background(), "video_1")
	if err != nil {
		t.Fatalf("job binding missing: %v", err)
	}
	if job.UserID != "u1" || job.ProviderName != "openai" || job.Model != "sora-2" {
		t.Errorf("job = %+v", job)
	}

	if got := e.users.balance("u1"); got != 1_000_000-500 {
		t.Errorf("balance = %d, want %d", got, 1_000_000-500)
	}
	if r := e.requests.only(t); r.Status != gateway.StatusCompleted {
		t.Errorf("status = %s, want completed", r.Status)
	}
}

func TestCreateVideoRetriesHarder(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.adapter.errs = []error{
		errors.New("503 service unavailable"),
		errors.New("503 service unavailable"),
		errors.New("503 service unavailable"),
		errors.New("503 service unavailable"),
	}
	e.adapter.video = &gateway.Video{ID: "video_2", Status: "queued"}

	if _, err := e.d.CreateVideo(e.ctx(), videoReq(), 256); err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	// Video jobs get a deeper retry budget than chat.
	if got := e.adapter.callCount(); got != 5 {
		t.Errorf("adapter calls = %d, want 5", got)
	}
}

func TestGetVideoStatusRefreshesBinding(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.jobs.CreateVideoJob(context.Background(), &gateway.VideoJob{
		ID: "video_1", UserID: "u1", Model: "sora-2", ProviderName: "openai", Status: "queued",
	})
	e.adapter.statusOut = &gateway.Video{ID: "video_1", Status: "completed"}

	v, err := e.d.GetVideoStatus(e.ctx(), "video_1")
	if err != nil {
		t.Fatalf("GetVideoStatus: %v", err)
	}
	if v.Status != "completed" {
		t.Errorf("status = %q", v.Status)
	}

	job, _ := e.jobs.GetVideoJob(context.Background(), "video_1")
	if job.Status != "completed" {
		t.Errorf("binding status = %q, want refreshed to completed", job.Status)
	}
	// Read ops are neither billed nor tracked.
	if got := e.users.balance("u1"); got != 1_000_000 {
		t.Errorf("balance = %d, status polls must not bill", got)
	}
	if got := e.requests.count(); got != 0 {
		t.Errorf("request records = %d, want 0", got)
	}
}

func TestVideoOwnershipHidesOtherUsersJobs(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.jobs.CreateVideoJob(context.Background(), &gateway.VideoJob{
		ID: "video_1", UserID: "someone-else", ProviderName: "openai",
	})

	if _, err := e.d.GetVideoStatus(e.ctx(), "video_1"); !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound (no existence leak)", err)
	}
	if _, err := e.d.DownloadVideo(e.ctx(), "video_1", "video"); !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("download err = %v, want ErrNotFound", err)
	}
	if err := e.d.DeleteVideo(e.ctx(), "video_1"); !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("delete err = %v, want ErrNotFound", err)
	}
}

func TestVideoAdminSeesAllJobs(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.user.Plan = gateway.PlanAdmin
	e.jobs.CreateVideoJob(context.Background(), &gateway.VideoJob{
		ID: "video_1", UserID: "someone-else", ProviderName: "openai",
	})
	e.adapter.statusOut = &gateway.Video{ID: "video_1", Status: "queued"}

	if _, err := e.d.GetVideoStatus(e.ctx(), "video_1"); err != nil {
		t.Fatalf("admin GetVideoStatus: %v", err)
	}
}

func TestDownloadVideoRoutesToOwningAccount(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	enc, salt, err := e.vault.Encrypt("sk-keyed")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	e.subs.CreateSubProvider(context.Background(), &gateway.SubProvider{
		ID: "sub-1", ProviderID: "p-openai", AuthMode: "api_key",
		EncryptedAPIKey: enc, Salt: salt, IsEnabled: true,
	})
	e.jobs.CreateVideoJob(context.Background(), &gateway.VideoJob{
		ID: "video_1", UserID: "u1", ProviderName: "openai", SubProviderID: "sub-1",
	})
	e.adapter.content = &gateway.VideoContent{ContentType: "video/mp4", Body: []byte("mp4bytes")}

	c, err := e.d.DownloadVideo(e.ctx(), "video_1", "video")
	if err != nil {
		t.Fatalf("DownloadVideo: %v", err)
	}
	if c.ContentType != "video/mp4" || len(c.Body) == 0 {
		t.Errorf("content = %+v", c)
	}
}

func TestDownloadVideoFallsBackWhenSubProviderGone(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.jobs.CreateVideoJob(context.Background(), &gateway.VideoJob{
		ID: "video_1", UserID: "u1", ProviderName: "openai", SubProviderID: "sub-gone",
	})
	e.adapter.content = &gateway.VideoContent{ContentType: "video/mp4", Body: []byte("mp4bytes")}

	if _, err := e.d.DownloadVideo(e.ctx(), "video_1", "video"); err != nil {
		t.Fatalf("DownloadVideo should fall back to the default adapter: %v", err)
	}
}

func TestListVideosReadsBindings(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	created := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	e.jobs.CreateVideoJob(context.Background(), &gateway.VideoJob{
		ID: "video_1", UserID: "u1", Model: "sora-2", ProviderName: "openai",
		Status: "completed", Size: "1280x720", Seconds: "8", CreatedAt: created,
	})
	e.jobs.CreateVideoJob(context.Background(), &gateway.VideoJob{
		ID: "video_2", UserID: "someone-else", ProviderName: "openai",
	})

	list, err := e.d.ListVideos(e.ctx())
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(list.Data) != 1 {
		t.Fatalf("videos = %d, want only the caller's", len(list.Data))
	}
	v := list.Data[0]
	if v.ID != "video_1" || v.Object != "video" || v.CreatedAt != created.Unix() {
		t.Errorf("video = %+v", v)
	}
}

func TestDeleteVideoDropsBinding(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.jobs.CreateVideoJob(context.Background(), &gateway.VideoJob{
		ID: "video_1", UserID: "u1", ProviderName: "openai",
	})

	if err := e.d.DeleteVideo(e.ctx(), "video_1"); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	if len(e.adapter.deleted) != 1 || e.adapter.deleted[0] != "video_1" {
		t.Errorf("upstream deletes = %v", e.adapter.deleted)
	}
	if _, err := e.jobs.GetVideoJob(context.Background(), "video_1"); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("binding should be gone, got %v", err)
	}
}

func TestRemixVideoBillsAndRebinds(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.jobs.CreateVideoJob(context.Background(), &gateway.VideoJob{
		ID: "video_1", UserID: "u1", Model: "sora-2", ProviderName: "openai", Status: "completed",
	})
	e.adapter.remixed = &gateway.Video{ID: "video_2", Status: "queued", RemixedFromVideoID: "video_1"}

	v, err := e.d.RemixVideo(e.ctx(), "video_1", &gateway.VideoRemixRequest{Prompt: "slower pan"}, 128)
	if err != nil {
		t.Fatalf("RemixVideo: %v", err)
	}
	if v.ID != "video_2" {
		t.Errorf("remix id = %q", v.ID)
	}

	job, err := e.jobs.GetVideoJob(context.Background(), "video_2")
	if err != nil {
		t.Fatalf("remix binding missing: %v", err)
	}
	if job.ProviderName != "openai" || job.Model != "sora-2" || job.UserID != "u1" {
		t.Errorf("remix job = %+v", job)
	}

	// Remixes bill like a fresh generation.
	if got := e.users.balance("u1"); got != 1_000_000-500 {
		t.Errorf("balance = %d, want %d", got, 1_000_000-500)
	}
	if r := e.requests.only(t); r.Status != gateway.StatusCompleted {
		t.Errorf("status = %s, want completed", r.Status)
	}
}
