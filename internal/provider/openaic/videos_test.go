package openaic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

func TestVideoLifecycle(t *testing.T) {
	t.Parallel()

	var deleted bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/videos", func(w http.ResponseWriter, r *http.Request) {
		var req gateway.VideoCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "sora-2" {
			t.Errorf("model = %q, want sora-2", req.Model)
		}
		fmt.Fprint(w, `{"id":"video_1","object":"video","model":"sora-2","status":"queued","created_at":1700000000}`)
	})
	mux.HandleFunc("GET /v1/videos/video_1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":"video_1","object":"video","status":"completed","progress":100}`)
	})
	mux.HandleFunc("GET /v1/videos/video_1/content", func(w http.ResponseWriter, r *http.Request) {
		if v := r.URL.Query().Get("variant"); v != "thumbnail" {
			t.Errorf("variant = %q, want thumbnail", v)
		}
		w.Header().Set("Content-Type", "image/webp")
		w.Write([]byte("thumb"))
	})
	mux.HandleFunc("GET /v1/videos", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"object":"list","data":[{"id":"video_1","status":"completed"}]}`)
	})
	mux.HandleFunc("DELETE /v1/videos/video_1", func(w http.ResponseWriter, _ *http.Request) {
		deleted = true
		fmt.Fprint(w, `{"id":"video_1","deleted":true}`)
	})
	mux.HandleFunc("POST /v1/videos/video_1/remix", func(w http.ResponseWriter, r *http.Request) {
		var req gateway.VideoRemixRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt != "slower pan" {
			t.Errorf("remix prompt = %q", req.Prompt)
		}
		fmt.Fprint(w, `{"id":"video_2","object":"video","status":"queued","remixed_from_video_id":"video_1"}`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testClient(srv.URL+"/v1", VariantOpenAI, nil)
	ctx := context.Background()

	created, err := client.CreateVideo(ctx, &gateway.VideoCreateRequest{Model: "sora-2", Prompt: "a fox"})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	if created.Status != "queued" {
		t.Errorf("status = %q, want queued", created.Status)
	}

	status, err := client.GetVideoStatus(ctx, "video_1")
	if err != nil {
		t.Fatalf("GetVideoStatus: %v", err)
	}
	if status.Status != "completed" || status.Progress != 100 {
		t.Errorf("status = %+v", status)
	}

	content, err := client.DownloadVideo(ctx, "video_1", "thumbnail")
	if err != nil {
		t.Fatalf("DownloadVideo: %v", err)
	}
	if content.ContentType != "image/webp" || string(content.Body) != "thumb" {
		t.Errorf("content = %+v", content)
	}

	list, err := client.ListVideos(ctx)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(list.Data) != 1 {
		t.Errorf("list = %+v", list)
	}

	if err := client.DeleteVideo(ctx, "video_1"); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	if !deleted {
		t.Error("delete never reached upstream")
	}

	remixed, err := client.RemixVideo(ctx, "video_1", &gateway.VideoRemixRequest{Prompt: "slower pan"})
	if err != nil {
		t.Fatalf("RemixVideo: %v", err)
	}
	if remixed.RemixedFromVideoID != "video_1" {
		t.Errorf("remixed_from = %q", remixed.RemixedFromVideoID)
	}
}
