package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

func (s *server) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	var req gateway.VideoCreateRequest
	size, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}
	video, err := s.deps.Dispatch.CreateVideo(r.Context(), &req, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func (s *server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Dispatch.ListVideos(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	video, err := s.deps.Dispatch.GetVideoStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func (s *server) handleVideoContent(w http.ResponseWriter, r *http.Request) {
	variant := r.URL.Query().Get("variant")
	switch variant {
	case "":
		variant = "video"
	case "video", "thumbnail", "spritesheet":
	default:
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "variant must be video, thumbnail or spritesheet")
		return
	}

	content, err := s.deps.Dispatch.DownloadVideo(r.Context(), chi.URLParam(r, "id"), variant)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ct := content.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header()["Content-Type"] = []string{ct}
	w.WriteHeader(http.StatusOK)
	w.Write(content.Body)
}

func (s *server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Dispatch.DeleteVideo(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"object":  "video",
		"deleted": true,
	})
}

func (s *server) handleRemixVideo(w http.ResponseWriter, r *http.Request) {
	var req gateway.VideoRemixRequest
	size, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}
	if req.Prompt == "" {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "prompt is required")
		return
	}
	video, err := s.deps.Dispatch.RemixVideo(r.Context(), chi.URLParam(r, "id"), &req, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}
