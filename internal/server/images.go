package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

func (s *server) handleImageGenerations(w http.ResponseWriter, r *http.Request) {
	var req gateway.ImageGenerationRequest
	size, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}
	resp, err := s.deps.Dispatch.GenerateImages(r.Context(), &req, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleImageEdits(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}

	// OpenAI accepts either a single "image" part or an "image[]" array.
	headers := r.MultipartForm.File["image"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["image[]"]
	}
	if len(headers) == 0 {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "image is required")
		return
	}

	var bodySize int
	req := &gateway.ImageEditRequest{
		Model:          r.FormValue("model"),
		Prompt:         r.FormValue("prompt"),
		Size:           r.FormValue("size"),
		ResponseFormat: r.FormValue("response_format"),
	}
	if raw := r.FormValue("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorParts(w, r, http.StatusBadRequest,
				"invalid_request_error", "invalid_request", "invalid n")
			return
		}
		req.N = n
	}

	for _, h := range headers {
		content, ok := readPart(w, r, h)
		if !ok {
			return
		}
		req.Images = append(req.Images, gateway.ImageFile{Name: h.Filename, Content: content})
		bodySize += len(content)
	}
	if masks := r.MultipartForm.File["mask"]; len(masks) > 0 {
		content, ok := readPart(w, r, masks[0])
		if !ok {
			return
		}
		req.Mask = &gateway.ImageFile{Name: masks[0].Filename, Content: content}
		bodySize += len(content)
	}

	resp, err := s.deps.Dispatch.EditImages(r.Context(), req, bodySize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func readPart(w http.ResponseWriter, r *http.Request, h *multipart.FileHeader) ([]byte, bool) {
	f, err := h.Open()
	if err != nil {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "failed to read upload "+h.Filename)
		return nil, false
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "failed to read upload "+h.Filename)
		return nil, false
	}
	return content, true
}
