package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// audioContentTypes maps speech response formats to the relayed MIME type.
var audioContentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"opus": "audio/opus",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"pcm":  "audio/pcm",
}

func (s *server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req gateway.SpeechRequest
	size, ok := decodeJSON(w, r, &req)
	if !ok {
		return
	}
	audio, err := s.deps.Dispatch.TextToSpeech(r.Context(), &req, size)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ct, ok := audioContentTypes[req.ResponseFormat]
	if !ok {
		ct = "audio/mpeg"
	}
	w.Header()["Content-Type"] = []string{ct}
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

func (s *server) handleTranscriptions(w http.ResponseWriter, r *http.Request) {
	s.handleSpeechToText(w, r, false)
}

func (s *server) handleTranslations(w http.ResponseWriter, r *http.Request) {
	s.handleSpeechToText(w, r, true)
}

func (s *server) handleSpeechToText(w http.ResponseWriter, r *http.Request, translate bool) {
	content, filename, ok := readMultipartFile(w, r, "file")
	if !ok {
		return
	}

	req := &gateway.TranscriptionRequest{
		Model:          r.FormValue("model"),
		File:           content,
		Filename:       filename,
		Language:       r.FormValue("language"),
		Prompt:         r.FormValue("prompt"),
		ResponseFormat: r.FormValue("response_format"),
		Translate:      translate,
	}
	if raw := r.FormValue("temperature"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeErrorParts(w, r, http.StatusBadRequest,
				"invalid_request_error", "invalid_request", "invalid temperature")
			return
		}
		req.Temperature = &t
	}

	resp, err := s.deps.Dispatch.AudioTranscription(r.Context(), req, len(content))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// readMultipartFile parses a size-capped multipart body and reads the named
// file part. On failure the error response is already written.
func readMultipartFile(w http.ResponseWriter, r *http.Request, field string) (content []byte, filename string, ok bool) {
	if !parseMultipart(w, r) {
		return nil, "", false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", field+" is required")
		return nil, "", false
	}
	defer file.Close()

	content, err = io.ReadAll(file)
	if err != nil {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "failed to read "+field)
		return nil, "", false
	}
	return content, header.Filename, true
}

func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorParts(w, r, http.StatusRequestEntityTooLarge,
				"invalid_request_error", "body_too_large", "upload exceeds the 25 MB limit")
			return false
		}
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "invalid multipart body")
		return false
	}
	return true
}
