package openaic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

func TestTextToSpeech(t *testing.T) {
	t.Parallel()

	audio := []byte{0x49, 0x44, 0x33, 0x04} // mp3 magic
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %s, want /v1/audio/speech", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer srv.Close()

	client := testClient(srv.URL+"/v1", VariantOpenAI, nil)
	got, err := client.TextToSpeech(context.Background(), &gateway.SpeechRequest{
		Model: "tts-1",
		Input: "hello",
		Voice: "alloy",
	})
	if err != nil {
		t.Fatalf("TextToSpeech: %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Errorf("audio = %v, want %v", got, audio)
	}
}

func TestAudioTranscription(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s, want /v1/audio/transcriptions", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field = %q, want whisper-1", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language field = %q, want en", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "clip.mp3" {
			t.Errorf("filename = %q, want clip.mp3", hdr.Filename)
		}
		content, _ := io.ReadAll(f)
		if string(content) != "fake-audio" {
			t.Errorf("file content = %q", content)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"hello world","language":"english","duration":1.5}`)
	}))
	defer srv.Close()

	client := testClient(srv.URL+"/v1", VariantOpenAI, nil)
	resp, err := client.AudioTranscription(context.Background(), &gateway.TranscriptionRequest{
		Model:    "whisper-1",
		File:     []byte("fake-audio"),
		Filename: "clip.mp3",
		Language: "en",
	})
	if err != nil {
		t.Fatalf("AudioTranscription: %v", err)
	}
	if resp.Text != "hello world" {
		t.Errorf("text = %q, want hello world", resp.Text)
	}
}

func TestAudioTranslationPath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/translations" {
			t.Errorf("path = %s, want /v1/audio/translations", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"translated"}`)
	}))
	defer srv.Close()

	client := testClient(srv.URL+"/v1", VariantOpenAI, nil)
	resp, err := client.AudioTranscription(context.Background(), &gateway.TranscriptionRequest{
		Model:     "whisper-1",
		File:      []byte("x"),
		Filename:  "a.wav",
		Translate: true,
	})
	if err != nil {
		t.Fatalf("AudioTranscription: %v", err)
	}
	if resp.Text != "translated" {
		t.Errorf("text = %q, want translated", resp.Text)
	}
}

func TestAudioTranscriptionTextFormat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "plain transcript")
	}))
	defer srv.Close()

	client := testClient(srv.URL+"/v1", VariantOpenAI, nil)
	resp, err := client.AudioTranscription(context.Background(), &gateway.TranscriptionRequest{
		Model:          "whisper-1",
		File:           []byte("x"),
		Filename:       "a.wav",
		ResponseFormat: "text",
	})
	if err != nil {
		t.Fatalf("AudioTranscription: %v", err)
	}
	if resp.Text != "plain transcript" {
		t.Errorf("text = %q, want plain transcript", resp.Text)
	}
}
