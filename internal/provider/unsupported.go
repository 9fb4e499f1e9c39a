package provider

import (
	"context"
	"fmt"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// Unsupported is the adapter base. Every operation fails with
// gateway.ErrUnsupportedOperation; concrete adapters embed it and override
// only what their upstream actually serves. The dispatcher treats the
// sentinel as non-retryable on this adapter but retryable on another.
type Unsupported struct {
	Provider string
}

func (u Unsupported) unsupported(op string) error {
	return fmt.Errorf("%s: %s: %w", u.Provider, op, gateway.ErrUnsupportedOperation)
}

func (u Unsupported) ChatCompletion(context.Context, *gateway.ChatRequest) (*gateway.ChatResponse, error) {
	return nil, u.unsupported("chat completion")
}

func (u Unsupported) ChatCompletionStream(context.Context, *gateway.ChatRequest) (<-chan gateway.StreamChunk, error) {
	return nil, u.unsupported("chat completion stream")
}

func (u Unsupported) CreateResponse(context.Context, *gateway.ResponsesRequest) (*gateway.ResponsesResponse, error) {
	return nil, u.unsupported("create response")
}

func (u Unsupported) CreateResponseStream(context.Context, *gateway.ResponsesRequest) (<-chan gateway.StreamChunk, error) {
	return nil, u.unsupported("create response stream")
}

func (u Unsupported) TextToSpeech(context.Context, *gateway.SpeechRequest) ([]byte, error) {
	return nil, u.unsupported("text to speech")
}

func (u Unsupported) AudioTranscription(context.Context, *gateway.TranscriptionRequest) (*gateway.TranscriptionResponse, error) {
	return nil, u.unsupported("audio transcription")
}

func (u Unsupported) CreateEmbeddings(context.Context, *gateway.EmbeddingRequest) (*gateway.EmbeddingResponse, error) {
	return nil, u.unsupported("create embeddings")
}

func (u Unsupported) GenerateImages(context.Context, *gateway.ImageGenerationRequest) (*gateway.ImagesResponse, error) {
	return nil, u.unsupported("generate images")
}

func (u Unsupported) EditImages(context.Context, *gateway.ImageEditRequest) (*gateway.ImagesResponse, error) {
	return nil, u.unsupported("edit images")
}

func (u Unsupported) ModerateContent(context.Context, *gateway.ModerationRequest) (*gateway.ModerationResponse, error) {
	return nil, u.unsupported("moderate content")
}

func (u Unsupported) CreateVideo(context.Context, *gateway.VideoCreateRequest) (*gateway.Video, error) {
	return nil, u.unsupported("create video")
}

func (u Unsupported) GetVideoStatus(context.Context, string) (*gateway.Video, error) {
	return nil, u.unsupported("get video status")
}

func (u Unsupported) DownloadVideo(context.Context, string, string) (*gateway.VideoContent, error) {
	return nil, u.unsupported("download video")
}

func (u Unsupported) ListVideos(context.Context) (*gateway.VideoList, error) {
	return nil, u.unsupported("list videos")
}

func (u Unsupported) DeleteVideo(context.Context, string) error {
	return u.unsupported("delete video")
}

func (u Unsupported) RemixVideo(context.Context, string, *gateway.VideoRemixRequest) (*gateway.Video, error) {
	return nil, u.unsupported("remix video")
}
