package gateway

import (
	"context"
	"strings"
	"time"
)

// --- Adapter contract ---

// Adapter is the upstream driver interface. Every operation is optional per
// adapter: drivers embed a base that returns ErrUnsupportedOperation and
// override what the upstream actually supports. The dispatcher treats an
// unsupported operation as non-retryable on that adapter but retryable on
// another.
type Adapter interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
	// Capabilities lists the endpoint families the adapter serves.
	Capabilities() []Capability

	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	CreateResponse(ctx context.Context, req *ResponsesRequest) (*ResponsesResponse, error)
	CreateResponseStream(ctx context.Context, req *ResponsesRequest) (<-chan StreamChunk, error)

	TextToSpeech(ctx context.Context, req *SpeechRequest) ([]byte, error)
	AudioTranscription(ctx context.Context, req *TranscriptionRequest) (*TranscriptionResponse, error)

	CreateEmbeddings(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)

	GenerateImages(ctx context.Context, req *ImageGenerationRequest) (*ImagesResponse, error)
	EditImages(ctx context.Context, req *ImageEditRequest) (*ImagesResponse, error)

	ModerateContent(ctx context.Context, req *ModerationRequest) (*ModerationResponse, error)

	CreateVideo(ctx context.Context, req *VideoCreateRequest) (*Video, error)
	GetVideoStatus(ctx context.Context, videoID string) (*Video, error)
	DownloadVideo(ctx context.Context, videoID, variant string) (*VideoContent, error)
	ListVideos(ctx context.Context) (*VideoList, error)
	DeleteVideo(ctx context.Context, videoID string) error
	RemixVideo(ctx context.Context, videoID string, req *VideoRemixRequest) (*Video, error)
}

// ProviderConfiguration is everything an adapter needs to talk to one
// upstream account.
type ProviderConfiguration struct {
	Name            string
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	SupportedModels []string
	ModelMapping    map[string]string
	Capabilities    []Capability

	// OAuth client-credentials upstream auth; used when APIKey is empty.
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string
}

// MappedModel resolves the upstream model name for a gateway model id.
func (c *ProviderConfiguration) MappedModel(model string) string {
	if m, ok := c.ModelMapping[model]; ok && m != "" {
		return m
	}
	return model
}

// HasCapability reports whether the configuration declares c.
func (c *ProviderConfiguration) HasCapability(cap Capability) bool {
	for _, have := range c.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}

// --- Prompt extraction ---

// PromptText flattens chat messages into plain text for moderation and token
// estimation. Part-array content contributes its text parts only.
func PromptText(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(ContentText(m.Content))
	}
	return b.String()
}
