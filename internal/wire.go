package gateway

import "encoding/json"

// Normalized OpenAI-compatible wire types. Handlers decode client JSON into
// these, adapters translate them to whatever the upstream protocol needs.
// Passthrough fields the gateway never inspects stay json.RawMessage.

// --- Chat completions ---

// ChatRequest is a normalized chat completion request.
type ChatRequest struct {
	Model               string          `json:"model"`
	Messages            []Message       `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	N                   int             `json:"n,omitempty"`
	Stream              bool            `json:"stream,omitempty"`
	StreamOptions       *StreamOptions  `json:"stream_options,omitempty"`
	Stop                json.RawMessage `json:"stop,omitempty"`
	MaxTokens           *int            `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	PresencePenalty     *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty    *float64        `json:"frequency_penalty,omitempty"`
	Seed                *int            `json:"seed,omitempty"`
	User                string          `json:"user,omitempty"`
	Tools               json.RawMessage `json:"tools,omitempty"`
	ToolChoice          json.RawMessage `json:"tool_choice,omitempty"`
	ParallelToolCalls   *bool           `json:"parallel_tool_calls,omitempty"`
	ResponseFormat      json.RawMessage `json:"response_format,omitempty"`
	ReasoningEffort     string          `json:"reasoning_effort,omitempty"` // low, medium, high
}

// StreamOptions controls streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// Message is a chat message. Content is either a JSON string or an array of
// content parts (text, image_url, input_audio).
type Message struct {
	Role             string          `json:"role"`
	Content          json.RawMessage `json:"content"`
	Name             string          `json:"name,omitempty"`
	ToolCalls        json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID       string          `json:"tool_call_id,omitempty"`
	ReasoningContent json.RawMessage `json:"reasoning_content,omitempty"`
}

// ChatResponse is an OpenAI-compatible chat completion response.
type ChatResponse struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             *Usage   `json:"usage,omitempty"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token usage as reported by the upstream.
type Usage struct {
	PromptTokens            int                      `json:"prompt_tokens"`
	CompletionTokens        int                      `json:"completion_tokens"`
	TotalTokens             int                      `json:"total_tokens"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

// CompletionTokensDetails breaks out reasoning tokens where the upstream
// reports them.
type CompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// StreamChunk is a single item in a streaming response.
type StreamChunk struct {
	Data  []byte // raw SSE data payload, forwarded as-is when possible
	Text  string // decoded delta text, for token accounting
	Usage *Usage // non-nil when the upstream reported usage
	Done  bool
	Err   error
}

// --- Responses protocol ---

// ResponsesRequest is a normalized /v1/responses request. Input is either a
// JSON string (single user turn) or an array of input messages.
type ResponsesRequest struct {
	Model           string          `json:"model"`
	Input           json.RawMessage `json:"input"`
	Instructions    string          `json:"instructions,omitempty"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"top_p,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
	Reasoning       *Reasoning      `json:"reasoning,omitempty"`
	Tools           json.RawMessage `json:"tools,omitempty"`
	ToolChoice      json.RawMessage `json:"tool_choice,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	User            string          `json:"user,omitempty"`
}

// Reasoning carries the reasoning budget knob for responses-protocol models.
type Reasoning struct {
	Effort string `json:"effort,omitempty"` // low, medium, high
}

// ResponsesResponse is a normalized /v1/responses response.
type ResponsesResponse struct {
	ID        string          `json:"id"`
	Object    string          `json:"object"`
	CreatedAt int64           `json:"created_at"`
	Status    string          `json:"status"`
	Model     string          `json:"model"`
	Output    json.RawMessage `json:"output"`
	Usage     *ResponsesUsage `json:"usage,omitempty"`
}

// ResponsesUsage is the responses-protocol usage shape.
type ResponsesUsage struct {
	InputTokens         int                  `json:"input_tokens"`
	OutputTokens        int                  `json:"output_tokens"`
	TotalTokens         int                  `json:"total_tokens"`
	OutputTokensDetails *OutputTokensDetails `json:"output_tokens_details,omitempty"`
}

// OutputTokensDetails breaks out reasoning tokens in responses usage.
type OutputTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// --- Embeddings ---

// EmbeddingRequest is an OpenAI-compatible embedding request.
type EmbeddingRequest struct {
	Model          string          `json:"model"`
	Input          json.RawMessage `json:"input"`
	EncodingFormat string          `json:"encoding_format,omitempty"`
	Dimensions     *int            `json:"dimensions,omitempty"`
	User           string          `json:"user,omitempty"`
}

// EmbeddingResponse is an OpenAI-compatible embedding response.
type EmbeddingResponse struct {
	Object string          `json:"object"`
	Data   json.RawMessage `json:"data"`
	Model  string          `json:"model"`
	Usage  *Usage          `json:"usage,omitempty"`
}

// --- Audio ---

// SpeechRequest is a text-to-speech request. The response is raw audio.
type SpeechRequest struct {
	Model          string   `json:"model"`
	Input          string   `json:"input"`
	Voice          string   `json:"voice"`
	ResponseFormat string   `json:"response_format,omitempty"`
	Speed          *float64 `json:"speed,omitempty"`
}

// TranscriptionRequest is a speech-to-text request (transcribe or translate).
// File content arrives via multipart upload.
type TranscriptionRequest struct {
	Model          string
	File           []byte
	Filename       string
	Language       string
	Prompt         string
	ResponseFormat string
	Temperature    *float64
	Translate      bool // true for /v1/audio/translations
}

// TranscriptionResponse is the JSON shape of a transcription result.
type TranscriptionResponse struct {
	Text     string          `json:"text"`
	Language string          `json:"language,omitempty"`
	Duration float64         `json:"duration,omitempty"`
	Segments json.RawMessage `json:"segments,omitempty"`
}

// --- Images ---

// ImageGenerationRequest is an OpenAI-compatible image generation request.
type ImageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	User           string `json:"user,omitempty"`
}

// ImageEditRequest is an image edit request; images and mask arrive via
// multipart upload.
type ImageEditRequest struct {
	Model          string
	Prompt         string
	Images         []ImageFile
	Mask           *ImageFile
	N              int
	Size           string
	ResponseFormat string
}

// ImageFile is one uploaded image part.
type ImageFile struct {
	Name    string
	Content []byte
}

// ImagesResponse is an OpenAI-compatible images response.
type ImagesResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
}

// ImageData is a single generated or edited image.
type ImageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// --- Moderation ---

// ModerationRequest is an OpenAI-compatible moderation request.
type ModerationRequest struct {
	Model string          `json:"model,omitempty"`
	Input json.RawMessage `json:"input"`
}

// ModerationResponse is an OpenAI-compatible moderation response.
type ModerationResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Results []ModerationResult `json:"results"`
}

// ModerationResult is a single moderation verdict.
type ModerationResult struct {
	Flagged        bool               `json:"flagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"category_scores"`
}

// --- Videos ---

// VideoCreateRequest starts a long-running video generation job.
type VideoCreateRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Seconds        string `json:"seconds,omitempty"`
	Size           string `json:"size,omitempty"`
	InputReference string `json:"input_reference,omitempty"`
}

// Video is the job object returned by create, status and remix calls.
type Video struct {
	ID                 string          `json:"id"`
	Object             string          `json:"object"`
	Model              string          `json:"model"`
	Status             string          `json:"status"`
	Progress           int             `json:"progress,omitempty"`
	CreatedAt          int64           `json:"created_at"`
	CompletedAt        int64           `json:"completed_at,omitempty"`
	ExpiresAt          int64           `json:"expires_at,omitempty"`
	Seconds            string          `json:"seconds,omitempty"`
	Size               string          `json:"size,omitempty"`
	RemixedFromVideoID string          `json:"remixed_from_video_id,omitempty"`
	Error              json.RawMessage `json:"error,omitempty"`
}

// VideoList is the list envelope for /v1/videos.
type VideoList struct {
	Object string  `json:"object"`
	Data   []Video `json:"data"`
}

// VideoRemixRequest re-prompts an existing video job.
type VideoRemixRequest struct {
	Prompt string `json:"prompt"`
}

// VideoContent is downloaded video bytes plus the content type to relay.
type VideoContent struct {
	ContentType string
	Body        []byte
}
