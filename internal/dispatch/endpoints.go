package dispatch

import (
	"context"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/registry"
)

// prepare builds the prelude state for an endpoint call. The authenticated
// user comes from the request context installed by the middleware.
func (d *Dispatcher) prepare(ctx context.Context, endpoint, model string, stream bool, prompt string, bodySize, estTokens, retries int) (*request, error) {
	user := gateway.UserFromContext(ctx)
	if user == nil {
		return nil, gateway.ErrForbidden
	}
	p := &request{
		user:      user,
		master:    gateway.IsMasterKey(ctx),
		endpoint:  endpoint,
		model:     model,
		stream:    stream,
		prompt:    prompt,
		bodySize:  bodySize,
		estTokens: estTokens,
		retries:   retries,
	}
	if err := d.validate(ctx, p); err != nil {
		return nil, err
	}
	p.cap = d.catalog.Get(model).Capability
	if err := d.begin(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ChatCompletion dispatches a unary chat request.
func (d *Dispatcher) ChatCompletion(ctx context.Context, req *gateway.ChatRequest, bodySize int) (*gateway.ChatResponse, error) {
	est := d.tokens.EstimateRequest(req.Model, req.Messages)
	p, err := d.prepare(ctx, registry.EndpointChat, req.Model, false, gateway.PromptText(req.Messages), bodySize, est, maxRetries)
	if err != nil {
		return nil, err
	}

	resp, sel, attempt, err := run(ctx, d, p, func(ctx context.Context, a gateway.Adapter) (*gateway.ChatResponse, error) {
		return a.ChatCompletion(ctx, req)
	})
	if err != nil {
		d.settleFailure(ctx, p, attempt, err)
		return nil, err
	}

	tokens := est
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	d.settleSuccess(ctx, p, sel, tokens, jsonSize(resp), attempt)
	return resp, nil
}

// ChatCompletionStream dispatches a streaming chat request. The finalizer
// settles billing and tracking when the returned channel drains.
func (d *Dispatcher) ChatCompletionStream(ctx context.Context, req *gateway.ChatRequest, bodySize int) (<-chan gateway.StreamChunk, error) {
	est := d.tokens.EstimateRequest(req.Model, req.Messages)
	p, err := d.prepare(ctx, registry.EndpointChat, req.Model, true, gateway.PromptText(req.Messages), bodySize, est, maxRetries)
	if err != nil {
		return nil, err
	}
	return d.runStream(ctx, p, func(ctx context.Context, a gateway.Adapter) (<-chan gateway.StreamChunk, error) {
		return a.ChatCompletionStream(ctx, req)
	})
}

// CreateResponse dispatches a unary responses-protocol request.
func (d *Dispatcher) CreateResponse(ctx context.Context, req *gateway.ResponsesRequest, bodySize int) (*gateway.ResponsesResponse, error) {
	prompt := gateway.ContentText(req.Input)
	est := d.tokens.CountText(req.Model, prompt)
	p, err := d.prepare(ctx, registry.EndpointResponses, req.Model, false, prompt, bodySize, est, maxRetries)
	if err != nil {
		return nil, err
	}

	resp, sel, attempt, err := run(ctx, d, p, func(ctx context.Context, a gateway.Adapter) (*gateway.ResponsesResponse, error) {
		return a.CreateResponse(ctx, req)
	})
	if err != nil {
		d.settleFailure(ctx, p, attempt, err)
		return nil, err
	}

	tokens := est
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	d.settleSuccess(ctx, p, sel, tokens, jsonSize(resp), attempt)
	return resp, nil
}

// CreateResponseStream dispatches a streaming responses-protocol request.
func (d *Dispatcher) CreateResponseStream(ctx context.Context, req *gateway.ResponsesRequest, bodySize int) (<-chan gateway.StreamChunk, error) {
	prompt := gateway.ContentText(req.Input)
	est := d.tokens.CountText(req.Model, prompt)
	p, err := d.prepare(ctx, registry.EndpointResponses, req.Model, true, prompt, bodySize, est, maxRetries)
	if err != nil {
		return nil, err
	}
	return d.runStream(ctx, p, func(ctx context.Context, a gateway.Adapter) (<-chan gateway.StreamChunk, error) {
		return a.CreateResponseStream(ctx, req)
	})
}

// CreateEmbeddings dispatches an embedding request.
func (d *Dispatcher) CreateEmbeddings(ctx context.Context, req *gateway.EmbeddingRequest, bodySize int) (*gateway.EmbeddingResponse, error) {
	est := d.tokens.CountText(req.Model, gateway.ContentText(req.Input))
	p, err := d.prepare(ctx, registry.EndpointEmbeddings, req.Model, false, "", bodySize, est, maxRetries)
	if err != nil {
		return nil, err
	}

	resp, sel, attempt, err := run(ctx, d, p, func(ctx context.Context, a gateway.Adapter) (*gateway.EmbeddingResponse, error) {
		return a.CreateEmbeddings(ctx, req)
	})
	if err != nil {
		d.settleFailure(ctx, p, attempt, err)
		return nil, err
	}

	tokens := est
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	d.settleSuccess(ctx, p, sel, tokens, jsonSize(resp), attempt)
	return resp, nil
}

// TextToSpeech dispatches a speech synthesis request and returns raw audio.
func (d *Dispatcher) TextToSpeech(ctx context.Context, req *gateway.SpeechRequest, bodySize int) ([]byte, error) {
	est := d.tokens.CountText(req.Model, req.Input)
	p, err := d.prepare(ctx, registry.EndpointSpeech, req.Model, false, req.Input, bodySize, est, maxRetries)
	if err != nil {
		return nil, err
	}

	audio, sel, attempt, err := run(ctx, d, p, func(ctx context.Context, a gateway.Adapter) ([]byte, error) {
		return a.TextToSpeech(ctx, req)
	})
	if err != nil {
		d.settleFailure(ctx, p, attempt, err)
		return nil, err
	}
	d.settleSuccess(ctx, p, sel, est, len(audio), attempt)
	return audio, nil
}

// AudioTranscription dispatches a transcription or translation request.
func (d *Dispatcher) AudioTranscription(ctx context.Context, req *gateway.TranscriptionRequest, bodySize int) (*gateway.TranscriptionResponse, error) {
	endpoint := registry.EndpointTranscriptions
	if req.Translate {
		endpoint = registry.EndpointTranslations
	}
	p, err := d.prepare(ctx, endpoint, req.Model, false, "", bodySize, 0, maxRetries)
	if err != nil {
		return nil, err
	}

	resp, sel, attempt, err := run(ctx, d, p, func(ctx context.Context, a gateway.Adapter) (*gateway.TranscriptionResponse, error) {
		return a.AudioTranscription(ctx, req)
	})
	if err != nil {
		d.settleFailure(ctx, p, attempt, err)
		return nil, err
	}

	tokens := d.tokens.CountText(req.Model, resp.Text)
	d.settleSuccess(ctx, p, sel, tokens, jsonSize(resp), attempt)
	return resp, nil
}

// GenerateImages dispatches an image generation request.
func (d *Dispatcher) GenerateImages(ctx context.Context, req *gateway.ImageGenerationRequest, bodySize int) (*gateway.ImagesResponse, error) {
	p, err := d.prepare(ctx, registry.EndpointImages, req.Model, false, req.Prompt, bodySize, 0, maxRetries)
	if err != nil {
		return nil, err
	}

	resp, sel, attempt, err := run(ctx, d, p, func(ctx context.Context, a gateway.Adapter) (*gateway.ImagesResponse, error) {
		return a.GenerateImages(ctx, req)
	})
	if err != nil {
		d.settleFailure(ctx, p, attempt, err)
		return nil, err
	}
	d.settleSuccess(ctx, p, sel, 0, jsonSize(resp), attempt)
	return resp, nil
}

// EditImages dispatches an image edit request.
func (d *Dispatcher) EditImages(ctx context.Context, req *gateway.ImageEditRequest, bodySize int) (*gateway.ImagesResponse, error) {
	p, err := d.prepare(ctx, registry.EndpointImageEdits, req.Model, false, req.Prompt, bodySize, 0, maxRetries)
	if err != nil {
		return nil, err
	}

	resp, sel, attempt, err := run(ctx, d, p, func(ctx context.Context, a gateway.Adapter) (*gateway.ImagesResponse, error) {
		return a.EditImages(ctx, req)
	})
	if err != nil {
		d.settleFailure(ctx, p, attempt, err)
		return nil, err
	}
	d.settleSuccess(ctx, p, sel, 0, jsonSize(resp), attempt)
	return resp, nil
}

// ModerateContent dispatches a moderation request. The prompt scan is
// skipped: this call is the scan.
func (d *Dispatcher) ModerateContent(ctx context.Context, req *gateway.ModerationRequest, bodySize int) (*gateway.ModerationResponse, error) {
	p, err := d.prepare(ctx, registry.EndpointModerations, req.Model, false, "", bodySize, 0, maxRetries)
	if err != nil {
		return nil, err
	}

	resp, sel, attempt, err := run(ctx, d, p, func(ctx context.Context, a gateway.Adapter) (*gateway.ModerationResponse, error) {
		return a.ModerateContent(ctx, req)
	})
	if err != nil {
		d.settleFailure(ctx, p, attempt, err)
		return nil, err
	}
	d.settleSuccess(ctx, p, sel, 0, jsonSize(resp), attempt)
	return resp, nil
}
