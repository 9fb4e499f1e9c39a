package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/auth"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/ratelimit"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/registry"
)

// --- Fakes ---

type fakeAuth struct {
	user   *gateway.User
	master bool
	err    error
}

func (f *fakeAuth) Authenticate(_ context.Context, r *http.Request) (*auth.Identity, error) {
	if r.Header.Get("Authorization") == "" {
		return nil, gateway.ErrMissingAuthHeader
	}
	if f.err != nil {
		return nil, f.err
	}
	return &auth.Identity{User: f.user, Master: f.master}, nil
}

// fakeDispatch cans every pipeline operation.
type fakeDispatch struct {
	err    error
	chat   *gateway.ChatResponse
	chunks []gateway.StreamChunk
	video  *gateway.Video
	list   *gateway.VideoList

	lastBodySize int
}

func (f *fakeDispatch) ChatCompletion(_ context.Context, _ *gateway.ChatRequest, size int) (*gateway.ChatResponse, error) {
	f.lastBodySize = size
	return f.chat, f.err
}

func (f *fakeDispatch) ChatCompletionStream(context.Context, *gateway.ChatRequest, int) (<-chan gateway.StreamChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan gateway.StreamChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (f *fakeDispatch) CreateResponse(context.Context, *gateway.ResponsesRequest, int) (*gateway.ResponsesResponse, error) {
	return &gateway.ResponsesResponse{ID: "resp_1", Object: "response", Status: "completed"}, f.err
}

func (f *fakeDispatch) CreateResponseStream(ctx context.Context, _ *gateway.ResponsesRequest, size int) (<-chan gateway.StreamChunk, error) {
	return f.ChatCompletionStream(ctx, nil, size)
}

func (f *fakeDispatch) CreateEmbeddings(context.Context, *gateway.EmbeddingRequest, int) (*gateway.EmbeddingResponse, error) {
	return &gateway.EmbeddingResponse{Object: "list", Model: "text-embedding-3-small"}, f.err
}

func (f *fakeDispatch) TextToSpeech(context.Context, *gateway.SpeechRequest, int) ([]byte, error) {
	return []byte("audio-bytes"), f.err
}

func (f *fakeDispatch) AudioTranscription(context.Context, *gateway.TranscriptionRequest, int) (*gateway.TranscriptionResponse, error) {
	return &gateway.TranscriptionResponse{Text: "hello"}, f.err
}

func (f *fakeDispatch) GenerateImages(context.Context, *gateway.ImageGenerationRequest, int) (*gateway.ImagesResponse, error) {
	return &gateway.ImagesResponse{Created: 1, Data: []gateway.ImageData{{URL: "https://img"}}}, f.err
}

func (f *fakeDispatch) EditImages(context.Context, *gateway.ImageEditRequest, int) (*gateway.ImagesResponse, error) {
	return &gateway.ImagesResponse{Created: 1}, f.err
}

func (f *fakeDispatch) ModerateContent(context.Context, *gateway.ModerationRequest, int) (*gateway.ModerationResponse, error) {
	return &gateway.ModerationResponse{ID: "modr_1"}, f.err
}

func (f *fakeDispatch) CreateVideo(context.Context, *gateway.VideoCreateRequest, int) (*gateway.Video, error) {
	return f.video, f.err
}

func (f *fakeDispatch) GetVideoStatus(context.Context, string) (*gateway.Video, error) {
	return f.video, f.err
}

func (f *fakeDispatch) DownloadVideo(_ context.Context, _, variant string) (*gateway.VideoContent, error) {
	return &gateway.VideoContent{ContentType: "video/mp4", Body: []byte(variant)}, f.err
}

func (f *fakeDispatch) ListVideos(context.Context) (*gateway.VideoList, error) {
	return f.list, f.err
}

func (f *fakeDispatch) DeleteVideo(context.Context, string) error { return f.err }

func (f *fakeDispatch) RemixVideo(context.Context, string, *gateway.VideoRemixRequest, int) (*gateway.Video, error) {
	return f.video, f.err
}

type fakeLimiter struct {
	allowed bool
	lastKey string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) ratelimit.Result {
	f.lastKey = key
	if f.allowed {
		return ratelimit.Result{Allowed: true, Limit: 100, Remaining: 99}
	}
	return ratelimit.Result{Limit: 100, RetryAfter: 30 * time.Second}
}

type fakeDiscounts struct {
	discounts []*gateway.UserDiscount
	err       error
}

func (f *fakeDiscounts) ListForUser(context.Context, string) ([]*gateway.UserDiscount, error) {
	return f.discounts, f.err
}

// --- Harness ---

func testCatalog() *registry.Registry {
	return registry.NewWithModels([]registry.Model{
		{
			ID: "gpt-4o", OwnedBy: "openai",
			Endpoints:         []string{registry.EndpointChat},
			Plans:             []gateway.Plan{gateway.PlanBasic, gateway.PlanPro},
			BaseCost:          100,
			SupportsStreaming: true,
			Capability:        gateway.CapChat,
		},
		{
			ID: "claude-opus", OwnedBy: "anthropic",
			Endpoints:        []string{registry.EndpointChat},
			Plans:            []gateway.Plan{gateway.PlanPro},
			BaseCost:         200,
			Capability:       gateway.CapChat,
			DiscountEligible: true,
		},
	})
}

func basicUser() *gateway.User {
	return &gateway.User{ID: "u1", Name: "alice", Plan: gateway.PlanBasic, Enabled: true, Credits: 1_000_000}
}

type env struct {
	auth      *fakeAuth
	dispatch  *fakeDispatch
	limiter   *fakeLimiter
	discounts *fakeDiscounts
	handler   http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		auth: &fakeAuth{user: basicUser()},
		dispatch: &fakeDispatch{
			chat: &gateway.ChatResponse{
				ID: "chatcmpl-1", Object: "chat.completion", Model: "gpt-4o",
				Choices: []gateway.Choice{{Message: gateway.Message{Role: "assistant", Content: json.RawMessage(`"hi"`)}}},
			},
			video: &gateway.Video{ID: "video_1", Object: "video", Model: "sora-2", Status: "queued"},
			list:  &gateway.VideoList{Object: "list", Data: []gateway.Video{}},
		},
		limiter:   &fakeLimiter{allowed: true},
		discounts: &fakeDiscounts{},
	}
	e.handler = New(Deps{
		Auth:      e.auth,
		Dispatch:  e.dispatch,
		Catalog:   testCatalog(),
		Discounts: e.discounts,
		Limiter:   e.limiter,
	})
	return e
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("Authorization", "Bearer sk-voidai-test")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decodeErr(t *testing.T, body []byte) errorDetail {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode error envelope: %v\nbody: %s", err, body)
	}
	return env.Error
}

// --- Tests ---

func TestChatCompletionOK(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/v1/chat/completions",
		`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Request-Id"); got == "" {
		t.Error("X-Request-Id header missing")
	}
	var resp gateway.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Errorf("choices = %d, want 1", len(resp.Choices))
	}
	if e.dispatch.lastBodySize == 0 {
		t.Error("body size was not forwarded to dispatch")
	}
}

func TestMissingAuthHeader(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	det := decodeErr(t, w.Body.Bytes())
	if det.Type != "authentication_error" || det.Code != "missing_header" {
		t.Errorf("type/code = %s/%s", det.Type, det.Code)
	}
	if det.ReferenceID == "" || det.Timestamp == "" {
		t.Error("error envelope must carry reference_id and timestamp")
	}
}

func TestInsufficientCreditsEnvelope(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.dispatch.err = gateway.ErrInsufficientCredits

	w := e.do(t, http.MethodPost, "/v1/chat/completions", `{"model":"gpt-4o","messages":[]}`)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
	if det := decodeErr(t, w.Body.Bytes()); det.Code != "insufficient_credits" {
		t.Errorf("code = %s", det.Code)
	}
}

func TestUpstreamErrorSanitized(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.dispatch.err = gateway.ErrNoAvailableProviders

	w := e.do(t, http.MethodPost, "/v1/chat/completions", `{"model":"gpt-4o","messages":[]}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	det := decodeErr(t, w.Body.Bytes())
	if det.Type != "upstream_error" {
		t.Errorf("type = %s", det.Type)
	}
	// 5xx detail stays server-side.
	if det.Message != "upstream provider error" {
		t.Errorf("message = %q, want the generic one", det.Message)
	}
}

func TestRateLimitRejection(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.limiter.allowed = false

	w := e.do(t, http.MethodPost, "/v1/chat/completions", `{"model":"gpt-4o"}`)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	det := decodeErr(t, w.Body.Bytes())
	if det.Type != "rate_limit_exceeded" || det.Code != "too_many_requests" {
		t.Errorf("type/code = %s/%s", det.Type, det.Code)
	}
	if !strings.HasPrefix(det.Message, "Rate limit exceeded") {
		t.Errorf("message = %q", det.Message)
	}
}

func TestRateLimitKeyedByAPIKeyPrefix(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	e.do(t, http.MethodPost, "/v1/chat/completions", `{"model":"gpt-4o"}`)

	if e.limiter.lastKey != "sk-voidai-test" {
		t.Errorf("limiter key = %q, want the bearer token prefix", e.limiter.lastKey)
	}
}

func TestChatStreamRelaysSSE(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.dispatch.chunks = []gateway.StreamChunk{
		{Data: []byte(`{"choices":[{"delta":{"content":"he"}}]}`)},
		{Data: []byte(`{"choices":[{"delta":{"content":"llo"}}]}`)},
	}

	w := e.do(t, http.MethodPost, "/v1/chat/completions",
		`{"model":"gpt-4o","stream":true,"messages":[]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if w.Header().Get("X-Accel-Buffering") != "no" {
		t.Error("X-Accel-Buffering missing")
	}
	body := w.Body.String()
	if !strings.Contains(body, `data: {"choices"`) {
		t.Errorf("data frames missing:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("terminal sentinel missing:\n%s", body)
	}
}

func TestChatStreamErrorChunk(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.dispatch.chunks = []gateway.StreamChunk{
		{Data: []byte(`{"choices":[]}`)},
		{Err: gateway.ErrTimeout},
	}

	w := e.do(t, http.MethodPost, "/v1/chat/completions",
		`{"model":"gpt-4o","stream":true,"messages":[]}`)

	body := w.Body.String()
	if !strings.Contains(body, `"type":"upstream_error"`) {
		t.Errorf("error frame missing:\n%s", body)
	}
	if !strings.Contains(body, `"reference_id"`) {
		t.Error("error frame must carry reference_id")
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Error("stream must still terminate with [DONE]")
	}
}

func TestInvalidJSONBody(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/v1/chat/completions", `{"model":`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if det := decodeErr(t, w.Body.Bytes()); det.Code != "invalid_request" {
		t.Errorf("code = %s", det.Code)
	}
}

func TestModelsFilteredByPlan(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/v1/models", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp modelListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "gpt-4o" {
		t.Errorf("basic plan should see only gpt-4o, got %+v", resp.Data)
	}
}

func TestModelsIncludeDiscountedOnes(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.discounts.discounts = []*gateway.UserDiscount{
		{UserID: "u1", ModelID: "claude-opus", Multiplier: 2.0, ExpiresAt: time.Now().Add(time.Hour)},
	}

	w := e.do(t, http.MethodGet, "/v1/models", "")

	var resp modelListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("discount should open claude-opus, got %+v", resp.Data)
	}
}

func TestGetUnknownModel(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/v1/models/nope", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if det := decodeErr(t, w.Body.Bytes()); det.Code != "model_not_found" {
		t.Errorf("code = %s", det.Code)
	}
}

func TestInaccessibleModelLooksUnknown(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/v1/models/claude-opus", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for plan-gated model", w.Code)
	}
}

func TestMyDiscounts(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.discounts.discounts = []*gateway.UserDiscount{
		{ID: "d1", UserID: "u1", ModelID: "claude-opus", Multiplier: 1.8, ExpiresAt: time.Now().Add(time.Hour)},
	}

	w := e.do(t, http.MethodGet, "/v1/discounts/my-discounts", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp discountListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ModelID != "claude-opus" {
		t.Errorf("data = %+v", resp.Data)
	}
}

func TestEligibleModels(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/v1/discounts/eligible-models", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "claude-opus") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestVideoContentVariantValidation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/v1/videos/video_1/content?variant=poster", "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestVideoContentRelay(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/v1/videos/video_1/content?variant=thumbnail", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("content type = %q", ct)
	}
	if w.Body.String() != "thumbnail" {
		t.Errorf("variant not forwarded, body = %q", w.Body.String())
	}
}

func TestDeleteVideo(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	w := e.do(t, http.MethodDelete, "/v1/videos/video_1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"deleted":true`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRemixRequiresPrompt(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/v1/videos/video_1/remix", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAdminForbiddenForNonAdmin(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/admin/users", "")

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestReadyzNotReady(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	handler := New(Deps{
		Auth:     e.auth,
		Dispatch: e.dispatch,
		Catalog:  testCatalog(),
		ReadyCheck: func(context.Context) error {
			return context.DeadlineExceeded
		},
	})

	r := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
}

// Compile-time checks that the real implementations satisfy the server's
// dependency surfaces.
var (
	_ Authenticator = (*auth.Service)(nil)
	_ RateLimiter   = (*ratelimit.Limiter)(nil)
)
