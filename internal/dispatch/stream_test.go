package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// drain consumes the stream until it closes. The finalizer runs before the
// channel closes, so assertions after drain see settled state.
func drain(t *testing.T, ch <-chan gateway.StreamChunk) []gateway.StreamChunk {
	t.Helper()
	var out []gateway.StreamChunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func streamReq() *gateway.ChatRequest {
	r := chatReq()
	r.Stream = true
	return r
}

func TestStreamHappyPath(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.adapter.chunks = []gateway.StreamChunk{
		{Data: []byte(`{"delta":"Wh"}`), Text: "Wh"},
		{Data: []byte(`{"delta":"ales"}`), Text: "ales"},
		{Data: []byte(`{}`), Usage: &gateway.Usage{TotalTokens: 42}, Done: true},
	}

	ch, err := e.d.ChatCompletionStream(e.ctx(), streamReq(), 64)
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}
	chunks := drain(t, ch)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}

	if got := e.users.balance("u1"); got != 1_000_000-100 {
		t.Errorf("balance = %d, want %d", got, 1_000_000-100)
	}
	if got := e.users.debitCount(); got != 1 {
		t.Errorf("debits = %d, streams must settle exactly once", got)
	}

	r := e.requests.only(t)
	if r.Status != gateway.StatusCompleted {
		t.Errorf("status = %s, want completed", r.Status)
	}
	if r.TokensUsed != 42 {
		t.Errorf("tokens = %d, want 42 (from usage)", r.TokensUsed)
	}
	if !r.Stream {
		t.Error("record should be marked streaming")
	}
}

func TestStreamUpstreamError(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	upstreamErr := errors.New("500 internal server error")
	e.adapter.chunks = []gateway.StreamChunk{
		{Data: []byte(`{"delta":"partial"}`), Text: "partial"},
		{Err: upstreamErr},
	}

	ch, err := e.d.ChatCompletionStream(e.ctx(), streamReq(), 64)
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}
	chunks := drain(t, ch)
	if last := chunks[len(chunks)-1]; last.Err == nil {
		t.Error("error chunk should reach the client")
	}

	r := e.requests.only(t)
	if r.Status != gateway.StatusFailed {
		t.Errorf("status = %s, want failed", r.Status)
	}
	// Content was delivered before the error, so the request is billed.
	if got := e.users.balance("u1"); got != 1_000_000-100 {
		t.Errorf("balance = %d, delivered content bills even on failure", got)
	}
}

func TestStreamClientCancel(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	upstream := make(chan gateway.StreamChunk, 1)
	upstream <- gateway.StreamChunk{Data: []byte(`{"delta":"hi"}`), Text: "hi"}
	e.adapter.stream = upstream

	ctx, cancel := context.WithCancel(e.ctx())
	ch, err := e.d.ChatCompletionStream(ctx, streamReq(), 64)
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}

	// Consume the first chunk, then hang up mid-stream.
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no first chunk")
	}
	cancel()
	drain(t, ch)

	r := e.requests.only(t)
	if r.Status != gateway.StatusFailed {
		t.Errorf("status = %s, want failed", r.Status)
	}
	if r.StatusCode != 499 {
		t.Errorf("status code = %d, want 499", r.StatusCode)
	}
	// One chunk was delivered; the request is billed once.
	if got := e.users.debitCount(); got != 1 {
		t.Errorf("debits = %d, want 1", got)
	}
}

func TestStreamCancelBeforeFirstChunk(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	upstream := make(chan gateway.StreamChunk) // never produces
	e.adapter.stream = upstream

	ctx, cancel := context.WithCancel(e.ctx())
	ch, err := e.d.ChatCompletionStream(ctx, streamReq(), 64)
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}
	cancel()
	drain(t, ch)

	r := e.requests.only(t)
	if r.Status != gateway.StatusFailed {
		t.Errorf("status = %s, want failed", r.Status)
	}
	if got := e.users.debitCount(); got != 0 {
		t.Errorf("debits = %d, nothing was delivered", got)
	}
}

func TestStreamOpenFailureRetries(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.adapter.errs = []error{errors.New("503 service unavailable")}
	e.adapter.chunks = []gateway.StreamChunk{
		{Data: []byte(`{}`), Usage: &gateway.Usage{TotalTokens: 7}, Done: true},
	}

	ch, err := e.d.ChatCompletionStream(e.ctx(), streamReq(), 64)
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}
	drain(t, ch)

	if got := e.adapter.callCount(); got != 2 {
		t.Errorf("adapter calls = %d, want 2", got)
	}
	if r := e.requests.only(t); r.Status != gateway.StatusCompleted {
		t.Errorf("status = %s, want completed", r.Status)
	}
}

func TestStreamOpenFailureExhausted(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.adapter.errs = []error{
		errors.New("503 service unavailable"),
		errors.New("503 service unavailable"),
		errors.New("503 service unavailable"),
	}

	_, err := e.d.ChatCompletionStream(e.ctx(), streamReq(), 64)
	if err == nil {
		t.Fatal("expected error when no stream opens")
	}

	r := e.requests.only(t)
	if r.Status != gateway.StatusFailed {
		t.Errorf("status = %s, want failed", r.Status)
	}
	if got := e.users.balance("u1"); got != 1_000_000 {
		t.Errorf("balance = %d, nothing delivered must not bill", got)
	}
}

func TestStreamRejectedWhenModelCannotStream(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	req := streamReq()
	req.Model = "claude-opus" // catalog entry without streaming
	e.discounts.UpsertDiscount(context.Background(), &gateway.UserDiscount{
		UserID: "u1", ModelID: "claude-opus", Multiplier: 2.0,
		ExpiresAt: time.Now().Add(time.Hour),
	})

	if _, err := e.d.ChatCompletionStream(e.ctx(), req, 64); !errors.Is(err, gateway.ErrStreamingNotSupported) {
		t.Fatalf("err = %v, want ErrStreamingNotSupported", err)
	}
}

func TestMaskModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		data  string
		model string
		want  string
	}{
		{
			name:  "mapped name rewritten",
			data:  `{"id":"c1","model":"gpt-4o-upstream-alias","choices":[]}`,
			model: "gpt-4o",
			want:  `{"id":"c1","model":"gpt-4o","choices":[]}`,
		},
		{
			name:  "matching name untouched",
			data:  `{"id":"c1","model":"gpt-4o"}`,
			model: "gpt-4o",
			want:  `{"id":"c1","model":"gpt-4o"}`,
		},
		{
			name:  "no model field untouched",
			data:  `{"id":"c1","choices":[]}`,
			model: "gpt-4o",
			want:  `{"id":"c1","choices":[]}`,
		},
		{
			name:  "empty payload untouched",
			data:  ``,
			model: "gpt-4o",
			want:  ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := string(maskModel([]byte(tt.data), tt.model)); got != tt.want {
				t.Errorf("maskModel() = %s, want %s", got, tt.want)
			}
		})
	}
}
