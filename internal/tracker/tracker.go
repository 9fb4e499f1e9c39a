// Package tracker records the lifecycle of every API request: created in
// pending, moved to processing at dispatch, finished in exactly one of
// completed, failed or timeout. Terminal states never change again.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/storage"
)

// Tracker persists request lifecycle records. Lifecycle mutations are
// synchronous; metrics rollups go through the Recorder.
type Tracker struct {
	store storage.RequestStore
	rec   *Recorder
	now   func() time.Time
}

// New returns a Tracker over the given request store. rec may be nil.
func New(store storage.RequestStore, rec *Recorder) *Tracker {
	return &Tracker{store: store, rec: rec, now: time.Now}
}

// Create persists a new request in pending. The caller fills endpoint,
// method, model and sizing; Create assigns the id, status and timestamps.
func (t *Tracker) Create(ctx context.Context, r *gateway.APIRequest) error {
	now := t.now()
	r.ID = uuid.Must(uuid.NewV7()).String()
	r.Status = gateway.StatusPending
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := t.store.CreateRequest(ctx, r); err != nil {
		return fmt.Errorf("create request record: %w", err)
	}
	return nil
}

// StartProcessing moves a pending request to processing. The transition is
// monotonic: any other starting state is a conflict, returned as an error.
func (t *Tracker) StartProcessing(ctx context.Context, id string) error {
	r, err := t.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != gateway.StatusPending {
		return fmt.Errorf("%w: request %s is %s, not pending", gateway.ErrConflict, id, r.Status)
	}
	r.Status = gateway.StatusProcessing
	r.UpdatedAt = t.now()
	return t.store.UpdateRequest(ctx, r)
}

// Completion carries the final accounting for a successful request.
type Completion struct {
	Tokens        int
	Credits       int64
	Latency       time.Duration
	ResponseSize  int
	StatusCode    int
	ProviderID    string
	SubProviderID string
	RetryCount    int
}

// Complete finishes a request as completed. Rejected once terminal.
func (t *Tracker) Complete(ctx context.Context, id string, c Completion) error {
	return t.finish(ctx, id, func(r *gateway.APIRequest) {
		r.Status = gateway.StatusCompleted
		r.StatusCode = c.StatusCode
		r.TokensUsed = c.Tokens
		r.CreditsUsed = c.Credits
		r.LatencyMs = c.Latency.Milliseconds()
		r.ResponseSize = c.ResponseSize
		r.ProviderID = c.ProviderID
		r.SubProviderID = c.SubProviderID
		r.RetryCount = c.RetryCount
	})
}

// Fail finishes a request as failed with the upstream status and message.
func (t *Tracker) Fail(ctx context.Context, id string, statusCode int, message string, latency time.Duration, retryCount int) error {
	return t.finish(ctx, id, func(r *gateway.APIRequest) {
		r.Status = gateway.StatusFailed
		r.StatusCode = statusCode
		r.ErrorMessage = message
		r.LatencyMs = latency.Milliseconds()
		r.RetryCount = retryCount
	})
}

// Timeout finishes a request as timed out.
func (t *Tracker) Timeout(ctx context.Context, id string, latency time.Duration) error {
	return t.finish(ctx, id, func(r *gateway.APIRequest) {
		r.Status = gateway.StatusTimeout
		r.LatencyMs = latency.Milliseconds()
	})
}

func (t *Tracker) finish(ctx context.Context, id string, mutate func(*gateway.APIRequest)) error {
	r, err := t.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return fmt.Errorf("%w: request %s already %s", gateway.ErrConflict, id, r.Status)
	}

	mutate(r)
	now := t.now()
	r.UpdatedAt = now
	r.CompletedAt = &now
	if err := t.store.UpdateRequest(ctx, r); err != nil {
		return err
	}

	if t.rec != nil {
		t.rec.Record(Rollup{
			Model:   r.Model,
			Status:  r.Status,
			Tokens:  r.TokensUsed,
			Credits: r.CreditsUsed,
		})
	}
	return nil
}

// Get returns one tracked request.
func (t *Tracker) Get(ctx context.Context, id string) (*gateway.APIRequest, error) {
	return t.store.GetRequest(ctx, id)
}

// List queries tracked requests.
func (t *Tracker) List(ctx context.Context, f storage.RequestFilter) ([]*gateway.APIRequest, error) {
	return t.store.ListRequests(ctx, f)
}

// Stats returns the rollup for the matching requests.
func (t *Tracker) Stats(ctx context.Context, f storage.RequestFilter) (*storage.RequestStats, error) {
	return t.store.RequestStats(ctx, f)
}
