package worker

import (
	"context"
	"log/slog"
	"time"
)

const cleanupInterval = time.Hour

// CleanupStore is the slice of storage the cleanup worker prunes.
type CleanupStore interface {
	DeleteExpiredDiscounts(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredOAuthTokens(ctx context.Context, now time.Time) (int64, error)
}

// CleanupWorker prunes expired discounts and OAuth tokens. Reads already
// filter by expiry, so this only keeps the tables from growing unbounded.
type CleanupWorker struct {
	store    CleanupStore
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewCleanupWorker creates a CleanupWorker.
func NewCleanupWorker(store CleanupStore, logger *slog.Logger) *CleanupWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupWorker{
		store:    store,
		logger:   logger,
		interval: cleanupInterval,
		now:      time.Now,
	}
}

// Name returns the worker identifier.
func (w *CleanupWorker) Name() string { return "cleanup" }

// Run prunes immediately, then hourly until ctx is cancelled.
func (w *CleanupWorker) Run(ctx context.Context) error {
	w.prune(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.prune(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *CleanupWorker) prune(ctx context.Context) {
	now := w.now()

	discounts, err := w.store.DeleteExpiredDiscounts(ctx, now)
	if err != nil {
		w.logger.LogAttrs(ctx, slog.LevelError, "discount cleanup failed",
			slog.String("error", err.Error()),
		)
	}
	tokens, err := w.store.DeleteExpiredOAuthTokens(ctx, now)
	if err != nil {
		w.logger.LogAttrs(ctx, slog.LevelError, "oauth token cleanup failed",
			slog.String("error", err.Error()),
		)
	}
	if discounts > 0 || tokens > 0 {
		w.logger.LogAttrs(ctx, slog.LevelDebug, "expired rows pruned",
			slog.Int64("discounts", discounts),
			slog.Int64("oauth_tokens", tokens),
		)
	}
}
