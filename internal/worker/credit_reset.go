package worker

import (
	"context"
	"log/slog"
	"time"
)

const creditResetCheckInterval = 5 * time.Minute

// CreditResetter is the slice of the billing engine this worker drives.
type CreditResetter interface {
	ResetDue(ctx context.Context, now time.Time) (int, error)
}

// CreditResetWorker sweeps stale balances back to their plan baseline. Each
// user resets on its own 24-hour clock; the sweep just checks often enough
// that nobody waits long past due.
type CreditResetWorker struct {
	credits  CreditResetter
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewCreditResetWorker creates a CreditResetWorker.
func NewCreditResetWorker(credits CreditResetter, logger *slog.Logger) *CreditResetWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreditResetWorker{
		credits:  credits,
		logger:   logger,
		interval: creditResetCheckInterval,
		now:      time.Now,
	}
}

// Name returns the worker identifier.
func (w *CreditResetWorker) Name() string { return "credit_reset" }

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (w *CreditResetWorker) Run(ctx context.Context) error {
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *CreditResetWorker) sweep(ctx context.Context) {
	reset, err := w.credits.ResetDue(ctx, w.now())
	if err != nil {
		w.logger.LogAttrs(ctx, slog.LevelError, "credit reset sweep failed",
			slog.Int("reset", reset),
			slog.String("error", err.Error()),
		)
	}
}
