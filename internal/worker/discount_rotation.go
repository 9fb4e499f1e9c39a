package worker

import (
	"context"
	"log/slog"
	"time"
)

// rotationHour is the local hour (Europe/Paris) at which the daily discount
// shuffle runs.
const (
	rotationHour = 18
	rotationZone = "Europe/Paris"
)

// DiscountRotator is the slice of the discount engine this worker drives.
type DiscountRotator interface {
	Rotate(ctx context.Context) (granted int, removed int64, err error)
}

// DiscountRotationWorker runs the daily discount rotation: expired grants
// are deleted and every user without a live discount receives a fresh one.
type DiscountRotationWorker struct {
	discounts DiscountRotator
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewDiscountRotationWorker creates a DiscountRotationWorker. It falls back
// to UTC when the rotation zone is missing from the host's tz database.
func NewDiscountRotationWorker(discounts DiscountRotator, logger *slog.Logger) *DiscountRotationWorker {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := time.LoadLocation(rotationZone)
	if err != nil {
		logger.Warn("rotation zone unavailable, using UTC", "zone", rotationZone, "error", err)
		loc = time.UTC
	}
	return &DiscountRotationWorker{
		discounts: discounts,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

// Name returns the worker identifier.
func (w *DiscountRotationWorker) Name() string { return "discount_rotation" }

// Run waits for the next rotation instant, rotates, and repeats until ctx is
// cancelled.
func (w *DiscountRotationWorker) Run(ctx context.Context) error {
	for {
		wait := time.Until(w.nextRotation(w.now()))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			w.rotate(ctx)
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

func (w *DiscountRotationWorker) rotate(ctx context.Context) {
	granted, removed, err := w.discounts.Rotate(ctx)
	if err != nil {
		w.logger.LogAttrs(ctx, slog.LevelError, "discount rotation failed",
			slog.Int("granted", granted),
			slog.Int64("removed", removed),
			slog.String("error", err.Error()),
		)
		return
	}
	w.logger.LogAttrs(ctx, slog.LevelInfo, "discounts rotated",
		slog.Int("granted", granted),
		slog.Int64("removed", removed),
	)
}

// nextRotation returns the next rotationHour o'clock in the rotation zone
// strictly after now.
func (w *DiscountRotationWorker) nextRotation(now time.Time) time.Time {
	local := now.In(w.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), rotationHour, 0, 0, 0, w.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
