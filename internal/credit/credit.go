// Package credit implements the billing engine: authorization checks,
// atomic debits, top-ups and the daily balance reset.
package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/storage"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/telemetry"
)

var errNonPositiveAmount = errors.New("credit amount must be positive")

// Engine bills users for dispatched requests.
type Engine struct {
	users  storage.UserStore
	logger *slog.Logger
	prom   *telemetry.Metrics
}

// New returns an Engine over the given user store.
func New(users storage.UserStore, logger *slog.Logger, prom *telemetry.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{users: users, logger: logger, prom: prom}
}

// Cost computes the effective credit cost of one request: the catalog base
// cost scaled by the model multiplier, divided by the active discount
// multiplier (1.0 when none), rounded half away from zero, floor 1.
func Cost(baseCost int64, modelMultiplier, discountMultiplier float64) int64 {
	if baseCost <= 0 {
		return 0
	}
	if modelMultiplier <= 0 {
		modelMultiplier = 1.0
	}
	if discountMultiplier < 1.0 {
		discountMultiplier = 1.0
	}
	cost := int64(math.Round(float64(baseCost) * modelMultiplier / discountMultiplier))
	if cost < 1 {
		cost = 1
	}
	return cost
}

// Authorize reports whether the user may spend amount credits. It never
// mutates the balance; the debit itself re-checks atomically.
func (e *Engine) Authorize(u *gateway.User, amount int64) error {
	if !u.Enabled {
		return gateway.ErrAccountDisabled
	}
	if u.Credits < amount {
		return gateway.ErrInsufficientCredits
	}
	return nil
}

// Debit atomically charges the user for a completed request. The store
// guards the balance, so concurrent debits can never drive it negative.
func (e *Engine) Debit(ctx context.Context, u *gateway.User, model string, amount int64, tokens int) error {
	if err := e.users.DebitCredits(ctx, u.ID, amount, tokens); err != nil {
		return err
	}
	if e.prom != nil {
		e.prom.CreditsSpent.WithLabelValues(model, string(u.Plan)).Add(float64(amount))
	}
	return nil
}

// AddCredits tops up a balance. Amount must be positive; top-ups never
// trigger an implicit reset.
func (e *Engine) AddCredits(ctx context.Context, userID string, amount int64, reason string) error {
	if amount <= 0 {
		return errNonPositiveAmount
	}
	if err := e.users.AddCredits(ctx, userID, amount); err != nil {
		return fmt.Errorf("add credits: %w", err)
	}
	e.logger.LogAttrs(ctx, slog.LevelInfo, "credits added",
		slog.String("user_id", userID),
		slog.Int64("amount", amount),
		slog.String("reason", reason),
	)
	return nil
}

// ResetUser sets the user's balance to the plan baseline (plus the verified
// bonus when its window is open) and stamps the reset time.
func (e *Engine) ResetUser(ctx context.Context, u *gateway.User, now time.Time) error {
	return e.users.ResetCredits(ctx, u.ID, gateway.ResetCredits(u, now), now)
}

// ResetDue refreshes every balance older than the reset interval. Failures
// are isolated per user; the first error is returned after the sweep.
func (e *Engine) ResetDue(ctx context.Context, now time.Time) (int, error) {
	users, err := e.users.ListUsersForReset(ctx, now.Add(-gateway.CreditResetInterval))
	if err != nil {
		return 0, fmt.Errorf("list users for reset: %w", err)
	}

	var reset int
	var firstErr error
	for _, u := range users {
		if err := e.ResetUser(ctx, u, now); err != nil {
			e.logger.LogAttrs(ctx, slog.LevelError, "credit reset failed",
				slog.String("user_id", u.ID),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		reset++
	}
	if reset > 0 || firstErr != nil {
		e.logger.LogAttrs(ctx, slog.LevelInfo, "credit reset sweep",
			slog.Int("eligible", len(users)),
			slog.Int("reset", reset),
		)
	}
	return reset, firstErr
}
