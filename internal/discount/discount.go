// Package discount manages the rotating per-user model discounts: one
// active discount per user on a randomly chosen eligible model, with a
// multiplier in [1.5, 3.0) that divides the model's base cost.
package discount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter/v2"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/registry"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/storage"
)

const (
	// TTL is the lifetime of a granted discount.
	TTL = 24 * time.Hour

	// Lookup cache: short TTL so rotations and manual grants surface
	// quickly on the hot path.
	cacheTTL    = 30 * time.Second
	cacheMaxLen = 50_000
)

var errNoEligibleModels = errors.New("no discount-eligible models in catalog")

// Engine grants and resolves user discounts.
type Engine struct {
	store   storage.DiscountStore
	catalog *registry.Registry
	cache   *otter.Cache[string, float64] // "userID|modelID" -> multiplier (1.0 = none)
	logger  *slog.Logger

	now    func() time.Time
	randFn func() float64
	randN  func(n int) int
}

// New returns an Engine over the given discount store and model catalog.
func New(store storage.DiscountStore, catalog *registry.Registry, logger *slog.Logger) (*Engine, error) {
	c, err := otter.New(&otter.Options[string, float64]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, float64](cacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create discount cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		catalog: catalog,
		cache:   c,
		logger:  logger,
		now:     time.Now,
		randFn:  rand.Float64,
		randN:   rand.IntN,
	}, nil
}

// Multiplier returns the active discount multiplier for (user, model), or
// 1.0 when none applies. Store errors degrade to 1.0: billing at full price
// is the safe failure mode.
func (e *Engine) Multiplier(ctx context.Context, userID, modelID string) float64 {
	key := userID + "|" + modelID
	if m, ok := e.cache.GetIfPresent(key); ok {
		return m
	}

	m := 1.0
	d, err := e.store.GetDiscount(ctx, userID, modelID)
	switch {
	case err == nil && d.Active(e.now()) && d.Multiplier > 1:
		m = d.Multiplier
	case err != nil && !errors.Is(err, gateway.ErrNotFound):
		e.logger.LogAttrs(ctx, slog.LevelWarn, "discount lookup failed",
			slog.String("user_id", userID),
			slog.String("model", modelID),
			slog.String("error", err.Error()),
		)
		return 1.0 // do not cache transient failures
	}
	e.cache.Set(key, m)
	return m
}

// HasActive reports whether the user holds a live discount on the model.
// Dispatch uses it to open non-plan-accessible models to discounted users.
func (e *Engine) HasActive(ctx context.Context, userID, modelID string) bool {
	return e.Multiplier(ctx, userID, modelID) > 1
}

// ListForUser returns the user's discounts that are still active.
func (e *Engine) ListForUser(ctx context.Context, userID string) ([]*gateway.UserDiscount, error) {
	all, err := e.store.ListDiscountsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	active := all[:0]
	for _, d := range all {
		if d.Active(now) {
			active = append(active, d)
		}
	}
	return active, nil
}

// ApplyToUser grants the user a fresh discount on a random eligible model.
func (e *Engine) ApplyToUser(ctx context.Context, userID string) (*gateway.UserDiscount, error) {
	eligible := e.catalog.EligibleForDiscount()
	if len(eligible) == 0 {
		return nil, errNoEligibleModels
	}

	now := e.now()
	d := &gateway.UserDiscount{
		ID:         uuid.Must(uuid.NewV7()).String(),
		UserID:     userID,
		ModelID:    eligible[e.randN(len(eligible))],
		Multiplier: 1.5 + e.randFn()*1.5,
		ExpiresAt:  now.Add(TTL),
		CreatedAt:  now,
	}
	if err := e.store.UpsertDiscount(ctx, d); err != nil {
		return nil, fmt.Errorf("upsert discount: %w", err)
	}
	e.cache.Invalidate(userID + "|" + d.ModelID)
	return d, nil
}

// Rotate runs the daily rotation: drop expired discounts, then grant one to
// every user without an active discount. Per-user failures are isolated.
func (e *Engine) Rotate(ctx context.Context) (granted int, removed int64, err error) {
	now := e.now()

	removed, err = e.store.DeleteExpiredDiscounts(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("delete expired discounts: %w", err)
	}

	userIDs, err := e.store.ListUserIDsWithoutActiveDiscount(ctx, now)
	if err != nil {
		return 0, removed, fmt.Errorf("list users without discount: %w", err)
	}

	var firstErr error
	for _, id := range userIDs {
		if _, err := e.ApplyToUser(ctx, id); err != nil {
			e.logger.LogAttrs(ctx, slog.LevelError, "discount grant failed",
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		granted++
	}

	e.logger.LogAttrs(ctx, slog.LevelInfo, "discount rotation",
		slog.Int64("removed", removed),
		slog.Int("granted", granted),
		slog.Int("eligible_users", len(userIDs)),
	)
	return granted, removed, firstErr
}
