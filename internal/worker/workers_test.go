package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeResetter struct {
	calls atomic.Int32
	err   error
}

func (f *fakeResetter) ResetDue(context.Context, time.Time) (int, error) {
	f.calls.Add(1)
	return 3, f.err
}

func TestCreditResetWorkerSweeps(t *testing.T) {
	t.Parallel()

	r := &fakeResetter{}
	w := NewCreditResetWorker(r, nil)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	// One immediate sweep plus at least one tick.
	if got := r.calls.Load(); got < 2 {
		t.Errorf("sweeps = %d, want >= 2", got)
	}
}

func TestCreditResetWorkerSurvivesErrors(t *testing.T) {
	t.Parallel()

	r := &fakeResetter{err: errors.New("db down")}
	w := NewCreditResetWorker(r, nil)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run should not propagate sweep errors: %v", err)
	}
	if got := r.calls.Load(); got < 2 {
		t.Errorf("sweeps = %d, errors must not stop the loop", got)
	}
}

type fakeRotator struct {
	calls atomic.Int32
}

func (f *fakeRotator) Rotate(context.Context) (int, int64, error) {
	f.calls.Add(1)
	return 5, 2, nil
}

func TestDiscountRotationSchedule(t *testing.T) {
	t.Parallel()

	w := NewDiscountRotationWorker(&fakeRotator{}, nil)

	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tz database unavailable")
	}
	w.loc = paris

	morning := time.Date(2025, 6, 1, 9, 30, 0, 0, paris)
	next := w.nextRotation(morning)
	if next.Hour() != 18 || next.Day() != 1 {
		t.Errorf("next from morning = %v, want same day 18:00", next)
	}

	evening := time.Date(2025, 6, 1, 18, 0, 0, 0, paris)
	next = w.nextRotation(evening)
	if next.Day() != 2 || next.Hour() != 18 {
		t.Errorf("next from 18:00 sharp = %v, want next day 18:00", next)
	}

	// Instants are compared in absolute time regardless of caller zone.
	utc := morning.UTC()
	if got := w.nextRotation(utc); !got.Equal(w.nextRotation(morning)) {
		t.Errorf("zone-independent schedule broken: %v vs %v", got, w.nextRotation(morning))
	}
}

func TestDiscountRotationStopsOnCancel(t *testing.T) {
	t.Parallel()

	rot := &fakeRotator{}
	w := NewDiscountRotationWorker(rot, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	if rot.calls.Load() != 0 {
		t.Error("rotation must not fire before its scheduled instant")
	}
}

type fakeCleanupStore struct {
	discounts atomic.Int32
	tokens    atomic.Int32
	err       error
}

func (f *fakeCleanupStore) DeleteExpiredDiscounts(context.Context, time.Time) (int64, error) {
	f.discounts.Add(1)
	return 2, f.err
}

func (f *fakeCleanupStore) DeleteExpiredOAuthTokens(context.Context, time.Time) (int64, error) {
	f.tokens.Add(1)
	return 1, nil
}

func TestCleanupWorkerPrunesBothTables(t *testing.T) {
	t.Parallel()

	store := &fakeCleanupStore{}
	w := NewCleanupWorker(store, nil)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.discounts.Load() < 2 || store.tokens.Load() < 2 {
		t.Errorf("prunes discounts=%d tokens=%d, want >= 2 each",
			store.discounts.Load(), store.tokens.Load())
	}
}

func TestCleanupWorkerContinuesPastDiscountError(t *testing.T) {
	t.Parallel()

	store := &fakeCleanupStore{err: errors.New("db down")}
	w := NewCleanupWorker(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = w.Run(ctx) // the immediate prune still runs once

	if store.tokens.Load() != 1 {
		t.Error("token cleanup should run even when discount cleanup fails")
	}
}
