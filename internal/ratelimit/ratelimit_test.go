package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memCache is a minimal synchronous cache.Cache for tests; the production
// otter cache applies writes asynchronously, which these tests must not
// depend on.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache { return &memCache{entries: make(map[string][]byte)} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *memCache) Set(_ context.Context, key string, val []byte, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = val
}

func (m *memCache) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *memCache) Purge(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
}

func TestAllowWithinLimit(t *testing.T) {
	t.Parallel()

	l := New(newMemCache(), 3, time.Minute, nil)

	for i := 0; i < 3; i++ {
		res := l.Allow(context.Background(), "caller")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Remaining != 3-(i+1) {
			t.Errorf("remaining = %d, want %d", res.Remaining, 3-(i+1))
		}
	}

	res := l.Allow(context.Background(), "caller")
	if res.Allowed {
		t.Error("4th request should be rejected")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Errorf("retry after = %v", res.RetryAfter)
	}
}

func TestWindowReset(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New(newMemCache(), 2, time.Minute, nil)
	l.now = func() time.Time { return now }

	l.Allow(context.Background(), "caller")
	l.Allow(context.Background(), "caller")
	if res := l.Allow(context.Background(), "caller"); res.Allowed {
		t.Fatal("over-limit request should be rejected")
	}

	now = now.Add(61 * time.Second)
	if res := l.Allow(context.Background(), "caller"); !res.Allowed {
		t.Error("request after window expiry should be allowed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(newMemCache(), 1, time.Minute, nil)

	if res := l.Allow(context.Background(), "a"); !res.Allowed {
		t.Fatal("first caller should pass")
	}
	if res := l.Allow(context.Background(), "a"); res.Allowed {
		t.Fatal("first caller should now be limited")
	}
	if res := l.Allow(context.Background(), "b"); !res.Allowed {
		t.Error("second caller must not share the window")
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	if got := Key("sk-voidai-abcdef0123456789xyz", "203.0.113.5"); got != "sk-voidai-abcdef" {
		t.Errorf("key = %q, want 16-char key prefix", got)
	}
	if got := Key("short", "203.0.113.5"); got != "short" {
		t.Errorf("key = %q, want whole short key", got)
	}
	if got := Key("", "203.0.113.5"); got != "203.0.113.5" {
		t.Errorf("key = %q, want client ip", got)
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	l := New(newMemCache(), 0, 0, nil)
	if l.limit != DefaultLimit || l.window != DefaultWindow {
		t.Errorf("defaults not applied: limit=%d window=%v", l.limit, l.window)
	}
}
