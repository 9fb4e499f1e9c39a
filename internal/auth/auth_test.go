package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/secrets"
)

type fakeStore struct {
	mu      sync.Mutex
	keys    map[string]*gateway.APIKey // by search hash
	tokens  map[string]*gateway.OAuthToken
	users   map[string]*gateway.User
	touched []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		keys:   make(map[string]*gateway.APIKey),
		tokens: make(map[string]*gateway.OAuthToken),
		users:  make(map[string]*gateway.User),
	}
}

func (s *fakeStore) GetKeyBySearchHash(_ context.Context, hash string) (*gateway.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[hash]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return k, nil
}

func (s *fakeStore) TouchKeyUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

func (s *fakeStore) GetOAuthToken(_ context.Context, token string) (*gateway.OAuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return t, nil
}

func (s *fakeStore) GetUser(_ context.Context, id string) (*gateway.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return u, nil
}

// seedKey encrypts raw into the fake store and returns the owning user.
func seedKey(t *testing.T, store *fakeStore, vault *secrets.Vault, raw string, active bool) *gateway.User {
	t.Helper()
	enc, salt, err := vault.Encrypt(raw)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	u := &gateway.User{ID: "u1", Plan: gateway.PlanBasic, Enabled: true, Credits: 1000}
	store.users[u.ID] = u
	store.keys[vault.SearchHash(raw)] = &gateway.APIKey{
		ID: "k1", UserID: u.ID, SearchHash: vault.SearchHash(raw),
		Encrypted: enc, Salt: salt, Algorithm: secrets.Algorithm, IsActive: active,
	}
	return u
}

func testService(t *testing.T, store *fakeStore, masterKey string) (*Service, *secrets.Vault) {
	t.Helper()
	vault, err := secrets.NewVault("test-master-secret-32-bytes-long!")
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	s, err := New(store, vault, masterKey, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, vault
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAuthenticateAPIKey(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s, vault := testService(t, store, "")

	raw, err := secrets.GenerateAPIKey(gateway.APIKeyPrefix)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	want := seedKey(t, store, vault, raw, true)

	id, err := s.Authenticate(context.Background(), bearerRequest(raw))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.User.ID != want.ID || id.Master {
		t.Errorf("identity = %+v", id)
	}
	if id.KeyID != "k1" {
		t.Errorf("key id = %q, want k1", id.KeyID)
	}
}

func TestAuthenticateHeaderFailures(t *testing.T) {
	t.Parallel()

	s, _ := testService(t, newFakeStore(), "")

	if _, err := s.Authenticate(context.Background(), bearerRequest("")); !errors.Is(err, gateway.ErrMissingAuthHeader) {
		t.Errorf("missing header err = %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := s.Authenticate(context.Background(), r); !errors.Is(err, gateway.ErrInvalidAuthFormat) {
		t.Errorf("non-bearer err = %v", err)
	}
}

func TestAuthenticateUnknownKey(t *testing.T) {
	t.Parallel()

	s, _ := testService(t, newFakeStore(), "")
	_, err := s.Authenticate(context.Background(), bearerRequest(gateway.APIKeyPrefix+"deadbeef"))
	if !errors.Is(err, gateway.ErrInvalidKey) {
		t.Errorf("err = %v, want ErrInvalidKey", err)
	}
}

func TestAuthenticateInactiveKey(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s, vault := testService(t, store, "")
	raw := gateway.APIKeyPrefix + "inactive-key-value"
	seedKey(t, store, vault, raw, false)

	if _, err := s.Authenticate(context.Background(), bearerRequest(raw)); !errors.Is(err, gateway.ErrInvalidKey) {
		t.Errorf("err = %v, want ErrInvalidKey", err)
	}
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s, vault := testService(t, store, "")
	raw := gateway.APIKeyPrefix + "disabled-user-key"
	u := seedKey(t, store, vault, raw, true)
	u.Enabled = false

	if _, err := s.Authenticate(context.Background(), bearerRequest(raw)); !errors.Is(err, gateway.ErrAccountDisabled) {
		t.Errorf("err = %v, want ErrAccountDisabled", err)
	}
}

func TestAuthenticateIPWhitelist(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s, vault := testService(t, store, "")
	raw := gateway.APIKeyPrefix + "whitelisted-key"
	u := seedKey(t, store, vault, raw, true)
	u.IPWhitelist = []string{"203.0.113.7"}

	r := bearerRequest(raw)
	r.Header.Set("CF-Connecting-IP", "203.0.113.7")
	if _, err := s.Authenticate(context.Background(), r); err != nil {
		t.Errorf("whitelisted ip rejected: %v", err)
	}

	r = bearerRequest(raw)
	r.Header.Set("CF-Connecting-IP", "198.51.100.1")
	if _, err := s.Authenticate(context.Background(), r); !errors.Is(err, gateway.ErrIPAccessDenied) {
		t.Errorf("err = %v, want ErrIPAccessDenied", err)
	}
}

func TestAuthenticateOAuthToken(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s, _ := testService(t, store, "")
	now := time.Now()

	store.users["u2"] = &gateway.User{ID: "u2", Plan: gateway.PlanPro, Enabled: true}
	store.tokens["opaque-token"] = &gateway.OAuthToken{
		ID: "t1", UserID: "u2", Token: "opaque-token", ExpiresAt: now.Add(time.Hour),
	}
	store.tokens["stale-token"] = &gateway.OAuthToken{
		ID: "t2", UserID: "u2", Token: "stale-token", ExpiresAt: now.Add(-time.Minute),
	}

	id, err := s.Authenticate(context.Background(), bearerRequest("opaque-token"))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.User.ID != "u2" || id.KeyID != "" {
		t.Errorf("identity = %+v", id)
	}

	if _, err := s.Authenticate(context.Background(), bearerRequest("stale-token")); !errors.Is(err, gateway.ErrInvalidOAuthToken) {
		t.Errorf("expired token err = %v", err)
	}
	if _, err := s.Authenticate(context.Background(), bearerRequest("never-issued")); !errors.Is(err, gateway.ErrInvalidOAuthToken) {
		t.Errorf("unknown token err = %v", err)
	}
}

func TestAuthenticateMasterKey(t *testing.T) {
	t.Parallel()

	s, _ := testService(t, newFakeStore(), "super-secret-master")

	id, err := s.Authenticate(context.Background(), bearerRequest("super-secret-master"))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !id.Master || !id.User.IsAdmin() {
		t.Errorf("identity = %+v, want master admin", id)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.9:4242"
	if got := ClientIP(r); got != "192.0.2.9" {
		t.Errorf("socket peer = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.5" {
		t.Errorf("forwarded = %q", got)
	}

	r.Header.Set("CF-Connecting-IP", "198.51.100.77")
	if got := ClientIP(r); got != "198.51.100.77" {
		t.Errorf("cloudflare = %q", got)
	}
}
