package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/balancer"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/storage"
)

// keyAlgorithm is stamped on every credential row the admin surface creates.
const keyAlgorithm = "aes-256-gcm"

// --- Pagination helpers ---

type pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Count  int `json:"count"`
}

type listResponse struct {
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

func parsePagination(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return
}

// parseSinceUntil validates optional since/until RFC3339 query params.
// Writes 400 and returns false on invalid format.
func parseSinceUntil(w http.ResponseWriter, r *http.Request) (since, until time.Time, ok bool) {
	q := r.URL.Query()
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErrorParts(w, r, http.StatusBadRequest,
				"invalid_request_error", "invalid_request", "invalid since format, use RFC3339")
			return time.Time{}, time.Time{}, false
		}
		since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErrorParts(w, r, http.StatusBadRequest,
				"invalid_request_error", "invalid_request", "invalid until format, use RFC3339")
			return time.Time{}, time.Time{}, false
		}
		until = t
	}
	return since, until, true
}

// reloadProviders pushes persisted provider state into the running balancer
// after an admin mutation. Failures are logged; the row is already saved.
func (s *server) reloadProviders(ctx context.Context) {
	if s.deps.Reload == nil {
		return
	}
	if err := s.deps.Reload(ctx); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "provider reload failed",
			slog.String("error", err.Error()),
		)
	}
}

// --- Users ---

type userCreateRequest struct {
	Name    string       `json:"name"`
	Plan    gateway.Plan `json:"plan"`
	Credits *int64       `json:"credits,omitempty"`
}

func (s *server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePagination(r)
	users, err := s.deps.Users.ListUsers(r.Context(), offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []*gateway.User{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data:       users,
		Pagination: pagination{Offset: offset, Limit: limit, Count: len(users)},
	})
}

func (s *server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if _, ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if req.Name == "" {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "name is required")
		return
	}
	if req.Plan == "" {
		req.Plan = gateway.PlanFree
	}
	if !req.Plan.Valid() {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "unknown plan")
		return
	}

	now := time.Now()
	u := &gateway.User{
		ID:               uuid.Must(uuid.NewV7()).String(),
		Name:             req.Name,
		Plan:             req.Plan,
		Enabled:          true,
		Credits:          gateway.PlanCredits[req.Plan],
		CreditsLastReset: now,
		CreatedAt:        now,
	}
	if req.Credits != nil {
		u.Credits = *req.Credits
	}
	if err := s.deps.Users.CreateUser(r.Context(), u); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/admin/users/"+u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (s *server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var update struct {
		Name                  *string    `json:"name,omitempty"`
		Plan                  *string    `json:"plan,omitempty"`
		Enabled               *bool      `json:"enabled,omitempty"`
		IPWhitelist           []string   `json:"ip_whitelist,omitempty"`
		MaxConcurrentRequests *int       `json:"max_concurrent_requests,omitempty"`
		PlanExpiresAt         *time.Time `json:"plan_expires_at,omitempty"`
		RPVerified            *bool      `json:"rp_verified,omitempty"`
	}
	if _, ok := decodeJSON(w, r, &update); !ok {
		return
	}

	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Plan != nil {
		p := gateway.Plan(*update.Plan)
		if !p.Valid() {
			writeErrorParts(w, r, http.StatusBadRequest,
				"invalid_request_error", "invalid_request", "unknown plan")
			return
		}
		u.Plan = p
	}
	if update.Enabled != nil {
		u.Enabled = *update.Enabled
	}
	if update.IPWhitelist != nil {
		u.IPWhitelist = update.IPWhitelist
	}
	if update.MaxConcurrentRequests != nil {
		u.MaxConcurrentRequests = *update.MaxConcurrentRequests
	}
	if update.PlanExpiresAt != nil {
		u.PlanExpiresAt = update.PlanExpiresAt
	}
	if update.RPVerified != nil {
		u.RPVerified = *update.RPVerified
	}

	if err := s.deps.Users.UpdateUser(r.Context(), u); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Users.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAddCredits(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Amount int64  `json:"amount"`
		Reason string `json:"reason,omitempty"`
	}
	if _, ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if req.Amount <= 0 {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "amount must be positive")
		return
	}
	if err := s.deps.Credits.AddCredits(r.Context(), id, req.Amount, req.Reason); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.deps.Users.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *server) handleResetCredits(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	u, err := s.deps.Users.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Credits.ResetUser(r.Context(), u, time.Now()); err != nil {
		writeError(w, r, err)
		return
	}
	u, err = s.deps.Users.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// --- API keys ---

// keyCreateResponse carries the plaintext key, shown exactly once.
type keyCreateResponse struct {
	*gateway.APIKey
	PlaintextKey string `json:"key"`
}

func (s *server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.deps.Keys.ListKeysByUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if keys == nil {
		keys = []*gateway.APIKey{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data:       keys,
		Pagination: pagination{Limit: len(keys), Count: len(keys)},
	})
}

func (s *server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if _, err := s.deps.Users.GetUser(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if _, ok := decodeJSON(w, r, &req); !ok {
		return
	}

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		writeError(w, r, err)
		return
	}
	plaintext := gateway.APIKeyPrefix + hex.EncodeToString(raw)

	encrypted, salt, err := s.deps.Vault.Encrypt(plaintext)
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := &gateway.APIKey{
		ID:         uuid.Must(uuid.NewV7()).String(),
		UserID:     userID,
		Name:       req.Name,
		SearchHash: s.deps.Vault.SearchHash(plaintext),
		Encrypted:  encrypted,
		Salt:       salt,
		Algorithm:  keyAlgorithm,
		IsActive:   true,
		CreatedAt:  time.Now(),
	}
	if err := s.deps.Keys.CreateKey(r.Context(), key); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, keyCreateResponse{APIKey: key, PlaintextKey: plaintext})
}

func (s *server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Keys.DeleteKey(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Sub-providers ---

// subProviderView joins a persisted sub-provider row with its live balancer
// state, when the balancer knows the id.
type subProviderView struct {
	*gateway.SubProvider
	Runtime *balancer.SubProviderStatus `json:"runtime,omitempty"`
}

type subProviderRequest struct {
	ProviderID    string            `json:"provider_id"`
	Name          string            `json:"name"`
	APIKey        string            `json:"api_key,omitempty"`
	AuthMode      string            `json:"auth_mode,omitempty"`
	OAuthTokenURL string            `json:"oauth_token_url,omitempty"`
	OAuthClientID string            `json:"oauth_client_id,omitempty"`
	BaseURL       string            `json:"base_url,omitempty"`
	Priority      *int              `json:"priority,omitempty"`
	Weight        *int              `json:"weight,omitempty"`
	RPM           *int              `json:"rpm,omitempty"`
	RPH           *int              `json:"rph,omitempty"`
	TPM           *int              `json:"tpm,omitempty"`
	MaxConcurrent *int              `json:"max_concurrent,omitempty"`
	ModelMapping  map[string]string `json:"model_mapping,omitempty"`
}

func (s *server) handleListSubProviders(w http.ResponseWriter, r *http.Request) {
	subs, err := s.deps.SubProviders.ListAllSubProviders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	runtime := make(map[string]balancer.SubProviderStatus)
	if s.deps.Balancer != nil {
		for _, st := range s.deps.Balancer.SubProviderStatuses() {
			runtime[st.SubProviderID] = st
		}
	}

	views := make([]subProviderView, 0, len(subs))
	for _, sp := range subs {
		v := subProviderView{SubProvider: sp}
		if st, ok := runtime[sp.ID]; ok {
			v.Runtime = &st
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data:       views,
		Pagination: pagination{Limit: len(views), Count: len(views)},
	})
}

func (s *server) handleCreateSubProvider(w http.ResponseWriter, r *http.Request) {
	var req subProviderRequest
	if _, ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if req.ProviderID == "" || req.Name == "" {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "provider_id and name are required")
		return
	}
	if req.APIKey == "" {
		writeErrorParts(w, r, http.StatusBadRequest,
			"invalid_request_error", "invalid_request", "api_key is required")
		return
	}

	encrypted, salt, err := s.deps.Vault.Encrypt(req.APIKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sp := &gateway.SubProvider{
		ID:              uuid.Must(uuid.NewV7()).String(),
		ProviderID:      req.ProviderID,
		Name:            req.Name,
		EncryptedAPIKey: encrypted,
		Salt:            salt,
		Algorithm:       keyAlgorithm,
		AuthMode:        req.AuthMode,
		OAuthTokenURL:   req.OAuthTokenURL,
		OAuthClientID:   req.OAuthClientID,
		BaseURL:         req.BaseURL,
		IsEnabled:       true,
		ModelMapping:    req.ModelMapping,
		CreatedAt:       time.Now(),
	}
	if sp.AuthMode == "" {
		sp.AuthMode = "api_key"
	}
	applySubProviderNumbers(sp, &req)

	if err := s.deps.SubProviders.CreateSubProvider(r.Context(), sp); err != nil {
		writeError(w, r, err)
		return
	}
	s.reloadProviders(r.Context())
	w.Header().Set("Location", "/admin/sub-providers/"+sp.ID)
	writeJSON(w, http.StatusCreated, sp)
}

func (s *server) handleGetSubProvider(w http.ResponseWriter, r *http.Request) {
	sp, err := s.deps.SubProviders.GetSubProvider(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	v := subProviderView{SubProvider: sp}
	if s.deps.Balancer != nil {
		for _, st := range s.deps.Balancer.SubProviderStatuses() {
			if st.SubProviderID == sp.ID {
				v.Runtime = &st
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) handleUpdateSubProvider(w http.ResponseWriter, r *http.Request) {
	sp, err := s.deps.SubProviders.GetSubProvider(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req subProviderRequest
	if _, ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if req.Name != "" {
		sp.Name = req.Name
	}
	if req.APIKey != "" {
		encrypted, salt, err := s.deps.Vault.Encrypt(req.APIKey)
		if err != nil {
			writeError(w, r, err)
			return
		}
		sp.EncryptedAPIKey = encrypted
		sp.Salt = salt
		sp.Algorithm = keyAlgorithm
	}
	if req.AuthMode != "" {
		sp.AuthMode = req.AuthMode
	}
	if req.OAuthTokenURL != "" {
		sp.OAuthTokenURL = req.OAuthTokenURL
	}
	if req.OAuthClientID != "" {
		sp.OAuthClientID = req.OAuthClientID
	}
	if req.BaseURL != "" {
		sp.BaseURL = req.BaseURL
	}
	if req.ModelMapping != nil {
		sp.ModelMapping = req.ModelMapping
	}
	applySubProviderNumbers(sp, &req)

	if err := s.deps.SubProviders.UpdateSubProvider(r.Context(), sp); err != nil {
		writeError(w, r, err)
		return
	}
	s.reloadProviders(r.Context())
	writeJSON(w, http.StatusOK, sp)
}

func applySubProviderNumbers(sp *gateway.SubProvider, req *subProviderRequest) {
	if req.Priority != nil {
		sp.Priority = *req.Priority
	}
	if req.Weight != nil {
		sp.Weight = *req.Weight
	}
	if req.RPM != nil {
		sp.RPM = *req.RPM
	}
	if req.RPH != nil {
		sp.RPH = *req.RPH
	}
	if req.TPM != nil {
		sp.TPM = *req.TPM
	}
	if req.MaxConcurrent != nil {
		sp.MaxConcurrent = *req.MaxConcurrent
	}
}

func (s *server) handleDeleteSubProvider(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.SubProviders.DeleteSubProvider(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.reloadProviders(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleEnableSubProvider(w http.ResponseWriter, r *http.Request) {
	s.setSubProviderEnabled(w, r, true)
}

func (s *server) handleDisableSubProvider(w http.ResponseWriter, r *http.Request) {
	s.setSubProviderEnabled(w, r, false)
}

func (s *server) setSubProviderEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	sp, err := s.deps.SubProviders.GetSubProvider(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	sp.IsEnabled = enabled
	if err := s.deps.SubProviders.UpdateSubProvider(r.Context(), sp); err != nil {
		writeError(w, r, err)
		return
	}
	s.reloadProviders(r.Context())
	writeJSON(w, http.StatusOK, sp)
}

// --- API logs ---

func requestFilter(w http.ResponseWriter, r *http.Request) (storage.RequestFilter, bool) {
	since, until, ok := parseSinceUntil(w, r)
	if !ok {
		return storage.RequestFilter{}, false
	}
	q := r.URL.Query()
	offset, limit := parsePagination(r)
	return storage.RequestFilter{
		UserID:     q.Get("user_id"),
		Model:      q.Get("model"),
		ProviderID: q.Get("provider_id"),
		Status:     gateway.RequestStatus(q.Get("status")),
		Since:      since,
		Until:      until,
		Offset:     offset,
		Limit:      limit,
	}, true
}

func (s *server) handleListAPILogs(w http.ResponseWriter, r *http.Request) {
	f, ok := requestFilter(w, r)
	if !ok {
		return
	}
	logs, err := s.deps.Requests.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*gateway.APIRequest{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data:       logs,
		Pagination: pagination{Offset: f.Offset, Limit: f.Limit, Count: len(logs)},
	})
}

func (s *server) handleAPILogStats(w http.ResponseWriter, r *http.Request) {
	f, ok := requestFilter(w, r)
	if !ok {
		return
	}
	stats, err := s.deps.Requests.Stats(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
