package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelListResponse struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// handleListModels returns the catalog filtered to what the caller may use:
// plan-accessible models plus any opened by a live discount.
func (s *server) handleListModels(w http.ResponseWriter, r *http.Request) {
	user := gateway.UserFromContext(r.Context())
	if user == nil {
		writeError(w, r, gateway.ErrForbidden)
		return
	}

	discounted := s.discountedModels(r, user)
	now := time.Now().Unix()
	data := make([]modelEntry, 0, len(s.deps.Catalog.IDs()))
	for _, id := range s.deps.Catalog.IDs() {
		if !s.deps.Catalog.HasAccess(id, user.Plan) && !discounted[id] {
			continue
		}
		data = append(data, modelEntry{
			ID:      id,
			Object:  "model",
			Created: now,
			OwnedBy: s.deps.Catalog.Get(id).OwnedBy,
		})
	}
	writeJSON(w, http.StatusOK, modelListResponse{Object: "list", Data: data})
}

func (s *server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	user := gateway.UserFromContext(r.Context())
	if user == nil {
		writeError(w, r, gateway.ErrForbidden)
		return
	}

	id := chi.URLParam(r, "id")
	if !s.deps.Catalog.Exists(id) {
		writeError(w, r, gateway.ErrModelNotFound)
		return
	}
	if !s.deps.Catalog.HasAccess(id, user.Plan) && !s.discountedModels(r, user)[id] {
		// Inaccessible models are indistinguishable from unknown ones.
		writeError(w, r, gateway.ErrModelNotFound)
		return
	}
	writeJSON(w, http.StatusOK, modelEntry{
		ID:      id,
		Object:  "model",
		Created: time.Now().Unix(),
		OwnedBy: s.deps.Catalog.Get(id).OwnedBy,
	})
}

// discountedModels returns the model ids a live discount opens for the user.
// Lookup failures degrade to the plan-only view.
func (s *server) discountedModels(r *http.Request, user *gateway.User) map[string]bool {
	out := make(map[string]bool)
	if s.deps.Discounts == nil {
		return out
	}
	ds, err := s.deps.Discounts.ListForUser(r.Context(), user.ID)
	if err != nil {
		return out
	}
	for _, d := range ds {
		out[d.ModelID] = true
	}
	return out
}
