package server

import (
	"net/http"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

type discountListResponse struct {
	Object string                  `json:"object"`
	Data   []*gateway.UserDiscount `json:"data"`
}

func (s *server) handleMyDiscounts(w http.ResponseWriter, r *http.Request) {
	user := gateway.UserFromContext(r.Context())
	if user == nil {
		writeError(w, r, gateway.ErrForbidden)
		return
	}
	ds, err := s.deps.Discounts.ListForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ds == nil {
		ds = []*gateway.UserDiscount{}
	}
	writeJSON(w, http.StatusOK, discountListResponse{Object: "list", Data: ds})
}

func (s *server) handleEligibleModels(w http.ResponseWriter, r *http.Request) {
	ids := s.deps.Catalog.EligibleForDiscount()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   ids,
	})
}
