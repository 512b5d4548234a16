// internal/leaderboard/handler.go
package leaderboard

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// HandleRank serves the ranking. GET /leaderboard?limit=N
func (h *Handler) HandleRank(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	standings, err := h.service.Rank(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if standings == nil {
		standings = []Standing{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(standings)
}

// HandleRebuild forces a projection rebuild. POST /admin/leaderboard/rebuild
func (h *Handler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Rebuild(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
