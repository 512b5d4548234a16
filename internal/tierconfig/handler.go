// internal/tierconfig/handler.go
package tierconfig

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// HandleSet upserts a tier's rule set. PUT /admin/tiers/{tier}
func (h *Handler) HandleSet(w http.ResponseWriter, r *http.Request) {
	var cfg TierConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg.Tier = chi.URLParam(r, "tier")

	if err := h.service.Set(r.Context(), cfg); err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]string{
				"reason":  "invalid_config",
				"message": err.Error(),
			})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleList returns every configured tier. GET /admin/tiers
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(configs)
}
