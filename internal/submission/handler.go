// internal/submission/handler.go
package submission

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"engagepulse/internal/registry"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// HandleSubmit admits a post for engagement tracking. POST /submit
// Rejections carry a machine-readable reason plus the limit or cost that
// was hit, so the chat layer can render an actionable message.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID string `json:"member_id"`
		PostID   string `json:"post_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.MemberID == "" || req.PostID == "" {
		http.Error(w, "member_id and post_id are required", http.StatusBadRequest)
		return
	}

	sub, err := h.service.Submit(r.Context(), req.MemberID, req.PostID)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sub)
}

func (h *Handler) writeRejection(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var limitErr *DailyLimitExceededError
	var balanceErr *InsufficientBalanceError
	switch {
	case errors.Is(err, registry.ErrNotLinked):
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"reason":  "not_linked",
			"message": "link a social handle before submitting",
		})
	case errors.Is(err, ErrAlreadySubmitted):
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"reason":  "already_submitted",
			"message": "this post is already being tracked",
		})
	case errors.As(err, &limitErr):
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"reason":  "daily_limit_exceeded",
			"message": limitErr.Error(),
			"limit":   limitErr.Limit,
			"used":    limitErr.Used,
		})
	case errors.As(err, &balanceErr):
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]any{
			"reason":  "insufficient_balance",
			"message": balanceErr.Error(),
			"cost":    balanceErr.Cost,
			"balance": balanceErr.Balance,
		})
	default:
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"reason":  "internal",
			"message": err.Error(),
		})
	}
}

// HandleRecent lists a member's latest submissions. GET /members/{chatID}/submissions
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	subs, err := h.service.Recent(r.Context(), chi.URLParam(r, "chatID"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if subs == nil {
		subs = []*Submission{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subs)
}
