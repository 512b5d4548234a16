// internal/ledger/handler.go
package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"engagepulse/pkg/ledgerstore"
)

type Handler struct {
	service Service
	locks   *ledgerstore.Store
}

func NewHandler(service Service, locks *ledgerstore.Store) *Handler {
	return &Handler{service: service, locks: locks}
}

// HandleBalance returns a member's current balance. GET /members/{chatID}/balance
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	balance, err := h.service.Balance(r.Context(), chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"member_id": chatID,
		"balance":   balance,
	})
}

// HandleHistory returns a member's recent transactions. GET /members/{chatID}/history
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	txs, err := h.service.History(r.Context(), chi.URLParam(r, "chatID"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []ledgerstore.Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txs)
}

// HandleAdjust records a manual balance correction. POST /admin/adjust
func (h *Handler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID string `json:"member_id"`
		Delta    int64  `json:"delta"`
		Actor    string `json:"actor"`
		Note     string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.service.Adjust(r.Context(), req.MemberID, req.Delta, req.Actor, req.Note)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case errors.Is(err, ErrInvalidAdjustment):
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"reason": "invalid_adjustment", "message": err.Error()})
	case errors.Is(err, ledgerstore.ErrNegativeBalance):
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"reason": "negative_balance", "message": "adjustment would drive balance negative"})
	case err != nil:
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"reason": "internal", "message": err.Error()})
	default:
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(tx)
	}
}

// HandleResetLock deletes a dedup record so the interaction can pay out
// again. DELETE /admin/locks/{postID}/{interaction}/{actorID}
func (h *Handler) HandleResetLock(w http.ResponseWriter, r *http.Request) {
	err := h.locks.ResetLock(r.Context(),
		chi.URLParam(r, "postID"),
		chi.URLParam(r, "interaction"),
		chi.URLParam(r, "actorID"),
	)
	if errors.Is(err, ledgerstore.ErrLockNotFound) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"reason": "lock_not_found", "message": "no such interaction lock"})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
