// internal/registry/handler.go
package registry

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

func writeReason(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"reason": reason, "message": message})
}

// HandleLink links a chat identity to a social handle. POST /link
func (h *Handler) HandleLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID string `json:"chat_id"`
		Handle string `json:"handle"`
		Tier   string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ChatID == "" {
		writeReason(w, http.StatusBadRequest, "missing_chat_id", "chat_id is required")
		return
	}

	conn, err := h.service.Link(r.Context(), req.ChatID, req.Handle, req.Tier)
	switch {
	case errors.Is(err, ErrInvalidHandle):
		writeReason(w, http.StatusUnprocessableEntity, "invalid_handle", "handle must be 1-15 letters, digits or underscores")
		return
	case errors.Is(err, ErrHandleTaken):
		writeReason(w, http.StatusConflict, "handle_taken", "handle is already linked to another member")
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conn)
}

// HandleGet returns a member's connection. GET /members/{chatID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	conn, err := h.service.Get(r.Context(), chi.URLParam(r, "chatID"))
	if errors.Is(err, ErrNotLinked) {
		writeReason(w, http.StatusNotFound, "not_linked", "no connection for this chat id")
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conn)
}

// HandleResolve maps a handle back to a chat id. GET /handles/{handle}
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	chatID, err := h.service.ResolveHandle(r.Context(), chi.URLParam(r, "handle"))
	if errors.Is(err, ErrHandleUnknown) {
		writeReason(w, http.StatusNotFound, "handle_unknown", "no connection for this handle")
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"chat_id": chatID})
}

// HandleSetTier changes a member's tier. PUT /admin/members/{chatID}/tier
func (h *Handler) HandleSetTier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.service.SetTier(r.Context(), chi.URLParam(r, "chatID"), req.Tier)
	if errors.Is(err, ErrNotLinked) {
		writeReason(w, http.StatusNotFound, "not_linked", "no connection for this chat id")
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conn)
}

// HandlePurge removes a connection. DELETE /admin/members/{chatID}
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	err := h.service.Purge(r.Context(), chi.URLParam(r, "chatID"))
	if errors.Is(err, ErrNotLinked) {
		writeReason(w, http.StatusNotFound, "not_linked", "no connection for this chat id")
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
