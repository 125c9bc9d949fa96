package message

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"socketchat/internal/middleware"
)

// RoomAccess answers whether a user may read a room's history. Implemented
// by the room repository; the general room is always readable.
type RoomAccess interface {
	CanAccess(ctx context.Context, room string, userID int) (bool, error)
}

type Handler struct {
	repo   *Repository
	access RoomAccess
}

func NewHandler(repo *Repository, access RoomAccess) *Handler {
	return &Handler{repo: repo, access: access}
}

// GetRoomMessages serves GET /api/messages?room=&page=&limit=.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	room := r.URL.Query().Get("room")
	if room == "" {
		room = "general"
	}
	page, limit := pagination(r, 50)

	if room != "general" {
		allowed, err := h.access.CanAccess(r.Context(), room, userID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, "access denied to this room", http.StatusForbidden)
			return
		}
	}

	msgs, total, err := h.repo.RoomMessages(r.Context(), room, page, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(historyPage(msgs, total, page, limit))
}

// GetPrivateMessages serves GET /api/messages/private/{userId}.
func (h *Handler) GetPrivateMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	otherID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	page, limit := pagination(r, 50)

	msgs, total, err := h.repo.PrivateMessages(r.Context(), userID, otherID, page, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(historyPage(msgs, total, page, limit))
}

// SearchMessages serves GET /api/messages/search?room=&q=.
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "missing search query", http.StatusBadRequest)
		return
	}
	room := r.URL.Query().Get("room")
	if room == "" {
		room = "general"
	}

	msgs, err := h.repo.SearchMessages(r.Context(), room, q, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	json.NewEncoder(w).Encode(msgs)
}

// DeleteMessage serves DELETE /api/messages/{id}. Users can only delete
// their own messages.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	if err := h.repo.DeleteMessage(r.Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "message not found or access denied", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func historyPage(msgs []*Message, total, page, limit int) *HistoryPage {
	if msgs == nil {
		msgs = []*Message{}
	}
	totalPages := (total + limit - 1) / limit
	return &HistoryPage{Messages: msgs, TotalPages: totalPages, CurrentPage: page, Total: total}
}

func pagination(r *http.Request, defaultLimit int) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = defaultLimit
	}
	return page, limit
}
