package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/middleware"
	"galileo-chat/internal/observability"

	"github.com/go-chi/chi/v5"
)

// naiveTimestamp is accepted for cursors that carry no zone; it is read as UTC.
const naiveTimestamp = "2006-01-02T15:04:05"

// ChatService is the subset of the chat service the HTTP handlers call.
type ChatService interface {
	RequireMember(ctx context.Context, roomID, userID string) error
	PostMessage(ctx context.Context, roomID, senderID string, in domain.PostMessageInput) (*domain.Message, error)
	GetMessages(ctx context.Context, roomID string, limit int, before *time.Time) (*domain.MessagePage, error)
	RoomOverview(ctx context.Context, roomID string) *domain.RoomOverview
}

// MessageHandler serves room history, message posting and room stats.
type MessageHandler struct {
	chat ChatService
}

func NewMessageHandler(chat ChatService) *MessageHandler {
	return &MessageHandler{chat: chat}
}

// member resolves the caller and the room and checks membership. It writes
// the error response itself and reports false when the request must stop.
func (h *MessageHandler) member(w http.ResponseWriter, r *http.Request) (roomID, userID string, ok bool) {
	userID, ok = middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return "", "", false
	}
	roomID = chi.URLParam(r, "room_id")
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "Room ID required")
		return "", "", false
	}
	if err := h.chat.RequireMember(r.Context(), roomID, userID); err != nil {
		writeServiceError(w, r, err)
		return "", "", false
	}
	return roomID, userID, true
}

// GetMessages handles GET /api/v1/rooms/{room_id}/messages
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID, _, ok := h.member(w, r)
	if !ok {
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	before, err := parseBefore(r.URL.Query().Get("before"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	page, err := h.chat.GetMessages(r.Context(), roomID, limit, before)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// PostMessage handles POST /api/v1/rooms/{room_id}/messages
func (h *MessageHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	roomID, userID, ok := h.member(w, r)
	if !ok {
		return
	}

	var in domain.PostMessageInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	msg, err := h.chat.PostMessage(r.Context(), roomID, userID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// RoomStats handles GET /api/v1/rooms/{room_id}/stats
func (h *MessageHandler) RoomStats(w http.ResponseWriter, r *http.Request) {
	roomID, _, ok := h.member(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.chat.RoomOverview(r.Context(), roomID))
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return domain.DefaultPageSize, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, domain.ErrInvalidLimit
	}
	if limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}
	return limit, nil
}

func parseBefore(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.ParseInLocation(naiveTimestamp, raw, time.UTC)
	if err != nil {
		return nil, domain.ErrInvalidCursor
	}
	return &t, nil
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotMember):
		writeError(w, http.StatusForbidden, "Not a member of this room")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
	default:
		observability.FromContext(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
