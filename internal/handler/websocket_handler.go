package handler

import (
	"context"
	"errors"
	"net/http"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/middleware"
	"galileo-chat/internal/observability"
	"galileo-chat/internal/security"
	ws "galileo-chat/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades room connections and hands them to a session.
type WebSocketHandler struct {
	deps     ws.SessionDeps
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler accepting upgrades from the given
// origins. "*" accepts any origin.
func NewWebSocketHandler(deps ws.SessionDeps, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
		},
	}
}

// HandleConnection handles GET /ws/chat/{room_id}. Authentication and
// membership are settled before the upgrade so rejections are plain HTTP.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "Room ID required")
		return
	}

	// The session outlives the upgrade request.
	session := ws.NewSession(context.WithoutCancel(r.Context()), h.deps, roomID)

	if err := session.Authenticate(r.Context(), security.TokenFromRequest(r)); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	if err := session.Join(r.Context()); err != nil {
		if errors.Is(err, domain.ErrNotMember) {
			writeError(w, http.StatusForbidden, "Not a member of this room")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		observability.FromContext(r.Context()).Warn("websocket upgrade failed",
			"room_id", roomID,
			"error", err)
		session.Close()
		return
	}

	if err := session.Activate(conn); err != nil {
		observability.FromContext(r.Context()).Error("websocket activation failed",
			"room_id", roomID,
			"error", err)
		session.Close()
	}
}
