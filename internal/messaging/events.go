package messaging

import (
	"galileo-chat/internal/domain"

	"github.com/google/uuid"
)

// RoomsExchange carries room lifecycle events between the chat layer and the
// services that own rooms, memberships and message edits.
const RoomsExchange = "chat.rooms"

// Routing keys on RoomsExchange.
const (
	KeyRoomCreated    = "room.created"
	KeyRoomDeleted    = "room.deleted"
	KeyMemberRemoved  = "member.removed"
	KeyMessageUpdated = "message.updated"
	KeyMessageDeleted = "message.deleted"
)

var roomBindings = []string{"room.*", "member.*", "message.*"}

type RoomCreated struct {
	RoomID    string `json:"room_id"`
	CreatedBy string `json:"created_by"`
}

type RoomDeleted struct {
	RoomID string `json:"room_id"`
}

type MemberRemoved struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type MessageUpdated struct {
	RoomID  string          `json:"room_id"`
	Message *domain.Message `json:"message"`
}

type MessageDeleted struct {
	RoomID    string    `json:"room_id"`
	MessageID uuid.UUID `json:"message_id"`
}
