package domain

import (
	"context"
	"time"
)

// Membership links a user to a room.
type Membership struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// MembershipRepository is the narrow view of the room membership collaborator.
type MembershipRepository interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	AddMember(ctx context.Context, membership *Membership) error
}

// RoomStats are derived counters; the three values are read independently
// and are not a consistent snapshot.
type RoomStats struct {
	TotalMessages int64 `json:"total_messages"`
	OnlineCount   int64 `json:"online_users_count"`
	TypingCount   int64 `json:"typing_users_count"`
}

// RoomOverview is the stats view of a room.
type RoomOverview struct {
	RoomID      string    `json:"room_id"`
	Stats       RoomStats `json:"stats"`
	OnlineUsers []string  `json:"online_users"`
	TypingUsers []string  `json:"typing_users"`
	Timestamp   time.Time `json:"timestamp"`
}
