package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"galileo-chat/internal/domain"
)

const membershipRoomUserKey = "chat_room_memberships_room_id_user_id_key"

// MembershipRepository implements domain.MembershipRepository over the
// chat_room_memberships table owned by the room lifecycle collaborator.
type MembershipRepository struct {
	db *sql.DB
}

func NewMembershipRepository(db *sql.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// IsMember checks if a user belongs to a room
func (r *MembershipRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM chat_room_memberships
			WHERE room_id = $1 AND user_id = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, roomID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// AddMember inserts a membership and fills in CreatedAt.
func (r *MembershipRepository) AddMember(ctx context.Context, m *domain.Membership) error {
	query := `
		INSERT INTO chat_room_memberships (room_id, user_id, is_admin)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	return membershipWriteError(
		r.db.QueryRowContext(ctx, query, m.RoomID, m.UserID, m.IsAdmin).Scan(&m.CreatedAt))
}
