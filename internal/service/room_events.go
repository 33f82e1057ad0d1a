package service

import (
	"context"
	"errors"
	"fmt"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/observability"

	"github.com/google/uuid"
)

// OnRoomCreated makes the creator an admin member of the new room. A
// redelivered event finds the membership already present and succeeds.
func (s *ChatService) OnRoomCreated(ctx context.Context, roomID, createdBy string) error {
	err := s.memberships.AddMember(ctx, &domain.Membership{
		RoomID:  roomID,
		UserID:  createdBy,
		IsAdmin: true,
	})
	if err != nil && !errors.Is(err, domain.ErrAlreadyMember) {
		return fmt.Errorf("add room creator: %w", err)
	}
	return nil
}

// OnRoomDeleted drops the room's ephemeral state. Best effort.
func (s *ChatService) OnRoomDeleted(ctx context.Context, roomID string) error {
	if !s.cache.CleanupRoom(ctx, roomID) {
		observability.FromContext(ctx).Warn("room cleanup incomplete", "room_id", roomID)
	}
	return nil
}

// OnMemberRemoved clears presence so it cannot outlive the membership.
func (s *ChatService) OnMemberRemoved(ctx context.Context, roomID, userID string) error {
	s.cache.SetOffline(ctx, roomID, userID)
	return nil
}

// OnMessageUpdated rewrites the cached copy in place and tells the room.
func (s *ChatService) OnMessageUpdated(ctx context.Context, msg *domain.Message) error {
	if msg == nil || msg.RoomID == "" {
		return errors.New("message update without room")
	}
	if msg.UserInfo == nil {
		msg.UserInfo = s.SenderInfo(ctx, msg.SenderID)
	}
	s.cache.UpdateCachedMessage(ctx, msg)
	s.broadcaster.Broadcast(ctx, msg.RoomID, domain.NewMessageUpdated(msg))
	return nil
}

func (s *ChatService) OnMessageDeleted(ctx context.Context, roomID string, messageID uuid.UUID) error {
	s.cache.InvalidateMessage(ctx, roomID, messageID)
	s.broadcaster.Broadcast(ctx, roomID, domain.NewMessageDeleted(messageID.String()))
	return nil
}
