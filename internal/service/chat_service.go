package service

import (
	"context"
	"fmt"
	"time"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/observability"

	"github.com/google/uuid"
)

const (
	postMessageAction = "post_message"
	postMessageLimit  = 30
	postMessageWindow = time.Minute
)

// EphemeralStore is the cache and presence state the chat service reads and
// maintains. Implementations never fail; they degrade to safe fallbacks.
type EphemeralStore interface {
	CacheMessage(ctx context.Context, msg *domain.Message) bool
	PrimeMessages(ctx context.Context, roomID string, msgs []*domain.Message, complete bool) bool
	GetCachedPage(ctx context.Context, roomID string, limit int) (msgs []*domain.Message, hasMore, ok bool)
	UpdateCachedMessage(ctx context.Context, msg *domain.Message) bool
	InvalidateMessage(ctx context.Context, roomID string, messageID uuid.UUID) bool
	IncrementMessageCount(ctx context.Context, roomID string) int64
	GetRoomStats(ctx context.Context, roomID string) domain.RoomStats
	ListOnline(ctx context.Context, roomID string) []string
	ListTyping(ctx context.Context, roomID string) []string
	SetOffline(ctx context.Context, roomID, userID string) bool
	CleanupRoom(ctx context.Context, roomID string) bool
	CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) bool
	GetUserInfo(ctx context.Context, userID string) (*domain.UserInfo, bool)
	SetUserInfo(ctx context.Context, info *domain.UserInfo) bool
}

// Broadcaster fans an event out to a room's connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID string, event domain.Event)
}

type ChatService struct {
	messages    domain.MessageRepository
	memberships domain.MembershipRepository
	users       domain.UserDirectory
	cache       EphemeralStore
	broadcaster Broadcaster
	now         func() time.Time
}

func NewChatService(
	messages domain.MessageRepository,
	memberships domain.MembershipRepository,
	users domain.UserDirectory,
	cache EphemeralStore,
	broadcaster Broadcaster,
) *ChatService {
	return &ChatService{
		messages:    messages,
		memberships: memberships,
		users:       users,
		cache:       cache,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// RequireMember returns domain.ErrNotMember unless the user belongs to the
// room. Lookup failures are logged and denied.
func (s *ChatService) RequireMember(ctx context.Context, roomID, userID string) error {
	ok, err := s.memberships.IsMember(ctx, roomID, userID)
	if err != nil {
		observability.FromContext(ctx).Error("membership check failed",
			"room_id", roomID,
			"error", err)
		return domain.ErrNotMember
	}
	if !ok {
		return domain.ErrNotMember
	}
	return nil
}

// PostMessage validates, persists, caches and broadcasts a new message. Cache
// and broadcast only happen after the append succeeded.
func (s *ChatService) PostMessage(ctx context.Context, roomID, senderID string, in domain.PostMessageInput) (*domain.Message, error) {
	content, replyTo, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	if !s.cache.CheckRateLimit(ctx, senderID, postMessageAction, postMessageLimit, postMessageWindow) {
		return nil, domain.ErrRateLimited
	}

	media := in.Media
	if media == nil {
		media = []string{}
	}
	msg := &domain.Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		Media:     media,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
		ReplyTo:   replyTo,
	}

	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	observability.MessagesPosted.Inc()

	msg.UserInfo = s.SenderInfo(ctx, senderID)
	s.cache.CacheMessage(ctx, msg)
	s.cache.IncrementMessageCount(ctx, roomID)
	s.broadcaster.Broadcast(ctx, roomID, domain.NewNewMessage(msg))

	observability.FromContext(ctx).Info("message posted",
		"room_id", roomID,
		"message_id", msg.ID.String())
	return msg, nil
}

// GetMessages returns one page of room history, newest first. The first page
// is served from the recent-message cache when it holds a full page or the
// room's whole history; otherwise the store is read and the cache repopulated.
func (s *ChatService) GetMessages(ctx context.Context, roomID string, limit int, before *time.Time) (*domain.MessagePage, error) {
	if limit < 1 {
		return nil, domain.ErrInvalidLimit
	}
	if limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}

	if before == nil {
		if cached, hasMore, ok := s.cache.GetCachedPage(ctx, roomID, limit); ok {
			return newPage(cached, domain.SourceCache, hasMore), nil
		}
	}

	msgs, err := s.messages.QueryRoom(ctx, roomID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("query room messages: %w", err)
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	s.enrich(ctx, msgs)

	if before == nil && len(msgs) > 0 {
		s.cache.PrimeMessages(ctx, roomID, msgs, !hasMore)
	}
	return newPage(msgs, domain.SourceDatabase, hasMore), nil
}

func newPage(msgs []*domain.Message, source string, hasMore bool) *domain.MessagePage {
	page := &domain.MessagePage{
		Messages: msgs,
		Source:   source,
		Count:    len(msgs),
		HasMore:  hasMore,
	}
	if hasMore && len(msgs) > 0 {
		cursor := msgs[len(msgs)-1].CreatedAt.UTC().Format(time.RFC3339Nano)
		page.NextCursor = &cursor
	}
	return page
}

func (s *ChatService) enrich(ctx context.Context, msgs []*domain.Message) {
	seen := make(map[string]*domain.UserInfo)
	for _, msg := range msgs {
		info, ok := seen[msg.SenderID]
		if !ok {
			info = s.SenderInfo(ctx, msg.SenderID)
			seen[msg.SenderID] = info
		}
		msg.UserInfo = info
	}
}

// SenderInfo resolves display info through the cache, then the user
// directory. It never fails: unknown users get a placeholder, which is not
// cached.
func (s *ChatService) SenderInfo(ctx context.Context, userID string) *domain.UserInfo {
	if info, ok := s.cache.GetUserInfo(ctx, userID); ok {
		return info
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		observability.FromContext(ctx).Warn("sender lookup failed",
			"sender_id", userID,
			"error", err)
		return domain.UnknownUserInfo(userID)
	}

	info := domain.NewUserInfo(user)
	s.cache.SetUserInfo(ctx, info)
	return info
}

// RoomOverview reads the room's derived counters and presence. The parts are
// read independently.
func (s *ChatService) RoomOverview(ctx context.Context, roomID string) *domain.RoomOverview {
	return &domain.RoomOverview{
		RoomID:      roomID,
		Stats:       s.cache.GetRoomStats(ctx, roomID),
		OnlineUsers: s.cache.ListOnline(ctx, roomID),
		TypingUsers: s.cache.ListTyping(ctx, roomID),
		Timestamp:   s.now().UTC(),
	}
}
