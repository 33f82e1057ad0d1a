package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"galileo-chat/internal/domain"

	"github.com/google/uuid"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// NewTestUser creates a test user with sensible defaults
// Pass options to override specific fields
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{ID: nextID("user")}
	for _, opt := range opts {
		opt(o)
	}
	if o.Email == "" {
		o.Email = o.ID + "@example.com"
	}
	return &domain.User{
		ID:        o.ID,
		Email:     o.Email,
		FirstName: o.FirstName,
		LastName:  o.LastName,
	}
}

// WithUserID sets the user ID
func WithUserID(id string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.ID = id
	}
}

// WithEmail sets the email
func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Email = email
	}
}

// WithName sets first and last name
func WithName(first, last string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.FirstName = first
		o.LastName = last
	}
}

// MessageOptions allows customizing message fixture creation
type MessageOptions struct {
	ID        uuid.UUID
	RoomID    string
	SenderID  string
	Content   string
	Media     []string
	CreatedAt time.Time
	ReplyTo   *uuid.UUID
}

// NewTestMessage creates a test message with sensible defaults
func NewTestMessage(opts ...func(*MessageOptions)) *domain.Message {
	o := &MessageOptions{
		ID:       uuid.New(),
		RoomID:   "room-1",
		SenderID: "user-1",
		Content:  "Test message " + nextID("msg"),
		Media:    []string{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	return &domain.Message{
		ID:        o.ID,
		RoomID:    o.RoomID,
		SenderID:  o.SenderID,
		Content:   o.Content,
		Media:     o.Media,
		CreatedAt: o.CreatedAt,
		ReplyTo:   o.ReplyTo,
	}
}

// WithRoomID sets the message's room
func WithRoomID(roomID string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.RoomID = roomID
	}
}

// WithSenderID sets the message's sender
func WithSenderID(userID string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.SenderID = userID
	}
}

// WithContent sets the message content
func WithContent(content string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Content = content
	}
}

// WithCreatedAt sets the message timestamp
func WithCreatedAt(t time.Time) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.CreatedAt = t
	}
}

// NewTestMessages creates count messages in a room one second apart, oldest
// first, starting at base.
func NewTestMessages(roomID string, base time.Time, count int) []*domain.Message {
	msgs := make([]*domain.Message, count)
	for i := 0; i < count; i++ {
		msgs[i] = NewTestMessage(
			WithRoomID(roomID),
			WithContent(fmt.Sprintf("message %d", i)),
			WithCreatedAt(base.Add(time.Duration(i)*time.Second)),
		)
	}
	return msgs
}
