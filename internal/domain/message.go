package domain

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxContentLength is counted in characters, not bytes.
	MaxContentLength = 2000
	DefaultPageSize  = 50
	MaxPageSize      = 100
)

// Message is a persisted chat message. (RoomID, CreatedAt, ID) identifies it.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	RoomID    string     `json:"room_id"`
	SenderID  string     `json:"sender_id"`
	Content   string     `json:"content"`
	Media     []string   `json:"media"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at"`
	ReplyTo   *uuid.UUID `json:"reply_to"`
	UserInfo  *UserInfo  `json:"user_info,omitempty"`
}

// MessageRepository is the authoritative, append-only message log.
type MessageRepository interface {
	Append(ctx context.Context, message *Message) error
	// QueryRoom returns up to limit+1 messages, newest first, optionally only
	// those created strictly before the given time. The extra row lets callers
	// detect further pages without a count query.
	QueryRoom(ctx context.Context, roomID string, limit int, before *time.Time) ([]*Message, error)
}

// PostMessageInput is the client-supplied body of a new message.
type PostMessageInput struct {
	Content string   `json:"content"`
	Media   []string `json:"media,omitempty"`
	ReplyTo *string  `json:"reply_to,omitempty"`
}

// Normalize trims and validates the input. It returns the cleaned content and
// the parsed reply reference.
func (in PostMessageInput) Normalize() (string, *uuid.UUID, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Media) == 0 {
		return "", nil, ErrContentRequired
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", nil, ErrContentTooLong
	}

	if in.ReplyTo == nil || strings.TrimSpace(*in.ReplyTo) == "" {
		return content, nil, nil
	}
	replyTo, err := uuid.Parse(strings.TrimSpace(*in.ReplyTo))
	if err != nil {
		return "", nil, ErrInvalidReplyTo
	}
	return content, &replyTo, nil
}

// MessagePage is one cursor page of room history.
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	Source     string     `json:"source"`
	Count      int        `json:"count"`
	HasMore    bool       `json:"has_more"`
	NextCursor *string    `json:"next_cursor,omitempty"`
}

const (
	SourceCache    = "cache"
	SourceDatabase = "database"
)
