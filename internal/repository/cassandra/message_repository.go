package cassandra

import (
	"context"
	"fmt"
	"time"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/observability"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

const (
	insertMessageCQL = `INSERT INTO messages_by_room (room_id, created_at, message_id, sender_id, content, media, edited_at, reply_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectColumns = `SELECT room_id, created_at, message_id, sender_id, content, media, edited_at, reply_to FROM messages_by_room`

	queryLatestCQL = selectColumns + ` WHERE room_id = ? LIMIT ?`
	queryBeforeCQL = selectColumns + ` WHERE room_id = ? AND created_at < ? LIMIT ?`
)

// MessageRepository implements domain.MessageRepository on a
// messages_by_room partition per room, clustered newest first.
type MessageRepository struct {
	session *gocql.Session
}

func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session}
}

// Append writes a new message. CreatedAt is stored at millisecond precision,
// and the message is updated in place to match what a later read returns.
func (r *MessageRepository) Append(ctx context.Context, message *domain.Message) error {
	defer observeQuery("append", time.Now())

	message.CreatedAt = message.CreatedAt.UTC().Truncate(time.Millisecond)
	if message.Media == nil {
		message.Media = []string{}
	}

	var editedAt, replyTo any
	if message.EditedAt != nil {
		t := message.EditedAt.UTC().Truncate(time.Millisecond)
		message.EditedAt = &t
		editedAt = t
	}
	if message.ReplyTo != nil {
		replyTo = gocql.UUID(*message.ReplyTo)
	}

	err := r.session.Query(insertMessageCQL,
		message.RoomID,
		message.CreatedAt,
		gocql.UUID(message.ID),
		message.SenderID,
		message.Content,
		message.Media,
		editedAt,
		replyTo,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// QueryRoom returns up to limit+1 messages, newest first. With before set only
// messages created strictly earlier are returned.
func (r *MessageRepository) QueryRoom(ctx context.Context, roomID string, limit int, before *time.Time) ([]*domain.Message, error) {
	defer observeQuery("query_room", time.Now())

	if limit <= 0 {
		return nil, domain.ErrInvalidLimit
	}
	fetch := limit + 1

	var q *gocql.Query
	if before != nil {
		q = r.session.Query(queryBeforeCQL, roomID, before.UTC(), fetch)
	} else {
		q = r.session.Query(queryLatestCQL, roomID, fetch)
	}

	iter := q.WithContext(ctx).PageSize(fetch).Iter()

	messages := make([]*domain.Message, 0, fetch)
	var (
		row       domain.Message
		messageID gocql.UUID
		editedAt  time.Time
		replyTo   gocql.UUID
		media     []string
	)
	for iter.Scan(&row.RoomID, &row.CreatedAt, &messageID, &row.SenderID, &row.Content, &media, &editedAt, &replyTo) {
		msg := row
		msg.ID = uuid.UUID(messageID)
		msg.CreatedAt = msg.CreatedAt.UTC()
		msg.Media = append([]string{}, media...)
		if !editedAt.IsZero() {
			t := editedAt.UTC()
			msg.EditedAt = &t
		}
		if replyTo != (gocql.UUID{}) {
			id := uuid.UUID(replyTo)
			msg.ReplyTo = &id
		}
		messages = append(messages, &msg)

		editedAt, replyTo, media = time.Time{}, gocql.UUID{}, nil
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to query room messages: %w", err)
	}
	return messages, nil
}

// Ping checks the node is answering queries.
func (r *MessageRepository) Ping(ctx context.Context) error {
	var now gocql.UUID
	if err := r.session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Scan(&now); err != nil {
		return fmt.Errorf("cassandra ping failed: %w", err)
	}
	return nil
}

func observeQuery(op string, start time.Time) {
	observability.MessageStoreQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
