package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"galileo-chat/internal/domain"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials until it succeeds or ctx is done, doubling the
// wait between attempts up to maxBackoff.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq unavailable after %d attempts: %w", attempt, err)
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		RoomsExchange, // name
		"topic",       // type
		true,          // durable
		false,         // auto-deleted
		false,         // internal
		false,         // no-wait
		nil,           // arguments
	); err != nil {
		return fmt.Errorf("failed to declare rooms exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// Publish sends a JSON event to RoomsExchange under the routing key.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", routingKey, err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		RoomsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", routingKey, err)
	}

	slog.Debug("published room event", slog.String("routing_key", routingKey))
	return nil
}

func (r *RabbitMQ) PublishRoomCreated(ctx context.Context, roomID, createdBy string) error {
	return r.Publish(ctx, KeyRoomCreated, RoomCreated{RoomID: roomID, CreatedBy: createdBy})
}

func (r *RabbitMQ) PublishRoomDeleted(ctx context.Context, roomID string) error {
	return r.Publish(ctx, KeyRoomDeleted, RoomDeleted{RoomID: roomID})
}

func (r *RabbitMQ) PublishMemberRemoved(ctx context.Context, roomID, userID string) error {
	return r.Publish(ctx, KeyMemberRemoved, MemberRemoved{RoomID: roomID, UserID: userID})
}

func (r *RabbitMQ) PublishMessageUpdated(ctx context.Context, msg *domain.Message) error {
	return r.Publish(ctx, KeyMessageUpdated, MessageUpdated{RoomID: msg.RoomID, Message: msg})
}

func (r *RabbitMQ) PublishMessageDeleted(ctx context.Context, roomID string, messageID uuid.UUID) error {
	return r.Publish(ctx, KeyMessageDeleted, MessageDeleted{RoomID: roomID, MessageID: messageID})
}

// Ping reports an error when the broker connection is gone.
func (r *RabbitMQ) Ping(context.Context) error {
	if r.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
