package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/observability"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	errUnknownEvent = errors.New("unknown room event")
	errMalformed    = errors.New("malformed room event")
)

// RoomEventHandler applies room lifecycle events to the chat layer.
type RoomEventHandler interface {
	OnRoomCreated(ctx context.Context, roomID, createdBy string) error
	OnRoomDeleted(ctx context.Context, roomID string) error
	OnMemberRemoved(ctx context.Context, roomID, userID string) error
	OnMessageUpdated(ctx context.Context, msg *domain.Message) error
	OnMessageDeleted(ctx context.Context, roomID string, messageID uuid.UUID) error
}

type eventHandler func(ctx context.Context, h RoomEventHandler, body []byte) error

var eventHandlers = map[string]eventHandler{
	KeyRoomCreated: func(ctx context.Context, h RoomEventHandler, body []byte) error {
		var e RoomCreated
		if err := decode(body, &e); err != nil {
			return err
		}
		if e.RoomID == "" || e.CreatedBy == "" {
			return fmt.Errorf("%w: room_id and created_by required", errMalformed)
		}
		return h.OnRoomCreated(ctx, e.RoomID, e.CreatedBy)
	},
	KeyRoomDeleted: func(ctx context.Context, h RoomEventHandler, body []byte) error {
		var e RoomDeleted
		if err := decode(body, &e); err != nil {
			return err
		}
		if e.RoomID == "" {
			return fmt.Errorf("%w: room_id required", errMalformed)
		}
		return h.OnRoomDeleted(ctx, e.RoomID)
	},
	KeyMemberRemoved: func(ctx context.Context, h RoomEventHandler, body []byte) error {
		var e MemberRemoved
		if err := decode(body, &e); err != nil {
			return err
		}
		if e.RoomID == "" || e.UserID == "" {
			return fmt.Errorf("%w: room_id and user_id required", errMalformed)
		}
		return h.OnMemberRemoved(ctx, e.RoomID, e.UserID)
	},
	KeyMessageUpdated: func(ctx context.Context, h RoomEventHandler, body []byte) error {
		var e MessageUpdated
		if err := decode(body, &e); err != nil {
			return err
		}
		if e.Message == nil {
			return fmt.Errorf("%w: message required", errMalformed)
		}
		if e.Message.RoomID == "" {
			e.Message.RoomID = e.RoomID
		}
		if e.Message.RoomID == "" {
			return fmt.Errorf("%w: room_id required", errMalformed)
		}
		return h.OnMessageUpdated(ctx, e.Message)
	},
	KeyMessageDeleted: func(ctx context.Context, h RoomEventHandler, body []byte) error {
		var e MessageDeleted
		if err := decode(body, &e); err != nil {
			return err
		}
		if e.RoomID == "" || e.MessageID == uuid.Nil {
			return fmt.Errorf("%w: room_id and message_id required", errMalformed)
		}
		return h.OnMessageDeleted(ctx, e.RoomID, e.MessageID)
	},
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

// RoomEventConsumer feeds RoomsExchange events to a RoomEventHandler.
type RoomEventConsumer struct {
	rmq     *RabbitMQ
	handler RoomEventHandler
}

func NewRoomEventConsumer(rmq *RabbitMQ, handler RoomEventHandler) *RoomEventConsumer {
	return &RoomEventConsumer{
		rmq:     rmq,
		handler: handler,
	}
}

// Start binds a private queue to every room event and consumes it until ctx
// is done.
func (c *RoomEventConsumer) Start(ctx context.Context) error {
	queue, err := c.rmq.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare room events queue: %w", err)
	}

	for _, key := range roomBindings {
		if err := c.rmq.channel.QueueBind(queue.Name, key, RoomsExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	msgs, err := c.rmq.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		false,      // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming room events",
		slog.String("queue", queue.Name),
		slog.String("exchange", RoomsExchange))

	go c.consume(ctx, msgs)
	return nil
}

func (c *RoomEventConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping room event consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("room event consumer channel closed")
				return
			}
			c.process(ctx, msg)
		}
	}
}

// process acks everything except handler failures, which are requeued once.
func (c *RoomEventConsumer) process(ctx context.Context, msg amqp.Delivery) {
	err := c.Dispatch(ctx, msg.RoutingKey, msg.Body)

	result := "ok"
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, errUnknownEvent):
		result = "ignored"
		slog.Info("ignoring room event", slog.String("routing_key", msg.RoutingKey))
		_ = msg.Ack(false)
	case errors.Is(err, errMalformed):
		result = "malformed"
		slog.Error("dropping malformed room event",
			slog.String("routing_key", msg.RoutingKey),
			slog.String("error", err.Error()),
			slog.String("body", string(msg.Body)))
		_ = msg.Ack(false)
	default:
		result = "error"
		slog.Error("room event handler failed",
			slog.String("routing_key", msg.RoutingKey),
			slog.Bool("redelivered", msg.Redelivered),
			slog.String("error", err.Error()))
		_ = msg.Nack(false, !msg.Redelivered)
	}
	event := msg.RoutingKey
	if result == "ignored" {
		event = "unknown"
	}
	observability.RoomEventsConsumed.WithLabelValues(event, result).Inc()
}

// Dispatch decodes one event and applies it.
func (c *RoomEventConsumer) Dispatch(ctx context.Context, routingKey string, body []byte) error {
	handle, ok := eventHandlers[routingKey]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownEvent, routingKey)
	}
	return handle(ctx, c.handler, body)
}
