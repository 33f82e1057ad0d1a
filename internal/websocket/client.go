package websocket

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/observability"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Conn is the subset of *websocket.Conn a client uses.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one subscriber connection. Its send buffer is never closed; the
// write pump stops when the client's context is cancelled.
type Client struct {
	conn    Conn
	send    chan outbound
	userID  string
	roomID  string
	writeMu sync.Mutex
	closed  atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewClient(ctx context.Context, userID, roomID string) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	return &Client{
		send:   make(chan outbound, sendBufferSize),
		userID: userID,
		roomID: roomID,
		ctx:    clientCtx,
		cancel: cancel,
	}
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) RoomID() string { return c.roomID }

func (c *Client) attach(conn Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
}

// Send queues an event for this client only.
func (c *Client) Send(event domain.Event) bool {
	msg, err := encode(event)
	if err != nil {
		slog.Error("failed to marshal event",
			slog.String("type", string(event.EventType())),
			slog.String("error", err.Error()))
		return false
	}
	return c.enqueue(msg)
}

func (c *Client) enqueue(msg outbound) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- msg:
		observability.WebSocketMessagesSent.WithLabelValues(c.roomID, string(msg.eventType)).Inc()
		return true
	default:
		observability.WebSocketMessagesDropped.WithLabelValues(c.roomID).Inc()
		slog.Warn("send buffer full, dropping event",
			slog.String("user_id", c.userID),
			slog.String("room_id", c.roomID),
			slog.String("type", string(msg.eventType)))
		return false
	}
}

// readPump reads frames until the connection fails. onPong runs on every
// transport pong.
func (c *Client) readPump(onFrame func([]byte), onPong func()) {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline",
			slog.String("error", err.Error()),
			slog.String("user_id", c.userID),
			slog.String("room_id", c.roomID))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		if onPong != nil {
			onPong()
		}
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error",
					slog.String("error", err.Error()),
					slog.String("user_id", c.userID),
					slog.String("room_id", c.roomID))
			}
			return
		}
		onFrame(data)
	}
}

// writePump pumps queued events to the connection and keeps it alive with
// pings. Events this user originated are dropped when their type suppresses
// self echo.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case msg := <-c.send:
			if msg.origin == c.userID && domain.SuppressesSelfEcho(msg.eventType) {
				continue
			}
			if err := c.writeMessage(websocket.TextMessage, msg.payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil || c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// Close sends a close frame, closes the connection and cancels the client's
// context. Safe to call more than once.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	c.conn.Close()
}
