package websocket

import (
	"context"
	"testing"
	"time"

	"galileo-chat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_WritePumpSuppressesSelfEcho(t *testing.T) {
	c := NewClient(context.Background(), "alice", "r1")
	conn := newFakeConn()
	c.attach(conn)
	go c.writePump()
	defer c.Close()

	c.Send(domain.NewUserJoined("alice", nil))
	c.Send(domain.NewTypingIndicator("alice", nil, true))
	c.Send(domain.NewNewMessage(&domain.Message{SenderID: "alice", Content: "mine"}))
	c.Send(domain.NewUserJoined("bob", nil))

	first := conn.next(t)
	assert.Equal(t, "new_message", first["type"])

	second := conn.next(t)
	assert.Equal(t, "user_joined", second["type"])
	assert.Equal(t, "bob", second["user_id"])
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c := NewClient(context.Background(), "alice", "r1")
	conn := newFakeConn()
	c.attach(conn)

	c.Close()
	c.Close()

	assert.True(t, conn.isClosed())
	assert.Equal(t, 1, conn.closeFrames)
	assert.False(t, c.Send(domain.NewPong()), "closed clients accept nothing")
}

func TestClient_WritePumpStopsOnWriteFailure(t *testing.T) {
	c := NewClient(context.Background(), "alice", "r1")
	conn := newFakeConn()
	c.attach(conn)
	conn.Close()

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()
	require.True(t, c.Send(domain.NewPong()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump kept running after a failed write")
	}
	assert.Error(t, c.ctx.Err())
}

func TestClient_ReadPumpDeliversFrames(t *testing.T) {
	c := NewClient(context.Background(), "alice", "r1")
	conn := newFakeConn()
	c.attach(conn)

	conn.in <- []byte(`{"type":"ping"}`)
	conn.in <- []byte(`{"type":"typing_start"}`)
	conn.hangUp()

	var frames []string
	c.readPump(func(b []byte) { frames = append(frames, string(b)) }, nil)

	assert.Equal(t, []string{`{"type":"ping"}`, `{"type":"typing_start"}`}, frames)
}
