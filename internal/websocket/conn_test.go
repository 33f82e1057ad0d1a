package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeConn is an in-memory Conn. Frames pushed to in are read by the client;
// text frames the client writes land on out.
type fakeConn struct {
	in   chan []byte
	out  chan []byte
	done chan struct{}

	mu          sync.Mutex
	closed      bool
	closeFrames int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan []byte, 16),
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseGoingAway}
		}
		return websocket.TextMessage, data, nil
	case <-f.done:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return websocket.ErrCloseSent
	}
	switch messageType {
	case websocket.TextMessage:
		f.out <- data
	case websocket.CloseMessage:
		f.closeFrames++
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// hangUp simulates the peer going away.
func (f *fakeConn) hangUp() { close(f.in) }

func (f *fakeConn) sendJSON(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.in <- data
}

// next returns the next frame the client wrote, decoded.
func (f *fakeConn) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-f.out:
		var ev map[string]any
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("client wrote invalid JSON %q: %v", data, err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

// quiet fails if the client writes anything within d.
func (f *fakeConn) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case data := <-f.out:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(d):
	}
}

// drain reads one queued event straight from a client's buffer.
func drain(t *testing.T, c *Client) outbound {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued event")
		return outbound{}
	}
}
