//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"galileo-chat/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestClient makes authenticated requests as one user
type TestClient struct {
	*http.Client
	t      *testing.T
	token  string
	userID string
}

// newUser inserts a user row and returns a client holding a signed token for it.
func newUser(t *testing.T, prefix, first, last string) *TestClient {
	t.Helper()
	userID := fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	_, err := testDB.Exec(`INSERT INTO users (id, email, first_name, last_name) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))`,
		userID, userID+"@example.com", first, last)
	require.NoError(t, err)

	token, err := signer.Sign(domain.Identity{UserID: userID, Email: userID + "@example.com"}, time.Hour)
	require.NoError(t, err)

	return &TestClient{
		Client: &http.Client{Timeout: 30 * time.Second},
		t:      t,
		token:  token,
		userID: userID,
	}
}

// newRoom creates a room through a room.created event and waits for the
// creator's membership to land.
func newRoom(t *testing.T, creator *TestClient, members ...*TestClient) string {
	t.Helper()
	roomID := fmt.Sprintf("room-%d", time.Now().UnixNano())
	require.NoError(t, rmq.PublishRoomCreated(context.Background(), roomID, creator.userID))

	require.Eventually(t, func() bool {
		var n int
		err := testDB.QueryRow(`SELECT COUNT(*) FROM chat_room_memberships WHERE room_id = $1`, roomID).Scan(&n)
		return err == nil && n == 1
	}, 10*time.Second, 100*time.Millisecond, "room.created was not applied")

	for _, m := range members {
		_, err := testDB.Exec(`INSERT INTO chat_room_memberships (room_id, user_id) VALUES ($1, $2)`, roomID, m.userID)
		require.NoError(t, err)
	}
	return roomID
}

func (tc *TestClient) do(method, path string, body any) *http.Response {
	tc.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(tc.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, baseURL+path, &buf)
	require.NoError(tc.t, err)
	req.Header.Set("Content-Type", "application/json")
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}
	resp, err := tc.Do(req)
	require.NoError(tc.t, err)
	tc.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// PostMessage posts content and returns the response
func (tc *TestClient) PostMessage(roomID, content string) *http.Response {
	return tc.do(http.MethodPost, "/api/v1/rooms/"+roomID+"/messages", map[string]any{"content": content})
}

// MustPost posts content and decodes the created message
func (tc *TestClient) MustPost(roomID, content string) *domain.Message {
	tc.t.Helper()
	resp := tc.PostMessage(roomID, content)
	require.Equal(tc.t, http.StatusCreated, resp.StatusCode)
	var msg domain.Message
	require.NoError(tc.t, json.NewDecoder(resp.Body).Decode(&msg))
	return &msg
}

// GetMessages fetches one history page; query is appended as-is
func (tc *TestClient) GetMessages(roomID, query string) (*domain.MessagePage, int) {
	tc.t.Helper()
	resp := tc.do(http.MethodGet, "/api/v1/rooms/"+roomID+"/messages"+query, nil)
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode
	}
	var page domain.MessagePage
	require.NoError(tc.t, json.NewDecoder(resp.Body).Decode(&page))
	return &page, resp.StatusCode
}

// Stats fetches the room overview
func (tc *TestClient) Stats(roomID string) *domain.RoomOverview {
	tc.t.Helper()
	resp := tc.do(http.MethodGet, "/api/v1/rooms/"+roomID+"/stats", nil)
	require.Equal(tc.t, http.StatusOK, resp.StatusCode)
	var overview domain.RoomOverview
	require.NoError(tc.t, json.NewDecoder(resp.Body).Decode(&overview))
	return &overview
}

// WSMessage is any outbound event; fields are populated per type.
// "message" is an object on message events and a string on error events.
type WSMessage struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	IsTyping  bool            `json:"is_typing,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// ChatMessage decodes the message of a new_message or message_updated event
func (m *WSMessage) ChatMessage(t *testing.T) *domain.Message {
	t.Helper()
	var msg domain.Message
	require.NoError(t, json.Unmarshal(m.Message, &msg))
	return &msg
}

// Text decodes the message of an error event
func (m *WSMessage) Text(t *testing.T) string {
	t.Helper()
	var text string
	require.NoError(t, json.Unmarshal(m.Message, &text))
	return text
}

// WSClient is a connected WebSocket with a buffered inbox
type WSClient struct {
	t        *testing.T
	conn     *websocket.Conn
	messages chan WSMessage
	mu       sync.Mutex
	once     sync.Once
}

// ConnectWebSocket connects to a room with the client's token in the query string
func (tc *TestClient) ConnectWebSocket(roomID string) (*WSClient, *http.Response, error) {
	url := fmt.Sprintf("%s/ws/chat/%s?token=%s", wsURL, roomID, tc.token)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, resp, err
	}

	wsc := &WSClient{
		t:        tc.t,
		conn:     conn,
		messages: make(chan WSMessage, 100),
	}
	go wsc.readLoop()
	tc.t.Cleanup(func() { wsc.Close() })
	return wsc, resp, nil
}

// MustConnect connects and consumes connection_established
func (tc *TestClient) MustConnect(roomID string) *WSClient {
	tc.t.Helper()
	wsc, _, err := tc.ConnectWebSocket(roomID)
	require.NoError(tc.t, err)
	_, err = wsc.WaitForType("connection_established", 5*time.Second)
	require.NoError(tc.t, err)
	return wsc
}

func (wsc *WSClient) readLoop() {
	defer close(wsc.messages)
	for {
		_, data, err := wsc.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			wsc.t.Logf("failed to unmarshal WebSocket message: %v", err)
			continue
		}
		msg.Raw = data
		select {
		case wsc.messages <- msg:
		default:
			wsc.t.Log("message channel full, dropping message")
		}
	}
}

// Send writes one inbound frame
func (wsc *WSClient) Send(frame any) error {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	return wsc.conn.WriteJSON(frame)
}

// WaitFor waits for a message matching the predicate
func (wsc *WSClient) WaitFor(timeout time.Duration, predicate func(WSMessage) bool) (*WSMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-wsc.messages:
			if !ok {
				return nil, fmt.Errorf("connection closed while waiting for message")
			}
			if predicate(msg) {
				return &msg, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("timeout waiting for message")
		}
	}
}

// WaitForType waits for a message of a specific type
func (wsc *WSClient) WaitForType(msgType string, timeout time.Duration) (*WSMessage, error) {
	return wsc.WaitFor(timeout, func(msg WSMessage) bool { return msg.Type == msgType })
}

// ExpectNone asserts no message of the type arrives within the window
func (wsc *WSClient) ExpectNone(msgType string, window time.Duration) {
	wsc.t.Helper()
	if msg, err := wsc.WaitForType(msgType, window); err == nil {
		wsc.t.Errorf("unexpected %s event: %s", msgType, msg.Raw)
	}
}

// Close closes the WebSocket connection
func (wsc *WSClient) Close() error {
	var err error
	wsc.once.Do(func() {
		wsc.mu.Lock()
		defer wsc.mu.Unlock()
		err = wsc.conn.Close()
	})
	return err
}
