package domain

// EventType discriminates outbound WebSocket payloads.
type EventType string

const (
	EventConnectionEstablished EventType = "connection_established"
	EventNewMessage            EventType = "new_message"
	EventMessageUpdated        EventType = "message_updated"
	EventMessageDeleted        EventType = "message_deleted"
	EventUserJoined            EventType = "user_joined"
	EventUserLeft              EventType = "user_left"
	EventTypingIndicator       EventType = "typing_indicator"
	EventPong                  EventType = "pong"
	EventError                 EventType = "error"
)

// Event is the closed set of payloads the server sends to clients. Each
// variant marshals to a JSON object carrying its own "type" field.
type Event interface {
	EventType() EventType
	// OriginUserID is the user whose action produced the event, or "" when
	// the event is not attributable to a connected user.
	OriginUserID() string
}

// SuppressesSelfEcho reports whether a subscriber must drop events of this
// type that it originated. new_message is deliberately absent: senders receive
// their own messages and clients dedupe by id.
func SuppressesSelfEcho(t EventType) bool {
	switch t {
	case EventUserJoined, EventUserLeft, EventTypingIndicator:
		return true
	}
	return false
}

type ConnectionEstablished struct {
	Type   EventType `json:"type"`
	RoomID string    `json:"room_id"`
	UserID string    `json:"user_id"`
}

func NewConnectionEstablished(roomID, userID string) *ConnectionEstablished {
	return &ConnectionEstablished{Type: EventConnectionEstablished, RoomID: roomID, UserID: userID}
}

func (e *ConnectionEstablished) EventType() EventType { return EventConnectionEstablished }
func (e *ConnectionEstablished) OriginUserID() string { return "" }

type NewMessage struct {
	Type    EventType `json:"type"`
	Message *Message  `json:"message"`
}

func NewNewMessage(msg *Message) *NewMessage {
	return &NewMessage{Type: EventNewMessage, Message: msg}
}

func (e *NewMessage) EventType() EventType { return EventNewMessage }
func (e *NewMessage) OriginUserID() string { return e.Message.SenderID }

type MessageUpdated struct {
	Type    EventType `json:"type"`
	Message *Message  `json:"message"`
}

func NewMessageUpdated(msg *Message) *MessageUpdated {
	return &MessageUpdated{Type: EventMessageUpdated, Message: msg}
}

func (e *MessageUpdated) EventType() EventType { return EventMessageUpdated }
func (e *MessageUpdated) OriginUserID() string { return "" }

type MessageDeleted struct {
	Type      EventType `json:"type"`
	MessageID string    `json:"message_id"`
}

func NewMessageDeleted(messageID string) *MessageDeleted {
	return &MessageDeleted{Type: EventMessageDeleted, MessageID: messageID}
}

func (e *MessageDeleted) EventType() EventType { return EventMessageDeleted }
func (e *MessageDeleted) OriginUserID() string { return "" }

type UserJoined struct {
	Type     EventType `json:"type"`
	UserID   string    `json:"user_id"`
	UserInfo *UserInfo `json:"user_info"`
}

func NewUserJoined(userID string, info *UserInfo) *UserJoined {
	return &UserJoined{Type: EventUserJoined, UserID: userID, UserInfo: info}
}

func (e *UserJoined) EventType() EventType { return EventUserJoined }
func (e *UserJoined) OriginUserID() string { return e.UserID }

type UserLeft struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user_id"`
}

func NewUserLeft(userID string) *UserLeft {
	return &UserLeft{Type: EventUserLeft, UserID: userID}
}

func (e *UserLeft) EventType() EventType { return EventUserLeft }
func (e *UserLeft) OriginUserID() string { return e.UserID }

type TypingIndicator struct {
	Type     EventType `json:"type"`
	UserID   string    `json:"user_id"`
	UserInfo *UserInfo `json:"user_info"`
	IsTyping bool      `json:"is_typing"`
}

// NewTypingIndicator attaches user info only when typing starts.
func NewTypingIndicator(userID string, info *UserInfo, isTyping bool) *TypingIndicator {
	if !isTyping {
		info = nil
	}
	return &TypingIndicator{Type: EventTypingIndicator, UserID: userID, UserInfo: info, IsTyping: isTyping}
}

func (e *TypingIndicator) EventType() EventType { return EventTypingIndicator }
func (e *TypingIndicator) OriginUserID() string { return e.UserID }

type Pong struct {
	Type EventType `json:"type"`
}

func NewPong() *Pong { return &Pong{Type: EventPong} }

func (e *Pong) EventType() EventType { return EventPong }
func (e *Pong) OriginUserID() string { return "" }

type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

func NewErrorEvent(message string) *ErrorEvent {
	return &ErrorEvent{Type: EventError, Message: message}
}

func (e *ErrorEvent) EventType() EventType { return EventError }
func (e *ErrorEvent) OriginUserID() string { return "" }

// InboundType discriminates frames received from clients.
type InboundType string

const (
	InboundTypingStart InboundType = "typing_start"
	InboundTypingStop  InboundType = "typing_stop"
	InboundPing        InboundType = "ping"
)

// InboundFrame is the envelope every client frame must parse into.
type InboundFrame struct {
	Type InboundType `json:"type"`
}
