package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/observability"
)

// State is a connection session's lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	ErrUnauthenticated   = errors.New("unauthenticated connection rejected")
	ErrInvalidTransition = errors.New("invalid session state transition")
)

const teardownTimeout = 5 * time.Second

// Presence is the ephemeral state a session maintains.
type Presence interface {
	SetOnline(ctx context.Context, roomID, userID string) bool
	SetOffline(ctx context.Context, roomID, userID string) bool
	SetTyping(ctx context.Context, roomID, userID string) bool
	UnsetTyping(ctx context.Context, roomID, userID string) bool
}

// MembershipChecker answers whether a user may join a room.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

// SenderLookup resolves display info for a user. It never fails; unknown
// users get a placeholder.
type SenderLookup interface {
	SenderInfo(ctx context.Context, userID string) *domain.UserInfo
}

// SessionDeps are the collaborators shared by every session.
type SessionDeps struct {
	Hub        *Hub
	Identity   domain.IdentityResolver
	Membership MembershipChecker
	Presence   Presence
	Users      SenderLookup
}

// Session drives one connection through
// Connecting -> Authenticated -> Joined -> Active -> Closed.
// A failed authentication or membership check goes straight to Closed.
type Session struct {
	deps      SessionDeps
	ctx       context.Context
	roomID    string
	identity  domain.Identity
	info      *domain.UserInfo
	client    *Client
	state     atomic.Int32
	closeOnce sync.Once
}

func NewSession(ctx context.Context, deps SessionDeps, roomID string) *Session {
	return &Session{
		deps:   deps,
		ctx:    observability.WithRoomID(ctx, roomID),
		roomID: roomID,
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) Identity() domain.Identity { return s.identity }

func (s *Session) Client() *Client { return s.client }

func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// Authenticate resolves the token. An anonymous identity closes the session.
func (s *Session) Authenticate(ctx context.Context, token string) error {
	if s.State() != StateConnecting {
		return ErrInvalidTransition
	}

	identity := s.deps.Identity.Resolve(ctx, token)
	if identity.IsAnonymous() {
		s.state.Store(int32(StateClosed))
		return ErrUnauthenticated
	}

	s.identity = identity
	s.ctx = observability.WithUserID(s.ctx, identity.UserID)
	if !s.transition(StateConnecting, StateAuthenticated) {
		return ErrInvalidTransition
	}
	return nil
}

// Join checks membership, subscribes to the room's broadcast group and marks
// the user online. Membership lookup failures are treated as non-membership.
func (s *Session) Join(ctx context.Context) error {
	if s.State() != StateAuthenticated {
		return ErrInvalidTransition
	}

	ok, err := s.deps.Membership.IsMember(ctx, s.roomID, s.identity.UserID)
	if err != nil {
		observability.FromContext(s.ctx).Error("membership check failed", "error", err)
	}
	if err != nil || !ok {
		s.state.Store(int32(StateClosed))
		return domain.ErrNotMember
	}

	s.client = NewClient(s.ctx, s.identity.UserID, s.roomID)
	s.deps.Hub.Join(s.client)
	s.deps.Presence.SetOnline(ctx, s.roomID, s.identity.UserID)
	s.info = s.deps.Users.SenderInfo(ctx, s.identity.UserID)

	if !s.transition(StateAuthenticated, StateJoined) {
		return ErrInvalidTransition
	}
	return nil
}

// Activate attaches the accepted connection, confirms it to the client,
// announces the user to the room and starts the pumps.
func (s *Session) Activate(conn Conn) error {
	if s.State() != StateJoined {
		conn.Close()
		return ErrInvalidTransition
	}
	s.client.attach(conn)
	if !s.transition(StateJoined, StateActive) {
		conn.Close()
		return ErrInvalidTransition
	}

	s.client.Send(domain.NewConnectionEstablished(s.roomID, s.identity.UserID))
	s.deps.Hub.BroadcastExcept(s.ctx, s.roomID, domain.NewUserJoined(s.identity.UserID, s.info), s.identity.UserID)

	observability.FromContext(s.ctx).Info("websocket session active", "state", StateActive.String())

	go s.client.writePump()
	go func() {
		defer s.Close()
		s.client.readPump(s.handleFrame, s.heartbeat)
	}()
	return nil
}

// Close tears the session down. Every step runs even if an earlier one
// fails. user_left is only announced for sessions that announced user_joined.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateClosed)))
		if prev < StateJoined {
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), teardownTimeout)
		defer cancel()

		s.step("set_offline", func() {
			s.deps.Presence.SetOffline(ctx, s.roomID, s.identity.UserID)
		})
		s.step("leave_group", func() {
			s.deps.Hub.Leave(s.client)
		})
		if prev == StateActive {
			s.step("announce_left", func() {
				s.deps.Hub.Broadcast(ctx, s.roomID, domain.NewUserLeft(s.identity.UserID))
			})
		}
		s.step("close_connection", func() {
			s.client.Close()
		})

		observability.FromContext(s.ctx).Info("websocket session closed", "state", StateClosed.String(), "from", prev.String())
	})
}

func (s *Session) step(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			observability.FromContext(s.ctx).Error("session teardown step failed",
				"step", name,
				"panic", r)
		}
	}()
	fn()
}

// heartbeat refreshes presence on every transport pong so long-lived
// connections stay inside the presence window.
func (s *Session) heartbeat() {
	ctx, cancel := context.WithTimeout(s.ctx, teardownTimeout)
	defer cancel()
	s.deps.Presence.SetOnline(ctx, s.roomID, s.identity.UserID)
}

type inboundHandler func(s *Session, ctx context.Context)

var inboundHandlers = map[domain.InboundType]inboundHandler{
	domain.InboundTypingStart: (*Session).handleTypingStart,
	domain.InboundTypingStop:  (*Session).handleTypingStop,
	domain.InboundPing:        (*Session).handlePing,
}

// handleFrame dispatches one inbound frame. Nothing it does closes the
// connection.
func (s *Session) handleFrame(data []byte) {
	logger := observability.FromContext(s.ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic handling inbound frame", "panic", r)
		}
	}()

	var frame domain.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.client.Send(domain.NewErrorEvent("Invalid JSON format"))
		return
	}

	handle, ok := inboundHandlers[frame.Type]
	if !ok {
		logger.Warn("unknown inbound message type", "type", string(frame.Type))
		return
	}
	handle(s, s.ctx)
}

func (s *Session) handleTypingStart(ctx context.Context) {
	s.deps.Presence.SetTyping(ctx, s.roomID, s.identity.UserID)
	s.deps.Hub.BroadcastExcept(ctx, s.roomID, domain.NewTypingIndicator(s.identity.UserID, s.info, true), s.identity.UserID)
}

func (s *Session) handleTypingStop(ctx context.Context) {
	s.deps.Presence.UnsetTyping(ctx, s.roomID, s.identity.UserID)
	s.deps.Hub.BroadcastExcept(ctx, s.roomID, domain.NewTypingIndicator(s.identity.UserID, nil, false), s.identity.UserID)
}

func (s *Session) handlePing(context.Context) {
	s.client.Send(domain.NewPong())
}
