package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	hub      *Hub
	presence *testutil.MockPresence
	members  *testutil.MockMembershipRepository
	ids      *testutil.MockIdentityResolver
}

func newSessionFixture() *sessionFixture {
	f := &sessionFixture{
		hub:      NewHub(),
		presence: testutil.NewMockPresence(),
		members:  testutil.NewMockMembershipRepository(),
		ids:      testutil.NewMockIdentityResolver(),
	}
	f.ids.Grant("tok-alice", "alice").Grant("tok-bob", "bob")
	f.members.Add("r1", "alice", "bob")
	return f
}

func (f *sessionFixture) deps() SessionDeps {
	return SessionDeps{
		Hub:        f.hub,
		Identity:   f.ids,
		Membership: f.members,
		Presence:   f.presence,
		Users:      testutil.PlaceholderSenders,
	}
}

// joined returns a session that passed authentication and membership.
func (f *sessionFixture) joined(t *testing.T, token string) *Session {
	t.Helper()
	ctx := context.Background()
	s := NewSession(ctx, f.deps(), "r1")
	require.NoError(t, s.Authenticate(ctx, token))
	require.NoError(t, s.Join(ctx))
	require.Equal(t, StateJoined, s.State())
	return s
}

// active returns a session with a live fake connection, its
// connection_established frame already consumed.
func (f *sessionFixture) active(t *testing.T, token string) (*Session, *fakeConn) {
	t.Helper()
	s := f.joined(t, token)
	conn := newFakeConn()
	require.NoError(t, s.Activate(conn))
	require.Equal(t, StateActive, s.State())

	ev := conn.next(t)
	require.Equal(t, "connection_established", ev["type"])
	require.Equal(t, "r1", ev["room_id"])
	require.Equal(t, s.Identity().UserID, ev["user_id"])
	return s, conn
}

func TestSession_AnonymousIsRejected(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()

	for _, token := range []string{"", "garbage"} {
		s := NewSession(ctx, f.deps(), "r1")
		err := s.Authenticate(ctx, token)

		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Equal(t, StateClosed, s.State())
		assert.ErrorIs(t, s.Join(ctx), ErrInvalidTransition)
	}
	assert.Empty(t, f.presence.Ops())
	assert.Equal(t, 0, f.hub.RoomSize("r1"))
}

func TestSession_NonMemberIsRejected(t *testing.T) {
	f := newSessionFixture()
	f.ids.Grant("tok-mallory", "mallory")
	ctx := context.Background()

	s := NewSession(ctx, f.deps(), "r1")
	require.NoError(t, s.Authenticate(ctx, "tok-mallory"))
	assert.Equal(t, StateAuthenticated, s.State())

	err := s.Join(ctx)
	assert.ErrorIs(t, err, domain.ErrNotMember)
	assert.Equal(t, StateClosed, s.State())
	assert.Empty(t, f.presence.Ops())
	assert.Equal(t, 0, f.hub.RoomSize("r1"))
}

func TestSession_MembershipErrorIsTreatedAsNonMember(t *testing.T) {
	f := newSessionFixture()
	f.members.IsMemberFunc = func(context.Context, string, string) (bool, error) {
		return false, testutil.ErrMockUnavailable
	}
	ctx := context.Background()

	s := NewSession(ctx, f.deps(), "r1")
	require.NoError(t, s.Authenticate(ctx, "tok-alice"))

	assert.ErrorIs(t, s.Join(ctx), domain.ErrNotMember)
	assert.Equal(t, StateClosed, s.State())
	assert.Nil(t, s.Client())
}

func TestSession_JoinMarksOnline(t *testing.T) {
	f := newSessionFixture()
	s := f.joined(t, "tok-alice")

	assert.Equal(t, "alice", s.Identity().UserID)
	assert.True(t, f.presence.IsOnline("r1", "alice"))
	assert.Equal(t, 1, f.hub.RoomSize("r1"))
	assert.Equal(t, []string{"set_online"}, f.presence.Ops())
}

func TestSession_ActivateRequiresJoined(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	s := NewSession(ctx, f.deps(), "r1")
	require.NoError(t, s.Authenticate(ctx, "tok-alice"))

	conn := newFakeConn()
	assert.ErrorIs(t, s.Activate(conn), ErrInvalidTransition)
	assert.True(t, conn.isClosed())
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestSession_Lifecycle(t *testing.T) {
	f := newSessionFixture()

	alice, aliceConn := f.active(t, "tok-alice")
	defer alice.Close()
	aliceConn.quiet(t, 50*time.Millisecond)

	bob, bobConn := f.active(t, "tok-bob")

	joined := aliceConn.next(t)
	assert.Equal(t, "user_joined", joined["type"])
	assert.Equal(t, "bob", joined["user_id"])
	assert.Equal(t, "Unknown User", joined["user_info"].(map[string]any)["display_name"])

	t.Run("typing is relayed to others only", func(t *testing.T) {
		bobConn.sendJSON(t, map[string]string{"type": "typing_start"})
		ev := aliceConn.next(t)
		assert.Equal(t, "typing_indicator", ev["type"])
		assert.Equal(t, "bob", ev["user_id"])
		assert.Equal(t, true, ev["is_typing"])
		assert.NotNil(t, ev["user_info"])
		assert.True(t, f.presence.IsTyping("r1", "bob"))

		bobConn.sendJSON(t, map[string]string{"type": "typing_stop"})
		ev = aliceConn.next(t)
		assert.Equal(t, false, ev["is_typing"])
		assert.Nil(t, ev["user_info"])
		assert.False(t, f.presence.IsTyping("r1", "bob"))

		bobConn.quiet(t, 50*time.Millisecond)
	})

	t.Run("ping answers the sender", func(t *testing.T) {
		bobConn.sendJSON(t, map[string]string{"type": "ping"})
		assert.Equal(t, "pong", bobConn.next(t)["type"])
		aliceConn.quiet(t, 50*time.Millisecond)
	})

	t.Run("malformed frames keep the connection open", func(t *testing.T) {
		bobConn.in <- []byte("not json")
		ev := bobConn.next(t)
		assert.Equal(t, "error", ev["type"])
		assert.Equal(t, "Invalid JSON format", ev["message"])

		bobConn.sendJSON(t, map[string]string{"type": "dance"})
		bobConn.sendJSON(t, map[string]string{"type": "ping"})
		assert.Equal(t, "pong", bobConn.next(t)["type"])
		assert.Equal(t, StateActive, bob.State())
	})

	t.Run("hang up tears down and announces", func(t *testing.T) {
		bobConn.hangUp()

		left := aliceConn.next(t)
		assert.Equal(t, "user_left", left["type"])
		assert.Equal(t, "bob", left["user_id"])

		assert.Eventually(t, func() bool { return bobConn.isClosed() }, time.Second, 10*time.Millisecond)
		assert.Equal(t, StateClosed, bob.State())
		assert.False(t, f.presence.IsOnline("r1", "bob"))
		assert.True(t, f.presence.IsOnline("r1", "alice"))
		assert.Equal(t, 1, f.hub.RoomSize("r1"))
	})
}

func TestSession_CloseBeforeActivateDoesNotAnnounce(t *testing.T) {
	f := newSessionFixture()
	observer := NewClient(context.Background(), "bob", "r1")
	f.hub.Join(observer)

	s := f.joined(t, "tok-alice")
	s.Close()
	s.Close()

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, []string{"set_online", "set_offline"}, f.presence.Ops())
	assert.Equal(t, 1, f.hub.RoomSize("r1"))
	assert.Empty(t, observer.send)
}

func TestSession_CloseBeforeJoinIsNoop(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	s := NewSession(ctx, f.deps(), "r1")
	require.NoError(t, s.Authenticate(ctx, "tok-alice"))

	s.Close()

	assert.Equal(t, StateClosed, s.State())
	assert.Empty(t, f.presence.Ops())
}

type panickingPresence struct {
	*testutil.MockPresence
}

func (panickingPresence) SetOffline(context.Context, string, string) bool {
	panic(errors.New("redis client exploded"))
}

func TestSession_TeardownSurvivesFailingStep(t *testing.T) {
	f := newSessionFixture()
	observer := NewClient(context.Background(), "bob", "r1")
	f.hub.Join(observer)

	deps := f.deps()
	deps.Presence = panickingPresence{f.presence}
	ctx := context.Background()
	s := NewSession(ctx, deps, "r1")
	require.NoError(t, s.Authenticate(ctx, "tok-alice"))
	require.NoError(t, s.Join(ctx))
	conn := newFakeConn()
	require.NoError(t, s.Activate(conn))
	assert.Equal(t, domain.EventUserJoined, drain(t, observer).eventType)

	require.NotPanics(t, s.Close)

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, f.hub.RoomSize("r1"))
	assert.Equal(t, domain.EventUserLeft, drain(t, observer).eventType)
	assert.True(t, conn.isClosed())
}

func TestSession_HeartbeatRefreshesPresence(t *testing.T) {
	f := newSessionFixture()
	s := f.joined(t, "tok-alice")

	s.heartbeat()
	s.heartbeat()

	assert.Equal(t, []string{"set_online", "set_online", "set_online"}, f.presence.Ops())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
