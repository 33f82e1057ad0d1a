// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the galileo-chat application.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"galileo-chat/internal/domain"
)

// ErrMockUnavailable simulates a backing store outage
var ErrMockUnavailable = errors.New("mock: store unavailable")

// MockMessageRepository implements domain.MessageRepository for testing
type MockMessageRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	AppendFunc    func(ctx context.Context, message *domain.Message) error
	QueryRoomFunc func(ctx context.Context, roomID string, limit int, before *time.Time) ([]*domain.Message, error)

	// In-memory storage, newest first per room
	Messages   map[string][]*domain.Message
	QueryCalls int
}

// NewMockMessageRepository creates a new MockMessageRepository with initialized maps
func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{
		Messages: make(map[string][]*domain.Message),
	}
}

func (m *MockMessageRepository) Append(ctx context.Context, message *domain.Message) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Messages == nil {
		m.Messages = make(map[string][]*domain.Message)
	}
	msgs := append(m.Messages[message.RoomID], message)
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID.String() < msgs[j].ID.String()
		}
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
	m.Messages[message.RoomID] = msgs
	return nil
}

func (m *MockMessageRepository) QueryRoom(ctx context.Context, roomID string, limit int, before *time.Time) ([]*domain.Message, error) {
	m.mu.Lock()
	m.QueryCalls++
	m.mu.Unlock()

	if m.QueryRoomFunc != nil {
		return m.QueryRoomFunc(ctx, roomID, limit, before)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Message, 0, limit+1)
	for _, msg := range m.Messages[roomID] {
		if before != nil && !msg.CreatedAt.Before(*before) {
			continue
		}
		copied := *msg
		copied.UserInfo = nil
		result = append(result, &copied)
		if len(result) == limit+1 {
			break
		}
	}
	return result, nil
}

// Queries returns how many times QueryRoom was called
func (m *MockMessageRepository) Queries() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.QueryCalls
}

// MockMembershipRepository implements domain.MembershipRepository for testing
type MockMembershipRepository struct {
	mu sync.RWMutex

	// Function overrides
	IsMemberFunc  func(ctx context.Context, roomID, userID string) (bool, error)
	AddMemberFunc func(ctx context.Context, membership *domain.Membership) error

	// In-memory storage keyed by room then user
	Members map[string]map[string]*domain.Membership
}

// NewMockMembershipRepository creates a new MockMembershipRepository with initialized maps
func NewMockMembershipRepository() *MockMembershipRepository {
	return &MockMembershipRepository{
		Members: make(map[string]map[string]*domain.Membership),
	}
}

// Add is a test shortcut for seeding a membership
func (m *MockMembershipRepository) Add(roomID string, userIDs ...string) {
	for _, userID := range userIDs {
		_ = m.AddMember(context.Background(), &domain.Membership{RoomID: roomID, UserID: userID})
	}
}

func (m *MockMembershipRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	if m.IsMemberFunc != nil {
		return m.IsMemberFunc(ctx, roomID, userID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.Members[roomID][userID]
	return ok, nil
}

// Get returns the stored membership, or nil
func (m *MockMembershipRepository) Get(roomID, userID string) *domain.Membership {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.Members[roomID][userID]
}

func (m *MockMembershipRepository) AddMember(ctx context.Context, membership *domain.Membership) error {
	if m.AddMemberFunc != nil {
		return m.AddMemberFunc(ctx, membership)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Members == nil {
		m.Members = make(map[string]map[string]*domain.Membership)
	}
	room, ok := m.Members[membership.RoomID]
	if !ok {
		room = make(map[string]*domain.Membership)
		m.Members[membership.RoomID] = room
	}
	if _, exists := room[membership.UserID]; exists {
		return domain.ErrAlreadyMember
	}
	if membership.CreatedAt.IsZero() {
		membership.CreatedAt = time.Now()
	}
	room[membership.UserID] = membership
	return nil
}

// MockUserDirectory implements domain.UserDirectory for testing
type MockUserDirectory struct {
	mu sync.RWMutex

	GetByIDFunc func(ctx context.Context, id string) (*domain.User, error)

	Users map[string]*domain.User
	Calls int
}

// NewMockUserDirectory creates a directory seeded with the given users
func NewMockUserDirectory(users ...*domain.User) *MockUserDirectory {
	m := &MockUserDirectory{Users: make(map[string]*domain.User)}
	for _, u := range users {
		m.Users[u.ID] = u
	}
	return m
}

func (m *MockUserDirectory) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()

	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

// MockIdentityResolver implements domain.IdentityResolver with a fixed token table
type MockIdentityResolver struct {
	Tokens map[string]domain.Identity
}

// NewMockIdentityResolver creates a resolver with no known tokens
func NewMockIdentityResolver() *MockIdentityResolver {
	return &MockIdentityResolver{Tokens: make(map[string]domain.Identity)}
}

// Grant registers token as resolving to userID
func (m *MockIdentityResolver) Grant(token, userID string) *MockIdentityResolver {
	m.Tokens[token] = domain.Identity{UserID: userID, Email: userID + "@example.com"}
	return m
}

func (m *MockIdentityResolver) Resolve(_ context.Context, token string) domain.Identity {
	return m.Tokens[token]
}

// PresenceCall records one call made to MockPresence
type PresenceCall struct {
	Op     string
	RoomID string
	UserID string
}

// MockPresence records presence and typing calls in memory
type MockPresence struct {
	mu sync.Mutex

	Calls  []PresenceCall
	Online map[string]map[string]bool
	Typing map[string]map[string]bool
}

func NewMockPresence() *MockPresence {
	return &MockPresence{
		Online: make(map[string]map[string]bool),
		Typing: make(map[string]map[string]bool),
	}
}

func (m *MockPresence) record(op, roomID, userID string) {
	m.Calls = append(m.Calls, PresenceCall{Op: op, RoomID: roomID, UserID: userID})
}

func set(sets map[string]map[string]bool, roomID, userID string, on bool) {
	if sets[roomID] == nil {
		sets[roomID] = make(map[string]bool)
	}
	if on {
		sets[roomID][userID] = true
	} else {
		delete(sets[roomID], userID)
	}
}

func (m *MockPresence) SetOnline(_ context.Context, roomID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("set_online", roomID, userID)
	set(m.Online, roomID, userID, true)
	return true
}

func (m *MockPresence) SetOffline(_ context.Context, roomID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("set_offline", roomID, userID)
	set(m.Online, roomID, userID, false)
	set(m.Typing, roomID, userID, false)
	return true
}

func (m *MockPresence) SetTyping(_ context.Context, roomID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("set_typing", roomID, userID)
	set(m.Typing, roomID, userID, true)
	return true
}

func (m *MockPresence) UnsetTyping(_ context.Context, roomID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("unset_typing", roomID, userID)
	set(m.Typing, roomID, userID, false)
	return true
}

// IsOnline reports the recorded presence of a user
func (m *MockPresence) IsOnline(roomID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Online[roomID][userID]
}

// IsTyping reports the recorded typing state of a user
func (m *MockPresence) IsTyping(roomID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Typing[roomID][userID]
}

// Ops returns the recorded operation names in call order
func (m *MockPresence) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		ops[i] = c.Op
	}
	return ops
}

// SenderLookupFunc adapts a function to the sender info lookup interface
type SenderLookupFunc func(ctx context.Context, userID string) *domain.UserInfo

func (f SenderLookupFunc) SenderInfo(ctx context.Context, userID string) *domain.UserInfo {
	return f(ctx, userID)
}

// PlaceholderSenders resolves every user to the unknown-user placeholder
var PlaceholderSenders = SenderLookupFunc(func(_ context.Context, userID string) *domain.UserInfo {
	return domain.UnknownUserInfo(userID)
})

// BroadcastCall records one broadcast made through MockBroadcaster
type BroadcastCall struct {
	RoomID  string
	Event   domain.Event
	Exclude string
}

// MockBroadcaster records broadcasts for assertions
type MockBroadcaster struct {
	mu    sync.Mutex
	Calls []BroadcastCall
}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) Broadcast(_ context.Context, roomID string, event domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, BroadcastCall{RoomID: roomID, Event: event})
}

func (m *MockBroadcaster) BroadcastExcept(_ context.Context, roomID string, event domain.Event, exclude string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, BroadcastCall{RoomID: roomID, Event: event, Exclude: exclude})
}

// Events returns the broadcast event types in call order
func (m *MockBroadcaster) Events() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]domain.EventType, len(m.Calls))
	for i, c := range m.Calls {
		types[i] = c.Event.EventType()
	}
	return types
}

// Last returns the most recent broadcast, or nil
func (m *MockBroadcaster) Last() *BroadcastCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	c := m.Calls[len(m.Calls)-1]
	return &c
}
