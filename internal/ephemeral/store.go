package ephemeral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	PresenceWindow     = 5 * time.Minute
	TypingWindow       = 30 * time.Second
	MessageCacheTTL    = time.Hour
	RecentMessageLimit = 100
	MessageCountTTL    = 24 * time.Hour
	UserInfoTTL        = time.Hour

	updateAttempts = 3
)

// Redis key layout:
// room:{room_id}:online_users          HASH<user_id, last_seen>   expires 5m
// room:{room_id}:typing_users          HASH<user_id, last_seen>   expires 30s
// room:{room_id}:messages:recent       LIST<message json>         newest first, 100 max, expires 1h
// room:{room_id}:messages:complete     STRING "1"                 set while the list holds the whole history
// room:{room_id}:message:{message_id}  STRING<message json>       expires 1h
// room:{room_id}:stats:message_count   STRING<int>                expires 24h after last increment
// rate_limit:{user_id}:{action}        STRING<int>                expires after the window
// user:{user_id}:info                  STRING<user info json>     expires 1h

func onlineKey(roomID string) string {
	return fmt.Sprintf("room:%s:online_users", roomID)
}

func typingKey(roomID string) string {
	return fmt.Sprintf("room:%s:typing_users", roomID)
}

func recentKey(roomID string) string {
	return fmt.Sprintf("room:%s:messages:recent", roomID)
}

func completeKey(roomID string) string {
	return fmt.Sprintf("room:%s:messages:complete", roomID)
}

func messageKey(roomID string, messageID uuid.UUID) string {
	return fmt.Sprintf("room:%s:message:%s", roomID, messageID)
}

func messageCountKey(roomID string) string {
	return fmt.Sprintf("room:%s:stats:message_count", roomID)
}

func rateLimitKey(userID, action string) string {
	return fmt.Sprintf("rate_limit:%s:%s", userID, action)
}

func userInfoKey(userID string) string {
	return fmt.Sprintf("user:%s:info", userID)
}

// roomPattern matches every key in a room's namespace. Glob metacharacters in
// the room id are escaped so one room never matches another.
func roomPattern(roomID string) string {
	var b strings.Builder
	for _, r := range roomID {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return "room:" + b.String() + ":*"
}

// Store holds presence, typing, recent-message caches and counters in Redis.
//
// Nothing here is authoritative. Every method swallows store failures, logs
// them and returns a safe fallback so the chat keeps working without Redis.
type Store struct {
	client *redis.Client
	now    func() time.Time
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, now: time.Now}
}

// Ping reports whether Redis is reachable. Used by readiness checks only.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) degrade(ctx context.Context, op, roomID string, err error) {
	observability.EphemeralStoreErrors.WithLabelValues(op).Inc()
	observability.FromContext(ctx).Error("ephemeral store operation failed",
		"operation", op,
		"room_id", roomID,
		"error", err,
	)
}

// SetOnline records a presence heartbeat for the user.
func (s *Store) SetOnline(ctx context.Context, roomID, userID string) bool {
	return s.touch(ctx, "set_online", onlineKey(roomID), roomID, userID, PresenceWindow)
}

// SetOffline removes the user's presence and any typing entry with it.
func (s *Store) SetOffline(ctx context.Context, roomID, userID string) bool {
	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, onlineKey(roomID), userID)
	pipe.HDel(ctx, typingKey(roomID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.degrade(ctx, "set_offline", roomID, err)
		return false
	}
	return true
}

// ListOnline returns users seen within PresenceWindow, dropping stale entries.
func (s *Store) ListOnline(ctx context.Context, roomID string) []string {
	return s.fresh(ctx, "list_online", onlineKey(roomID), roomID, PresenceWindow)
}

func (s *Store) SetTyping(ctx context.Context, roomID, userID string) bool {
	return s.touch(ctx, "set_typing", typingKey(roomID), roomID, userID, TypingWindow)
}

func (s *Store) UnsetTyping(ctx context.Context, roomID, userID string) bool {
	if err := s.client.HDel(ctx, typingKey(roomID), userID).Err(); err != nil {
		s.degrade(ctx, "unset_typing", roomID, err)
		return false
	}
	return true
}

// ListTyping returns users typing within TypingWindow, dropping stale entries.
func (s *Store) ListTyping(ctx context.Context, roomID string) []string {
	return s.fresh(ctx, "list_typing", typingKey(roomID), roomID, TypingWindow)
}

// touch upserts a timestamped hash field and refreshes the whole hash's expiry.
func (s *Store) touch(ctx context.Context, op, key, roomID, userID string, ttl time.Duration) bool {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, userID, s.now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.degrade(ctx, op, roomID, err)
		return false
	}
	return true
}

// fresh reads a timestamped hash and deletes every field older than window or
// not parseable as a timestamp. There is no background sweep; reads clean up.
func (s *Store) fresh(ctx context.Context, op, key, roomID string, window time.Duration) []string {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		s.degrade(ctx, op, roomID, err)
		return []string{}
	}

	cutoff := s.now().Add(-window)
	users := make([]string, 0, len(fields))
	var stale []string
	for userID, raw := range fields {
		seen, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil || seen.Before(cutoff) {
			stale = append(stale, userID)
			continue
		}
		users = append(users, userID)
	}

	if len(stale) > 0 {
		if err := s.client.HDel(ctx, key, stale...).Err(); err != nil {
			s.degrade(ctx, op+"_evict", roomID, err)
		}
	}

	sort.Strings(users)
	return users
}

// CacheMessage stores the message under its own key and pushes it to the
// front of the room's recent list.
func (s *Store) CacheMessage(ctx context.Context, msg *domain.Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		s.degrade(ctx, "cache_message", msg.RoomID, err)
		return false
	}

	list, complete := recentKey(msg.RoomID), completeKey(msg.RoomID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, messageKey(msg.RoomID, msg.ID), data, MessageCacheTTL)
	length := pipe.LPush(ctx, list, data)
	pipe.LTrim(ctx, list, 0, RecentMessageLimit-1)
	pipe.Expire(ctx, list, MessageCacheTTL)
	pipe.Expire(ctx, complete, MessageCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.degrade(ctx, "cache_message", msg.RoomID, err)
		return false
	}

	// Trimming dropped history, so the list no longer covers the whole room.
	if length.Val() > RecentMessageLimit {
		if err := s.client.Del(ctx, complete).Err(); err != nil {
			s.degrade(ctx, "cache_message", msg.RoomID, err)
			return false
		}
	}
	return true
}

// PrimeMessages replaces the recent list with msgs, which must be newest first.
// complete marks msgs as the room's entire history, which lets short rooms be
// served from the cache without a full page.
func (s *Store) PrimeMessages(ctx context.Context, roomID string, msgs []*domain.Message, complete bool) bool {
	if len(msgs) > RecentMessageLimit {
		msgs = msgs[:RecentMessageLimit]
		complete = false
	}

	list := recentKey(roomID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, list, completeKey(roomID))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			s.degrade(ctx, "prime_messages", roomID, err)
			return false
		}
		pipe.RPush(ctx, list, data)
		pipe.Set(ctx, messageKey(roomID, msg.ID), data, MessageCacheTTL)
	}
	pipe.Expire(ctx, list, MessageCacheTTL)
	if complete && len(msgs) > 0 {
		pipe.Set(ctx, completeKey(roomID), "1", MessageCacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.degrade(ctx, "prime_messages", roomID, err)
		return false
	}
	return true
}

// GetCachedMessages returns up to limit cached messages, newest first. A miss
// is an empty slice.
func (s *Store) GetCachedMessages(ctx context.Context, roomID string, limit int) []*domain.Message {
	if limit <= 0 {
		return []*domain.Message{}
	}
	if limit > RecentMessageLimit {
		limit = RecentMessageLimit
	}

	raw, err := s.client.LRange(ctx, recentKey(roomID), 0, int64(limit-1)).Result()
	if err != nil {
		s.degrade(ctx, "get_cached_messages", roomID, err)
		return []*domain.Message{}
	}
	return decodeMessages(raw)
}

// GetCachedPage serves a first page from the recent list. ok is false when
// the list cannot answer: fewer than limit entries and no proof that they are
// the room's whole history. hasMore is a guess when the list is partial.
func (s *Store) GetCachedPage(ctx context.Context, roomID string, limit int) (msgs []*domain.Message, hasMore, ok bool) {
	if limit <= 0 || limit > RecentMessageLimit {
		return nil, false, false
	}

	// One extra entry tells a complete list whether older messages exist.
	span := min(limit+1, RecentMessageLimit)
	pipe := s.client.Pipeline()
	rangeCmd := pipe.LRange(ctx, recentKey(roomID), 0, int64(span-1))
	existsCmd := pipe.Exists(ctx, completeKey(roomID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.degrade(ctx, "get_cached_page", roomID, err)
		return nil, false, false
	}

	msgs = decodeMessages(rangeCmd.Val())
	complete := existsCmd.Val() == 1
	switch {
	case len(msgs) > limit:
		return msgs[:limit], true, true
	case len(msgs) == limit:
		return msgs, !complete, true
	case complete && len(msgs) > 0:
		return msgs, false, true
	default:
		return nil, false, false
	}
}

func decodeMessages(raw []string) []*domain.Message {
	msgs := make([]*domain.Message, 0, len(raw))
	for _, item := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		msgs = append(msgs, &msg)
	}
	return msgs
}

// UpdateCachedMessage rewrites a cached message in place, keeping its
// position in the recent list. Messages that are not cached stay uncached.
// If the rewrite cannot be applied the list is dropped so the next first
// page reloads from the message store.
func (s *Store) UpdateCachedMessage(ctx context.Context, msg *domain.Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		s.degrade(ctx, "update_cached_message", msg.RoomID, err)
		return false
	}

	list := recentKey(msg.RoomID)
	rewrite := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, list, 0, -1).Result()
		if err != nil {
			return err
		}
		index := indexOf(raw, msg.ID)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetXX(ctx, messageKey(msg.RoomID, msg.ID), data, MessageCacheTTL)
			if index >= 0 {
				pipe.LSet(ctx, list, int64(index), data)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < updateAttempts; attempt++ {
		err = s.client.Watch(ctx, rewrite, list)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err == nil {
		return true
	}

	s.degrade(ctx, "update_cached_message", msg.RoomID, err)
	if err := s.client.Del(ctx, list, completeKey(msg.RoomID)).Err(); err != nil {
		s.degrade(ctx, "update_cached_message_drop", msg.RoomID, err)
	}
	return false
}

// indexOf returns the list position of the cached message with id, or -1.
func indexOf(raw []string, id uuid.UUID) int {
	for i, item := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err == nil && msg.ID == id {
			return i
		}
	}
	return -1
}

// InvalidateMessage drops a deleted message from the cache, keeping the order
// of the rest of the recent list.
//
// The read-rewrite is not atomic against a concurrent CacheMessage on the same
// room; a lost push is repaired by the next store read that primes the list.
func (s *Store) InvalidateMessage(ctx context.Context, roomID string, messageID uuid.UUID) bool {
	list := recentKey(roomID)

	if err := s.client.Del(ctx, messageKey(roomID, messageID)).Err(); err != nil {
		s.degrade(ctx, "invalidate_message", roomID, err)
		return false
	}

	raw, err := s.client.LRange(ctx, list, 0, -1).Result()
	if err != nil {
		s.degrade(ctx, "invalidate_message", roomID, err)
		return false
	}

	survivors := make([]any, 0, len(raw))
	for _, item := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err == nil && msg.ID == messageID {
			continue
		}
		survivors = append(survivors, item)
	}
	if len(survivors) == len(raw) {
		return true
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, list)
	if len(survivors) > 0 {
		pipe.RPush(ctx, list, survivors...)
		pipe.Expire(ctx, list, MessageCacheTTL)
		pipe.Expire(ctx, completeKey(roomID), MessageCacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.degrade(ctx, "invalidate_message", roomID, err)
		return false
	}
	return true
}

// IncrementMessageCount bumps the room's message counter and slides its expiry.
// Returns 0 when the store is unavailable.
func (s *Store) IncrementMessageCount(ctx context.Context, roomID string) int64 {
	key := messageCountKey(roomID)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, MessageCountTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.degrade(ctx, "increment_message_count", roomID, err)
		return 0
	}
	return incr.Val()
}

// GetRoomStats reads the counter, presence and typing sets independently.
func (s *Store) GetRoomStats(ctx context.Context, roomID string) domain.RoomStats {
	var stats domain.RoomStats

	total, err := s.client.Get(ctx, messageCountKey(roomID)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		s.degrade(ctx, "get_room_stats", roomID, err)
	default:
		stats.TotalMessages = total
	}

	stats.OnlineCount = int64(len(s.ListOnline(ctx, roomID)))
	stats.TypingCount = int64(len(s.ListTyping(ctx, roomID)))
	return stats
}

// CleanupRoom deletes every key in the room's namespace.
func (s *Store) CleanupRoom(ctx context.Context, roomID string) bool {
	iter := s.client.Scan(ctx, 0, roomPattern(roomID), 100).Iterator()
	batch := make([]string, 0, 100)
	deleted := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				s.degrade(ctx, "cleanup_room", roomID, err)
				return false
			}
		}
	}
	if err := iter.Err(); err != nil {
		s.degrade(ctx, "cleanup_room", roomID, err)
		return false
	}
	if err := flush(); err != nil {
		s.degrade(ctx, "cleanup_room", roomID, err)
		return false
	}

	observability.FromContext(ctx).Info("room ephemeral state cleaned up",
		"room_id", roomID,
		"keys_deleted", deleted,
	)
	return true
}

// CheckRateLimit is a fixed-window counter. The window starts at the first
// action and the counter expires with it. Store failures allow the action.
func (s *Store) CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) bool {
	key := rateLimitKey(userID, action)

	pipe := s.client.TxPipeline()
	pipe.SetNX(ctx, key, 0, window)
	count := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		s.degrade(ctx, "check_rate_limit", "", err)
		return true
	}
	return count.Val() <= int64(limit)
}

// GetUserInfo returns cached sender display info.
func (s *Store) GetUserInfo(ctx context.Context, userID string) (*domain.UserInfo, bool) {
	data, err := s.client.Get(ctx, userInfoKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		s.degrade(ctx, "get_user_info", "", err)
		return nil, false
	}

	var info domain.UserInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, false
	}
	return &info, true
}

func (s *Store) SetUserInfo(ctx context.Context, info *domain.UserInfo) bool {
	data, err := json.Marshal(info)
	if err != nil {
		return false
	}
	if err := s.client.Set(ctx, userInfoKey(info.UserID), data, UserInfoTTL).Err(); err != nil {
		s.degrade(ctx, "set_user_info", "", err)
		return false
	}
	return true
}
