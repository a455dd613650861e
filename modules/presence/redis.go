package presence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

// Redis key layout, shared with the registry module's indexes.
const (
	keyOnlineBitmap = "users:online:bitmap"
	keyOnlineSet    = "users:online:set"
	keyMulticast    = "users:multicast"
	keyUserStatus   = "user:status:%s"
)

func userStatusKey(userID string) string {
	return fmt.Sprintf(keyUserStatus, userID)
}

// RedisStore is the KV-backed presence store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a presence store on an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// bit returns the bitmap offset for a user id. Only numeric ids occupy the
// bitmap; others are tracked by the sets alone.
func bit(userID string) (int64, bool) {
	n, err := strconv.ParseInt(userID, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *RedisStore) SetOnline(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	if offset, ok := bit(userID); ok {
		pipe.SetBit(ctx, keyOnlineBitmap, offset, 1)
	}
	pipe.SAdd(ctx, keyOnlineSet, userID)
	pipe.SAdd(ctx, keyMulticast, userID)
	pipe.Set(ctx, userStatusKey(userID), chat.KVStatusAvailable, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user %s online: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) SetInvisible(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	if offset, ok := bit(userID); ok {
		pipe.SetBit(ctx, keyOnlineBitmap, offset, 0)
	}
	pipe.SRem(ctx, keyOnlineSet, userID)
	pipe.SAdd(ctx, keyMulticast, userID)
	pipe.Set(ctx, userStatusKey(userID), chat.KVStatusInvisible, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user %s invisible: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) SetOffline(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	if offset, ok := bit(userID); ok {
		pipe.SetBit(ctx, keyOnlineBitmap, offset, 0)
	}
	pipe.SRem(ctx, keyOnlineSet, userID)
	pipe.SRem(ctx, keyMulticast, userID)
	pipe.Set(ctx, userStatusKey(userID), chat.KVStatusUnavailable, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user %s offline: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) Status(ctx context.Context, userID string) (chat.Status, error) {
	val, err := s.client.Get(ctx, userStatusKey(userID)).Result()
	if err == redis.Nil {
		return chat.StatusUnavailable, nil
	}
	if err != nil {
		return chat.StatusUnavailable, fmt.Errorf("failed to read status for user %s: %w", userID, err)
	}
	switch val {
	case chat.KVStatusAvailable:
		return chat.StatusAvailable, nil
	case chat.KVStatusInvisible:
		return chat.StatusInvisible, nil
	default:
		return chat.StatusUnavailable, nil
	}
}

func (s *RedisStore) OnlineCount(ctx context.Context) (int64, error) {
	count, err := s.client.BitCount(ctx, keyOnlineBitmap, nil).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count online bitmap: %w", err)
	}
	return count, nil
}

func (s *RedisStore) InMulticast(ctx context.Context, userID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, keyMulticast, userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check multicast membership for user %s: %w", userID, err)
	}
	return ok, nil
}

func (s *RedisStore) MulticastCount(ctx context.Context) (int64, error) {
	count, err := s.client.SCard(ctx, keyMulticast).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count multicast set: %w", err)
	}
	return count, nil
}

var _ Store = (*RedisStore)(nil)
