package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

// Redis key layout for the KV-backed message log.
const (
	keyRoomHistory = "room:history:%s" // list of json rows, newest first
	keyMessageRoom = "msg:target:%s"   // string: message id -> target id
	keyUserAcks    = "ack:user:%s"     // hash: message id -> status
	keyStatusAcks  = "ack:user:%s:status:%d"
)

// RedisStore keeps history in a per-target ring, bounded by maxHistory when
// positive. It trades the column store's unbounded retention and moderation
// queries for zero extra infrastructure; rows pushed out of the ring are
// gone.
//
// The push and the trim are separate commands, so a concurrent reader can
// observe a briefly over-long list.
type RedisStore struct {
	client     *redis.Client
	maxHistory int
}

func NewRedisStore(client *redis.Client, maxHistory int) *RedisStore {
	return &RedisStore{client: client, maxHistory: maxHistory}
}

func (s *RedisStore) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func historyKey(targetID string) string {
	return fmt.Sprintf(keyRoomHistory, targetID)
}

func (s *RedisStore) StoreMessage(ctx context.Context, msg chat.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}

	if err := s.client.LPush(ctx, historyKey(msg.TargetID), raw).Err(); err != nil {
		return fmt.Errorf("failed to store message %s: %w", msg.ID, err)
	}
	if s.maxHistory > 0 {
		if err := s.client.LTrim(ctx, historyKey(msg.TargetID), 0, int64(s.maxHistory-1)).Err(); err != nil {
			return fmt.Errorf("failed to trim history for %s: %w", msg.TargetID, err)
		}
	}
	if err := s.client.Set(ctx, fmt.Sprintf(keyMessageRoom, msg.ID), msg.TargetID, 0).Err(); err != nil {
		return fmt.Errorf("failed to index message %s: %w", msg.ID, err)
	}
	return nil
}

// rows reads and decodes the whole ring for a target, newest first.
func (s *RedisStore) rows(ctx context.Context, targetID string) ([]chat.Message, error) {
	raw, err := s.client.LRange(ctx, historyKey(targetID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", targetID, err)
	}

	out := make([]chat.Message, 0, len(raw))
	for _, item := range raw {
		var msg chat.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode history row for %s: %w", targetID, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisStore) targetFor(ctx context.Context, messageID string) (string, error) {
	targetID, err := s.client.Get(ctx, fmt.Sprintf(keyMessageRoom, messageID)).Result()
	if err == redis.Nil {
		return "", ErrNoSuchMessage
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve message %s: %w", messageID, err)
	}
	return targetID, nil
}

func (s *RedisStore) GetMessage(ctx context.Context, messageID string) (chat.Message, error) {
	targetID, err := s.targetFor(ctx, messageID)
	if err != nil {
		return chat.Message{}, err
	}

	rows, err := s.rows(ctx, targetID)
	if err != nil {
		return chat.Message{}, err
	}
	for _, msg := range rows {
		if msg.ID == messageID {
			return msg, nil
		}
	}
	// pushed out of the ring
	return chat.Message{}, ErrNoSuchMessage
}

func (s *RedisStore) Messages(ctx context.Context, targetID string) ([]chat.Message, error) {
	return s.rows(ctx, targetID)
}

func (s *RedisStore) HistoryLatest(ctx context.Context, targetID string, limit int) ([]chat.Message, error) {
	rows, err := s.rows(ctx, targetID)
	if err != nil {
		return nil, err
	}

	out := make([]chat.Message, 0, len(rows))
	for _, msg := range rows {
		if msg.Deleted {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *RedisStore) HistorySince(ctx context.Context, targetID string, since int64) ([]chat.Message, error) {
	return s.filter(ctx, targetID, func(m chat.Message) bool { return m.Timestamp >= since })
}

func (s *RedisStore) HistoryBetween(ctx context.Context, targetID string, from, to int64) ([]chat.Message, error) {
	return s.filter(ctx, targetID, func(m chat.Message) bool {
		return m.Timestamp >= from && m.Timestamp <= to
	})
}

func (s *RedisStore) filter(ctx context.Context, targetID string, keep func(chat.Message) bool) ([]chat.Message, error) {
	rows, err := s.rows(ctx, targetID)
	if err != nil {
		return nil, err
	}

	out := make([]chat.Message, 0, len(rows))
	for _, msg := range rows {
		if keep(msg) {
			out = append(out, msg)
		}
	}
	return out, nil
}

// MessagesBySender scans the target's ring; the KV layout has no per-sender
// index, so a cross-target moderation query needs the column store.
func (s *RedisStore) MessagesBySender(ctx context.Context, senderID, targetID string, from, to int64) ([]chat.Message, error) {
	if targetID == "" {
		return nil, fmt.Errorf("sender queries need a target with kv-backed history")
	}
	return s.filter(ctx, targetID, func(m chat.Message) bool {
		if m.FromUserID != senderID {
			return false
		}
		if from != 0 && m.Timestamp < from {
			return false
		}
		if to != 0 && m.Timestamp > to {
			return false
		}
		return true
	})
}

func (s *RedisStore) DeleteMessage(ctx context.Context, messageID string, clearBody bool) error {
	return s.markDeleted(ctx, messageID, true, clearBody)
}

func (s *RedisStore) UndeleteMessage(ctx context.Context, messageID string) error {
	return s.markDeleted(ctx, messageID, false, false)
}

func (s *RedisStore) markDeleted(ctx context.Context, messageID string, deleted, clearBody bool) error {
	targetID, err := s.targetFor(ctx, messageID)
	if err != nil {
		return err
	}

	raw, err := s.client.LRange(ctx, historyKey(targetID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read history for %s: %w", targetID, err)
	}

	for index, item := range raw {
		var msg chat.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return fmt.Errorf("failed to decode history row for %s: %w", targetID, err)
		}
		if msg.ID != messageID {
			continue
		}

		msg.Deleted = deleted
		if clearBody {
			msg.Body = ""
		}
		updated, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to encode message %s: %w", messageID, err)
		}
		if err := s.client.LSet(ctx, historyKey(targetID), int64(index), updated).Err(); err != nil {
			return fmt.Errorf("failed to rewrite message %s: %w", messageID, err)
		}
		return nil
	}
	return ErrNoSuchMessage
}

func (s *RedisStore) AddAcks(ctx context.Context, targetID, receiverID string, messageIDs []string, status int) error {
	pipe := s.client.Pipeline()
	for _, messageID := range messageIDs {
		pipe.HSet(ctx, fmt.Sprintf(keyUserAcks, receiverID), messageID, status)
		pipe.SAdd(ctx, fmt.Sprintf(keyStatusAcks, receiverID, status), messageID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add acks for receiver %s: %w", receiverID, err)
	}
	return nil
}

func (s *RedisStore) UpdateAcks(ctx context.Context, receiverID string, messageIDs []string, status int) error {
	current, err := s.AcksFor(ctx, receiverID, messageIDs)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	for _, messageID := range messageIDs {
		old, ok := current[messageID]
		if !ok || old >= status {
			continue
		}
		pipe.HSet(ctx, fmt.Sprintf(keyUserAcks, receiverID), messageID, status)
		pipe.SRem(ctx, fmt.Sprintf(keyStatusAcks, receiverID, old), messageID)
		pipe.SAdd(ctx, fmt.Sprintf(keyStatusAcks, receiverID, status), messageID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update acks for receiver %s: %w", receiverID, err)
	}
	return nil
}

func (s *RedisStore) AcksFor(ctx context.Context, receiverID string, messageIDs []string) (map[string]int, error) {
	all, err := s.client.HGetAll(ctx, fmt.Sprintf(keyUserAcks, receiverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read acks for receiver %s: %w", receiverID, err)
	}

	parsed := make(map[string]int, len(all))
	for messageID, value := range all {
		status, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("corrupt ack status %q for message %s: %w", value, messageID, err)
		}
		parsed[messageID] = status
	}

	if len(messageIDs) == 0 {
		return parsed, nil
	}
	out := make(map[string]int, len(messageIDs))
	for _, id := range messageIDs {
		if status, ok := parsed[id]; ok {
			out[id] = status
		}
	}
	return out, nil
}

func (s *RedisStore) AcksForStatus(ctx context.Context, receiverID string, status int) ([]string, error) {
	out, err := s.client.SMembers(ctx, fmt.Sprintf(keyStatusAcks, receiverID, status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read acks by status for receiver %s: %w", receiverID, err)
	}
	return out, nil
}

var _ Store = (*RedisStore)(nil)
