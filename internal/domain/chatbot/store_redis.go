package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "cardiorisk:chat:"

// RedisStore keeps each conversation as a list of JSON messages plus a
// metadata hash. Writes that touch both go through MULTI/EXEC.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: defaultRedisPrefix, now: time.Now}
}

func (s *RedisStore) messagesKey(patientID string) string {
	return s.prefix + patientID + ":messages"
}

func (s *RedisStore) metaKey(patientID string) string {
	return s.prefix + patientID + ":meta"
}

func decodeMessages(raw []string) ([]Message, error) {
	msgs := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func (s *RedisStore) Find(ctx context.Context, patientID string) (*Conversation, error) {
	meta, err := s.rdb.HGetAll(ctx, s.metaKey(patientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if len(meta) == 0 {
		return nil, ErrConversationNotFound
	}

	raw, err := s.rdb.LRange(ctx, s.messagesKey(patientID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs, err := decodeMessages(raw)
	if err != nil {
		return nil, err
	}
	return &Conversation{
		PatientID:    patientID,
		Messages:     msgs,
		LastActiveAt: parseTime(meta["last_active_at"]),
		CreatedAt:    parseTime(meta["created_at"]),
		UpdatedAt:    parseTime(meta["updated_at"]),
	}, nil
}

func (s *RedisStore) Recent(ctx context.Context, patientID string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.rdb.LRange(ctx, s.messagesKey(patientID), int64(-n), -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return decodeMessages(raw)
}

func touch(ctx context.Context, pipe redis.Pipeliner, key string, at time.Time) {
	ts := at.UTC().Format(time.RFC3339Nano)
	pipe.HSetNX(ctx, key, "created_at", ts)
	pipe.HSet(ctx, key, "last_active_at", ts, "updated_at", ts)
}

func (s *RedisStore) AppendPair(ctx context.Context, patientID string, user, assistant Message) error {
	u, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user message: %w", err)
	}
	a, err := json.Marshal(assistant)
	if err != nil {
		return fmt.Errorf("encode assistant message: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.messagesKey(patientID), u, a)
		touch(ctx, pipe, s.metaKey(patientID), assistant.Timestamp)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append pair: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, patientID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.messagesKey(patientID))
		touch(ctx, pipe, s.metaKey(patientID), s.now())
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteConversation(ctx context.Context, patientID string) error {
	if err := s.rdb.Del(ctx, s.messagesKey(patientID), s.metaKey(patientID)).Err(); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}
