package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
)

const (
	conversationKeyPrefix = "conversation:"
	archiveKeyPrefix      = "conversation_archive:"
	// Default TTL for conversation keys (30 days)
	defaultRedisTTL = 30 * 24 * time.Hour
)

// RedisStore keeps each conversation as one JSON value with a sliding TTL.
// Archived copies never expire.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, conv *conversation.Conversation) error {
	val, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, conversationKeyPrefix+conv.ID, val, s.ttl).Err()
}

// Load refreshes the TTL on every read.
func (s *RedisStore) Load(ctx context.Context, id string) (*conversation.Conversation, error) {
	key := conversationKeyPrefix + id
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var conv conversation.Conversation
	if err := json.Unmarshal(val, &conv); err != nil {
		return nil, err
	}
	_ = s.client.Expire(ctx, key, s.ttl).Err()
	return &conv, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, conversationKeyPrefix+id).Err()
}

func (s *RedisStore) Archive(ctx context.Context, id string) error {
	val, err := s.client.Get(ctx, conversationKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return s.client.Set(ctx, archiveKeyPrefix+id, val, 0).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
