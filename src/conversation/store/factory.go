package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
)

// Type selects a store driver.
type Type string

const (
	TypeMemory   Type = "memory"
	TypeSQLite   Type = "sqlite"
	TypeRedis    Type = "redis"
	TypeMongo    Type = "mongo"
	TypePostgres Type = "postgres"
)

// New creates a Store for the given driver type.
// Redis, Mongo and Postgres need their client option; SQLite needs a path.
func New(ctx context.Context, storeType Type, opts ...Option) (Store, error) {
	config := &storeConfig{}
	for _, opt := range opts {
		opt(config)
	}

	switch Type(strings.ToLower(string(storeType))) {
	case TypeMemory, "":
		return NewMemoryStore(), nil

	case TypeSQLite:
		if config.sqlitePath == "" {
			return nil, ErrInvalidConfig
		}
		return NewSQLiteStore(ctx, config.sqlitePath)

	case TypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(config.redisClient, config.redisTTL), nil

	case TypeMongo:
		if config.mongoClient == nil || config.mongoDatabase == "" {
			return nil, ErrInvalidConfig
		}
		return NewMongoStore(config.mongoClient, config.mongoDatabase), nil

	case TypePostgres:
		if config.pgPool == nil {
			return nil, ErrInvalidConfig
		}
		return NewPostgresStore(ctx, config.pgPool)

	default:
		return nil, ErrInvalidStoreType
	}
}

func cloneConversation(c *conversation.Conversation) *conversation.Conversation {
	out := *c
	out.Turns = append([]conversation.Turn(nil), c.Turns...)
	return &out
}

func encodeTurns(turns []conversation.Turn) ([]byte, error) {
	if turns == nil {
		turns = []conversation.Turn{}
	}
	return json.Marshal(turns)
}
