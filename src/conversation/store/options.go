package store

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Option is a functional option for configuring a conversation store.
type Option func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration

	mongoClient   *mongo.Client
	mongoDatabase string

	pgPool *pgxpool.Pool

	sqlitePath string
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) Option {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the TTL for Redis keys.
func WithRedisTTL(ttl time.Duration) Option {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// WithMongo sets the Mongo client and database name.
func WithMongo(client *mongo.Client, database string) Option {
	return func(c *storeConfig) {
		c.mongoClient = client
		c.mongoDatabase = database
	}
}

// WithPostgresPool sets the pgx pool for the Postgres store.
func WithPostgresPool(pool *pgxpool.Pool) Option {
	return func(c *storeConfig) {
		c.pgPool = pool
	}
}

// WithSQLitePath sets the database file for the SQLite store.
func WithSQLitePath(path string) Option {
	return func(c *storeConfig) {
		c.sqlitePath = path
	}
}
