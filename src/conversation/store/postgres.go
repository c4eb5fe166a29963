package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	turns      JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS archived_conversations (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	turns       JSONB NOT NULL
);`

// PostgresStore keeps conversations in Postgres with turns as JSONB.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// ConnectPostgres opens a pgx pool for connStr.
func ConnectPostgres(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore creates the tables if needed.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{DB: pool}, nil
}

func (ps *PostgresStore) Save(ctx context.Context, conv *conversation.Conversation) error {
	turns, err := encodeTurns(conv.Turns)
	if err != nil {
		return err
	}
	_, err = ps.DB.Exec(ctx, `
		INSERT INTO conversations (id, owner_id, created_at, turns, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			created_at = EXCLUDED.created_at,
			turns = EXCLUDED.turns,
			updated_at = now()`,
		conv.ID, conv.OwnerID, conv.CreatedAt, string(turns))
	return err
}

func (ps *PostgresStore) Load(ctx context.Context, id string) (*conversation.Conversation, error) {
	var (
		conv  conversation.Conversation
		turns []byte
	)
	err := ps.DB.QueryRow(ctx,
		`SELECT id, owner_id, created_at, turns::text FROM conversations WHERE id = $1`, id).
		Scan(&conv.ID, &conv.OwnerID, &conv.CreatedAt, &turns)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(turns, &conv.Turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	return &conv, nil
}

func (ps *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := ps.DB.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	return err
}

func (ps *PostgresStore) Archive(ctx context.Context, id string) error {
	tag, err := ps.DB.Exec(ctx, `
		INSERT INTO archived_conversations (id, owner_id, created_at, turns, archived_at)
		SELECT id, owner_id, created_at, turns, now() FROM conversations WHERE id = $1
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			turns = EXCLUDED.turns,
			archived_at = now()`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	ps.DB.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
