package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	turns      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS archived_conversations (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	archived_at TEXT NOT NULL,
	turns       TEXT NOT NULL
);`

// SQLiteStore keeps conversations in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time keeps SQLite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, conv *conversation.Conversation) error {
	turns, err := encodeTurns(conv.Turns)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, created_at, updated_at, turns)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			turns = excluded.turns`,
		conv.ID, conv.OwnerID, formatTime(conv.CreatedAt), formatTime(time.Now()), string(turns))
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*conversation.Conversation, error) {
	var (
		conv    conversation.Conversation
		created string
		turns   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, created_at, turns FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.OwnerID, &created, &turns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	if conv.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("load conversation %s: created_at: %w", id, err)
	}
	if err := json.Unmarshal([]byte(turns), &conv.Turns); err != nil {
		return nil, fmt.Errorf("load conversation %s: turns: %w", id, err)
	}
	return &conv, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) Archive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_conversations (id, owner_id, created_at, archived_at, turns)
		SELECT id, owner_id, created_at, ?, turns FROM conversations WHERE id = ?
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			archived_at = excluded.archived_at,
			turns = excluded.turns`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("archive conversation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var _ Store = (*SQLiteStore)(nil)
