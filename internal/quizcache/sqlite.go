package quizcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS quiz_cache (
		key TEXT NOT NULL,
		provider TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		ttl_seconds INTEGER NOT NULL,
		PRIMARY KEY (key, provider)
	)
`

type sqliteStore struct {
	conn *sql.DB
}

// NewSQLite opens (creating if needed) a single-file cache database.
func NewSQLite(ctx context.Context, path string) (Store, error) {
	if path == "" {
		return nil, errors.New("quizcache: sqlite path required")
	}
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("quizcache: open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("quizcache: ping sqlite: %w", err)
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("quizcache: create sqlite schema: %w", err)
	}
	return &sqliteStore{conn: conn}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key, provider string) (Entry, bool, error) {
	var (
		payload   string
		createdAt int64
		ttl       int
	)
	err := s.conn.QueryRowContext(ctx,
		"SELECT payload, created_at, ttl_seconds FROM quiz_cache WHERE key = ? AND provider = ?",
		key, provider,
	).Scan(&payload, &createdAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("quizcache: sqlite get: %w", err)
	}
	return Entry{
		Key:        key,
		Provider:   provider,
		Payload:    []byte(payload),
		CreatedAt:  time.UnixMilli(createdAt).UTC(),
		TTLSeconds: ttl,
	}, true, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, entry Entry) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO quiz_cache (key, provider, payload, created_at, ttl_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key, provider) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			ttl_seconds = excluded.ttl_seconds
	`, entry.Key, entry.Provider, string(entry.Payload), entry.CreatedAt.UnixMilli(), entry.TTLSeconds)
	if err != nil {
		return fmt.Errorf("quizcache: sqlite upsert: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close(context.Context) error {
	return s.conn.Close()
}
