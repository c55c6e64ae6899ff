package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/momentumhq/momentum/internal/quizcache"
)

// QuizCache stores quiz payloads in the quiz_cache table.
type QuizCache struct {
	db *DB
}

var _ quizcache.Store = (*QuizCache)(nil)

func (db *DB) QuizCache() *QuizCache {
	return &QuizCache{db: db}
}

func selectQuizCacheQuery(key, provider string) sq.SelectBuilder {
	return qb().Select("payload", "created_at", "ttl_seconds").
		From("quiz_cache").
		Where(sq.Eq{"key": key, "provider": provider})
}

func upsertQuizCacheQuery(entry quizcache.Entry) sq.InsertBuilder {
	return qb().Insert("quiz_cache").
		Columns("key", "provider", "payload", "created_at", "ttl_seconds").
		Values(entry.Key, entry.Provider, []byte(entry.Payload), entry.CreatedAt, entry.TTLSeconds).
		Suffix("ON CONFLICT (key, provider) DO UPDATE SET " +
			"payload = EXCLUDED.payload, created_at = EXCLUDED.created_at, ttl_seconds = EXCLUDED.ttl_seconds")
}

func (c *QuizCache) Get(ctx context.Context, key, provider string) (quizcache.Entry, bool, error) {
	sqlStr, args, err := selectQuizCacheQuery(key, provider).ToSql()
	if err != nil {
		return quizcache.Entry{}, false, fmt.Errorf("postgres: build quiz cache select: %w", err)
	}
	var (
		payload   []byte
		createdAt time.Time
		ttl       int
	)
	err = c.db.pool.QueryRow(ctx, sqlStr, args...).Scan(&payload, &createdAt, &ttl)
	if errors.Is(err, pgx.ErrNoRows) {
		return quizcache.Entry{}, false, nil
	}
	if err != nil {
		return quizcache.Entry{}, false, fmt.Errorf("postgres: quiz cache get: %w", err)
	}
	return quizcache.Entry{
		Key:        key,
		Provider:   provider,
		Payload:    payload,
		CreatedAt:  createdAt,
		TTLSeconds: ttl,
	}, true, nil
}

func (c *QuizCache) Upsert(ctx context.Context, entry quizcache.Entry) error {
	sqlStr, args, err := upsertQuizCacheQuery(entry).ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build quiz cache upsert: %w", err)
	}
	if _, err := c.db.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("postgres: quiz cache upsert: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to DB.
func (c *QuizCache) Close(context.Context) error {
	return nil
}
