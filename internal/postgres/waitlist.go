package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/momentumhq/momentum/internal/waitlist"
)

// Waitlist implements waitlist.Repository on waitlist_entries.
type Waitlist struct {
	db *DB
}

var _ waitlist.Repository = (*Waitlist)(nil)

func (db *DB) Waitlist() *Waitlist {
	return &Waitlist{db: db}
}

func insertWaitlistQuery(entry waitlist.Entry) sq.InsertBuilder {
	return qb().Insert("waitlist_entries").
		Columns("email", "source", "created_at").
		Values(entry.Email, entry.Source, entry.CreatedAt).
		Suffix("ON CONFLICT (email) DO NOTHING")
}

func (w *Waitlist) Insert(ctx context.Context, entry waitlist.Entry) (bool, error) {
	sqlStr, args, err := insertWaitlistQuery(entry).ToSql()
	if err != nil {
		return false, fmt.Errorf("postgres: build waitlist insert: %w", err)
	}
	tag, err := w.db.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("postgres: waitlist insert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
