package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/momentumhq/momentum/internal/verification"
)

// Users implements verification.Repository.
type Users struct {
	db *DB
}

var _ verification.Repository = (*Users)(nil)

func (db *DB) Users() *Users {
	return &Users{db: db}
}

func markUserVerifiedQuery(email string) sq.UpdateBuilder {
	return qb().Update("users").
		Set("verified", true).
		Set("verified_at", sq.Expr("now()")).
		Where(sq.Eq{"lower(email)": email}).
		Suffix("RETURNING id::text")
}

func markProfilesVerifiedQuery(userIDs []string) sq.UpdateBuilder {
	return qb().Update("profiles").
		Set("verified", true).
		Where(sq.Eq{"user_id": userIDs})
}

func markWaitlistVerifiedQuery(email string) sq.UpdateBuilder {
	return qb().Update("waitlist_entries").
		Set("verified", true).
		Where(sq.Eq{"email": email})
}

// MarkVerified flips the user's flag and cascades it to their profiles and
// waitlist entry in one transaction. email must already be lower-cased.
func (u *Users) MarkVerified(ctx context.Context, email string) error {
	return pgx.BeginFunc(ctx, u.db.pool, func(tx pgx.Tx) error {
		sqlStr, args, err := markUserVerifiedQuery(email).ToSql()
		if err != nil {
			return fmt.Errorf("postgres: build users update: %w", err)
		}
		rows, err := tx.Query(ctx, sqlStr, args...)
		if err != nil {
			return fmt.Errorf("postgres: update users: %w", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("postgres: update users: %w", err)
		}
		if len(ids) == 0 {
			return verification.ErrUserNotFound
		}

		for _, q := range []sq.UpdateBuilder{markProfilesVerifiedQuery(ids), markWaitlistVerifiedQuery(email)} {
			sqlStr, args, err := q.ToSql()
			if err != nil {
				return fmt.Errorf("postgres: build cascade update: %w", err)
			}
			if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
				return fmt.Errorf("postgres: cascade verified flag: %w", err)
			}
		}
		u.db.logger.DebugContext(ctx, "verified flag cascaded", "users", len(ids))
		return nil
	})
}
