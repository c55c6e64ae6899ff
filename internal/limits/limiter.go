package limits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RateLimiter admits at most Limit events per subject within a sliding window.
// The check and the record are separate store calls, so concurrent bursts may
// slightly overshoot the limit.
type RateLimiter struct {
	store  Store
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(store Store, prefix string, limit int, window time.Duration) (*RateLimiter, error) {
	if store == nil {
		return nil, errors.New("limits: rate limiter requires a store")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("limits: rate limiter requires a positive limit and window")
	}
	return &RateLimiter{store: store, prefix: prefix, limit: limit, window: window}, nil
}

// Allow records an event for subject and reports whether it fits the window.
// Rejected events are not recorded.
func (l *RateLimiter) Allow(ctx context.Context, subject string) (bool, error) {
	key := l.prefix + subject
	n, err := l.store.Count(ctx, key)
	if err != nil {
		return false, err
	}
	if n >= int64(l.limit) {
		return false, nil
	}
	if _, err := l.store.Add(ctx, key, uuid.NewString(), l.window); err != nil {
		return false, err
	}
	return true, nil
}

// Deduper reports whether a value was already seen in a scope recently.
type Deduper struct {
	store  Store
	prefix string
	ttl    time.Duration
}

func NewDeduper(store Store, prefix string, ttl time.Duration) (*Deduper, error) {
	if store == nil {
		return nil, errors.New("limits: deduper requires a store")
	}
	if ttl <= 0 {
		return nil, errors.New("limits: deduper requires a positive ttl")
	}
	return &Deduper{store: store, prefix: prefix, ttl: ttl}, nil
}

// FirstSeen marks value as seen in scope and reports whether this call was
// the first within the TTL.
func (d *Deduper) FirstSeen(ctx context.Context, scope, value string) (bool, error) {
	return d.store.Add(ctx, d.prefix+scope, value, d.ttl)
}

// Forget clears a mark so the next FirstSeen for value reports true again.
func (d *Deduper) Forget(ctx context.Context, scope, value string) error {
	return d.store.Remove(ctx, d.prefix+scope, value)
}
