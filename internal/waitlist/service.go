// Package waitlist records pre-launch signups.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/momentumhq/momentum/internal/besteffort"
	"github.com/momentumhq/momentum/internal/limits"
	"github.com/momentumhq/momentum/internal/metrics"
)

const (
	DefaultSource   = "web"
	maxSourceLength = 64
	maxEmailLength  = 254
	dedupScope      = "waitlist"

	// DefaultLimitsTimeout bounds each limiter and dedup call.
	DefaultLimitsTimeout = 2 * time.Second
)

var (
	ErrInvalidEmail = errors.New("waitlist: invalid email address")
	ErrRateLimited  = errors.New("waitlist: too many signups from this address")
)

// Entry is one stored signup.
type Entry struct {
	Email     string
	Source    string
	CreatedAt time.Time
}

// Repository persists entries. Insert reports false when the email is
// already on the list.
type Repository interface {
	Insert(ctx context.Context, entry Entry) (bool, error)
}

// Request is an inbound signup.
type Request struct {
	Email    string
	Source   string
	ClientIP string
}

// Outcome distinguishes new signups from repeats. Both are successes.
type Outcome string

const (
	Accepted  Outcome = "accepted"
	Duplicate Outcome = "duplicate"
)

// Options wires a Service. Limiter and Deduper are optional.
type Options struct {
	Repository Repository
	Limiter    *limits.RateLimiter
	Deduper    *limits.Deduper
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
	Now        func() time.Time
	// LimitsTimeout bounds limiter and dedup calls. Zero selects
	// DefaultLimitsTimeout.
	LimitsTimeout time.Duration
}

type Service struct {
	repo    Repository
	limiter *limits.RateLimiter
	dedup   *limits.Deduper
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
	timeout time.Duration
}

func NewService(opts Options) (*Service, error) {
	if opts.Repository == nil {
		return nil, errors.New("waitlist: repository required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.LimitsTimeout
	if timeout <= 0 {
		timeout = DefaultLimitsTimeout
	}
	return &Service{
		repo:    opts.Repository,
		limiter: opts.Limiter,
		dedup:   opts.Deduper,
		logger:  logger.With(slog.String("agent", "waitlist")),
		metrics: opts.Metrics,
		now:     now,
		timeout: timeout,
	}, nil
}

// Join validates and records a signup. Limiter and dedup failures are logged
// and ignored; only repository failures are returned as internal errors.
func (s *Service) Join(ctx context.Context, req Request) (Outcome, error) {
	email, err := ParseEmail(req.Email)
	if err != nil {
		s.metrics.ObserveWaitlist(metrics.WaitlistInvalid)
		return "", err
	}

	if s.limiter != nil && req.ClientIP != "" {
		allowed, ok := besteffort.Get(ctx, s.logger, "waitlist rate limit", func(ctx context.Context) (bool, error) {
			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			return s.limiter.Allow(ctx, req.ClientIP)
		})
		if ok && !allowed {
			s.metrics.ObserveWaitlist(metrics.WaitlistRateLimited)
			return "", ErrRateLimited
		}
	}

	marked := false
	if s.dedup != nil {
		first, ok := besteffort.Get(ctx, s.logger, "waitlist dedup", func(ctx context.Context) (bool, error) {
			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			return s.dedup.FirstSeen(ctx, dedupScope, email)
		})
		if ok && !first {
			s.metrics.ObserveWaitlist(metrics.WaitlistDuplicate)
			return Duplicate, nil
		}
		marked = ok
	}

	inserted, err := s.repo.Insert(ctx, Entry{
		Email:     email,
		Source:    normalizeSource(req.Source),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		if marked {
			// The mark was taken for this attempt; a retry must reach the repository.
			besteffort.Run(context.WithoutCancel(ctx), s.logger, "waitlist dedup forget", func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, s.timeout)
				defer cancel()
				return s.dedup.Forget(ctx, dedupScope, email)
			})
		}
		s.metrics.ObserveWaitlist(metrics.WaitlistError)
		return "", fmt.Errorf("waitlist: store signup: %w", err)
	}
	if !inserted {
		s.metrics.ObserveWaitlist(metrics.WaitlistDuplicate)
		return Duplicate, nil
	}
	s.metrics.ObserveWaitlist(metrics.WaitlistAccepted)
	s.logger.LogAttrs(ctx, slog.LevelInfo, "waitlist signup", slog.String("email", email))
	return Accepted, nil
}

// ParseEmail trims, lower-cases and validates a bare address. Display-name
// forms such as "Ada <ada@example.com>" are rejected.
func ParseEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || len(trimmed) > maxEmailLength {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Name != "" || addr.Address != trimmed {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndexByte(addr.Address, '@')
	if at <= 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

func normalizeSource(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return DefaultSource
	}
	if len(source) > maxSourceLength {
		source = source[:maxSourceLength]
	}
	return source
}

// MemoryRepository keeps entries in process. It backs the waitlist when no
// database is configured.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]Entry)}
}

func (r *MemoryRepository) Insert(_ context.Context, entry Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[entry.Email]; exists {
		return false, nil
	}
	r.entries[entry.Email] = entry
	return true, nil
}

// Len reports the number of stored entries.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
