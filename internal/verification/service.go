// Package verification marks users as verified on behalf of the support bot.
package verification

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

var (
	// ErrUserNotFound is returned when no user row matches the email.
	ErrUserNotFound = errors.New("verification: user not found")
	// ErrNotConfigured is returned when no user database is attached.
	ErrNotConfigured = errors.New("verification: user store not configured")
	// ErrEmailRequired is returned for an empty email.
	ErrEmailRequired = errors.New("verification: email required")
)

// Repository flips the verified flag for the user owning email and every row
// derived from it, atomically.
type Repository interface {
	MarkVerified(ctx context.Context, email string) error
}

// Service validates input and delegates to the repository.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService accepts a nil repository; calls then fail with ErrNotConfigured.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger.With(slog.String("agent", "verification"))}
}

// MarkVerified normalizes email and marks the matching user verified.
func (s *Service) MarkVerified(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	if s.repo == nil {
		return ErrNotConfigured
	}
	if err := s.repo.MarkVerified(ctx, email); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("verification: mark %s: %w", email, err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "user marked verified", slog.String("email", email))
	return nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SecretGuard holds the shared bot secret. It can be rotated at runtime.
type SecretGuard struct {
	secret atomic.Pointer[string]
}

func NewSecretGuard(secret string) *SecretGuard {
	g := &SecretGuard{}
	g.Set(secret)
	return g
}

// Set replaces the secret. An empty secret rejects every request.
func (g *SecretGuard) Set(secret string) {
	g.secret.Store(&secret)
}

// Configured reports whether a non-empty secret is set.
func (g *SecretGuard) Configured() bool {
	p := g.secret.Load()
	return p != nil && *p != ""
}

// Allow compares presented against the secret in constant time.
func (g *SecretGuard) Allow(presented string) bool {
	p := g.secret.Load()
	if p == nil || *p == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*p), []byte(presented)) == 1
}
