package verification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu       sync.Mutex
	users    map[string]bool
	err      error
	received []string
}

func (r *memoryRepo) MarkVerified(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, email)
	if r.err != nil {
		return r.err
	}
	if _, ok := r.users[email]; !ok {
		return ErrUserNotFound
	}
	r.users[email] = true
	return nil
}

func TestMarkVerified(t *testing.T) {
	repo := &memoryRepo{users: map[string]bool{"ada@example.com": false}}
	svc := NewService(repo, slog.New(slog.DiscardHandler))

	require.NoError(t, svc.MarkVerified(context.Background(), "  Ada@Example.COM "))
	require.True(t, repo.users["ada@example.com"])
	require.Equal(t, []string{"ada@example.com"}, repo.received)
}

func TestMarkVerifiedErrors(t *testing.T) {
	dbErr := errors.New("connection refused")
	tests := []struct {
		name  string
		repo  Repository
		email string
		want  error
	}{
		{name: "empty email", repo: &memoryRepo{}, email: "   ", want: ErrEmailRequired},
		{name: "no repository", repo: nil, email: "a@example.com", want: ErrNotConfigured},
		{name: "unknown user", repo: &memoryRepo{users: map[string]bool{}}, email: "a@example.com", want: ErrUserNotFound},
		{name: "database failure", repo: &memoryRepo{err: dbErr}, email: "a@example.com", want: dbErr},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(tc.repo, nil)
			err := svc.MarkVerified(context.Background(), tc.email)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSecretGuard(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		presented string
		want      bool
	}{
		{name: "match", secret: "s3cret", presented: "s3cret", want: true},
		{name: "mismatch", secret: "s3cret", presented: "s3cre", want: false},
		{name: "missing header", secret: "s3cret", presented: "", want: false},
		{name: "unconfigured rejects empty", secret: "", presented: "", want: false},
		{name: "unconfigured rejects anything", secret: "", presented: "guess", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			guard := NewSecretGuard(tc.secret)
			require.Equal(t, tc.want, guard.Allow(tc.presented))
			require.Equal(t, tc.secret != "", guard.Configured())
		})
	}
}

func TestSecretGuardRotation(t *testing.T) {
	guard := NewSecretGuard("old")
	require.True(t, guard.Allow("old"))
	guard.Set("new")
	require.False(t, guard.Allow("old"))
	require.True(t, guard.Allow("new"))
	guard.Set("")
	require.False(t, guard.Allow("new"))

	var zero SecretGuard
	require.False(t, zero.Allow(""))
	require.False(t, zero.Configured())
}
