package limits

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/momentumhq/momentum/internal/valkeyconn"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, clock *manualClock) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock *manualClock) Store {
			store := NewMemory(MemoryOptions{SweepInterval: -1, Now: clock.Now})
			t.Cleanup(func() { _ = store.Close(context.Background()) })
			return store
		},
		"valkey": func(t *testing.T, clock *manualClock) Store {
			server := miniredis.RunT(t)
			store, err := NewValkey(context.Background(), ValkeyOptions{
				Config:    valkeyconn.Config{Address: server.Addr()},
				KeyPrefix: "momentum:limits:",
				Now:       clock.Now,
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close(context.Background()) })
			return store
		},
	}
}

func TestStoreAddAndExpiry(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			clock := newManualClock()
			store := factory(t, clock)
			ctx := context.Background()

			added, err := store.Add(ctx, "k", "a", time.Minute)
			require.NoError(t, err)
			require.True(t, added)

			added, err = store.Add(ctx, "k", "a", time.Minute)
			require.NoError(t, err)
			require.False(t, added, "duplicate member within ttl")

			clock.Advance(30 * time.Second)
			added, err = store.Add(ctx, "k", "b", time.Minute)
			require.NoError(t, err)
			require.True(t, added)

			n, err := store.Count(ctx, "k")
			require.NoError(t, err)
			require.EqualValues(t, 2, n)

			// "a" expires exactly at its deadline; "b" has 30s left.
			clock.Advance(30 * time.Second)
			n, err = store.Count(ctx, "k")
			require.NoError(t, err)
			require.EqualValues(t, 1, n)

			added, err = store.Add(ctx, "k", "a", time.Minute)
			require.NoError(t, err)
			require.True(t, added, "expired member can be re-added")

			n, err = store.Count(ctx, "other")
			require.NoError(t, err)
			require.Zero(t, n)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			clock := newManualClock()
			limiter, err := NewRateLimiter(factory(t, clock), "waitlist:ip:", 3, time.Minute)
			require.NoError(t, err)
			ctx := context.Background()

			for i := range 3 {
				ok, err := limiter.Allow(ctx, "203.0.113.7")
				require.NoError(t, err)
				require.True(t, ok, "attempt %d", i)
			}
			ok, err := limiter.Allow(ctx, "203.0.113.7")
			require.NoError(t, err)
			require.False(t, ok)

			ok, err = limiter.Allow(ctx, "198.51.100.1")
			require.NoError(t, err)
			require.True(t, ok, "subjects are independent")

			clock.Advance(time.Minute)
			ok, err = limiter.Allow(ctx, "203.0.113.7")
			require.NoError(t, err)
			require.True(t, ok, "window slides")
		})
	}
}

func TestDeduper(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			clock := newManualClock()
			dedup, err := NewDeduper(factory(t, clock), "dedup:", time.Hour)
			require.NoError(t, err)
			ctx := context.Background()

			first, err := dedup.FirstSeen(ctx, "waitlist", "a@example.com")
			require.NoError(t, err)
			require.True(t, first)

			first, err = dedup.FirstSeen(ctx, "waitlist", "a@example.com")
			require.NoError(t, err)
			require.False(t, first)

			first, err = dedup.FirstSeen(ctx, "newsletter", "a@example.com")
			require.NoError(t, err)
			require.True(t, first, "scopes are independent")

			clock.Advance(time.Hour)
			first, err = dedup.FirstSeen(ctx, "waitlist", "a@example.com")
			require.NoError(t, err)
			require.True(t, first)
		})
	}
}

func TestDeduperForget(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			dedup, err := NewDeduper(factory(t, newManualClock()), "dedup:", time.Hour)
			require.NoError(t, err)
			ctx := context.Background()

			require.NoError(t, dedup.Forget(ctx, "waitlist", "never@example.com"))

			first, err := dedup.FirstSeen(ctx, "waitlist", "a@example.com")
			require.NoError(t, err)
			require.True(t, first)

			require.NoError(t, dedup.Forget(ctx, "waitlist", "a@example.com"))
			first, err = dedup.FirstSeen(ctx, "waitlist", "a@example.com")
			require.NoError(t, err)
			require.True(t, first, "forgotten value is new again")
		})
	}
}

func TestConstructorsValidate(t *testing.T) {
	store := NewMemory(MemoryOptions{SweepInterval: -1})
	defer store.Close(context.Background())

	_, err := NewRateLimiter(nil, "", 1, time.Second)
	require.Error(t, err)
	_, err = NewRateLimiter(store, "", 0, time.Second)
	require.Error(t, err)
	_, err = NewRateLimiter(store, "", 1, 0)
	require.Error(t, err)
	_, err = NewDeduper(nil, "", time.Second)
	require.Error(t, err)
	_, err = NewDeduper(store, "", 0)
	require.Error(t, err)
}

func TestMemorySweepDropsExpiredKeys(t *testing.T) {
	clock := newManualClock()
	store := NewMemory(MemoryOptions{SweepInterval: 5 * time.Millisecond, Now: clock.Now})
	defer store.Close(context.Background())
	mem := store.(*memoryStore)

	_, err := store.Add(context.Background(), "k", "a", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, mem.keyCount())

	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return mem.keyCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	store := NewMemory(MemoryOptions{})
	require.NoError(t, store.Close(context.Background()))
	require.NoError(t, store.Close(context.Background()))
}

func TestValkeyKeyExpiresServerSide(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := NewValkey(context.Background(), ValkeyOptions{
		Config:    valkeyconn.Config{Address: server.Addr()},
		KeyPrefix: "p:",
	})
	require.NoError(t, err)
	defer store.Close(context.Background())

	_, err = store.Add(context.Background(), "k", "a", time.Minute)
	require.NoError(t, err)
	require.True(t, server.Exists("p:k"))

	server.FastForward(2 * time.Minute)
	require.False(t, server.Exists("p:k"))
}

func TestValkeyUnavailable(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := NewValkey(context.Background(), ValkeyOptions{Config: valkeyconn.Config{Address: server.Addr()}})
	require.NoError(t, err)
	defer store.Close(context.Background())

	server.SetError("LOADING")
	_, err = store.Add(context.Background(), "k", "a", time.Minute)
	require.Error(t, err)
	_, err = store.Count(context.Background(), "k")
	require.Error(t, err)
}
