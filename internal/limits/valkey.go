package limits

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/momentumhq/momentum/internal/valkeyconn"
	valkey "github.com/valkey-io/valkey-go"
)

// ValkeyOptions configures the sorted-set store.
type ValkeyOptions struct {
	valkeyconn.Config
	KeyPrefix string
	Now       func() time.Time
}

// valkeyStore keeps one sorted set per key. A member's score is its expiry in
// unix milliseconds, so pruning is a single ZREMRANGEBYSCORE.
type valkeyStore struct {
	client valkey.Client
	prefix string
	now    func() time.Time
}

// NewValkey dials its own client; Close releases it.
func NewValkey(ctx context.Context, opts ValkeyOptions) (Store, error) {
	client, err := valkeyconn.Dial(ctx, opts.Config)
	if err != nil {
		return nil, fmt.Errorf("limits: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &valkeyStore{client: client, prefix: opts.KeyPrefix, now: now}, nil
}

func (s *valkeyStore) prune(key string, nowMS int64) valkey.Completed {
	return s.client.B().Zremrangebyscore().Key(key).Min("-inf").Max(strconv.FormatInt(nowMS, 10)).Build()
}

func (s *valkeyStore) Add(ctx context.Context, key, member string, ttl time.Duration) (bool, error) {
	key = s.prefix + key
	nowMS := s.now().UnixMilli()
	expiry := nowMS + ttl.Milliseconds()

	results := s.client.DoMulti(ctx,
		s.prune(key, nowMS),
		s.client.B().Zadd().Key(key).Nx().ScoreMember().ScoreMember(float64(expiry), member).Build(),
		s.client.B().Pexpire().Key(key).Milliseconds(ttl.Milliseconds()).Build(),
	)
	for _, res := range results {
		if err := res.Error(); err != nil {
			return false, fmt.Errorf("limits: valkey add: %w", err)
		}
	}
	added, err := results[1].AsInt64()
	if err != nil {
		return false, fmt.Errorf("limits: valkey add result: %w", err)
	}
	return added == 1, nil
}

func (s *valkeyStore) Count(ctx context.Context, key string) (int64, error) {
	key = s.prefix + key
	results := s.client.DoMulti(ctx,
		s.prune(key, s.now().UnixMilli()),
		s.client.B().Zcard().Key(key).Build(),
	)
	for _, res := range results {
		if err := res.Error(); err != nil {
			return 0, fmt.Errorf("limits: valkey count: %w", err)
		}
	}
	n, err := results[1].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("limits: valkey count result: %w", err)
	}
	return n, nil
}

func (s *valkeyStore) Remove(ctx context.Context, key, member string) error {
	cmd := s.client.B().Zrem().Key(s.prefix + key).Member(member).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("limits: valkey remove: %w", err)
	}
	return nil
}

func (s *valkeyStore) Close(context.Context) error {
	s.client.Close()
	return nil
}
