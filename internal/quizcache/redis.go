package quizcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/momentumhq/momentum/internal/valkeyconn"
	valkey "github.com/valkey-io/valkey-go"
)

// RedisConfig selects the server and the namespace for cache keys.
type RedisConfig struct {
	valkeyconn.Config
	KeyPrefix string
}

type redisStore struct {
	client valkey.Client
	prefix string
}

// NewRedis dials its own client; Close releases it.
func NewRedis(ctx context.Context, cfg RedisConfig) (Store, error) {
	client, err := valkeyconn.Dial(ctx, cfg.Config)
	if err != nil {
		return nil, fmt.Errorf("quizcache: %w", err)
	}
	return &redisStore{client: client, prefix: cfg.KeyPrefix}, nil
}

func (s *redisStore) redisKey(key, provider string) string {
	return s.prefix + provider + ":" + key
}

func (s *redisStore) Get(ctx context.Context, key, provider string) (Entry, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.redisKey(key, provider)).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("quizcache: redis get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return Entry{}, false, fmt.Errorf("quizcache: redis get bytes: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("quizcache: redis unmarshal: %w", err)
	}
	return entry, true, nil
}

// Upsert writes without a key TTL; staleness is judged from CreatedAt.
func (s *redisStore) Upsert(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("quizcache: redis marshal: %w", err)
	}
	cmd := s.client.B().Set().Key(s.redisKey(entry.Key, entry.Provider)).Value(string(payload)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("quizcache: redis set: %w", err)
	}
	return nil
}

func (s *redisStore) Close(context.Context) error {
	s.client.Close()
	return nil
}
