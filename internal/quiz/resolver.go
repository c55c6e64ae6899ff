// Package quiz resolves quiz identifiers into normalized question sets,
// reading through the quiz cache and falling back to the trivia provider.
package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/momentumhq/momentum/internal/besteffort"
	"github.com/momentumhq/momentum/internal/metrics"
	"github.com/momentumhq/momentum/internal/quizcache"
	"github.com/momentumhq/momentum/internal/triviaapi"
)

// DefaultProviderTag scopes cache rows to the provider API version that
// produced them.
const DefaultProviderTag = "the-trivia-api:v2"

// DefaultCacheTimeout bounds each cache call when Options.CacheTimeout is unset.
const DefaultCacheTimeout = 2 * time.Second

// CacheStatus reports which path served a resolution.
type CacheStatus string

const (
	CacheHit    CacheStatus = "HIT"
	CacheMiss   CacheStatus = "MISS"
	CacheBypass CacheStatus = "BYPASS"
)

// Provider fetches raw questions. *triviaapi.Client satisfies it.
type Provider interface {
	Questions(ctx context.Context, q triviaapi.QuestionQuery) ([]triviaapi.RawQuestion, error)
}

// Quiz is the resolved response body.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Result pairs the quiz with the cache path that produced it.
type Result struct {
	Quiz  Quiz
	Cache CacheStatus
}

type cachedPayload struct {
	Questions []Question `json:"questions"`
}

// Options configures a Resolver. Cache may be nil, which disables both the
// lookup and the write-back. A zero CacheTimeout selects DefaultCacheTimeout.
type Options struct {
	Provider     Provider
	Cache        quizcache.Store
	ProviderTag  string
	TTLSeconds   int
	CacheTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Recorder
	// Now and Rand exist for tests. Rand must be safe for concurrent use when
	// the resolver is shared; nil selects the package-level generator.
	Now  func() time.Time
	Rand Shuffler
}

// Resolver is stateless between calls and safe for concurrent use.
type Resolver struct {
	provider     Provider
	cache        quizcache.Store
	providerTag  string
	ttlSeconds   int
	cacheTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Recorder
	now          func() time.Time
	rand         Shuffler
}

func NewResolver(opts Options) (*Resolver, error) {
	if opts.Provider == nil {
		return nil, errors.New("quiz: provider required")
	}
	r := &Resolver{
		provider:     opts.Provider,
		cache:        opts.Cache,
		providerTag:  opts.ProviderTag,
		ttlSeconds:   opts.TTLSeconds,
		cacheTimeout: opts.CacheTimeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          opts.Now,
		rand:         opts.Rand,
	}
	if r.providerTag == "" {
		r.providerTag = DefaultProviderTag
	}
	if r.ttlSeconds <= 0 {
		r.ttlSeconds = quizcache.DefaultTTLSeconds
	}
	if r.cacheTimeout <= 0 {
		r.cacheTimeout = DefaultCacheTimeout
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With(slog.String("agent", "quiz_resolver"))
	if r.now == nil {
		r.now = time.Now
	}
	if r.rand == nil {
		r.rand = globalShuffler{}
	}
	return r, nil
}

// CachingEnabled reports whether a cache store is attached.
func (r *Resolver) CachingEnabled() bool { return r.cache != nil }

// Resolve returns the quiz for raw. Only provider failures are returned as
// errors; cache failures degrade to the uncached path.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Result, error) {
	id := ParseIdentifier(raw)

	status := CacheBypass
	if r.cache != nil {
		if questions, ok := r.lookup(ctx, id); ok {
			return Result{
				Quiz:  Quiz{ID: raw, Title: id.Title(), Questions: questions},
				Cache: CacheHit,
			}, nil
		}
		status = CacheMiss
	}

	raws, err := r.provider.Questions(ctx, triviaapi.QuestionQuery{
		Limit:        id.Amount,
		Categories:   id.Category,
		Difficulties: id.Difficulty,
	})
	if err != nil {
		return Result{}, fmt.Errorf("quiz: resolve %q: %w", raw, err)
	}
	questions := NormalizeAll(raws, r.rand)

	if r.cache != nil {
		r.store(ctx, id, questions)
	}

	return Result{
		Quiz:  Quiz{ID: raw, Title: id.Title(), Questions: questions},
		Cache: status,
	}, nil
}

func (r *Resolver) lookup(ctx context.Context, id Identifier) ([]Question, bool) {
	start := time.Now()
	result := metrics.CacheResultError
	defer func() {
		r.metrics.ObserveCache(metrics.CacheOperationGet, result, time.Since(start))
	}()

	payload, ok := besteffort.Get(ctx, r.logger, "quiz cache get", func(ctx context.Context) (*cachedPayload, error) {
		ctx, cancel := r.cacheContext(ctx)
		defer cancel()

		entry, found, err := r.cache.Get(ctx, id.Raw, r.providerTag)
		if err != nil {
			return nil, err
		}
		if !found || !entry.Valid(r.now()) {
			return nil, nil
		}
		var p cachedPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return nil, fmt.Errorf("quiz: decode cached payload for %q: %w", id.Raw, err)
		}
		if p.Questions == nil {
			p.Questions = []Question{}
		}
		return &p, nil
	})
	if !ok {
		return nil, false
	}
	if payload == nil {
		result = metrics.CacheResultMiss
		return nil, false
	}
	result = metrics.CacheResultHit
	return payload.Questions, true
}

// store persists the freshly normalized questions. The write outlives request
// cancellation since the result is already computed.
func (r *Resolver) store(ctx context.Context, id Identifier, questions []Question) {
	start := time.Now()
	result := metrics.CacheResultError
	defer func() {
		r.metrics.ObserveCache(metrics.CacheOperationUpsert, result, time.Since(start))
	}()

	ok := besteffort.Run(context.WithoutCancel(ctx), r.logger, "quiz cache upsert", func(ctx context.Context) error {
		payload, err := json.Marshal(cachedPayload{Questions: questions})
		if err != nil {
			return fmt.Errorf("quiz: encode payload: %w", err)
		}
		ctx, cancel := r.cacheContext(ctx)
		defer cancel()
		return r.cache.Upsert(ctx, quizcache.Entry{
			Key:        id.Raw,
			Provider:   r.providerTag,
			Payload:    payload,
			CreatedAt:  r.now().UTC(),
			TTLSeconds: r.ttlSeconds,
		})
	})
	if ok {
		result = metrics.CacheResultStored
	}
}

func (r *Resolver) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cacheTimeout)
}
