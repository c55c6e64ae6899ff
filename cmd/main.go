package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/momentumhq/momentum/internal/catalog"
	"github.com/momentumhq/momentum/internal/config"
	"github.com/momentumhq/momentum/internal/limits"
	"github.com/momentumhq/momentum/internal/logging"
	"github.com/momentumhq/momentum/internal/metrics"
	"github.com/momentumhq/momentum/internal/postgres"
	"github.com/momentumhq/momentum/internal/quiz"
	"github.com/momentumhq/momentum/internal/quizcache"
	"github.com/momentumhq/momentum/internal/server"
	"github.com/momentumhq/momentum/internal/triviaapi"
	"github.com/momentumhq/momentum/internal/valkeyconn"
	"github.com/momentumhq/momentum/internal/verification"
	"github.com/momentumhq/momentum/internal/waitlist"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "MOMENTUM", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	trivia, err := triviaapi.New(triviaapi.Options{
		BaseURL: cfg.Quiz.Provider.BaseURL,
		Timeout: cfg.Quiz.Provider.Timeout(),
		Metrics: metricsRecorder,
	})
	if err != nil {
		logger.Error("unable to construct trivia client", slog.Any("error", err))
		os.Exit(1)
	}

	var closers []func(context.Context) error
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](shutdownCtx); err != nil {
				logger.Error("shutdown failed", slog.Any("error", err))
			}
		}
	}()

	db := openDatabase(ctx, logger.With(slog.String("agent", "database")), cfg.Database)
	if db != nil {
		closers = append(closers, func(context.Context) error {
			db.Close()
			return nil
		})
	}

	quizCache, cacheBackend := buildQuizCache(ctx, logger.With(slog.String("agent", "cache_factory")), cfg, db)
	if quizCache != nil {
		closers = append(closers, quizCache.Close)
	}

	resolver, err := quiz.NewResolver(quiz.Options{
		Provider:     trivia,
		Cache:        quizCache,
		ProviderTag:  cfg.Quiz.Provider.Tag,
		TTLSeconds:   cfg.Quiz.Cache.TTLSeconds,
		CacheTimeout: cfg.Quiz.Cache.Timeout(),
		Logger:       logger,
		Metrics:      metricsRecorder,
	})
	if err != nil {
		logger.Error("unable to construct quiz resolver", slog.Any("error", err))
		os.Exit(1)
	}

	builder, err := catalog.NewBuilder(trivia, cfg.Catalog, logger)
	if err != nil {
		logger.Error("unable to construct catalog builder", slog.Any("error", err))
		os.Exit(1)
	}

	var users verification.Repository
	if db != nil {
		users = db.Users()
	}
	verifier := verification.NewService(users, logger)
	guard := verification.NewSecretGuard(cfg.Verification.BotSecret)
	if !guard.Configured() {
		logger.Warn("verification bot secret not configured; mark-verified will answer 403")
	}

	limitStore := buildLimitsStore(ctx, logger.With(slog.String("agent", "limits_factory")), cfg)
	closers = append(closers, limitStore.Close)

	signups, err := buildWaitlist(cfg.Waitlist, limitStore, db, logger, metricsRecorder)
	if err != nil {
		logger.Error("unable to construct waitlist", slog.Any("error", err))
		os.Exit(1)
	}

	if len(loader.Files()) > 0 {
		watcher, err := loader.Watch(ctx, func(next config.Config) {
			applyReload(logger, next, guard, builder)
		}, func(err error) {
			logger.Error("config reload failed; keeping previous settings", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("config watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	handler := server.NewHandler(server.Dependencies{
		Quizzes:           resolver,
		Catalog:           builder,
		Verifier:          verifier,
		Secret:            guard,
		Waitlist:          signups,
		CacheBackend:      cacheBackend,
		CorrelationHeader: cfg.Server.Logging.CorrelationHeader,
		Metrics:           metricsRecorder,
		Logger:            logger,
	})

	srv, err := server.New(cfg, logger, handler)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server starting",
		slog.String("address", cfg.Server.Listen.Address),
		slog.Int("port", cfg.Server.Listen.Port),
		slog.String("quiz_cache", cacheBackend),
	)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// applyReload pushes the hot-reloadable subset of next into the running
// components. Listener, cache and database settings need a restart.
func applyReload(logger *slog.Logger, next config.Config, guard *verification.SecretGuard, builder *catalog.Builder) {
	guard.Set(next.Verification.BotSecret)
	if err := builder.Reload(next.Catalog); err != nil {
		logger.Error("catalog reload rejected; keeping previous settings", slog.Any("error", err))
		return
	}
	logger.Info("configuration reloaded", slog.Any("sources", next.Sources))
}

func openDatabase(ctx context.Context, logger *slog.Logger, cfg config.DatabaseConfig) *postgres.DB {
	if strings.TrimSpace(cfg.URL) == "" {
		logger.Info("database not configured; verification disabled and waitlist kept in memory")
		return nil
	}
	db, err := postgres.Open(ctx, postgres.Options{
		URL:      cfg.URL,
		MaxConns: cfg.MaxConns,
		Migrate:  cfg.Migrate,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("database initialization failed", slog.Any("error", err))
		return nil
	}
	return db
}

func redisConn(cfg config.RedisConfig) valkeyconn.Config {
	return valkeyconn.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		TLS: valkeyconn.TLSConfig{
			Enabled: cfg.TLS.Enabled,
			CAFile:  cfg.TLS.CAFile,
		},
	}
}

// buildQuizCache returns the configured store and the backend name reported
// by /healthz. A backend that fails to initialize disables caching.
func buildQuizCache(ctx context.Context, logger *slog.Logger, cfg config.Config, db *postgres.DB) (quizcache.Store, string) {
	backend := cfg.ResolveCacheBackend()
	var (
		store quizcache.Store
		err   error
	)
	switch backend {
	case config.CacheBackendNone:
		logger.Info("quiz cache disabled")
		return nil, config.CacheBackendNone
	case config.CacheBackendMemory:
		store = quizcache.NewMemory(quizcache.MemoryOptions{MaxEntries: cfg.Quiz.Cache.Memory.MaxEntries})
	case config.CacheBackendRedis:
		store, err = quizcache.NewRedis(ctx, quizcache.RedisConfig{
			Config:    redisConn(cfg.Quiz.Cache.Redis),
			KeyPrefix: cfg.Quiz.Cache.Redis.KeyPrefix,
		})
	case config.CacheBackendPostgres:
		if db == nil {
			err = errors.New("database unavailable")
		} else {
			store = db.QuizCache()
		}
	case config.CacheBackendSQLite:
		store, err = quizcache.NewSQLite(ctx, cfg.Quiz.Cache.SQLite.Path)
	default:
		err = fmt.Errorf("unsupported backend %q", backend)
	}
	if err != nil {
		logger.Error("quiz cache initialization failed; caching disabled",
			slog.String("backend", backend),
			slog.Any("error", err),
		)
		return nil, config.CacheBackendNone
	}
	logger.Info("quiz cache ready", slog.String("backend", backend))
	return store, backend
}

// buildLimitsStore backs the waitlist limiter and deduper. Redis falls back
// to memory when it is not configured or unreachable.
func buildLimitsStore(ctx context.Context, logger *slog.Logger, cfg config.Config) limits.Store {
	if strings.EqualFold(strings.TrimSpace(cfg.Waitlist.Store), "redis") {
		if strings.TrimSpace(cfg.Quiz.Cache.Redis.Address) == "" {
			logger.Warn("waitlist.store is redis but no redis address is configured; using memory")
		} else {
			store, err := limits.NewValkey(ctx, limits.ValkeyOptions{
				Config:    redisConn(cfg.Quiz.Cache.Redis),
				KeyPrefix: "momentum:limits:",
			})
			if err == nil {
				logger.Info("using redis limits store", slog.String("address", cfg.Quiz.Cache.Redis.Address))
				return store
			}
			logger.Error("redis limits store initialization failed; using memory", slog.Any("error", err))
		}
	}
	return limits.NewMemory(limits.MemoryOptions{})
}

func buildWaitlist(cfg config.WaitlistConfig, store limits.Store, db *postgres.DB, logger *slog.Logger, recorder *metrics.Recorder) (*waitlist.Service, error) {
	opts := waitlist.Options{
		Logger:  logger,
		Metrics: recorder,
	}
	if db != nil {
		opts.Repository = db.Waitlist()
	} else {
		opts.Repository = waitlist.NewMemoryRepository()
	}
	if cfg.RateLimit.Requests > 0 && cfg.RateLimit.WindowSeconds > 0 {
		limiter, err := limits.NewRateLimiter(store, "waitlist:ip:", cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
		opts.Limiter = limiter
	}
	if cfg.DedupTTLSeconds > 0 {
		deduper, err := limits.NewDeduper(store, "waitlist:seen:", time.Duration(cfg.DedupTTLSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
		opts.Deduper = deduper
	}
	return waitlist.NewService(opts)
}
