package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds every option the service reads at startup. A subset (catalog
// presentation and the verification secret) is re-applied on file reloads.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Quiz         QuizConfig         `koanf:"quiz"`
	Database     DatabaseConfig     `koanf:"database"`
	Catalog      CatalogConfig      `koanf:"catalog"`
	Verification VerificationConfig `koanf:"verification"`
	Waitlist     WaitlistConfig     `koanf:"waitlist"`

	// Sources records the files that contributed to this snapshot so the
	// watcher knows what to observe. It never comes from input documents.
	Sources []string `koanf:"-"`
}

// ServerConfig collects listener and logging knobs.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation ID wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// QuizConfig groups the question provider and the read-through cache.
type QuizConfig struct {
	Provider ProviderConfig  `koanf:"provider"`
	Cache    QuizCacheConfig `koanf:"cache"`
}

// ProviderConfig addresses the external trivia API.
type ProviderConfig struct {
	BaseURL        string `koanf:"baseURL"`
	Tag            string `koanf:"tag"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
}

// Timeout converts the configured seconds into a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

type QuizCacheConfig struct {
	Backend        string            `koanf:"backend"`
	TTLSeconds     int               `koanf:"ttlSeconds"`
	TimeoutSeconds int               `koanf:"timeoutSeconds"`
	Redis          RedisConfig       `koanf:"redis"`
	SQLite         SQLiteCacheConfig `koanf:"sqlite"`
	Memory         MemoryCacheConfig `koanf:"memory"`
}

type MemoryCacheConfig struct {
	MaxEntries int `koanf:"maxEntries"`
}

// Timeout converts the configured seconds into a duration.
func (c QuizCacheConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type RedisConfig struct {
	Address   string         `koanf:"address"`
	Username  string         `koanf:"username"`
	Password  string         `koanf:"password"`
	DB        int            `koanf:"db"`
	KeyPrefix string         `koanf:"keyPrefix"`
	TLS       RedisTLSConfig `koanf:"tls"`
}

type RedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

type SQLiteCacheConfig struct {
	Path string `koanf:"path"`
}

// DatabaseConfig points at the Postgres instance holding users, the waitlist
// and (optionally) the quiz cache table.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int    `koanf:"maxConns"`
	Migrate  bool   `koanf:"migrate"`
}

// CatalogConfig shapes the virtual collections listed by the catalog endpoint.
type CatalogConfig struct {
	MaxCategories       int      `koanf:"maxCategories"`
	QuestionCount       int      `koanf:"questionCount"`
	Difficulties        []string `koanf:"difficulties"`
	Sort                string   `koanf:"sort"`
	Filter              string   `koanf:"filter"`
	TitleTemplate       string   `koanf:"titleTemplate"`
	DescriptionTemplate string   `koanf:"descriptionTemplate"`
	CoverTemplate       string   `koanf:"coverTemplate"`
	CacheMaxAgeSeconds  int      `koanf:"cacheMaxAgeSeconds"`
}

type VerificationConfig struct {
	BotSecret string `koanf:"botSecret"`
}

type WaitlistConfig struct {
	Store           string          `koanf:"store"`
	RateLimit       RateLimitConfig `koanf:"rateLimit"`
	DedupTTLSeconds int             `koanf:"dedupTTLSeconds"`
}

type RateLimitConfig struct {
	Requests      int `koanf:"requests"`
	WindowSeconds int `koanf:"windowSeconds"`
}

// Cache backend names accepted by quiz.cache.backend.
const (
	CacheBackendAuto     = "auto"
	CacheBackendNone     = "none"
	CacheBackendMemory   = "memory"
	CacheBackendRedis    = "redis"
	CacheBackendPostgres = "postgres"
	CacheBackendSQLite   = "sqlite"
)

// ResolveCacheBackend turns "auto" into a concrete backend based on which
// credentials are present. Absent credentials select "none": caching is a
// feature that silently switches off, never a startup error.
func (c Config) ResolveCacheBackend() string {
	backend := strings.TrimSpace(strings.ToLower(c.Quiz.Cache.Backend))
	if backend != "" && backend != CacheBackendAuto {
		return backend
	}
	switch {
	case strings.TrimSpace(c.Quiz.Cache.Redis.Address) != "":
		return CacheBackendRedis
	case strings.TrimSpace(c.Database.URL) != "":
		return CacheBackendPostgres
	case strings.TrimSpace(c.Quiz.Cache.SQLite.Path) != "":
		return CacheBackendSQLite
	default:
		return CacheBackendNone
	}
}

// Validate enforces invariants that keep the runtime predictable before serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port < 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	switch strings.ToLower(c.Server.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: server.logging.level unsupported: %s", c.Server.Logging.Level)
	}
	switch strings.ToLower(c.Server.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: server.logging.format unsupported: %s", c.Server.Logging.Format)
	}
	if err := c.validateQuiz(); err != nil {
		return err
	}
	if c.Catalog.MaxCategories <= 0 {
		return fmt.Errorf("config: catalog.maxCategories invalid: %d", c.Catalog.MaxCategories)
	}
	if c.Catalog.QuestionCount <= 0 {
		return fmt.Errorf("config: catalog.questionCount invalid: %d", c.Catalog.QuestionCount)
	}
	if len(c.Catalog.Difficulties) == 0 {
		return errors.New("config: catalog.difficulties must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.Catalog.Sort)) {
	case "", "alphabetical":
	default:
		return fmt.Errorf("config: catalog.sort unsupported: %s", c.Catalog.Sort)
	}
	if c.Catalog.CacheMaxAgeSeconds < 0 {
		return fmt.Errorf("config: catalog.cacheMaxAgeSeconds invalid: %d", c.Catalog.CacheMaxAgeSeconds)
	}
	switch strings.ToLower(strings.TrimSpace(c.Waitlist.Store)) {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("config: waitlist.store unsupported: %s", c.Waitlist.Store)
	}
	if c.Waitlist.RateLimit.Requests < 0 || c.Waitlist.RateLimit.WindowSeconds < 0 {
		return errors.New("config: waitlist.rateLimit values must not be negative")
	}
	if c.Waitlist.DedupTTLSeconds < 0 {
		return fmt.Errorf("config: waitlist.dedupTTLSeconds invalid: %d", c.Waitlist.DedupTTLSeconds)
	}
	return nil
}

func (c *Config) validateQuiz() error {
	base := strings.TrimSpace(c.Quiz.Provider.BaseURL)
	if base == "" {
		return errors.New("config: quiz.provider.baseURL required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config: quiz.provider.baseURL invalid: %s", base)
	}
	if strings.TrimSpace(c.Quiz.Provider.Tag) == "" {
		return errors.New("config: quiz.provider.tag required")
	}
	if c.Quiz.Provider.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: quiz.provider.timeoutSeconds invalid: %d", c.Quiz.Provider.TimeoutSeconds)
	}
	if c.Quiz.Cache.TTLSeconds < 0 {
		return fmt.Errorf("config: quiz.cache.ttlSeconds invalid: %d", c.Quiz.Cache.TTLSeconds)
	}
	if c.Quiz.Cache.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: quiz.cache.timeoutSeconds invalid: %d", c.Quiz.Cache.TimeoutSeconds)
	}
	if c.Quiz.Cache.Memory.MaxEntries < 0 {
		return fmt.Errorf("config: quiz.cache.memory.maxEntries invalid: %d", c.Quiz.Cache.Memory.MaxEntries)
	}
	switch strings.TrimSpace(strings.ToLower(c.Quiz.Cache.Backend)) {
	case "", CacheBackendAuto, CacheBackendNone, CacheBackendMemory:
	case CacheBackendRedis:
		if strings.TrimSpace(c.Quiz.Cache.Redis.Address) == "" {
			return errors.New("config: quiz.cache.redis.address required for redis backend")
		}
	case CacheBackendPostgres:
		if strings.TrimSpace(c.Database.URL) == "" {
			return errors.New("config: database.url required for postgres backend")
		}
	case CacheBackendSQLite:
		if strings.TrimSpace(c.Quiz.Cache.SQLite.Path) == "" {
			return errors.New("config: quiz.cache.sqlite.path required for sqlite backend")
		}
	default:
		return fmt.Errorf("config: quiz.cache.backend unsupported: %s", c.Quiz.Cache.Backend)
	}
	return nil
}

// DefaultConfig returns the baseline values.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:             "info",
				Format:            "json",
				CorrelationHeader: "X-Request-ID",
			},
		},
		Quiz: QuizConfig{
			Provider: ProviderConfig{
				BaseURL:        "https://the-trivia-api.com/v2",
				Tag:            "the-trivia-api:v2",
				TimeoutSeconds: 5,
			},
			Cache: QuizCacheConfig{
				Backend:        CacheBackendAuto,
				TTLSeconds:     86400,
				TimeoutSeconds: 2,
				Redis: RedisConfig{
					KeyPrefix: "momentum:quiz:",
				},
				Memory: MemoryCacheConfig{
					MaxEntries: 10000,
				},
			},
		},
		Database: DatabaseConfig{
			MaxConns: 4,
			Migrate:  true,
		},
		Catalog: CatalogConfig{
			MaxCategories:       10,
			QuestionCount:       10,
			Difficulties:        []string{"easy", "medium", "hard"},
			TitleTemplate:       "{{ .Category }} ({{ .Difficulty }})",
			DescriptionTemplate: "{{ .QuestionCount }} {{ .Difficulty }} questions about {{ .Category }}.",
			CoverTemplate:       "https://picsum.photos/seed/{{ .Category | urlquery }}-{{ .Difficulty }}/640/360",
			CacheMaxAgeSeconds:  3600,
		},
		Waitlist: WaitlistConfig{
			Store: "memory",
			RateLimit: RateLimitConfig{
				Requests:      5,
				WindowSeconds: 60,
			},
			DedupTTLSeconds: 30 * 24 * 60 * 60,
		},
	}
}
