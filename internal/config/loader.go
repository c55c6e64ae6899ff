package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// envAliases lets operators use the short variable names the frontend
// deployment already exports instead of the nested form.
var envAliases = map[string]string{
	"databaseurl": "database.url",
	"botsecret":   "verification.botSecret",
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Files reports the configuration files the loader reads, skipping blanks.
func (l *Loader) Files() []string {
	out := make([]string, 0, len(l.files))
	for _, path := range l.files {
		if strings.TrimSpace(path) != "" {
			out = append(out, path)
		}
	}
	return out
}

// Load assembles the effective snapshot using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(DefaultConfig()), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	// Env keys arrive lower-cased; map them back onto the camelCase keys the
	// defaults declare so overrides land on the same path.
	canonical := make(map[string]string, len(k.Keys()))
	for _, key := range k.Keys() {
		canonical[strings.ToLower(key)] = key
	}

	for _, path := range l.Files() {
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		transform := func(s string) string {
			// Double underscores signal a nested path (SERVER__LISTEN__PORT -> server.listen.port).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			collapsed := strings.ReplaceAll(lower, "_", "")
			if mapped, ok := envAliases[collapsed]; ok {
				return mapped
			}
			if mapped, ok := canonical[collapsed]; ok {
				return mapped
			}
			return collapsed
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.Sources = l.Files()
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	difficulties := make([]any, 0, len(cfg.Catalog.Difficulties))
	for _, d := range cfg.Catalog.Difficulties {
		difficulties = append(difficulties, d)
	}
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":             cfg.Server.Logging.Level,
				"format":            cfg.Server.Logging.Format,
				"correlationHeader": cfg.Server.Logging.CorrelationHeader,
			},
		},
		"quiz": map[string]any{
			"provider": map[string]any{
				"baseURL":        cfg.Quiz.Provider.BaseURL,
				"tag":            cfg.Quiz.Provider.Tag,
				"timeoutSeconds": cfg.Quiz.Provider.TimeoutSeconds,
			},
			"cache": map[string]any{
				"backend":        cfg.Quiz.Cache.Backend,
				"ttlSeconds":     cfg.Quiz.Cache.TTLSeconds,
				"timeoutSeconds": cfg.Quiz.Cache.TimeoutSeconds,
				"redis": map[string]any{
					"address":   cfg.Quiz.Cache.Redis.Address,
					"username":  cfg.Quiz.Cache.Redis.Username,
					"password":  cfg.Quiz.Cache.Redis.Password,
					"db":        cfg.Quiz.Cache.Redis.DB,
					"keyPrefix": cfg.Quiz.Cache.Redis.KeyPrefix,
					"tls": map[string]any{
						"enabled": cfg.Quiz.Cache.Redis.TLS.Enabled,
						"caFile":  cfg.Quiz.Cache.Redis.TLS.CAFile,
					},
				},
				"sqlite": map[string]any{
					"path": cfg.Quiz.Cache.SQLite.Path,
				},
				"memory": map[string]any{
					"maxEntries": cfg.Quiz.Cache.Memory.MaxEntries,
				},
			},
		},
		"database": map[string]any{
			"url":      cfg.Database.URL,
			"maxConns": cfg.Database.MaxConns,
			"migrate":  cfg.Database.Migrate,
		},
		"catalog": map[string]any{
			"maxCategories":       cfg.Catalog.MaxCategories,
			"questionCount":       cfg.Catalog.QuestionCount,
			"difficulties":        difficulties,
			"sort":                cfg.Catalog.Sort,
			"filter":              cfg.Catalog.Filter,
			"titleTemplate":       cfg.Catalog.TitleTemplate,
			"descriptionTemplate": cfg.Catalog.DescriptionTemplate,
			"coverTemplate":       cfg.Catalog.CoverTemplate,
			"cacheMaxAgeSeconds":  cfg.Catalog.CacheMaxAgeSeconds,
		},
		"verification": map[string]any{
			"botSecret": cfg.Verification.BotSecret,
		},
		"waitlist": map[string]any{
			"store": cfg.Waitlist.Store,
			"rateLimit": map[string]any{
				"requests":      cfg.Waitlist.RateLimit.Requests,
				"windowSeconds": cfg.Waitlist.RateLimit.WindowSeconds,
			},
			"dedupTTLSeconds": cfg.Waitlist.DedupTTLSeconds,
		},
	}
}
