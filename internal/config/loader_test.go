package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoader(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) []string
		wantErr bool
		assert  func(t *testing.T, cfg Config)
	}{
		{
			name:  "returns defaults when no overrides",
			setup: func(t *testing.T) []string { return nil },
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 8080, cfg.Server.Listen.Port)
				require.Equal(t, 86400, cfg.Quiz.Cache.TTLSeconds)
				require.Equal(t, "the-trivia-api:v2", cfg.Quiz.Provider.Tag)
				require.Equal(t, []string{"easy", "medium", "hard"}, cfg.Catalog.Difficulties)
				require.Equal(t, CacheBackendNone, cfg.ResolveCacheBackend())
				require.Empty(t, cfg.Sources)
			},
		},
		{
			name: "merges yaml overrides",
			setup: func(t *testing.T) []string {
				return []string{writeFile(t, "server.yaml", "server:\n  listen:\n    port: 9090\ncatalog:\n  sort: alphabetical\n")}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9090, cfg.Server.Listen.Port)
				require.Equal(t, "alphabetical", cfg.Catalog.Sort)
				require.Len(t, cfg.Sources, 1)
			},
		},
		{
			name: "merges json overrides",
			setup: func(t *testing.T) []string {
				return []string{writeFile(t, "server.json", `{"quiz":{"cache":{"ttlSeconds":60,"backend":"memory"}}}`)}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 60, cfg.Quiz.Cache.TTLSeconds)
				require.Equal(t, CacheBackendMemory, cfg.ResolveCacheBackend())
			},
		},
		{
			name: "merges toml overrides",
			setup: func(t *testing.T) []string {
				return []string{writeFile(t, "server.toml", "[verification]\nbotSecret = \"from-toml\"\n")}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "from-toml", cfg.Verification.BotSecret)
			},
		},
		{
			name: "prefers env overrides",
			setup: func(t *testing.T) []string {
				path := writeFile(t, "server.yaml", "server:\n  listen:\n    port: 9090\n")
				t.Setenv("MOMENTUM_SERVER__LISTEN__PORT", "9091")
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9091, cfg.Server.Listen.Port)
			},
		},
		{
			name: "maps camelCase keys from env",
			setup: func(t *testing.T) []string {
				t.Setenv("MOMENTUM_QUIZ__CACHE__TTLSECONDS", "120")
				t.Setenv("MOMENTUM_QUIZ__CACHE__REDIS__KEY_PREFIX", "test:")
				return nil
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 120, cfg.Quiz.Cache.TTLSeconds)
				require.Equal(t, "test:", cfg.Quiz.Cache.Redis.KeyPrefix)
			},
		},
		{
			name: "accepts short env aliases",
			setup: func(t *testing.T) []string {
				t.Setenv("MOMENTUM_DATABASE_URL", "postgres://momentum@localhost/momentum")
				t.Setenv("MOMENTUM_BOT_SECRET", "s3cret")
				return nil
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "postgres://momentum@localhost/momentum", cfg.Database.URL)
				require.Equal(t, "s3cret", cfg.Verification.BotSecret)
				require.Equal(t, CacheBackendPostgres, cfg.ResolveCacheBackend())
			},
		},
		{
			name: "fails when file missing",
			setup: func(t *testing.T) []string {
				return []string{filepath.Join(t.TempDir(), "missing.yaml")}
			},
			wantErr: true,
		},
		{
			name: "fails on unsupported extension",
			setup: func(t *testing.T) []string {
				return []string{writeFile(t, "server.ini", "port=1")}
			},
			wantErr: true,
		},
		{
			name: "fails validation",
			setup: func(t *testing.T) []string {
				return []string{writeFile(t, "server.yaml", "quiz:\n  cache:\n    backend: memcached\n")}
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files := tc.setup(t)
			loader := NewLoader("MOMENTUM", files...)
			cfg, err := loader.Load(context.Background())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.assert != nil {
				tc.assert(t, cfg)
			}
		})
	}
}

func TestLoaderHonoursCancelledContext(t *testing.T) {
	path := writeFile(t, "server.yaml", "server:\n  listen:\n    port: 9090\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader("MOMENTUM", path).Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
