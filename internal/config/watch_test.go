package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("verification:\n  botSecret: v1\n"), 0o600))

	loader := NewLoader("", path)
	changeCh := make(chan Config, 4)
	errCh := make(chan error, 4)

	watcher, err := loader.Watch(ctx, func(cfg Config) {
		changeCh <- cfg
	}, func(err error) {
		errCh <- err
	})
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(path, []byte("verification:\n  botSecret: v2\n"), 0o600))

	select {
	case cfg := <-changeCh:
		require.Equal(t, "v2", cfg.Verification.BotSecret)
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	require.NoError(t, os.WriteFile(path, []byte("quiz:\n  cache:\n    backend: memcached\n"), 0o600))

	select {
	case err := <-errCh:
		require.ErrorContains(t, err, "quiz.cache.backend unsupported")
	case cfg := <-changeCh:
		t.Fatalf("invalid config should not be delivered: %#v", cfg.Quiz.Cache)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload error")
	}
}

func TestWatchRequiresFilesAndCallback(t *testing.T) {
	_, err := NewLoader("MOMENTUM").Watch(context.Background(), func(Config) {}, nil)
	require.Error(t, err)

	_, err = NewLoader("MOMENTUM", "server.yaml").Watch(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen:\n    port: 8081\n"), 0o600))

	watcher, err := NewLoader("", path).Watch(context.Background(), func(Config) {}, nil)
	require.NoError(t, err)
	watcher.Stop()
	watcher.Stop()

	var nilWatcher *Watcher
	nilWatcher.Stop()
}
