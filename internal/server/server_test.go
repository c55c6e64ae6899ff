package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentumhq/momentum/internal/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func loopbackConfig(port int) config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Listen.Address = "127.0.0.1"
	cfg.Server.Listen.Port = port
	return cfg
}

func TestNewRequiresHandler(t *testing.T) {
	_, err := New(config.DefaultConfig(), newTestLogger(), nil)
	require.Error(t, err)
}

func TestNewUsesConfiguredAddressAndTimeouts(t *testing.T) {
	srv, err := New(loopbackConfig(9090), newTestLogger(), http.NewServeMux())
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", srv.Addr())
	require.Equal(t, 10*time.Second, srv.httpServer.ReadHeaderTimeout)
	require.Equal(t, 30*time.Second, srv.httpServer.WriteTimeout)
}

// startServer runs srv in the background and waits for the listener to bind.
func startServer(t *testing.T, srv *Server) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		_, port, err := net.SplitHostPort(srv.Addr())
		return err == nil && port != "0"
	}, 2*time.Second, 10*time.Millisecond)
	return cancel, done
}

func TestRunServesUntilCancelled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv, err := New(loopbackConfig(0), newTestLogger(), handler)
	require.NoError(t, err)

	cancel, done := startServer(t, srv)

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not return after cancellation")
	}
}

func TestRunDrainsInFlightRequests(t *testing.T) {
	entered := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	srv, err := New(loopbackConfig(0), newTestLogger(), handler)
	require.NoError(t, err)

	cancel, done := startServer(t, srv)

	status := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + srv.Addr() + "/slow")
		if err != nil {
			status <- 0
			return
		}
		_ = resp.Body.Close()
		status <- resp.StatusCode
	}()

	<-entered
	cancel()
	require.Equal(t, http.StatusOK, <-status)
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRunReportsBindFailure(t *testing.T) {
	var lc net.ListenConfig
	taken, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = taken.Close() })
	port := taken.Addr().(*net.TCPAddr).Port

	srv, err := New(loopbackConfig(port), newTestLogger(), http.NewServeMux())
	require.NoError(t, err)

	err = srv.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "server: listen")
}
