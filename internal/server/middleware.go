package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/momentumhq/momentum/internal/metrics"
)

type correlationKey struct{}

// CorrelationID returns the request's correlation id, if any.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

type instrumented struct {
	next              http.Handler
	logger            *slog.Logger
	metrics           *metrics.Recorder
	correlationHeader string
}

func (m *instrumented) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := strings.TrimSpace(r.Header.Get(m.correlationHeader))
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(m.correlationHeader, id)
	r = r.WithContext(context.WithValue(r.Context(), correlationKey{}, id))

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	m.next.ServeHTTP(rec, r)

	latency := time.Since(start)
	// ServeMux records the matched pattern on the request it was handed.
	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	m.metrics.ObserveHTTP(route, rec.status, latency)
	m.logger.InfoContext(r.Context(), "request completed",
		slog.String("correlation_id", id),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.status),
		slog.Duration("latency", latency),
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
