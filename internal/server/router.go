package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/momentumhq/momentum/internal/catalog"
	"github.com/momentumhq/momentum/internal/metrics"
	"github.com/momentumhq/momentum/internal/quiz"
	"github.com/momentumhq/momentum/internal/waitlist"
)

// QuizResolver serves GET /api/db/quizzes/{id}.
type QuizResolver interface {
	Resolve(ctx context.Context, id string) (quiz.Result, error)
}

// CatalogLister serves GET /api/db/quizzes.
type CatalogLister interface {
	List(ctx context.Context) ([]catalog.Collection, error)
	CacheControl() string
}

// Verifier flips a user to verified.
type Verifier interface {
	MarkVerified(ctx context.Context, email string) error
}

// SecretChecker authenticates the verification bot.
type SecretChecker interface {
	Allow(presented string) bool
}

// WaitlistJoiner serves POST /api/waitlist.
type WaitlistJoiner interface {
	Join(ctx context.Context, req waitlist.Request) (waitlist.Outcome, error)
}

// Dependencies lists what the router dispatches to. A nil collaborator makes
// its routes answer 503.
type Dependencies struct {
	Quizzes  QuizResolver
	Catalog  CatalogLister
	Verifier Verifier
	Secret   SecretChecker
	Waitlist WaitlistJoiner

	// CacheBackend is reported by /healthz.
	CacheBackend      string
	CorrelationHeader string
	Metrics           *metrics.Recorder
	Logger            *slog.Logger
}

// NewHandler builds the public HTTP surface and wraps it with correlation,
// access logging and request metrics.
func NewHandler(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handlers{
		deps:   deps,
		logger: logger.With(slog.String("agent", "http")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/db/quizzes/{id}", h.serveQuiz)
	mux.HandleFunc("GET /api/db/quizzes", h.serveCatalog)
	mux.HandleFunc("POST /api/admin/mark-verified", h.serveMarkVerified)
	mux.HandleFunc("POST /api/waitlist", h.serveWaitlist)
	mux.HandleFunc("GET /healthz", h.serveHealth)
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	header := strings.TrimSpace(deps.CorrelationHeader)
	if header == "" {
		header = "X-Request-ID"
	}
	return &instrumented{
		next:              mux,
		logger:            h.logger,
		metrics:           deps.Metrics,
		correlationHeader: header,
	}
}
