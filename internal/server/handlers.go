package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/momentumhq/momentum/internal/catalog"
	"github.com/momentumhq/momentum/internal/triviaapi"
	"github.com/momentumhq/momentum/internal/verification"
	"github.com/momentumhq/momentum/internal/waitlist"
)

const (
	maxBodyBytes = 16 << 10
	secretHeader = "X-Bot-Secret"
)

type handlers struct {
	deps   Dependencies
	logger *slog.Logger
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (h *handlers) serveQuiz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Quizzes == nil {
		writeError(w, http.StatusServiceUnavailable, "quiz resolver unavailable")
		return
	}
	result, err := h.deps.Quizzes.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}
	w.Header().Set("X-Cache", string(result.Cache))
	writeJSON(w, http.StatusOK, result.Quiz)
}

func (h *handlers) serveCatalog(w http.ResponseWriter, r *http.Request) {
	if h.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}
	items, err := h.deps.Catalog.List(r.Context())
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}
	if items == nil {
		items = []catalog.Collection{}
	}
	w.Header().Set("Cache-Control", h.deps.Catalog.CacheControl())
	writeJSON(w, http.StatusOK, struct {
		Items []catalog.Collection `json:"items"`
	}{Items: items})
}

// writeUpstreamError maps provider failures to 502 and everything else to 500.
func (h *handlers) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, triviaapi.ErrUpstream) {
		status = http.StatusBadGateway
	}
	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Any("error", err),
	)
	writeError(w, status, err.Error())
}

func (h *handlers) serveMarkVerified(w http.ResponseWriter, r *http.Request) {
	// The body stays unread until the caller is authenticated.
	if h.deps.Secret == nil || !h.deps.Secret.Allow(r.Header.Get(secretHeader)) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if h.deps.Verifier == nil {
		writeError(w, http.StatusInternalServerError, verification.ErrNotConfigured.Error())
		return
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := h.deps.Verifier.MarkVerified(r.Context(), body.Email)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	case errors.Is(err, verification.ErrEmailRequired):
		writeError(w, http.StatusBadRequest, "email required")
	case errors.Is(err, verification.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	default:
		h.logger.ErrorContext(r.Context(), "mark verified failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handlers) serveWaitlist(w http.ResponseWriter, r *http.Request) {
	if h.deps.Waitlist == nil {
		writeError(w, http.StatusServiceUnavailable, "waitlist unavailable")
		return
	}
	var body struct {
		Email  string `json:"email"`
		Source string `json:"source"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	_, err := h.deps.Waitlist.Join(r.Context(), waitlist.Request{
		Email:    body.Email,
		Source:   body.Source,
		ClientIP: clientIP(r),
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	case errors.Is(err, waitlist.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "invalid email")
	case errors.Is(err, waitlist.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many requests")
	default:
		h.logger.ErrorContext(r.Context(), "waitlist signup failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not save signup")
	}
}

func (h *handlers) serveHealth(w http.ResponseWriter, _ *http.Request) {
	backend := h.deps.CacheBackend
	if backend == "" {
		backend = "none"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"cache":  backend,
	})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// clientIP prefers the first X-Forwarded-For hop since the service runs
// behind the hosting platform's proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{OK: false, Error: message})
}
