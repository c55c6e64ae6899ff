// Package triviaapi talks to the external trivia question provider: the
// question endpoint feeding the quiz resolver and the category taxonomy
// feeding the catalog.
package triviaapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/momentumhq/momentum/internal/metrics"
)

const maxBodyBytes = 1 << 20

// DefaultTimeout bounds each request when Options.Timeout is unset.
const DefaultTimeout = 5 * time.Second

// ErrUpstream marks failures where the provider answered with a non-success
// status. Callers surface these as gateway errors and never retry them.
var ErrUpstream = errors.New("triviaapi: upstream unavailable")

// StatusError records the endpoint and status of a non-success response.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("triviaapi: %s responded with status %d", e.Endpoint, e.StatusCode)
}

// Is lets errors.Is(err, ErrUpstream) match any StatusError.
func (e *StatusError) Is(target error) bool { return target == ErrUpstream }

// Doer is the minimal HTTP client contract the provider client needs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient Doer
	Timeout    time.Duration
	Metrics    *metrics.Recorder
}

// Client issues provider requests. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	doer    Doer
	timeout time.Duration
	metrics *metrics.Recorder
}

// New validates the base URL and prepares a client. A nil HTTPClient falls
// back to a dedicated http.Client so the default transport's lack of a
// timeout never leaks in.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("triviaapi: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("triviaapi: base url %q must be absolute", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	doer := opts.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: base,
		doer:    doer,
		timeout: timeout,
		metrics: opts.Metrics,
	}, nil
}

// QuestionQuery selects questions. Empty filters are omitted from the request.
type QuestionQuery struct {
	Limit        int
	Categories   string
	Difficulties string
}

// Questions fetches raw questions matching the query.
func (c *Client) Questions(ctx context.Context, q QuestionQuery) ([]RawQuestion, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.Categories != "" {
		params.Set("categories", q.Categories)
	}
	if q.Difficulties != "" {
		params.Set("difficulties", q.Difficulties)
	}

	var out []RawQuestion
	err := c.get(ctx, "questions", params, func(body io.Reader) error {
		if err := json.NewDecoder(body).Decode(&out); err != nil {
			return fmt.Errorf("triviaapi: decode questions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Categories fetches the category taxonomy in the order the provider lists it.
func (c *Client) Categories(ctx context.Context) (Taxonomy, error) {
	var out Taxonomy
	err := c.get(ctx, "categories", nil, func(body io.Reader) error {
		taxonomy, err := decodeTaxonomy(body)
		if err != nil {
			return fmt.Errorf("triviaapi: decode categories: %w", err)
		}
		out = taxonomy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, decode func(io.Reader) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL.JoinPath(endpoint)
	if len(params) > 0 {
		target.RawQuery = params.Encode()
	}

	start := time.Now()
	result := metrics.UpstreamResultError
	defer func() {
		c.metrics.ObserveUpstream(endpoint, result, time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("triviaapi: build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("triviaapi: %s request: %w", endpoint, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("triviaapi: %s close: %w", endpoint, closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		result = metrics.UpstreamResultStatus
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if err := decode(io.LimitReader(resp.Body, maxBodyBytes)); err != nil {
		return err
	}
	result = metrics.UpstreamResultOK
	return nil
}
