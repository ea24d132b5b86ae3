package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matzehuels/gemmirror/pkg/buildinfo"
	"github.com/matzehuels/gemmirror/pkg/errors"
	"github.com/matzehuels/gemmirror/pkg/observability"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
	defaultDelay    = time.Second
)

// HTTP fetches resources over HTTP(S).
type HTTP struct {
	client   *http.Client
	attempts int
	delay    time.Duration
	headers  map[string]string
}

// Option configures an [HTTP] fetcher.
type Option func(*HTTP)

// WithClient replaces the underlying HTTP client.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTP) { h.client.Timeout = d }
}

// WithRetry sets the number of attempts and the initial backoff delay.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(h *HTTP) {
		h.attempts = attempts
		h.delay = delay
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(h *HTTP) { h.headers[key] = value }
}

// NewHTTP returns an HTTP fetcher with a 30s timeout and three attempts
// starting at a one second backoff.
func NewHTTP(opts ...Option) *HTTP {
	h := &HTTP{
		client:   &http.Client{Timeout: defaultTimeout},
		attempts: defaultAttempts,
		delay:    defaultDelay,
		headers:  map[string]string{"User-Agent": buildinfo.UserAgent()},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch downloads remote into dst at p, retrying transient failures.
func (h *HTTP) Fetch(ctx context.Context, remote string, dst Writer, p string) error {
	if err := errors.ValidateURL(remote); err != nil {
		return err
	}
	return Retry(ctx, h.attempts, h.delay, func() error {
		return h.fetchOnce(ctx, remote, dst, p)
	})
}

func (h *HTTP) fetchOnce(ctx context.Context, remote string, dst Writer, p string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remote, nil)
	if err != nil {
		return err
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	host, path := target(req.URL)
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := h.client.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		return fmt.Errorf("GET %s: %w", remote, err)
	}

	body := &bodyReader{r: resp.Body}
	if err := dst.Write(p, body); err != nil {
		if body.err != nil && ctx.Err() == nil {
			hooks.OnError(ctx, req.Method, host, path, body.err)
			return &RetryableError{Err: fmt.Errorf("%w: read %s: %v", ErrNetwork, remote, body.err)}
		}
		return err
	}
	return nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return &RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, code)}
	default:
		return fmt.Errorf("%w: %d", ErrStatus, code)
	}
}

func target(u *url.URL) (host, path string) {
	return u.Host, u.Path
}

// bodyReader remembers the first read error so transfer failures can be
// told apart from storage failures.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && b.err == nil {
		b.err = err
	}
	return n, err
}
