// Package mes is the HTTP layer for the MasterControl manufacturing
// execution API: a retrying GET client and a paginated fetcher built on it.
package mes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultRetries   = 3
	defaultBaseDelay = 200 * time.Millisecond
	defaultTimeout   = 10 * time.Second

	snippetLimit = 200
)

// RequestError is returned when a GET gives up: either a non-retryable 4xx
// or exhausted retries on transient failures.
type RequestError struct {
	URL        string
	Attempts   int
	LastStatus int // 0 when the failure never produced a response
	Snippet    string
	Elapsed    time.Duration
	Err        error
}

func (e *RequestError) Error() string {
	if e.LastStatus != 0 {
		return fmt.Sprintf("GET %s failed after %d attempt(s): status %d", e.URL, e.Attempts, e.LastStatus)
	}
	return fmt.Sprintf("GET %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Client issues GET requests against the MES API with bounded retries,
// exponential backoff and a per-attempt timeout. It holds no state between
// calls.
type Client struct {
	baseURL    string
	token      string
	cookie     string
	httpClient *http.Client
	retries    int
	baseDelay  time.Duration
	timeout    time.Duration
	notifier   Notifier
	logger     *slog.Logger

	// sleep is swapped out in tests so retry timing can be asserted
	// without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option adjusts a Client at construction time.
type Option func(*Client)

// WithRetries sets the number of attempts per logical GET.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithBackoff sets the base delay for exponential backoff between attempts.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithNotifier routes retry-exhaustion events to the given notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// withSleep replaces the backoff sleep. Tests only.
func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a Client for the given API base URL. Token and cookie
// are sent on every request; either may be empty.
func NewClient(baseURL, token, cookie string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		cookie:     cookie,
		httpClient: &http.Client{},
		retries:    defaultRetries,
		baseDelay:  defaultBaseDelay,
		timeout:    defaultTimeout,
		logger:     slog.Default(),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = LogNotifier{Logger: c.logger}
	}
	return c
}

// Get performs one logical GET against path with the given query params.
// Network errors, timeouts and 5xx responses are retried up to the
// configured attempt count; 4xx responses fail immediately. On final
// failure a *RequestError is returned and a failure Event is emitted.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	start := time.Now()
	var lastStatus int
	var lastSnippet string
	var lastErr error

	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(c.baseDelay) * math.Pow(2, float64(attempt-1)))
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		body, status, err := c.doGet(ctx, reqURL)
		switch {
		case err != nil:
			lastErr = err
			lastStatus = 0
			lastSnippet = ""
			c.logger.Warn("request failed", "url", reqURL, "attempt", attempt+1, "error", err)
		case status >= 500:
			lastErr = fmt.Errorf("server error: status %d", status)
			lastStatus = status
			lastSnippet = snippet(body)
			c.logger.Warn("request failed", "url", reqURL, "attempt", attempt+1, "status", status)
		case status >= 400:
			// Client errors are not transient; do not retry.
			reqErr := &RequestError{
				URL:        reqURL,
				Attempts:   attempt + 1,
				LastStatus: status,
				Snippet:    snippet(body),
				Elapsed:    time.Since(start),
				Err:        fmt.Errorf("client error: status %d", status),
			}
			c.notify(reqErr)
			return nil, reqErr
		default:
			return body, nil
		}
	}

	reqErr := &RequestError{
		URL:        reqURL,
		Attempts:   c.retries,
		LastStatus: lastStatus,
		Snippet:    lastSnippet,
		Elapsed:    time.Since(start),
		Err:        lastErr,
	}
	c.notify(reqErr)
	return nil, reqErr
}

func (c *Client) doGet(ctx context.Context, reqURL string) ([]byte, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) notify(reqErr *RequestError) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(Event{
		URL:        reqErr.URL,
		Attempts:   reqErr.Attempts,
		LastStatus: reqErr.LastStatus,
		Snippet:    reqErr.Snippet,
		Elapsed:    reqErr.Elapsed,
		At:         time.Now().UTC(),
	})
}

func snippet(body []byte) string {
	s := string(body)
	if len(s) > snippetLimit {
		s = s[:snippetLimit]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
