// Package api is the typed REST client for the dashboard server.
package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/logging"
	"github.com/grovetools/livesync/version"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is used when no server URL is configured.
const DefaultBaseURL = "http://127.0.0.1:3847"

// DefaultRetryDelay is the first backoff delay between retries.
const DefaultRetryDelay = 200 * time.Millisecond

// Client calls the dashboard REST API.
type Client struct {
	baseURL    string
	token      string
	sessionID  string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets how many times a request is retried after a network error,
// a 429 or a 5xx, and the first backoff delay.
func WithRetries(max int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		c.baseDelay = baseDelay
	}
}

// WithSessionID tags every request with the owning session.
func WithSessionID(id string) Option {
	return func(c *Client) {
		c.sessionID = id
	}
}

// WithLogger overrides the client's logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: 2,
		baseDelay:  DefaultRetryDelay,
		maxDelay:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewLogger("api")
	}
	return c
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the configured bearer token.
func (c *Client) Token() string {
	return c.token
}

// Header returns the headers a long-lived stream request should carry.
func (c *Client) Header() http.Header {
	h := http.Header{}
	h.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	if c.sessionID != "" {
		h.Set("X-Livesync-Session", c.sessionID)
	}
	return h
}

// do performs a request and returns the raw 2xx body. Network errors, 429 and
// 5xx responses are retried with exponential backoff honoring Retry-After.
func (c *Client) do(ctx context.Context, method, requestPath string, body any) ([]byte, error) {
	op := method + " " + stripQuery(requestPath)

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode request body")
		}
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to create request")
		}
		for key, values := range c.Header() {
			req.Header[key] = values
		}
		req.Header.Set("X-Correlation-Id", uuid.NewString())
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < c.maxRetries {
				c.logger.WithError(err).WithField("op", op).Debug("Request failed, retrying")
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, errors.Transient(op, err)
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, errors.Transient(op, readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return payload, nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			c.logger.WithFields(logrus.Fields{
				"op":     op,
				"status": resp.StatusCode,
			}).Debug("Server error, retrying")
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		var errPayload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		msg := errPayload.Error
		if msg == "" {
			msg = errPayload.Message
		}
		return nil, errors.HTTPStatus(op, resp.StatusCode, msg)
	}
}

// doJSON performs a request and decodes the response into out.
func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	payload, err := c.do(ctx, method, requestPath, body)
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Malformed(stripQuery(requestPath), err)
	}
	return nil
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func stripQuery(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}
