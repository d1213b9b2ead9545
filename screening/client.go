// Package screening is a client for the external sanctions screening service.
package screening

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/micromdm/nanoscreen/log/logkeys"

	"github.com/micromdm/nanolib/log"
)

var (
	// ErrUnavailable indicates the screening service could not be
	// reached or kept failing after all retries.
	ErrUnavailable = errors.New("screening service unavailable")

	// ErrBadResponse indicates a non-retryable error status or an
	// undecodable response body.
	ErrBadResponse = errors.New("bad screening response")
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetries    = 3
	DefaultBackoffMin = 500 * time.Millisecond
	DefaultBackoffMax = 8 * time.Second
)

// maxBodySize limits the response body read.
const maxBodySize = 1 << 20

// Client screens addresses against the screening service.
// It is safe for concurrent use and is intended to be shared.
type Client struct {
	url    string
	client *retryablehttp.Client
}

type config struct {
	timeout    time.Duration
	retries    int
	backoffMin time.Duration
	backoffMax time.Duration
	httpClient *http.Client
	logger     log.Logger
}

// Option configures the client.
type Option func(*config)

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRetries sets the number of retries after the first attempt.
func WithRetries(n int) Option {
	return func(c *config) {
		c.retries = n
	}
}

// WithBackoff sets the exponential backoff bounds between attempts.
func WithBackoff(min, max time.Duration) Option {
	return func(c *config) {
		c.backoffMin = min
		c.backoffMax = max
	}
}

// WithHTTPClient sets the underlying HTTP client.
// Its Timeout is overwritten by the configured per-attempt timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithLogger sets the logger for retry attempts.
func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New creates a new screening client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parsing screening url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid screening url scheme: %q", u.Scheme)
	}

	cfg := &config{
		timeout:    DefaultTimeout,
		retries:    DefaultRetries,
		backoffMin: DefaultBackoffMin,
		backoffMax: DefaultBackoffMax,
		logger:     log.NopLogger,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.retries < 0 {
		cfg.retries = 0
	}

	rc := retryablehttp.NewClient()
	if cfg.httpClient != nil {
		rc.HTTPClient = cfg.httpClient
	}
	rc.HTTPClient.Timeout = cfg.timeout
	rc.RetryMax = cfg.retries
	rc.RetryWaitMin = cfg.backoffMin
	rc.RetryWaitMax = cfg.backoffMax
	rc.CheckRetry = checkRetry
	rc.Logger = &leveledLogger{logger: cfg.logger}

	return &Client{
		url:    strings.TrimRight(u.String(), "/") + "/screen",
		client: rc,
	}, nil
}

// checkRetry retries connection errors and 429/500/502/503/504 responses.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

type screenRequest struct {
	Address string `json:"address"`
}

// Screen returns the raw screening result for address.
func (c *Client) Screen(ctx context.Context, address string) (map[string]interface{}, error) {
	body, err := json.Marshal(&screenRequest{Address: address})
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP status: %s", ErrBadResponse, resp.Status)
	}

	// numbers stay json.Number so the raw result is carried unaltered
	var result map[string]interface{}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize))
	dec.UseNumber()
	if err = dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding body: %v", ErrBadResponse, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: empty body", ErrBadResponse)
	}
	return result, nil
}

// leveledLogger adapts a nanolib logger to retryablehttp.
type leveledLogger struct {
	logger log.Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Info(append([]interface{}{logkeys.Message, msg}, keysAndValues...)...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(append([]interface{}{logkeys.Message, msg}, keysAndValues...)...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(append([]interface{}{logkeys.Message, msg}, keysAndValues...)...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Info(append([]interface{}{logkeys.Message, msg}, keysAndValues...)...)
}

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)
