// Package source fetches offline users and router status from the
// monitoring API.
//
// Every call uses a bounded retry: a fixed number of attempts, a fixed
// delay between them and a hard per-attempt timeout. Payloads are decoded
// into nullable shapes and validated before anything leaves the package.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"linkwatch/internal/metrics"
	logx "linkwatch/pkg/logx"
)

// ErrExhausted is returned once every attempt of a fetch has failed.
var ErrExhausted = errors.New("source: retries exhausted")

const maxBody = 8 << 20

type Config struct {
	OfflineURL string
	// StatusURL contains "{router}", replaced by the path-escaped router name.
	StatusURL  string
	Attempts   int
	RetryDelay time.Duration
	Timeout    time.Duration
	UserAgent  string
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = "linkwatch/1"
	}
	return c
}

type Client struct {
	cfg     Config
	http    *http.Client
	log     logx.Logger
	metrics *metrics.Metrics
}

// New builds a client. hc may be nil.
func New(cfg Config, hc *http.Client, log logx.Logger, m *metrics.Metrics) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg.withDefaults(), http: hc, log: log, metrics: m}
}

// StatusURL returns the status endpoint for router.
func (c *Client) StatusURL(router string) string {
	return strings.ReplaceAll(c.cfg.StatusURL, "{router}", url.PathEscape(router))
}

// getWithRetry returns the body of the first 2xx response.
func (c *Client) getWithRetry(ctx context.Context, name, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		body, err := c.get(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < c.cfg.Attempts {
			c.log.Debug("fetch retry",
				logx.String("source", name),
				logx.Int("attempt", attempt),
				logx.Int("of", c.cfg.Attempts),
				logx.Err(err),
			)
			t := time.NewTimer(c.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, fmt.Errorf("%w: %s: %w", ErrExhausted, name, ctx.Err())
			case <-t.C:
			}
		}
	}
	c.metrics.FetchFailed(name)
	return nil, fmt.Errorf("%w: %s: %w", ErrExhausted, name, lastErr)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timeout after %s", c.cfg.Timeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return body, nil
}

func decode(body []byte, v any) error {
	if err := sonic.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
