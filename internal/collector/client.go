package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ThorfinnThor/radar/internal/platform/logger"
)

const (
	DefaultRequestDelay = 200 * time.Millisecond
	DefaultTimeout      = 60 * time.Second
	DefaultMaxRetries   = 3
	DefaultMaxBodyBytes = 8 << 20
)

type ClientConfig struct {
	UserAgent    string
	RequestDelay time.Duration
	Timeout      time.Duration
	MaxRetries   int
	MaxBodyBytes int64
	HTTPClient   *http.Client
	Logger       *logger.Logger
	// Backoff returns the wait before retry attempt n (1-based) when the
	// upstream gave no Retry-After.
	Backoff func(attempt int) time.Duration
}

// Client issues upstream requests one at a time with a fixed delay between
// them. Rate limits and server errors are retried.
type Client struct {
	cfg  ClientConfig
	mu   sync.Mutex
	last time.Time
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestDelay < 0 {
		cfg.RequestDelay = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Backoff == nil {
		cfg.Backoff = backoffDelay
	}
	return &Client{cfg: cfg}
}

type Request struct {
	Method string
	URL    string
	Body   []byte
	Header map[string]string
}

// Do sends req and returns the response body of the first 2xx answer.
func (c *Client) Do(ctx context.Context, source string, req Request) ([]byte, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	attempts := c.cfg.MaxRetries + 1
	var lastErr *Error
	timeoutRetried := false
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		body, status, retryAfter, err := c.once(ctx, req)
		if err == nil && status < 400 {
			return body, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = transportError(source, err)
		} else {
			lastErr = statusError(source, status, body, retryAfter)
		}
		if !lastErr.Transient || attempt == attempts {
			break
		}
		if lastErr.Code == CodeTimeout {
			if timeoutRetried {
				break
			}
			timeoutRetried = true
		}
		sleep := retryAfter
		if sleep <= 0 {
			sleep = c.cfg.Backoff(attempt)
		}
		c.cfg.Logger.Debug("collector retry", "source", source, "url", req.URL, "attempt", attempt, "code", lastErr.Code, "sleep", sleep.String())
		if err := sleepCtx(ctx, sleep); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, r Request) ([]byte, int, time.Duration, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, 0, 0, err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Header {
		req.Header.Set(k, v)
	}

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, res.StatusCode, 0, err
	}
	return b, res.StatusCode, parseRetryAfter(res.Header.Get("Retry-After")), nil
}

// wait blocks until RequestDelay has passed since the previous request.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.last.IsZero() && c.cfg.RequestDelay > 0 {
		if d := c.cfg.RequestDelay - time.Since(c.last); d > 0 {
			if err := sleepCtx(ctx, d); err != nil {
				return err
			}
		}
	}
	c.last = time.Now()
	return nil
}

func (c *Client) GetJSON(ctx context.Context, source, url string, header map[string]string, out any) error {
	b, err := c.Do(ctx, source, Request{Method: http.MethodGet, URL: url, Header: header})
	if err != nil {
		return err
	}
	return decodeJSON(source, b, out)
}

func (c *Client) PostJSON(ctx context.Context, source, url string, payload any, header map[string]string, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", source, err)
	}
	b, err := c.Do(ctx, source, Request{Method: http.MethodPost, URL: url, Body: data, Header: header})
	if err != nil {
		return err
	}
	return decodeJSON(source, b, out)
}

func decodeJSON(source string, b []byte, out any) error {
	if err := json.Unmarshal(b, out); err != nil {
		return newError(source, CodeInternal, "decode response: "+err.Error(), 0, 0)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func parseRetryAfter(v string) time.Duration {
	if strings.TrimSpace(v) == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	return 2 * time.Second
}

// str reads a string field from decoded JSON, tolerating other types.
func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func strFromPath(raw map[string]any, keys ...string) string {
	cur := any(raw)
	for _, key := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[key]
	}
	return str(cur)
}
