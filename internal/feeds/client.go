package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"ovwatch.transit.nl/internal/logging"
)

const defaultMaxBodySize = 8 * 1024 * 1024

// Observer receives one call per upstream request. result is "ok",
// "transport_error" or "parse_error".
type Observer interface {
	ObserveFeedRequest(feed, result string, duration time.Duration)
}

// ClientOptions tunes the shared feed client. Zero values pick defaults.
type ClientOptions struct {
	// Timeout is the absolute per-request bound; callers add their own
	// context deadline on top.
	Timeout time.Duration
	// RequestsPerSecond throttles requests per upstream host. Zero disables it.
	RequestsPerSecond float64
	Burst             int
	MaxBodySize       int64
	UserAgent         string
	Observer          Observer
	HTTPClient        *http.Client
}

// Client performs the GETs for every adapter.
type Client struct {
	http        *http.Client
	rateLimit   rate.Limit
	burst       int
	maxBodySize int64
	userAgent   string
	observer    Observer

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewClient builds a client whose transport is cloned from
// http.DefaultTransport so proxy and keepalive defaults are kept.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaultMaxBodySize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ovwatch/1.0"
	}
	hc := opts.HTTPClient
	if hc == nil {
		var transport *http.Transport
		if t, ok := http.DefaultTransport.(*http.Transport); ok {
			transport = t.Clone()
		} else {
			transport = &http.Transport{}
		}
		transport.MaxIdleConnsPerHost = 10
		transport.IdleConnTimeout = 90 * time.Second
		transport.TLSHandshakeTimeout = 10 * time.Second
		hc = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:        hc,
		rateLimit:   limit,
		burst:       burst,
		maxBodySize: opts.MaxBodySize,
		userAgent:   opts.UserAgent,
		observer:    opts.Observer,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.RLock()
	l, ok := c.limiters[host]
	c.mu.RUnlock()
	if ok {
		return l
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok = c.limiters[host]; ok {
		return l
	}
	l = rate.NewLimiter(c.rateLimit, c.burst)
	c.limiters[host] = l
	return l
}

func (c *Client) observe(feed, result string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveFeedRequest(feed, result, time.Since(start))
	}
}

// get fetches rawURL and returns the body. Errors are *TransportError.
func (c *Client) get(ctx context.Context, feed, rawURL string, headers map[string]string) ([]byte, error) {
	start := time.Now()
	body, err := c.doGet(ctx, feed, rawURL, headers)
	if err != nil {
		c.observe(feed, "transport_error", start)
		return nil, err
	}
	c.observe(feed, "ok", start)
	return body, nil
}

func (c *Client) doGet(ctx context.Context, feed, rawURL string, headers map[string]string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &TransportError{Feed: feed, URL: rawURL, Err: err}
	}
	if err := c.limiter(u.Host).Wait(ctx); err != nil {
		return nil, &TransportError{Feed: feed, URL: rawURL, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{Feed: feed, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Feed: feed, URL: rawURL, Err: err}
	}
	defer logging.SafeCloseWithLogging(resp.Body,
		slog.Default().With(slog.String("component", "feed_client"), slog.String("feed", feed)),
		"http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Feed: feed, URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, &TransportError{Feed: feed, URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, &TransportError{Feed: feed, URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("response exceeds size limit of %d bytes", c.maxBodySize)}
	}
	return body, nil
}

// getJSON fetches rawURL and decodes it into out. Decoding failures are
// *ParseError and are reported to the observer as such.
func (c *Client) getJSON(ctx context.Context, feed, rawURL string, headers map[string]string, out any) error {
	start := time.Now()
	body, err := c.doGet(ctx, feed, rawURL, headers)
	if err != nil {
		c.observe(feed, "transport_error", start)
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.observe(feed, "parse_error", start)
		return &ParseError{Feed: feed, Field: "body", Err: err}
	}
	c.observe(feed, "ok", start)
	return nil
}
