package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ytget/ytfetch/internal/logger"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3

	// UserAgent is the desktop browser User-Agent sent by default.
	UserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	initialBackoff   = 200 * time.Millisecond
	maxBackoff       = 3 * time.Second
	successMinCode   = http.StatusOK                  // 200
	retryableMinCode = http.StatusInternalServerError // 500
)

// defaultTransport is a tuned HTTP transport reused across clients.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 10 * time.Second,
	ForceAttemptHTTP2:     true,
	ReadBufferSize:        16 * 1024,
	WriteBufferSize:       16 * 1024,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	ProxyURL  string
}

// Client wraps http.Client with retry/backoff and default headers.
type Client struct {
	HTTPClient *http.Client
	Retries    int
	UserAgent  string

	log *logger.ComponentLogger
}

// New creates a new Client with a tuned Transport, default timeout, and retries.
func New() *Client {
	return NewWith(Config{})
}

// NewWith creates a new client with provided config. Zero values use defaults.
// An unparsable proxy URL is reported as an error.
func NewWith(cfg Config) *Client {
	c, _ := NewWithProxy(cfg)
	return c
}

// NewWithProxy is NewWith that also reports an invalid ProxyURL. The
// returned client is usable either way and falls back to the environment proxy.
func NewWithProxy(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = UserAgent
	}

	tr := defaultTransport.Clone()
	var proxyErr error
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil || u.Host == "" {
			proxyErr = fmt.Errorf("invalid proxy url %q", cfg.ProxyURL)
		} else {
			tr.Proxy = http.ProxyURL(u)
		}
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		Retries:   retries,
		UserAgent: ua,
		log:       logger.WithComponent(logger.ComponentClient),
	}, proxyErr
}

// Get performs a GET request with a simple retry policy for transient errors
// (HTTP 5xx or network failures). It sets the client's User-Agent header.
// Non-2xx/3xx/4xx responses after the last attempt are returned as errors.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	ua := c.UserAgent
	if ua == "" {
		ua = UserAgent
	}
	log := c.log
	if log == nil {
		log = logger.WithComponent(logger.ComponentClient)
	}

	var (
		resp    *http.Response
		err     error
		backoff = initialBackoff
	)
	for attempt := 0; attempt < retries; attempt++ {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if rerr != nil {
			return nil, rerr
		}
		req.Header.Set("User-Agent", ua)

		resp, err = c.HTTPClient.Do(req)
		if err == nil && resp.StatusCode >= successMinCode && resp.StatusCode < retryableMinCode {
			return resp, nil
		}
		if err == nil {
			err = fmt.Errorf("GET %s: HTTP status %d", req.URL.Redacted(), resp.StatusCode)
			_ = resp.Body.Close()
		}
		log.Debug("request failed", map[string]interface{}{"attempt": attempt + 1, "error": err.Error()})

		if attempt == retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return nil, err
}

// GetBody performs Get and reads the whole body. 4xx responses are errors.
func (c *Client) GetBody(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("GET %s: HTTP status %d", resp.Request.URL.Redacted(), resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
