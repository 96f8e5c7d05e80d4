// Package rest performs the HTTP legwork behind private stream access:
// listen key issuance, bullet token negotiation, and OAuth grants. It is
// not a general exchange REST client; adapters call a handful of
// endpoints around connect time and during key keepalive.
package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// ErrClosed is returned by every verb after Close.
var ErrClosed = errors.New("rest client is closed")

// Config holds the per-host settings. Headers are attached to every
// request, which is how key-scoped hosts like Binance carry the API key.
type Config struct {
	BaseURL      string            `validate:"required,url"`
	Timeout      time.Duration     `validate:"min=1ms"`
	MaxRetries   int               `validate:"min=0"`
	RetryWaitMin time.Duration     `validate:"min=0"`
	RetryWaitMax time.Duration     `validate:"min=0"`
	Headers      map[string]string `validate:"omitempty"`
}

// DefaultConfig returns a Config for the given base URL with a 10s
// timeout and three retries.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:      baseURL,
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
	}
}

// RequestOption customizes a single request before it is sent.
type RequestOption func(*resty.Request)

// Client wraps resty with JSON codecs and request tracing. Safe for
// concurrent use.
type Client struct {
	rc *resty.Client

	logMu  sync.RWMutex
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewClient validates the config and builds a client. Request and
// response bodies are encoded and decoded with sonic.
func NewClient(config *Config) (*Client, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rc := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetRetryCount(config.MaxRetries).
		SetRetryWaitTime(config.RetryWaitMin).
		SetRetryMaxWaitTime(config.RetryWaitMax).
		SetHeaders(config.Headers)

	rc.AddContentTypeEncoder("application/json", func(w io.Writer, v any) error {
		data, err := sonic.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
	rc.AddContentTypeDecoder("application/json", func(r io.Reader, v any) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return sonic.Unmarshal(data, v)
	})

	c := &Client{rc: rc, logger: zerolog.Nop()}
	c.trace()
	return c, nil
}

// trace logs each request and response at debug level.
func (c *Client) trace() {
	c.rc.AddRequestMiddleware(func(_ *resty.Client, req *resty.Request) error {
		logger := c.log()
		logger.Debug().
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("http request")
		return nil
	})
	c.rc.AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
		logger := c.log()
		logger.Debug().
			Str("method", resp.Request.Method).
			Str("url", resp.Request.URL).
			Int("status", resp.StatusCode()).
			Dur("elapsed", resp.Duration()).
			Msg("http response")
		return nil
	})
}

// SetLogger replaces the tracing logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logMu.Lock()
	c.logger = logger
	c.logMu.Unlock()
}

func (c *Client) log() zerolog.Logger {
	c.logMu.RLock()
	defer c.logMu.RUnlock()
	return c.logger
}

// Close releases the underlying transport. Further calls fail with
// ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rc.Close()
}

func (c *Client) do(ctx context.Context, method, url string, body any, opts []RequestOption) (*resty.Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}

	req := c.rc.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	for _, opt := range opts {
		opt(req)
	}
	return req.Execute(method, url)
}

func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*resty.Response, error) {
	return c.do(ctx, http.MethodGet, url, nil, opts)
}

func (c *Client) Post(ctx context.Context, url string, body any, opts ...RequestOption) (*resty.Response, error) {
	return c.do(ctx, http.MethodPost, url, body, opts)
}

func (c *Client) Put(ctx context.Context, url string, body any, opts ...RequestOption) (*resty.Response, error) {
	return c.do(ctx, http.MethodPut, url, body, opts)
}

func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*resty.Response, error) {
	return c.do(ctx, http.MethodDelete, url, nil, opts)
}

// WithHeader sets one request header.
func WithHeader(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetHeader(key, value)
	}
}

// WithHeaders sets a batch of request headers, such as a full signature
// header set.
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *resty.Request) {
		r.SetHeaders(headers)
	}
}

// WithQueryParam sets one query parameter.
func WithQueryParam(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetQueryParam(key, value)
	}
}

// WithQueryParams sets a batch of query parameters.
func WithQueryParams(params map[string]string) RequestOption {
	return func(r *resty.Request) {
		r.SetQueryParams(params)
	}
}

// WithResult decodes a 2xx response body into res.
func WithResult(res any) RequestOption {
	return func(r *resty.Request) {
		r.SetResult(res)
	}
}
