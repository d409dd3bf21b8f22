package providers

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/mitchins/SmolRouter/pkg/telemetry/tracing"
)

// DefaultTimeout bounds an upstream exchange when a provider sets none.
const DefaultTimeout = 120 * time.Second

// maxErrorBody caps how much of a non-2xx body is read.
const maxErrorBody = 1 << 20

// ClientConfig configures the shared upstream HTTP client.
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// AcceptCompression advertises gzip and brotli to upstreams and decodes
	// the response body before it reaches any codec.
	AcceptCompression bool
}

// DefaultClientConfig returns pooled defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		AcceptCompression:   true,
	}
}

// UpstreamRequest is a fully built request for one provider.
type UpstreamRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	Stream bool
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client sends requests to upstream providers over a pooled transport.
type Client struct {
	http   *http.Client
	config ClientConfig
	logger *slog.Logger
}

// NewClient creates a client with connection pooling. Per-request
// timeouts come from each Provider, so the http.Client itself has none.
func NewClient(cfg ClientConfig) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}
	return &Client{
		http:   &http.Client{Transport: transport},
		config: cfg,
		logger: slog.Default().With("component", "providers.client"),
	}
}

// Do performs a non-streaming exchange and reads the whole body. The
// provider's timeout covers the entire exchange.
func (c *Client) Do(ctx context.Context, p *Provider, ur *UpstreamRequest) (*Response, error) {
	resp, err := c.Open(ctx, p, ur)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.readError(ctx, p, resp.Body, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Open sends the request and returns once response headers arrive. For
// streaming requests the provider's timeout stops applying at that point.
// The body is decoded according to Content-Encoding. Closing it releases
// the request's resources.
func (c *Client) Open(ctx context.Context, p *Provider, ur *UpstreamRequest) (*http.Response, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	reqCtx, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		cancel()
	})

	req, err := http.NewRequestWithContext(reqCtx, ur.Method, ur.URL, bytes.NewReader(ur.Body))
	if err != nil {
		timer.Stop()
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range ur.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	tracing.Inject(reqCtx, req.Header)
	if req.Header.Get("Content-Type") == "" && len(ur.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.AcceptCompression && req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, br")
	}

	c.logger.Debug("sending request to provider",
		"provider", p.Name,
		"method", ur.Method,
		"url", redactURL(ur.URL),
		"stream", ur.Stream,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		timer.Stop()
		cancel()
		switch {
		case timedOut.Load():
			return nil, &TimeoutError{Provider: p.Name, Timeout: timeout}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, &UnreachableError{Provider: p.Name, Cause: err}
		}
	}

	if ur.Stream {
		timer.Stop()
	}

	body, err := decodeBody(resp)
	if err != nil {
		resp.Body.Close()
		timer.Stop()
		cancel()
		return nil, &UnreachableError{Provider: p.Name, Cause: err}
	}
	resp.Body = &releasingBody{
		ReadCloser: body,
		release: func() {
			timer.Stop()
			cancel()
		},
		timedOut: &timedOut,
	}
	return resp, nil
}

// ReadErrorBody reads at most 1 MiB of a non-2xx body and closes it.
func ReadErrorBody(resp *http.Response) []byte {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return body
}

// Get performs a GET with the provider's timeout and returns the body.
func (c *Client) Get(ctx context.Context, p *Provider, url string, header http.Header) (*Response, error) {
	return c.Do(ctx, p, &UpstreamRequest{Method: http.MethodGet, URL: url, Header: header})
}

// CloseIdleConnections closes pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func (c *Client) readError(ctx context.Context, p *Provider, body io.ReadCloser, err error) error {
	if rb, ok := body.(*releasingBody); ok && rb.timedOut.Load() {
		return &TimeoutError{Provider: p.Name, Timeout: p.Timeout}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &UnreachableError{Provider: p.Name, Cause: err}
}

type releasingBody struct {
	io.ReadCloser
	release  func()
	timedOut *atomic.Bool
	closed   atomic.Bool
}

func (b *releasingBody) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := b.ReadCloser.Close()
	b.release()
	return err
}

// decodeBody wraps resp.Body in a decoder for its Content-Encoding.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return resp.Body, nil
	case "br":
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
		return &decodedBody{Reader: brotli.NewReader(resp.Body), raw: resp.Body}, nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return resp.Body, nil
			}
			return nil, fmt.Errorf("failed to decode gzip body: %w", err)
		}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
		return &decodedBody{Reader: zr, raw: resp.Body}, nil
	}
	return resp.Body, nil
}

type decodedBody struct {
	io.Reader
	raw io.Closer
}

func (d *decodedBody) Close() error {
	if c, ok := d.Reader.(io.Closer); ok {
		c.Close()
	}
	return d.raw.Close()
}

// redactURL drops the query string, which may carry a key= parameter.
func redactURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?..."
	}
	return u
}
