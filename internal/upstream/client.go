// Package upstream issues translated requests to the Responses API.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/chat-responses-gateway/internal/translate"
)

// Client sends Outbound calls. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	transport http.RoundTripper
}

// WithTransport replaces the default transport. The transport is still
// wrapped for tracing.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		o.transport = rt
	}
}

// NewTransport returns the transport used for provider calls. Only
// connection setup is bounded; a streaming body may be read indefinitely.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   translate.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: translate.ConnectTimeout,
	}
}

// New creates a client.
func New(opts ...Option) *Client {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = NewTransport()
	}

	return &Client{
		// No Client.Timeout: it would cut off long streams.
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(o.transport),
		},
	}
}

// Do sends out and returns the provider response with its body unread.
// The request is bound to ctx, so cancelling ctx aborts the body read.
// The caller must close the response body.
func (c *Client) Do(ctx context.Context, out *translate.Outbound) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL, bytes.NewReader(out.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	req.Header = out.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if out.Streaming && req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	return resp, nil
}
