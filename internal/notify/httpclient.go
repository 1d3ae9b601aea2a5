package notify

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/spec-kit/case-service/internal/config"
)

// HTTPDoer is satisfied by *HTTPClient and *http.Client wrappers in tests.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPClient is the shared outbound client for messaging and webhooks.
type HTTPClient struct {
	http *http.Client
	tr   *http.Transport
	ua   string
}

// NewHTTPClient builds a client with a tuned transport. Per-request deadlines
// come from the context the dispatcher passes in.
func NewHTTPClient(cfg config.HTTPClientConfig) *HTTPClient {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ForceAttemptHTTP2:     true,
	}
	return &HTTPClient{http: &http.Client{Transport: tr}, tr: tr, ua: cfg.UserAgent}
}

// Do sends req bound to ctx.
func (c *HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if c.ua != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.ua)
	}
	return c.http.Do(req)
}

// CloseIdle drops pooled connections.
func (c *HTTPClient) CloseIdle() { c.tr.CloseIdleConnections() }
