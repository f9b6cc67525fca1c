package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HTTP transport defaults.
const (
	// defaultRequestTimeout bounds a single direct fetch.
	defaultRequestTimeout = 30 * time.Second

	// defaultMaxBodySize limits how much of a response is read. Result
	// pages are small; anything larger is not worth parsing.
	defaultMaxBodySize = 4 * 1024 * 1024

	// transportMinInterval is the hard floor between outgoing requests,
	// enforced below the adaptive delay as a safety net.
	transportMinInterval = 500 * time.Millisecond
)

// Transport issues one page fetch. proxyIndex selects the egress from
// the configured ring; with no ring configured the request goes direct.
//
// Blocked responses (429 and challenge pages) come back as a status
// and body, not an error. The error return is reserved for transport
// failures: timeouts, DNS errors, connection resets.
type Transport interface {
	Get(ctx context.Context, rawURL string, header http.Header, proxyIndex int) (status int, body string, err error)
}

// HTTPTransport is the production Transport. It keeps one http.Client
// per ring position, applies a rate-limiter floor between requests and
// caps response body reads.
type HTTPTransport struct {
	ring        *ProxyRing
	limiter     *rate.Limiter
	timeout     time.Duration
	maxBodySize int64

	mu      sync.Mutex
	clients map[int]*http.Client
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		t.timeout = d
	}
}

// WithMaxBodySize sets the response body read cap.
func WithMaxBodySize(n int64) TransportOption {
	return func(t *HTTPTransport) {
		t.maxBodySize = n
	}
}

// WithLimiter replaces the default pacing floor.
func WithLimiter(l *rate.Limiter) TransportOption {
	return func(t *HTTPTransport) {
		t.limiter = l
	}
}

// NewHTTPTransport creates a transport over the given proxy ring.
// ring may be nil for direct-only egress.
func NewHTTPTransport(ring *ProxyRing, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		ring:        ring,
		limiter:     rate.NewLimiter(rate.Every(transportMinInterval), 1),
		timeout:     defaultRequestTimeout,
		maxBodySize: defaultMaxBodySize,
		clients:     make(map[int]*http.Client),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get implements Transport.
func (t *HTTPTransport) Get(ctx context.Context, rawURL string, header http.Header, proxyIndex int) (int, string, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return 0, "", err
		}
	}

	client, err := t.client(proxyIndex)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	for key, values := range header {
		req.Header[key] = values
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodySize))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("reading response from %s: %w", rawURL, err)
	}
	return resp.StatusCode, string(body), nil
}

// client returns the cached http.Client for a ring position, building
// it on first use. With no ring configured every index is direct.
func (t *HTTPTransport) client(proxyIndex int) (*http.Client, error) {
	if t.ring.Len() == 0 {
		proxyIndex = -1
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[proxyIndex]; ok {
		return c, nil
	}

	c := &http.Client{Timeout: t.timeout}
	if proxyIndex >= 0 {
		tr, err := t.ring.Transport(proxyIndex)
		if err != nil {
			return nil, err
		}
		c.Transport = tr
	}
	t.clients[proxyIndex] = c
	return c, nil
}
