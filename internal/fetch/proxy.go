package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/proxy"
)

// ProxyRing is the configured list of egress proxies, addressed by the
// session's round-robin proxy index. An empty ring means all traffic
// goes direct.
//
// Supported schemes are http, https and socks5. SOCKS5 credentials are
// taken from the proxy URL's userinfo.
type ProxyRing struct {
	proxies []*url.URL
}

// NewProxyRing parses the given proxy URLs into a ring. An empty or
// nil list yields an empty ring, which is valid.
func NewProxyRing(addrs []string) (*ProxyRing, error) {
	r := &ProxyRing{}
	for _, addr := range addrs {
		u, err := url.Parse(addr)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy address %q: %w", addr, err)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q in %q", u.Scheme, addr)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("proxy address %q has no host", addr)
		}
		r.proxies = append(r.proxies, u)
	}
	return r, nil
}

// Len returns the number of configured proxies.
func (r *ProxyRing) Len() int {
	if r == nil {
		return 0
	}
	return len(r.proxies)
}

// URL returns the proxy at the given ring position.
func (r *ProxyRing) URL(index int) (*url.URL, error) {
	if r.Len() == 0 {
		return nil, fmt.Errorf("proxy ring is empty")
	}
	if index < 0 || index >= len(r.proxies) {
		return nil, fmt.Errorf("proxy index %d out of range [0,%d)", index, len(r.proxies))
	}
	return r.proxies[index], nil
}

// Transport builds an http.Transport that egresses through the proxy
// at the given ring position.
func (r *ProxyRing) Transport(index int) (*http.Transport, error) {
	u, err := r.URL(index)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "http", "https":
		return &http.Transport{Proxy: http.ProxyURL(u)}, nil
	case "socks5":
		var auth *proxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("creating SOCKS5 dialer for %q: %w", u.Host, err)
		}
		tr := &http.Transport{}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			tr.DialContext = cd.DialContext
		} else {
			tr.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		return tr, nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
}
