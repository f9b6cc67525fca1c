package fetch

import (
	"net/http"
	"sync"
)

// userAgents is the fixed pool the rotator draws from. Recent stable
// desktop browsers only; exotic strings attract attention.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
}

// acceptLanguages rotates alongside the User-Agent so the header set
// changes as a whole, not one field at a time.
var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.8,de;q=0.5",
	"en-US,en;q=0.9,zh-CN;q=0.6",
}

// HeaderRotator produces browser-like request headers and advances
// through the User-Agent pool on demand. Rotation is round-robin so a
// blocked identity is never retried immediately.
type HeaderRotator struct {
	mu    sync.Mutex
	index int
}

// NewHeaderRotator creates a rotator starting at the top of the pool.
func NewHeaderRotator() *HeaderRotator {
	return &HeaderRotator{}
}

// Rotate advances to the next identity in the pool.
func (r *HeaderRotator) Rotate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index++
}

// UserAgent returns the current identity's User-Agent string.
func (r *HeaderRotator) UserAgent() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return userAgents[r.index%len(userAgents)]
}

// Header builds a fresh header set for the current identity.
func (r *HeaderRotator) Header() http.Header {
	r.mu.Lock()
	i := r.index
	r.mu.Unlock()

	h := make(http.Header)
	h.Set("User-Agent", userAgents[i%len(userAgents)])
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", acceptLanguages[i%len(acceptLanguages)])
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	return h
}
