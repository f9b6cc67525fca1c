package model

import (
	"sort"
	"sync"
	"time"
)

// SessionIDTimeFormat is the timestamp layout embedded in session IDs.
// It matches the directory naming used for session output folders.
const SessionIDTimeFormat = "20060102_150405"

// CrawlSession holds the mutable state of one crawl: the set of cited-by
// URLs that have been claimed for fetching, the request counters, and
// the rate-limit history that drives the adaptive delay.
//
// The crawl itself is single-threaded, but the visited claim and the
// counters are guarded by a mutex anyway so that the at-most-once-fetch
// invariant holds under a future concurrent extension, and so that a
// checkpointer running in its own goroutine can snapshot safely.
type CrawlSession struct {
	mu sync.Mutex

	// id is derived from the creation timestamp and is immutable except
	// when the whole session is restored from a snapshot.
	id string

	visitedURLs map[string]struct{}

	// requestCount increases monotonically for every network or browser
	// attempt issued, across the whole session lifetime.
	requestCount int

	// consecutiveRateLimits counts RATE_LIMITED classifications since
	// the last fully successful fetch.
	consecutiveRateLimits int

	// lastRateLimit is the time of the most recent RATE_LIMITED
	// classification; zero if none has occurred.
	lastRateLimit time.Time

	// proxyIndex is the current position in the round-robin egress
	// list, 0 when no list is configured.
	proxyIndex int
}

// NewCrawlSession creates a fresh session with a timestamp-derived ID.
func NewCrawlSession() *CrawlSession {
	return &CrawlSession{
		id:          "session_" + time.Now().Format(SessionIDTimeFormat),
		visitedURLs: make(map[string]struct{}),
	}
}

// ID returns the session identifier.
func (s *CrawlSession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// ClaimURL records that a fetch for url is about to be attempted.
// It returns false if the URL was already claimed, in which case the
// caller must not fetch it. The claim happens before any network
// activity so a recursive or concurrent call short-circuits without
// side effects.
func (s *CrawlSession) ClaimURL(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visitedURLs[url]; ok {
		return false
	}
	s.visitedURLs[url] = struct{}{}
	return true
}

// Visited reports whether url has already been claimed.
func (s *CrawlSession) Visited(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.visitedURLs[url]
	return ok
}

// VisitedCount returns the number of claimed URLs.
func (s *CrawlSession) VisitedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitedURLs)
}

// RecordRequest increments the request counter and returns the new
// total. Every network and browser attempt counts, including ones that
// end up blocked.
func (s *CrawlSession) RecordRequest() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestCount++
	return s.requestCount
}

// RequestCount returns the total number of attempts issued.
func (s *CrawlSession) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount
}

// RecordRateLimit notes a RATE_LIMITED classification at time now.
func (s *CrawlSession) RecordRateLimit(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveRateLimits++
	s.lastRateLimit = now
}

// ResetRateLimits clears the consecutive rate-limit streak after a
// fully successful fetch. The last rate-limit timestamp is kept so the
// delay policy can still see how recently the source pushed back.
func (s *CrawlSession) ResetRateLimits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveRateLimits = 0
}

// ConsecutiveRateLimits returns the current rate-limit streak.
func (s *CrawlSession) ConsecutiveRateLimits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveRateLimits
}

// LastRateLimit returns the time of the most recent rate-limit event
// and whether one has occurred at all.
func (s *CrawlSession) LastRateLimit() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRateLimit, !s.lastRateLimit.IsZero()
}

// AdvanceProxy moves to the next egress in a ring of size n and returns
// the new index. With no ring configured (n <= 0) the index stays 0.
func (s *CrawlSession) AdvanceProxy(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		s.proxyIndex = 0
		return 0
	}
	s.proxyIndex = (s.proxyIndex + 1) % n
	return s.proxyIndex
}

// ProxyIndex returns the current position in the egress ring.
func (s *CrawlSession) ProxyIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proxyIndex
}

// SessionSnapshot is the flat, durable form of a CrawlSession.
// The visited set is serialized as a sorted list and the timestamp in
// RFC 3339 form so snapshots are stable and diffable.
type SessionSnapshot struct {
	SessionID             string   `json:"session_id"`
	VisitedURLs           []string `json:"visited_urls"`
	RequestCount          int      `json:"request_count"`
	ConsecutiveRateLimits int      `json:"consecutive_rate_limit_count"`
	LastRateLimitTime     *string  `json:"last_rate_limit_time"`
	CurrentProxyIndex     int      `json:"current_proxy_index"`
}

// Snapshot captures the session state for persistence.
func (s *CrawlSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	urls := make([]string, 0, len(s.visitedURLs))
	for u := range s.visitedURLs {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	snap := SessionSnapshot{
		SessionID:             s.id,
		VisitedURLs:           urls,
		RequestCount:          s.requestCount,
		ConsecutiveRateLimits: s.consecutiveRateLimits,
		CurrentProxyIndex:     s.proxyIndex,
	}
	if !s.lastRateLimit.IsZero() {
		t := s.lastRateLimit.Format(time.RFC3339Nano)
		snap.LastRateLimitTime = &t
	}
	return snap
}

// Restore replaces the session state with the snapshot contents so a
// resumed crawl never re-attempts visited URLs and continues the
// adaptive-delay trajectory instead of resetting to baseline.
func (s *CrawlSession) Restore(snap SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	visited := make(map[string]struct{}, len(snap.VisitedURLs))
	for _, u := range snap.VisitedURLs {
		visited[u] = struct{}{}
	}

	var last time.Time
	if snap.LastRateLimitTime != nil && *snap.LastRateLimitTime != "" {
		t, err := time.Parse(time.RFC3339Nano, *snap.LastRateLimitTime)
		if err != nil {
			return err
		}
		last = t
	}

	if snap.SessionID != "" {
		s.id = snap.SessionID
	}
	s.visitedURLs = visited
	s.requestCount = snap.RequestCount
	s.consecutiveRateLimits = snap.ConsecutiveRateLimits
	s.lastRateLimit = last
	s.proxyIndex = snap.CurrentProxyIndex
	return nil
}
