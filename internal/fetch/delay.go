package fetch

import (
	"math/rand"
	"sync"
	"time"
)

// Delay policy defaults. The baseline range comes from the crawl
// configuration; everything else is tuned here.
const (
	// defaultDelayCap bounds the computed delay so the crawl stays
	// responsive to interruption even deep into a rate-limit streak.
	defaultDelayCap = 2 * time.Minute

	// rateLimitRecency is how long a rate-limit event keeps inflating
	// the delay while the streak is still open.
	rateLimitRecency = 60 * time.Second

	// defaultSpiceChance is the probability of an extra random
	// multiplier on any single delay.
	defaultSpiceChance = 0.15

	// defaultLongPauseEvery inserts an extra-long pause every Nth
	// request to break up the inter-request rhythm.
	defaultLongPauseEvery = 25

	defaultLongPause = 45 * time.Second

	// backoffBase and backoffCap bound the tier-1 mitigation backoff.
	backoffBase = 2 * time.Second
	backoffCap  = 60 * time.Second
)

// Stats is the slice of session state the delay policy reads. The
// Orchestrator fills it from the CrawlSession before each attempt.
type Stats struct {
	// RequestCount is the total number of attempts issued so far.
	RequestCount int

	// ConsecutiveRateLimits is the current rate-limit streak.
	ConsecutiveRateLimits int

	// SinceRateLimit is the time since the most recent rate-limit
	// event; only meaningful when HadRateLimit is true.
	SinceRateLimit time.Duration

	HadRateLimit bool
}

// DelayPolicy computes the pacing delay applied before each direct
// fetch and the backoff applied between mitigation retries.
//
// The delay is uniform(min, max) scaled by a multiplier that grows
// with the session's request volume and rate-limit history, plus two
// randomized elements (an occasional spice multiplier and a periodic
// long pause) that keep the request timing from forming a detectable
// periodic signature.
type DelayPolicy struct {
	mu sync.Mutex

	min, max       time.Duration
	cap            time.Duration
	spiceChance    float64
	longPauseEvery int
	longPause      time.Duration
	rand           *rand.Rand
}

// DelayOption configures a DelayPolicy.
type DelayOption func(*DelayPolicy)

// WithDelayCap sets the ceiling on any single computed delay.
func WithDelayCap(d time.Duration) DelayOption {
	return func(p *DelayPolicy) {
		p.cap = d
	}
}

// WithSpiceChance sets the probability of the random extra multiplier.
// Zero disables it, which tests use to make delays deterministic.
func WithSpiceChance(chance float64) DelayOption {
	return func(p *DelayPolicy) {
		p.spiceChance = chance
	}
}

// WithLongPause sets the periodic extra pause: every nth request gets
// an additional pause of d. n <= 0 disables it.
func WithLongPause(n int, d time.Duration) DelayOption {
	return func(p *DelayPolicy) {
		p.longPauseEvery = n
		p.longPause = d
	}
}

// WithDelayRand sets the random source, so tests can seed it.
func WithDelayRand(r *rand.Rand) DelayOption {
	return func(p *DelayPolicy) {
		p.rand = r
	}
}

// NewDelayPolicy creates a policy with the given baseline delay range.
// If max < min, max is raised to min.
func NewDelayPolicy(min, max time.Duration, opts ...DelayOption) *DelayPolicy {
	if max < min {
		max = min
	}
	p := &DelayPolicy{
		min:            min,
		max:            max,
		cap:            defaultDelayCap,
		spiceChance:    defaultSpiceChance,
		longPauseEvery: defaultLongPauseEvery,
		longPause:      defaultLongPause,
		rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Next returns the delay to apply before the next direct attempt.
func (p *DelayPolicy) Next(s Stats) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	base := p.min
	if p.max > p.min {
		base += time.Duration(p.rand.Float64() * float64(p.max-p.min))
	}

	m := multiplier(s)
	if p.spiceChance > 0 && p.rand.Float64() < p.spiceChance {
		m *= 2 + 2*p.rand.Float64()
	}

	d := time.Duration(float64(base) * m)
	if p.longPauseEvery > 0 && s.RequestCount > 0 && s.RequestCount%p.longPauseEvery == 0 {
		d += p.longPause
	}
	if d > p.cap {
		d = p.cap
	}
	return d
}

// Backoff returns the mitigation sleep after the nth consecutive block
// within one fetch (n starts at 1). Exponential with jitter, capped.
func (p *DelayPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := backoffBase << (n - 1)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}

	p.mu.Lock()
	jitter := 0.75 + 0.5*p.rand.Float64()
	p.mu.Unlock()

	d = time.Duration(float64(d) * jitter)
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

// multiplier is the deterministic part of the delay scaling. It is
// non-decreasing in both the request count and the rate-limit streak,
// and drops back to the request-count baseline as soon as the streak
// resets.
func multiplier(s Stats) float64 {
	m := 1.0
	switch {
	case s.RequestCount > 30:
		m = 3.0
	case s.RequestCount > 20:
		m = 2.5
	case s.RequestCount > 10:
		m = 1.8
	case s.RequestCount > 5:
		m = 1.3
	}

	if s.ConsecutiveRateLimits > 0 && s.HadRateLimit && s.SinceRateLimit < rateLimitRecency {
		m *= 2.0 + 0.75*float64(s.ConsecutiveRateLimits-1)
	}
	return m
}
