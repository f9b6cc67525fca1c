package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shufanz/papertracer/internal/detect"
	"github.com/shufanz/papertracer/internal/extract"
	"github.com/shufanz/papertracer/internal/model"
)

// Outcome is the terminal state of one Fetch call.
type Outcome int

const (
	// Success means a normal page was obtained and yielded at least
	// one valid candidate.
	Success Outcome = iota

	// Empty means the fetch completed without candidates: the URL was
	// already claimed, or the page parsed cleanly but held no results.
	Empty

	// Exhausted means the retry budget ran out with every tier still
	// blocked. The caller treats the branch as yielding no children.
	Exhausted
)

// String returns the outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Empty:
		return "empty"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Attempt describes one network or browser attempt, for diagnostics.
// The Orchestrator reports attempts through an optional hook; it does
// no file or database I/O itself.
type Attempt struct {
	URL            string
	Tier           int
	Status         int
	Classification detect.Classification
	Err            string
	At             time.Time
}

// Orchestrator fetches cited-by listings, escalating through
// mitigation tiers when the source blocks. It owns the CrawlSession
// and is the only component that mutates it.
type Orchestrator struct {
	session   *model.CrawlSession
	transport Transport
	renderer  Renderer
	gate      ManualGate
	extractor *extract.Extractor
	headers   *HeaderRotator
	ring      *ProxyRing
	delays    *DelayPolicy
	logger    *slog.Logger

	// sleep is injectable so tests never wait on real delays.
	sleep func(context.Context, time.Duration) error
	now   func() time.Time

	maxRetries      int
	browserFallback bool
	manualMode      bool
	skipMode        bool

	// browserAfter is the number of consecutive blocks within one
	// fetch before escalating past direct retries to the browser.
	browserAfter int

	attemptHook func(Attempt)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTransport replaces the HTTP transport.
func WithTransport(t Transport) Option {
	return func(o *Orchestrator) {
		o.transport = t
	}
}

// WithRenderer sets the browser renderer used by Tiers 2 and 3.
func WithRenderer(r Renderer) Option {
	return func(o *Orchestrator) {
		o.renderer = r
	}
}

// WithManualGate sets the human barrier for Tier 3.
func WithManualGate(g ManualGate) Option {
	return func(o *Orchestrator) {
		o.gate = g
	}
}

// WithExtractor replaces the page extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(o *Orchestrator) {
		o.extractor = e
	}
}

// WithProxies sets the egress proxy ring.
func WithProxies(r *ProxyRing) Option {
	return func(o *Orchestrator) {
		o.ring = r
	}
}

// WithDelayPolicy replaces the adaptive delay policy.
func WithDelayPolicy(p *DelayPolicy) Option {
	return func(o *Orchestrator) {
		o.delays = p
	}
}

// WithSleep replaces the sleeper; tests pass a no-op.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = fn
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMaxRetries sets the per-URL retry budget.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		o.maxRetries = n
	}
}

// WithBrowserFallback enables or disables Tier 2.
func WithBrowserFallback(enabled bool) Option {
	return func(o *Orchestrator) {
		o.browserFallback = enabled
	}
}

// WithManualMode enables or disables Tier 3.
func WithManualMode(enabled bool) Option {
	return func(o *Orchestrator) {
		o.manualMode = enabled
	}
}

// WithSkipMode enables skip mode: Tier 3 is never entered and a
// surviving block exhausts the budget instead of waiting on a human.
func WithSkipMode(enabled bool) Option {
	return func(o *Orchestrator) {
		o.skipMode = enabled
	}
}

// WithAttemptHook registers a callback invoked after every attempt.
func WithAttemptHook(fn func(Attempt)) Option {
	return func(o *Orchestrator) {
		o.attemptHook = fn
	}
}

// WithClock replaces the time source for tests.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = fn
	}
}

// New creates an Orchestrator around the given session.
func New(session *model.CrawlSession, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session:      session,
		extractor:    extract.New(),
		headers:      NewHeaderRotator(),
		delays:       NewDelayPolicy(2*time.Second, 5*time.Second),
		logger:       slog.Default(),
		sleep:        sleepContext,
		now:          time.Now,
		maxRetries:   3,
		browserAfter: 2,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.transport == nil {
		o.transport = NewHTTPTransport(o.ring)
	}
	return o
}

// Session exposes the crawl state for checkpointing and observability.
func (o *Orchestrator) Session() *model.CrawlSession {
	return o.session
}

// Visited reports whether rawURL has already been claimed this crawl.
func (o *Orchestrator) Visited(rawURL string) bool {
	return o.session.Visited(rawURL)
}

// Fetch retrieves the listing at rawURL and returns the valid
// candidates sorted by citation count descending. The URL is claimed
// in the visited set before any network activity, so a second call
// with the same URL returns Empty without touching the network.
//
// Per-URL failures never surface as errors; an exhausted budget is the
// Exhausted outcome with an empty list. The error return is reserved
// for crawl-level interruption (context cancellation).
func (o *Orchestrator) Fetch(ctx context.Context, rawURL string) ([]model.Paper, Outcome, error) {
	papers, outcome, err := o.fetchPage(ctx, rawURL)
	if err != nil || outcome != Success {
		return nil, outcome, err
	}
	model.SortByCitations(papers)
	return papers, Success, nil
}

// ResolveRoot fetches startRef as a landing or search page and returns
// the first valid candidate in page order. Page order matters here:
// the first hit on a landing page is the paper itself, not its most
// cited citer.
func (o *Orchestrator) ResolveRoot(ctx context.Context, startRef string) (model.Paper, error) {
	papers, outcome, err := o.fetchPage(ctx, startRef)
	if err != nil {
		return model.Paper{}, err
	}
	if outcome != Success || len(papers) == 0 {
		return model.Paper{}, fmt.Errorf("resolving root from %s (outcome %s): %w", startRef, outcome, ErrRootNotFound)
	}
	return papers[0], nil
}

// fetchPage runs the tier state machine and returns valid candidates
// in page order.
func (o *Orchestrator) fetchPage(ctx context.Context, rawURL string) ([]model.Paper, Outcome, error) {
	if rawURL == "" {
		return nil, Empty, ErrEmptyURL
	}
	if !o.session.ClaimURL(rawURL) {
		o.logger.Debug("url already claimed, skipping", "url", rawURL)
		return nil, Empty, nil
	}

	blocked := 0
	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		if err := o.pace(ctx); err != nil {
			return nil, Exhausted, err
		}

		o.session.RecordRequest()
		status, body, err := o.transport.Get(ctx, rawURL, o.headers.Header(), o.session.ProxyIndex())
		if err != nil {
			if ctx.Err() != nil {
				return nil, Exhausted, ctx.Err()
			}
			// Transient network failure: mitigate and retry like a block.
			o.report(Attempt{URL: rawURL, Tier: 0, Err: err.Error(), At: o.now()})
			o.logger.Debug("direct fetch failed", "url", rawURL, "attempt", attempt, "error", err)
			blocked++
			if err := o.mitigate(ctx, blocked); err != nil {
				return nil, Exhausted, err
			}
			continue
		}

		c := detect.Classify(body, status)
		o.report(Attempt{URL: rawURL, Tier: 0, Status: status, Classification: c, At: o.now()})

		if c == detect.Normal {
			papers, outcome, ok := o.finish(rawURL, body)
			if ok {
				return papers, outcome, nil
			}
			// Classified normal but not parseable as results: likely an
			// undetected block. Treat it as one.
			o.logger.Debug("normal page without result structure", "url", rawURL, "attempt", attempt)
			blocked++
		} else {
			o.noteBlock(rawURL, c, attempt)
			blocked++
		}

		if err := o.mitigate(ctx, blocked); err != nil {
			return nil, Exhausted, err
		}

		if o.browserFallback && o.renderer != nil && blocked >= o.browserAfter {
			papers, outcome, done, err := o.renderTiers(ctx, rawURL)
			if err != nil {
				if errors.Is(err, ErrManualAborted) {
					o.logger.Info("manual intervention aborted", "url", rawURL)
					return nil, Exhausted, nil
				}
				return nil, Exhausted, err
			}
			if done {
				return papers, outcome, nil
			}
			blocked++
		}
	}

	o.logger.Warn("retry budget exhausted", "url", rawURL, "attempts", o.maxRetries)
	return nil, Exhausted, nil
}

// renderTiers runs Tier 2 (headless render) and, if still blocked,
// Tier 3 (visible browser with a human in the loop). done reports
// whether the fetch is settled; false means fall back to the direct
// retry loop.
func (o *Orchestrator) renderTiers(ctx context.Context, rawURL string) (papers []model.Paper, outcome Outcome, done bool, err error) {
	o.session.RecordRequest()
	body, renderErr := o.renderer.Render(ctx, rawURL)
	if renderErr != nil {
		if ctx.Err() != nil {
			return nil, Exhausted, false, ctx.Err()
		}
		o.report(Attempt{URL: rawURL, Tier: 2, Err: renderErr.Error(), At: o.now()})
		o.logger.Warn("headless rendering failed", "url", rawURL, "error", renderErr)
	} else {
		c := detect.Classify(body, http.StatusOK)
		o.report(Attempt{URL: rawURL, Tier: 2, Status: http.StatusOK, Classification: c, At: o.now()})
		if c == detect.Normal {
			if papers, outcome, ok := o.finish(rawURL, body); ok {
				return papers, outcome, true, nil
			}
		} else {
			o.noteBlock(rawURL, c, 0)
		}
	}

	if !o.manualMode || o.skipMode || o.gate == nil {
		return nil, Exhausted, false, nil
	}

	o.logger.Info("escalating to manual intervention", "url", rawURL)
	o.session.RecordRequest()
	body, err = o.renderer.RenderInteractive(ctx, rawURL,
		func(waitCtx context.Context) error {
			return o.gate.Wait(waitCtx, rawURL)
		},
		func(content string) bool {
			return detect.Classify(content, http.StatusOK) == detect.Normal
		},
	)
	if err != nil {
		return nil, Exhausted, false, err
	}
	o.report(Attempt{URL: rawURL, Tier: 3, Status: http.StatusOK, Classification: detect.Normal, At: o.now()})
	if papers, outcome, ok := o.finish(rawURL, body); ok {
		return papers, outcome, true, nil
	}
	return nil, Exhausted, false, nil
}

// finish hands a normal page to extraction. ok reports whether the
// page had recognizable result structure; when false the caller keeps
// escalating.
func (o *Orchestrator) finish(rawURL, body string) ([]model.Paper, Outcome, bool) {
	candidates, parseable, err := o.extractor.Extract(body, rawURL)
	if err != nil || !parseable {
		if err != nil {
			o.logger.Debug("extraction failed", "url", rawURL, "error", err)
		}
		return nil, Empty, false
	}

	o.session.ResetRateLimits()

	papers := make([]model.Paper, 0, len(candidates))
	dropped := 0
	for _, p := range candidates {
		if p.Valid() {
			papers = append(papers, p)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		o.logger.Debug("dropped malformed candidates", "url", rawURL, "count", dropped)
	}
	if len(papers) == 0 {
		return nil, Empty, true
	}
	return papers, Success, true
}

// pace applies the adaptive delay before a direct attempt.
func (o *Orchestrator) pace(ctx context.Context) error {
	last, had := o.session.LastRateLimit()
	s := Stats{
		RequestCount:          o.session.RequestCount(),
		ConsecutiveRateLimits: o.session.ConsecutiveRateLimits(),
		HadRateLimit:          had,
	}
	if had {
		s.SinceRateLimit = o.now().Sub(last)
	}
	d := o.delays.Next(s)
	if d > 0 {
		o.logger.Debug("pacing", "delay", d, "requests", s.RequestCount)
	}
	return o.sleep(ctx, d)
}

// mitigate is Tier 1: rotate the request identity, advance the proxy
// ring and back off before the next direct attempt.
func (o *Orchestrator) mitigate(ctx context.Context, blocked int) error {
	o.headers.Rotate()
	if o.ring.Len() > 0 {
		idx := o.session.AdvanceProxy(o.ring.Len())
		o.logger.Debug("rotated proxy", "index", idx)
	}
	return o.sleep(ctx, o.delays.Backoff(blocked))
}

func (o *Orchestrator) noteBlock(rawURL string, c detect.Classification, attempt int) {
	if c == detect.RateLimited {
		o.session.RecordRateLimit(o.now())
	}
	o.logger.Info("block detected",
		"url", rawURL,
		"classification", c.String(),
		"attempt", attempt,
		"consecutive_rate_limits", o.session.ConsecutiveRateLimits(),
	)
}

func (o *Orchestrator) report(a Attempt) {
	if o.attemptHook != nil {
		o.attemptHook(a)
	}
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
