package tree

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/shufanz/papertracer/internal/fetch"
	"github.com/shufanz/papertracer/internal/model"
)

// Fetcher is the retrieval surface the Builder drives. It is satisfied
// by *fetch.Orchestrator; tests substitute a fake.
type Fetcher interface {
	// Fetch returns the valid candidates at rawURL sorted by citation
	// count descending, with the per-URL outcome.
	Fetch(ctx context.Context, rawURL string) ([]model.Paper, fetch.Outcome, error)

	// ResolveRoot resolves a landing or search page to the paper it
	// describes.
	ResolveRoot(ctx context.Context, startRef string) (model.Paper, error)

	// Visited reports whether rawURL has already been claimed this
	// crawl.
	Visited(rawURL string) bool
}

// Stats counts what happened during one build, for diagnostics and the
// final report. Empty and exhausted branches are structurally the same
// (childless) but mean different things: nothing there versus gave up.
type Stats struct {
	// NodesBuilt is the number of nodes added below the root.
	NodesBuilt int

	// Expanded is the number of nodes whose listing was fetched and
	// yielded children.
	Expanded int

	// EmptyBranches counts fetches that completed with no candidates.
	EmptyBranches int

	// ExhaustedBranches counts fetches abandoned after the retry
	// budget ran out.
	ExhaustedBranches int

	// CollapsedCycles counts nodes whose cited-by URL was already
	// claimed elsewhere in the tree and were kept as leaves without a
	// second fetch.
	CollapsedCycles int
}

// Builder assembles a citation tree by recursive depth-first
// expansion.
type Builder struct {
	fetcher     Fetcher
	maxDepth    int
	maxPerLevel int
	logger      *slog.Logger

	// progress, when set, is called after each node expansion.
	progress func(Stats)

	stats Stats
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxDepth bounds the tree depth. Nodes are expanded only while
// their children would stay strictly below maxDepth.
func WithMaxDepth(d int) Option {
	return func(b *Builder) {
		b.maxDepth = d
	}
}

// WithMaxPapersPerLevel bounds each node's fan-out.
func WithMaxPapersPerLevel(n int) Option {
	return func(b *Builder) {
		b.maxPerLevel = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithProgress registers a callback invoked after each expansion.
func WithProgress(fn func(Stats)) Option {
	return func(b *Builder) {
		b.progress = fn
	}
}

// NewBuilder creates a Builder over the given Fetcher. Bounds below 1
// are raised to 1.
func NewBuilder(fetcher Fetcher, opts ...Option) *Builder {
	b := &Builder{
		fetcher:     fetcher,
		maxDepth:    3,
		maxPerLevel: 10,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.maxDepth < 1 {
		b.maxDepth = 1
	}
	if b.maxPerLevel < 1 {
		b.maxPerLevel = 1
	}
	return b
}

// IsCitedByRef reports whether ref is a cited-by listing URL rather
// than a paper's own landing page.
func IsCitedByRef(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Query().Has("cites")
}

// Build constructs the tree starting from startRef.
//
// A cited-by listing as start gets a synthesized placeholder root
// whose only populated field is the cited-by URL; the root's identity
// is unknown in that case and stays blank. Any other start is resolved
// to a real root paper first, and failure to resolve it aborts the
// whole build. Every other failure is contained: a branch that cannot
// be fetched is simply childless.
func (b *Builder) Build(ctx context.Context, startRef string) (*model.CitationNode, Stats, error) {
	b.stats = Stats{}

	var rootPaper model.Paper
	if IsCitedByRef(startRef) {
		b.logger.Info("starting from cited-by listing", "url", startRef)
		rootPaper = model.Paper{CitedByURL: startRef}
	} else {
		b.logger.Info("resolving root paper", "url", startRef)
		p, err := b.fetcher.ResolveRoot(ctx, startRef)
		if err != nil {
			return nil, b.stats, fmt.Errorf("building citation tree: %w", err)
		}
		rootPaper = p
		b.logger.Info("root resolved", "title", p.Title, "citations", p.CitationCount)
	}

	root := model.NewCitationNode(rootPaper, 0)
	if err := b.expand(ctx, root); err != nil {
		return nil, b.stats, err
	}
	return root, b.stats, nil
}

// expand fetches n's cited-by listing and attaches children, then
// recurses depth-first. The only error it propagates is crawl-level
// interruption.
func (b *Builder) expand(ctx context.Context, n *model.CitationNode) error {
	// Children of this node would sit at n.Depth+1; they are only
	// created while that still falls inside the depth bound.
	if n.Depth+1 >= b.maxDepth {
		return nil
	}
	listing := n.Paper.CitedByURL
	if listing == "" {
		return nil
	}

	if b.fetcher.Visited(listing) {
		b.stats.CollapsedCycles++
		b.logger.Debug("listing already expanded elsewhere, collapsing", "url", listing, "depth", n.Depth)
		return nil
	}

	papers, outcome, err := b.fetcher.Fetch(ctx, listing)
	if err != nil {
		return err
	}
	switch outcome {
	case fetch.Exhausted:
		b.stats.ExhaustedBranches++
		b.logger.Warn("branch abandoned", "url", listing, "depth", n.Depth)
		return nil
	case fetch.Empty:
		b.stats.EmptyBranches++
		return nil
	}

	if len(papers) > b.maxPerLevel {
		papers = papers[:b.maxPerLevel]
	}
	for _, p := range papers {
		child := model.NewCitationNode(p, n.Depth+1)
		n.AddChild(child)
		b.stats.NodesBuilt++
		if err := b.expand(ctx, child); err != nil {
			return err
		}
	}

	b.stats.Expanded++
	if b.progress != nil {
		b.progress(b.stats)
	}
	return nil
}
