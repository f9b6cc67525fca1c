package tree

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shufanz/papertracer/internal/fetch"
	"github.com/shufanz/papertracer/internal/model"
)

// fakeFetcher serves canned listings and mimics the orchestrator's
// claim-before-fetch and sort behavior.
type fakeFetcher struct {
	pages   map[string][]model.Paper
	root    model.Paper
	rootErr error
	visited map[string]bool
	calls   map[string]int
	exhaust map[string]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:   make(map[string][]model.Paper),
		visited: make(map[string]bool),
		calls:   make(map[string]int),
		exhaust: make(map[string]bool),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) ([]model.Paper, fetch.Outcome, error) {
	if f.visited[rawURL] {
		return nil, fetch.Empty, nil
	}
	f.visited[rawURL] = true
	f.calls[rawURL]++

	if f.exhaust[rawURL] {
		return nil, fetch.Exhausted, nil
	}
	papers, ok := f.pages[rawURL]
	if !ok || len(papers) == 0 {
		return nil, fetch.Empty, nil
	}
	sorted := make([]model.Paper, len(papers))
	copy(sorted, papers)
	model.SortByCitations(sorted)
	return sorted, fetch.Success, nil
}

func (f *fakeFetcher) ResolveRoot(_ context.Context, startRef string) (model.Paper, error) {
	if f.rootErr != nil {
		return model.Paper{}, f.rootErr
	}
	f.visited[startRef] = true
	return f.root, nil
}

func (f *fakeFetcher) Visited(rawURL string) bool {
	return f.visited[rawURL]
}

// paperList builds candidates named after their citation counts, each
// with its own cited-by listing URL.
func paperList(counts ...int) []model.Paper {
	papers := make([]model.Paper, 0, len(counts))
	for _, c := range counts {
		papers = append(papers, model.Paper{
			Title:         "Paper " + itoa(c),
			CitationCount: c,
			CitedByURL:    "https://scholar.example.org/scholar?cites=" + itoa(c),
		})
	}
	return papers
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newTestBuilder(f Fetcher, opts ...Option) *Builder {
	base := []Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	return NewBuilder(f, append(base, opts...)...)
}

func TestIsCitedByRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref  string
		want bool
	}{
		{"https://scholar.example.org/scholar?cites=123&hl=en", true},
		{"https://scholar.example.org/scholar?q=attention", false},
		{"https://arxiv.org/abs/1706.03762", false},
		{"://bad url", false},
	}
	for _, tt := range tests {
		if got := IsCitedByRef(tt.ref); got != tt.want {
			t.Errorf("IsCitedByRef(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestBuild_CitedByScenario(t *testing.T) {
	t.Parallel()

	// maxDepth=2, maxPapersPerLevel=3, start is a cited-by listing and
	// the listing holds five candidates. The root gets exactly the top
	// three by citation count, each a depth-1 leaf.
	start := "https://scholar.example.org/scholar?cites=42"
	f := newFakeFetcher()
	f.pages[start] = paperList(50, 10, 80, 5, 30)

	b := newTestBuilder(f, WithMaxDepth(2), WithMaxPapersPerLevel(3))
	root, stats, err := b.Build(context.Background(), start)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if root.Depth != 0 || root.Paper.Title != "" || root.Paper.CitedByURL != start {
		t.Errorf("synthesized root = %+v, want placeholder with cited-by URL only", root.Paper)
	}
	if len(root.Children) != 3 {
		t.Fatalf("root has %d children, want 3", len(root.Children))
	}
	want := []int{80, 50, 30}
	for i, w := range want {
		child := root.Children[i]
		if child.Paper.CitationCount != w {
			t.Errorf("child %d citation count = %d, want %d", i, child.Paper.CitationCount, w)
		}
		if child.Depth != 1 {
			t.Errorf("child %d depth = %d, want 1", i, child.Depth)
		}
		if len(child.Children) != 0 {
			t.Errorf("child %d should be a leaf at the depth bound", i)
		}
	}

	// Only the root listing was fetched.
	if total := len(f.calls); total != 1 {
		t.Errorf("%d listings fetched, want 1", total)
	}
	if stats.NodesBuilt != 3 || stats.Expanded != 1 {
		t.Errorf("stats = %+v, want 3 nodes from 1 expansion", stats)
	}
}

func TestBuild_DepthAndFanOutBounds(t *testing.T) {
	t.Parallel()

	start := "https://scholar.example.org/scholar?cites=1"
	f := newFakeFetcher()
	// Every listing returns the next generation; counts double as IDs.
	f.pages[start] = paperList(101, 102, 103, 104)
	for _, id := range []int{101, 102, 103, 104} {
		f.pages["https://scholar.example.org/scholar?cites="+itoa(id)] = paperList(id*10+1, id*10+2, id*10+3)
	}

	b := newTestBuilder(f, WithMaxDepth(3), WithMaxPapersPerLevel(2))
	root, _, err := b.Build(context.Background(), start)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	root.Walk(func(n *model.CitationNode) {
		if n.Depth >= 3 {
			t.Errorf("node %q at depth %d breaks the bound", n.Paper.Title, n.Depth)
		}
		if len(n.Children) > 2 {
			t.Errorf("node %q has %d children, fan-out bound is 2", n.Paper.Title, len(n.Children))
		}
		for i := 0; i+1 < len(n.Children); i++ {
			if n.Children[i].Paper.CitationCount < n.Children[i+1].Paper.CitationCount {
				t.Errorf("children of %q not in citation-count order", n.Paper.Title)
			}
		}
	})

	if len(root.Children) != 2 {
		t.Fatalf("root has %d children, want 2", len(root.Children))
	}
	// Depth-1 nodes sit one short of the bound, so they expand once more.
	for _, child := range root.Children {
		if len(child.Children) == 0 {
			t.Errorf("depth-1 node %q should have been expanded", child.Paper.Title)
		}
	}
}

func TestBuild_RevisitedListingCollapses(t *testing.T) {
	t.Parallel()

	start := "https://scholar.example.org/scholar?cites=1"
	shared := "https://scholar.example.org/scholar?cites=777"
	f := newFakeFetcher()
	// Both depth-1 papers cite through the same listing.
	f.pages[start] = []model.Paper{
		{Title: "A", CitationCount: 9, CitedByURL: shared},
		{Title: "B", CitationCount: 5, CitedByURL: shared},
	}
	f.pages[shared] = paperList(3)

	b := newTestBuilder(f, WithMaxDepth(3), WithMaxPapersPerLevel(5))
	root, stats, err := b.Build(context.Background(), start)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	first, second := root.Children[0], root.Children[1]
	if len(first.Children) != 1 {
		t.Errorf("first child should expand the shared listing, got %d children", len(first.Children))
	}
	if len(second.Children) != 0 {
		t.Errorf("second child must collapse to a leaf, got %d children", len(second.Children))
	}
	if f.calls[shared] != 1 {
		t.Errorf("shared listing fetched %d times, want exactly 1", f.calls[shared])
	}
	if stats.CollapsedCycles != 1 {
		t.Errorf("stats.CollapsedCycles = %d, want 1", stats.CollapsedCycles)
	}
}

func TestBuild_ResolvesRealRoot(t *testing.T) {
	t.Parallel()

	start := "https://scholar.example.org/scholar?q=attention"
	listing := "https://scholar.example.org/scholar?cites=55"
	f := newFakeFetcher()
	f.root = model.Paper{Title: "Attention is all you need", CitationCount: 90000, CitedByURL: listing}
	f.pages[listing] = paperList(7, 3)

	b := newTestBuilder(f, WithMaxDepth(2), WithMaxPapersPerLevel(5))
	root, _, err := b.Build(context.Background(), start)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if root.Paper.Title != "Attention is all you need" {
		t.Errorf("root title = %q", root.Paper.Title)
	}
	if len(root.Children) != 2 {
		t.Errorf("root has %d children, want 2", len(root.Children))
	}
}

func TestBuild_RootResolutionFailureAborts(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.rootErr = fetch.ErrRootNotFound

	b := newTestBuilder(f, WithMaxDepth(2))
	root, _, err := b.Build(context.Background(), "https://scholar.example.org/scholar?q=nothing")
	if !errors.Is(err, fetch.ErrRootNotFound) {
		t.Errorf("Build() error = %v, want ErrRootNotFound", err)
	}
	if root != nil {
		t.Error("no partial tree on root failure")
	}
}

func TestBuild_ExhaustedBranchIsContained(t *testing.T) {
	t.Parallel()

	start := "https://scholar.example.org/scholar?cites=1"
	blocked := "https://scholar.example.org/scholar?cites=9"
	fine := "https://scholar.example.org/scholar?cites=4"
	f := newFakeFetcher()
	f.pages[start] = []model.Paper{
		{Title: "Blocked branch", CitationCount: 9, CitedByURL: blocked},
		{Title: "Fine branch", CitationCount: 4, CitedByURL: fine},
	}
	f.exhaust[blocked] = true
	f.pages[fine] = paperList(2)

	b := newTestBuilder(f, WithMaxDepth(3), WithMaxPapersPerLevel(5))
	root, stats, err := b.Build(context.Background(), start)
	if err != nil {
		t.Fatalf("Build() error = %v, per-branch exhaustion must not abort the crawl", err)
	}
	if len(root.Children) != 2 {
		t.Fatalf("root has %d children, want 2", len(root.Children))
	}
	if len(root.Children[0].Children) != 0 {
		t.Error("exhausted branch should be childless")
	}
	if len(root.Children[1].Children) != 1 {
		t.Error("healthy sibling should still expand")
	}
	if stats.ExhaustedBranches != 1 {
		t.Errorf("stats.ExhaustedBranches = %d, want 1", stats.ExhaustedBranches)
	}
}
