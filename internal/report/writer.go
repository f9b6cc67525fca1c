package report

import (
	"io"
	"time"

	"github.com/shufanz/papertracer/internal/model"
	"github.com/shufanz/papertracer/internal/tree"
)

// CrawlReport aggregates everything a finished (or interrupted) crawl
// produced: the citation tree, session counters, and the fetch-attempt
// breakdown from the crawl database.
type CrawlReport struct {
	// SessionID identifies the crawl session this report describes.
	SessionID string `json:"session_id"`

	// StartURL is the paper or cited-by URL the crawl started from.
	StartURL string `json:"start_url"`

	// GeneratedAt is when the report was produced.
	GeneratedAt time.Time `json:"generated_at"`

	// Interrupted is true when the crawl was cancelled before finishing.
	// The tree still holds everything built up to that point.
	Interrupted bool `json:"interrupted"`

	// RequestCount is the total number of fetch attempts made.
	RequestCount int `json:"request_count"`

	// VisitedURLs is the number of distinct listing URLs claimed.
	VisitedURLs int `json:"visited_urls"`

	// Classifications counts fetch attempts per block classification.
	// Transport-level failures are keyed by the empty string.
	Classifications map[string]int `json:"classifications,omitempty"`

	// Stats are the tree builder's branch counters.
	Stats tree.Stats `json:"stats"`

	// Tree is the citation tree. Nil when root resolution failed.
	Tree *model.CitationNode `json:"tree,omitempty"`

	// TopPapers lists the most-cited papers found, sorted descending.
	TopPapers []model.Paper `json:"top_papers,omitempty"`
}

// TreeDepth returns the deepest level of the citation tree, or 0 for a
// missing tree.
func (r *CrawlReport) TreeDepth() int {
	if r.Tree == nil {
		return 0
	}
	return r.Tree.MaxDepth()
}

// TreeNodes returns the number of nodes in the citation tree.
func (r *CrawlReport) TreeNodes() int {
	if r.Tree == nil {
		return 0
	}
	return r.Tree.CountNodes()
}

// Writer defines the interface for report output.
// Implementations write crawl results in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *CrawlReport) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *CrawlReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
