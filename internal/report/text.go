package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/shufanz/papertracer/internal/model"
)

// TextWriter outputs human-readable text reports with the citation tree
// rendered as an indented outline.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type TextWriter struct {
	baseWriter

	// showEmpty controls whether sections with no content are shown.
	showEmpty bool

	// verbose enables additional detail in the output.
	verbose bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) TextWriterOption {
	return func(w *TextWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  false,
		verbose:    false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *TextWriter) Write(report *CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeClassifications(&sb, report)
	w.writeTree(&sb, report)
	w.writeTopPapers(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with crawl information.
func (w *TextWriter) writeHeader(sb *strings.Builder, report *CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        PAPERTRACER REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Session:    %s\n", report.SessionID))
	sb.WriteString(fmt.Sprintf("Start URL:  %s\n", report.StartURL))
	sb.WriteString(fmt.Sprintf("Generated:  %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")))

	if report.Interrupted {
		sb.WriteString("Status:     INTERRUPTED (partial results)\n")
	} else {
		sb.WriteString("Status:     Complete\n")
	}

	sb.WriteString("\n")
}

// writeSummary writes the crawl counters section.
func (w *TextWriter) writeSummary(sb *strings.Builder, report *CrawlReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("CRAWL SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  Requests:            %d\n", report.RequestCount))
	sb.WriteString(fmt.Sprintf("  Listings visited:    %d\n", report.VisitedURLs))
	sb.WriteString(fmt.Sprintf("  Tree nodes:          %d\n", report.TreeNodes()))
	sb.WriteString(fmt.Sprintf("  Tree depth:          %d\n", report.TreeDepth()))

	if w.verbose || report.Stats.ExhaustedBranches > 0 || report.Stats.CollapsedCycles > 0 {
		sb.WriteString(fmt.Sprintf("  Empty branches:      %d\n", report.Stats.EmptyBranches))
		sb.WriteString(fmt.Sprintf("  Exhausted branches:  %d\n", report.Stats.ExhaustedBranches))
		sb.WriteString(fmt.Sprintf("  Collapsed cycles:    %d\n", report.Stats.CollapsedCycles))
	}
	sb.WriteString("\n")
}

// writeClassifications writes the fetch-attempt breakdown.
func (w *TextWriter) writeClassifications(sb *strings.Builder, report *CrawlReport) {
	if len(report.Classifications) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FETCH ATTEMPTS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Classifications) == 0 {
		sb.WriteString("  No attempts recorded\n")
	} else {
		for _, label := range classificationOrder {
			if count, ok := report.Classifications[label.key]; ok {
				sb.WriteString(fmt.Sprintf("  %-17s %d\n", label.name+":", count))
			}
		}
	}
	sb.WriteString("\n")
}

// classificationOrder fixes the display order of attempt classifications.
var classificationOrder = []struct {
	key  string
	name string
}{
	{"normal", "Normal"},
	{"challenge", "Challenge"},
	{"rate_limited", "Rate limited"},
	{"", "Transport error"},
}

// writeTree writes the citation tree as an indented outline.
func (w *TextWriter) writeTree(sb *strings.Builder, report *CrawlReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("CITATION TREE\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if report.Tree == nil {
		sb.WriteString("  No tree built (root resolution failed)\n\n")
		return
	}

	w.writeNode(sb, report.Tree, "  ")
	sb.WriteString("\n")
}

// writeNode writes one tree node and recurses into its children.
func (w *TextWriter) writeNode(sb *strings.Builder, node *model.CitationNode, indent string) {
	title := node.Paper.Title
	if title == "" {
		title = "(cited-by listing)"
	}
	sb.WriteString(fmt.Sprintf("%s* %s\n", indent, title))

	var details []string
	if node.Paper.Authors != "" {
		details = append(details, node.Paper.Authors)
	}
	if node.Paper.Year != "" {
		details = append(details, node.Paper.Year)
	}
	if node.Paper.CitationCount > 0 {
		details = append(details, fmt.Sprintf("cited by %d", node.Paper.CitationCount))
	}
	if len(details) > 0 {
		sb.WriteString(fmt.Sprintf("%s  %s\n", indent, strings.Join(details, " | ")))
	}
	if w.verbose && node.Paper.URL != "" {
		sb.WriteString(fmt.Sprintf("%s  %s\n", indent, node.Paper.URL))
	}

	for _, child := range node.Children {
		w.writeNode(sb, child, indent+"  ")
	}
}

// writeTopPapers writes the most-cited papers section.
func (w *TextWriter) writeTopPapers(sb *strings.Builder, report *CrawlReport) {
	if len(report.TopPapers) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("MOST CITED\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.TopPapers) == 0 {
		sb.WriteString("  No papers found\n")
	} else {
		for i, p := range report.TopPapers {
			sb.WriteString(fmt.Sprintf("  %2d. %s (%d citations)\n", i+1, p.Title, p.CitationCount))
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *TextWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by PaperTracer\n")
	sb.WriteString("https://github.com/shufanz/papertracer\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
