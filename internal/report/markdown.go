package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/shufanz/papertracer/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeClassifications(md, report)
	w.writeTopPapers(md, report)
	w.writeTree(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *CrawlReport) {
	md.H1("PaperTracer Report")
	md.PlainText("")

	// Basic info table
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Session", "`" + report.SessionID + "`"},
			{"Start URL", "`" + report.StartURL + "`"},
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *CrawlReport) string {
	if report.Interrupted {
		return "⚠️ Interrupted (partial results)"
	}
	return "✅ Complete"
}

// writeSummary writes the crawl counters section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *CrawlReport) {
	md.H2("Crawl Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Requests", strconv.Itoa(report.RequestCount)},
			{"Listings visited", strconv.Itoa(report.VisitedURLs)},
			{"Tree nodes", strconv.Itoa(report.TreeNodes())},
			{"Tree depth", strconv.Itoa(report.TreeDepth())},
			{"Empty branches", strconv.Itoa(report.Stats.EmptyBranches)},
			{"Exhausted branches", strconv.Itoa(report.Stats.ExhaustedBranches)},
			{"Collapsed cycles", strconv.Itoa(report.Stats.CollapsedCycles)},
		},
	})
	md.PlainText("")

	w.writeAlert(md, report)
}

// writeAlert writes an appropriate alert based on how the crawl went.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *CrawlReport) {
	switch {
	case report.Tree == nil:
		md.Caution("Root resolution failed; no citation tree was built.")
	case report.Interrupted:
		md.Warning("The crawl was interrupted. The tree below holds partial results; resume the session to continue.")
	case report.Stats.ExhaustedBranches > 0:
		md.Importantf(
			"%d branch(es) exhausted their retry budget and were abandoned. Consider slower pacing or proxies.",
			report.Stats.ExhaustedBranches,
		)
	default:
		md.Tip("Crawl completed without abandoned branches.")
	}
	md.PlainText("")
}

// writeClassifications writes the fetch-attempt breakdown with a
// mermaid pie chart when blocks occurred.
func (w *MarkdownWriter) writeClassifications(md *markdown.Markdown, report *CrawlReport) {
	if len(report.Classifications) == 0 {
		return
	}

	md.H2("Fetch Attempts")
	md.PlainText("")

	rows := make([][]string, 0, len(classificationOrder))
	for _, label := range classificationOrder {
		if count, ok := report.Classifications[label.key]; ok {
			rows = append(rows, []string{label.name, strconv.Itoa(count)})
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Classification", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if blocked := report.Classifications["challenge"] + report.Classifications["rate_limited"]; blocked > 0 {
		w.writePieChart(md, report)
	}
}

// writePieChart writes a mermaid pie chart of attempt classifications.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *CrawlReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Fetch Attempt Classifications"),
		piechart.WithShowData(true),
	)

	for _, label := range classificationOrder {
		if count := report.Classifications[label.key]; count > 0 {
			chart.LabelAndIntValue(label.name, uint64(count))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeTopPapers writes the most-cited papers table.
func (w *MarkdownWriter) writeTopPapers(md *markdown.Markdown, report *CrawlReport) {
	md.H2("Most Cited")
	md.PlainText("")

	if len(report.TopPapers) == 0 {
		md.PlainText("No papers found.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.TopPapers))
	for i, p := range report.TopPapers {
		authors := p.Authors
		if authors == "" {
			authors = "-"
		}
		year := p.Year
		if year == "" {
			year = "-"
		}

		rows[i] = []string{
			truncateString(p.Title, 60),
			truncateString(authors, 40),
			year,
			strconv.Itoa(p.CitationCount),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Title", "Authors", "Year", "Citations"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeTree writes the citation tree as a nested list.
func (w *MarkdownWriter) writeTree(md *markdown.Markdown, report *CrawlReport) {
	md.H2("Citation Tree")
	md.PlainText("")

	if report.Tree == nil {
		md.PlainText("No tree built.")
		md.PlainText("")
		return
	}

	var sb strings.Builder
	w.writeTreeNode(&sb, report.Tree, 0)
	md.PlainText(sb.String())
	md.PlainText("")
}

// writeTreeNode renders one node as a nested markdown list item.
func (w *MarkdownWriter) writeTreeNode(sb *strings.Builder, node *model.CitationNode, level int) {
	title := node.Paper.Title
	if title == "" {
		title = "_(cited-by listing)_"
	}

	indent := strings.Repeat("  ", level)
	if node.Paper.CitationCount > 0 {
		sb.WriteString(fmt.Sprintf("%s- %s (cited by %d)\n", indent, title, node.Paper.CitationCount))
	} else {
		sb.WriteString(fmt.Sprintf("%s- %s\n", indent, title))
	}

	for _, child := range node.Children {
		w.writeTreeNode(sb, child, level+1)
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [PaperTracer](https://github.com/shufanz/papertracer)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
