package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/shufanz/papertracer/internal/model"
)

// Selectors names the structural hooks the extractor looks for. The
// defaults match the scholar-style markup the original crawler targeted;
// they are replaceable without touching the walking logic.
type Selectors struct {
	// ResultClass marks one result block (a div per paper).
	ResultClass string

	// TitleClass marks the heading element holding title and link.
	TitleClass string

	// BylineClass marks the author/venue/year line.
	BylineClass string

	// AbstractClass marks the snippet text.
	AbstractClass string

	// ResultsContainerID marks the wrapper around all results. Its
	// presence makes an empty page "parseable with zero results"
	// instead of "not a results page".
	ResultsContainerID string
}

// DefaultSelectors returns the selector set for the scholar-style
// markup.
func DefaultSelectors() Selectors {
	return Selectors{
		ResultClass:        "gs_r",
		TitleClass:         "gs_rt",
		BylineClass:        "gs_a",
		AbstractClass:      "gs_rs",
		ResultsContainerID: "gs_res_ccl",
	}
}

// citedByPattern matches the anchor text of a cited-by link and
// captures the count.
var citedByPattern = regexp.MustCompile(`Cited by (\d+)`)

// yearPattern matches a plausible 4-digit publication year inside the
// byline.
var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Extractor parses result pages into Paper candidates.
type Extractor struct {
	selectors Selectors
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSelectors overrides the default structural hooks.
func WithSelectors(s Selectors) Option {
	return func(e *Extractor) {
		e.selectors = s
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{selectors: DefaultSelectors()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses content and returns the Paper candidates found plus
// whether the page structure looked like a results page at all.
// Candidates are returned in page order; blocks that could not be
// parsed yield candidates with an empty title so the caller can count
// and discard them. baseURL resolves relative cited-by and paper links.
func (e *Extractor) Extract(content, baseURL string) ([]model.Paper, bool, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, false, fmt.Errorf("parsing base URL: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, false, fmt.Errorf("parsing page: %w", err)
	}

	var papers []model.Paper
	parseable := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if getAttr(n, "id") == e.selectors.ResultsContainerID {
				parseable = true
			}
			if n.Data == "div" && hasClass(n, e.selectors.ResultClass) {
				parseable = true
				papers = append(papers, e.parseResult(n, base))
				// Result blocks do not nest; no need to descend.
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return papers, parseable, nil
}

// parseResult extracts one Paper from a result block. Missing pieces
// degrade to zero values; only a missing title invalidates the
// candidate.
func (e *Extractor) parseResult(block *html.Node, base *url.URL) model.Paper {
	var paper model.Paper

	if title := findByClass(block, e.selectors.TitleClass); title != nil {
		paper.Title = NormalizeTitle(nodeText(title))
		if link := findElement(title, "a"); link != nil {
			paper.URL = resolveRef(base, getAttr(link, "href"))
		}
	}

	if byline := findByClass(block, e.selectors.BylineClass); byline != nil {
		text := collapseSpace(nodeText(byline))
		if match := yearPattern.FindString(text); match != "" {
			paper.Year = match
			// The author list precedes the year in the byline.
			paper.Authors = strings.Trim(strings.Split(text, match)[0], " -,–")
		} else {
			paper.Authors = text
		}
	}

	if abstract := findByClass(block, e.selectors.AbstractClass); abstract != nil {
		paper.Abstract = collapseSpace(nodeText(abstract))
	}

	if count, href, ok := findCitedBy(block); ok {
		paper.CitationCount = count
		paper.CitedByURL = resolveRef(base, href)
	}

	return paper
}

// NormalizeTitle NFC-normalizes, strips inline format tags rendered as
// bracketed markers (e.g. "[PDF]", "[HTML]") and collapses whitespace.
func NormalizeTitle(title string) string {
	title = norm.NFC.String(title)
	for {
		start := strings.IndexByte(title, '[')
		if start < 0 {
			break
		}
		end := strings.IndexByte(title[start:], ']')
		if end < 0 {
			break
		}
		title = title[:start] + title[start+end+1:]
	}
	return collapseSpace(title)
}

// findCitedBy locates the "Cited by N" anchor anywhere in the block.
func findCitedBy(block *html.Node) (int, string, bool) {
	var count int
	var href string
	found := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if m := citedByPattern.FindStringSubmatch(nodeText(n)); m != nil {
				if c, err := strconv.Atoi(m[1]); err == nil {
					count = c
					href = getAttr(n, "href")
					found = true
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(block)

	return count, href, found
}

// resolveRef resolves href against base, returning href unchanged when
// it does not parse.
func resolveRef(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// findByClass returns the first descendant carrying the given class.
func findByClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

// findElement returns the first descendant element with the given tag.
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// hasClass reports whether the node's class attribute contains class as
// a whole token.
func hasClass(n *html.Node, class string) bool {
	for _, token := range strings.Fields(getAttr(n, "class")) {
		if token == class {
			return true
		}
	}
	return false
}

// getAttr returns the value of the named attribute, or "".
func getAttr(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

// nodeText concatenates all text under n.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// collapseSpace trims and collapses runs of whitespace to single
// spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
