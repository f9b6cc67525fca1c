package model

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Paper represents one citation record extracted from a results page.
//
// All fields are free text as rendered by the source. Year is kept as a
// string because the source sometimes renders ranges or non-numeric
// tokens; callers that need a number must parse it themselves.
type Paper struct {
	// Title is the paper title. A paper with an empty title is an
	// extraction failure and must never be attached to a tree node.
	Title string `json:"title"`

	// Authors is the free-text author line (may be empty).
	Authors string `json:"authors"`

	// Year is the 4-digit publication year token, or empty if unknown.
	Year string `json:"year"`

	// CitationCount is the number of citing papers reported by the
	// source, 0 when unknown. Sibling ordering in a tree is descending
	// on this value.
	CitationCount int `json:"citation_count"`

	// URL is the paper's own landing page (may be empty).
	URL string `json:"url"`

	// CitedByURL is the listing of papers that cite this one. An empty
	// value marks a leaf that cannot be expanded further.
	CitedByURL string `json:"cited_by_url"`

	// Abstract is the snippet text shown on the results page (optional).
	Abstract string `json:"abstract"`
}

// Valid reports whether the paper may be attached to a citation tree.
// Extraction marks unparseable result blocks with an empty title.
func (p Paper) Valid() bool {
	return p.Title != ""
}

// Expandable reports whether the paper has a cited-by listing that the
// crawler could fetch.
func (p Paper) Expandable() bool {
	return p.CitedByURL != ""
}

// SortByCitations orders papers by citation count, descending. The sort
// is stable so papers with equal counts keep their page order. Higher
// counts first means a per-level cap truncates the lowest-impact
// branches.
func SortByCitations(papers []Paper) {
	sort.SliceStable(papers, func(i, j int) bool {
		return papers[i].CitationCount > papers[j].CitationCount
	})
}

// CitationNode is a node in the citation tree. A node exclusively owns
// its children; the structure is a strict tree, never a graph.
// Cross-citation cycles are collapsed to childless leaves by the
// builder, so every node is reachable exactly once.
type CitationNode struct {
	Paper    Paper           `json:"paper"`
	Depth    int             `json:"depth"`
	Children []*CitationNode `json:"children"`
}

// NewCitationNode creates a node at the given depth with no children.
func NewCitationNode(paper Paper, depth int) *CitationNode {
	return &CitationNode{
		Paper:    paper,
		Depth:    depth,
		Children: []*CitationNode{},
	}
}

// AddChild appends a child node. Insertion order is priority order:
// the builder inserts candidates already sorted by citation count.
func (n *CitationNode) AddChild(child *CitationNode) {
	n.Children = append(n.Children, child)
}

// CountNodes returns the total number of nodes in the subtree rooted at
// n, including n itself.
func (n *CitationNode) CountNodes() int {
	count := 1
	for _, child := range n.Children {
		count += child.CountNodes()
	}
	return count
}

// MaxDepth returns the greatest Depth value found in the subtree.
func (n *CitationNode) MaxDepth() int {
	maxDepth := n.Depth
	for _, child := range n.Children {
		if d := child.MaxDepth(); d > maxDepth {
			maxDepth = d
		}
	}
	return maxDepth
}

// Walk calls fn for every node in the subtree in depth-first order,
// parent before children, siblings in priority order.
func (n *CitationNode) Walk(fn func(*CitationNode)) {
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// EncodeTree writes the tree as indented JSON. The shape
// ({paper, depth, children} nested records) is the external contract
// consumed by visualization and export tools, so field names must not
// change.
func EncodeTree(w io.Writer, root *CitationNode) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encoding citation tree: %w", err)
	}
	return nil
}

// DecodeTree reads a tree previously written by EncodeTree.
func DecodeTree(r io.Reader) (*CitationNode, error) {
	var root CitationNode
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decoding citation tree: %w", err)
	}
	return &root, nil
}
