package model

import (
	"bytes"
	"reflect"
	"testing"
)

func TestPaper_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		paper Paper
		want  bool
	}{
		{
			name:  "titled paper is valid",
			paper: Paper{Title: "Attention Is All You Need"},
			want:  true,
		},
		{
			name:  "empty title marks extraction failure",
			paper: Paper{Authors: "A. Vaswani", Year: "2017"},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.paper.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortByCitations(t *testing.T) {
	t.Parallel()

	papers := []Paper{
		{Title: "a", CitationCount: 50},
		{Title: "b", CitationCount: 10},
		{Title: "c", CitationCount: 80},
		{Title: "d", CitationCount: 5},
		{Title: "e", CitationCount: 30},
	}
	SortByCitations(papers)

	want := []int{80, 50, 30, 10, 5}
	for i, p := range papers {
		if p.CitationCount != want[i] {
			t.Errorf("papers[%d].CitationCount = %d, want %d", i, p.CitationCount, want[i])
		}
	}
}

func TestSortByCitations_StableOnTies(t *testing.T) {
	t.Parallel()

	papers := []Paper{
		{Title: "first", CitationCount: 10},
		{Title: "second", CitationCount: 10},
		{Title: "third", CitationCount: 10},
	}
	SortByCitations(papers)

	if papers[0].Title != "first" || papers[1].Title != "second" || papers[2].Title != "third" {
		t.Errorf("tied papers lost page order: %v", papers)
	}
}

func TestCitationNode_CountNodesAndMaxDepth(t *testing.T) {
	t.Parallel()

	root := NewCitationNode(Paper{Title: "root"}, 0)
	childA := NewCitationNode(Paper{Title: "a"}, 1)
	childB := NewCitationNode(Paper{Title: "b"}, 1)
	grand := NewCitationNode(Paper{Title: "a.1"}, 2)

	childA.AddChild(grand)
	root.AddChild(childA)
	root.AddChild(childB)

	if got := root.CountNodes(); got != 4 {
		t.Errorf("CountNodes() = %d, want 4", got)
	}
	if got := root.MaxDepth(); got != 2 {
		t.Errorf("MaxDepth() = %d, want 2", got)
	}
}

func TestCitationNode_WalkOrder(t *testing.T) {
	t.Parallel()

	root := NewCitationNode(Paper{Title: "root"}, 0)
	childA := NewCitationNode(Paper{Title: "a"}, 1)
	childA.AddChild(NewCitationNode(Paper{Title: "a.1"}, 2))
	root.AddChild(childA)
	root.AddChild(NewCitationNode(Paper{Title: "b"}, 1))

	var order []string
	root.Walk(func(n *CitationNode) {
		order = append(order, n.Paper.Title)
	})

	want := []string{"root", "a", "a.1", "b"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("Walk order = %v, want %v", order, want)
	}
}

func TestTree_RoundTrip(t *testing.T) {
	t.Parallel()

	// Include a node with empty authors/year and a placeholder root
	// with an empty title, both of which must survive unchanged.
	root := NewCitationNode(Paper{CitedByURL: "https://example.org/cites?id=1"}, 0)
	child := NewCitationNode(Paper{
		Title:         "Deep Residual Learning",
		Authors:       "K. He, X. Zhang",
		Year:          "2016",
		CitationCount: 120000,
		URL:           "https://example.org/paper/resnet",
		CitedByURL:    "https://example.org/cites?id=2",
		Abstract:      "Deeper neural networks are more difficult to train.",
	}, 1)
	leaf := NewCitationNode(Paper{Title: "Untitled followup"}, 2)
	child.AddChild(leaf)
	root.AddChild(child)

	var buf bytes.Buffer
	if err := EncodeTree(&buf, root); err != nil {
		t.Fatalf("EncodeTree() error = %v", err)
	}

	got, err := DecodeTree(&buf)
	if err != nil {
		t.Fatalf("DecodeTree() error = %v", err)
	}

	if !reflect.DeepEqual(got, root) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, root)
	}
}

func TestTree_JSONFieldNames(t *testing.T) {
	t.Parallel()

	root := NewCitationNode(Paper{Title: "t", CitationCount: 3}, 0)

	var buf bytes.Buffer
	if err := EncodeTree(&buf, root); err != nil {
		t.Fatalf("EncodeTree() error = %v", err)
	}

	for _, field := range []string{
		`"paper"`, `"title"`, `"authors"`, `"year"`, `"citation_count"`,
		`"url"`, `"cited_by_url"`, `"abstract"`, `"depth"`, `"children"`,
	} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Errorf("encoded tree missing field %s: %s", field, buf.String())
		}
	}
}
