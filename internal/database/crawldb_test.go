package database

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/shufanz/papertracer/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		sessionDir := filepath.Join(t.TempDir(), "session_20260827_100000")
		db, err := Open(sessionDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(sessionDir, "papertracer.db")); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		opts := Options{CreateIfNotExists: false, EnableWAL: true}
		if _, err := Open(filepath.Join(t.TempDir(), "missing"), opts); err == nil {
			t.Error("expected error for missing database")
		}
	})
}

func TestCrawlDB_Attempts(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	sessionID := "session_20260827_100000"

	records := []AttemptRecord{
		{SessionID: sessionID, URL: "https://scholar.example.org/scholar?cites=1", Tier: 0, StatusCode: http.StatusTooManyRequests, Classification: "rate_limited"},
		{SessionID: sessionID, URL: "https://scholar.example.org/scholar?cites=1", Tier: 0, StatusCode: http.StatusOK, Classification: "challenge"},
		{SessionID: sessionID, URL: "https://scholar.example.org/scholar?cites=1", Tier: 2, StatusCode: http.StatusOK, Classification: "normal"},
		{SessionID: sessionID, URL: "https://scholar.example.org/scholar?cites=2", Tier: 0, Error: "dial tcp: timeout"},
	}
	for i := range records {
		if _, err := db.InsertAttempt(ctx, &records[i]); err != nil {
			t.Fatalf("InsertAttempt() error = %v", err)
		}
	}

	got, err := db.Attempts(ctx, sessionID)
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Attempts() returned %d records, want 4", len(got))
	}
	if got[0].Classification != "rate_limited" || got[2].Tier != 2 {
		t.Errorf("attempts out of insertion order: %+v", got)
	}
	if got[3].Error != "dial tcp: timeout" {
		t.Errorf("transport error not stored: %+v", got[3])
	}

	counts, err := db.ClassificationCounts(ctx, sessionID)
	if err != nil {
		t.Fatalf("ClassificationCounts() error = %v", err)
	}
	if counts["rate_limited"] != 1 || counts["challenge"] != 1 || counts["normal"] != 1 || counts[""] != 1 {
		t.Errorf("ClassificationCounts() = %v", counts)
	}

	// Other sessions are invisible.
	other, err := db.Attempts(ctx, "session_other")
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no attempts for unknown session, got %d", len(other))
	}
}

func TestCrawlDB_Papers(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	sessionID := "session_20260827_110000"

	papers := []model.Paper{
		{Title: "High impact", CitationCount: 500, URL: "https://a.example.org", CitedByURL: "https://scholar.example.org/scholar?cites=1"},
		{Title: "Low impact", CitationCount: 2, URL: "https://b.example.org"},
		{Title: "Mid impact", CitationCount: 40, URL: "https://c.example.org"},
	}
	for _, p := range papers {
		if err := db.InsertPaper(ctx, sessionID, p, 1); err != nil {
			t.Fatalf("InsertPaper() error = %v", err)
		}
	}

	// Upsert updates instead of duplicating.
	updated := papers[1]
	updated.CitationCount = 3
	if err := db.InsertPaper(ctx, sessionID, updated, 1); err != nil {
		t.Fatalf("InsertPaper() upsert error = %v", err)
	}

	top, err := db.TopPapers(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("TopPapers() error = %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("TopPapers() returned %d papers, want 3 (upsert must not duplicate)", len(top))
	}
	if top[0].Title != "High impact" || top[1].Title != "Mid impact" || top[2].Title != "Low impact" {
		t.Errorf("TopPapers() order = %q, %q, %q", top[0].Title, top[1].Title, top[2].Title)
	}
	if top[2].CitationCount != 3 {
		t.Errorf("upserted citation count = %d, want 3", top[2].CitationCount)
	}

	// Limit applies.
	top2, err := db.TopPapers(ctx, sessionID, 2)
	if err != nil {
		t.Fatalf("TopPapers() error = %v", err)
	}
	if len(top2) != 2 {
		t.Errorf("TopPapers(limit=2) returned %d papers", len(top2))
	}
}

func TestCrawlDB_InsertTree(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	sessionID := "session_20260827_120000"

	// Placeholder root with an empty title must be skipped.
	root := model.NewCitationNode(model.Paper{CitedByURL: "https://scholar.example.org/scholar?cites=1"}, 0)
	root.AddChild(model.NewCitationNode(model.Paper{Title: "A", CitationCount: 9, URL: "https://a.example.org"}, 1))
	root.AddChild(model.NewCitationNode(model.Paper{Title: "B", CitationCount: 4, URL: "https://b.example.org"}, 1))

	if err := db.InsertTree(ctx, sessionID, root); err != nil {
		t.Fatalf("InsertTree() error = %v", err)
	}

	top, err := db.TopPapers(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("TopPapers() error = %v", err)
	}
	if len(top) != 2 {
		t.Errorf("stored %d papers, want 2 (placeholder root excluded)", len(top))
	}
}
