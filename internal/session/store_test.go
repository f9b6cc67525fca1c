package session

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/shufanz/papertracer/internal/model"
)

func sampleSnapshot() model.SessionSnapshot {
	last := "2026-08-27T10:30:00Z"
	return model.SessionSnapshot{
		SessionID:             "session_20260827_103000",
		VisitedURLs:           []string{"https://a.example.org", "https://b.example.org"},
		RequestCount:          17,
		ConsecutiveRateLimits: 2,
		LastRateLimitTime:     &last,
		CurrentProxyIndex:     1,
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	snap := sampleSnapshot()

	if err := store.Save(snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Load(snap.SessionID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, snap)
	}
}

func TestStore_SaveIsAtomic(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	snap := sampleSnapshot()
	if err := store.Save(snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// No temp files left behind after a successful save.
	entries, err := os.ReadDir(store.Dir(snap.SessionID))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != StateFileName {
			t.Errorf("unexpected file %q in session directory", e.Name())
		}
	}
}

func TestStore_LoadMissing(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	if _, err := store.Load("session_never_saved"); err == nil {
		t.Error("Load() of a missing session should fail")
	}
}

func TestStore_LoadMalformed(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	dir := store.Dir("session_broken")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, StateFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load("session_broken"); err == nil {
		t.Error("Load() of a malformed snapshot should fail")
	}
}

func TestStore_TreeRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	root := model.NewCitationNode(model.Paper{CitedByURL: "https://scholar.example.org/scholar?cites=1"}, 0)
	child := model.NewCitationNode(model.Paper{Title: "A", CitationCount: 4}, 1)
	root.AddChild(child)

	if err := store.SaveTree("session_tree", root); err != nil {
		t.Fatalf("SaveTree() error = %v", err)
	}
	got, err := store.LoadTree("session_tree")
	if err != nil {
		t.Fatalf("LoadTree() error = %v", err)
	}
	if !reflect.DeepEqual(got, root) {
		t.Errorf("tree round trip mismatch:\ngot  %+v\nwant %+v", got, root)
	}
}

func TestRestoreFromSavedSnapshot(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	snap := sampleSnapshot()
	if err := store.Save(snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(snap.SessionID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sess := model.NewCrawlSession()
	if err := sess.Restore(loaded); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	// The restored session refuses to re-claim what the old run
	// already fetched and continues its counters.
	if sess.ClaimURL("https://a.example.org") {
		t.Error("restored session must not re-claim a visited URL")
	}
	if !sess.ClaimURL("https://new.example.org") {
		t.Error("restored session must accept new URLs")
	}
	if sess.RequestCount() != 17 {
		t.Errorf("RequestCount() = %d, want 17", sess.RequestCount())
	}
	if sess.ConsecutiveRateLimits() != 2 {
		t.Errorf("ConsecutiveRateLimits() = %d, want 2", sess.ConsecutiveRateLimits())
	}
	if sess.ProxyIndex() != 1 {
		t.Errorf("ProxyIndex() = %d, want 1", sess.ProxyIndex())
	}
}
