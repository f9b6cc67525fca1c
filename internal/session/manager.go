package session

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shufanz/papertracer/internal/model"
)

// Info summarizes one session directory.
type Info struct {
	ID       string
	Path     string
	Modified time.Time
	HasState bool
	HasTree  bool

	FileCount int
	SizeBytes int64

	// Crawl statistics, populated when the state file is readable.
	RequestCount          int
	VisitedURLs           int
	ConsecutiveRateLimits int
	LastRateLimitTime     string
}

// Analysis is the detailed view of one session.
type Analysis struct {
	Info

	// FileTypes maps file extension to count.
	FileTypes map[string]int

	// Tree statistics, populated when a tree file is readable.
	TreeNodes    int
	TreeMaxDepth int
}

// Manager implements the session maintenance operations over a data
// root: listing, analysis, cleanup of old sessions and merging.
type Manager struct {
	store  *Store
	logger *slog.Logger
}

// NewManager creates a manager over the given store.
func NewManager(store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// List returns all sessions under the data root, newest first. A data
// root that does not exist yet yields an empty list.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.store.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data root: %w", err)
	}

	var sessions []Info
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := m.inspect(entry.Name())
		if err != nil {
			m.logger.Warn("skipping unreadable session", "session", entry.Name(), "error", err)
			continue
		}
		sessions = append(sessions, info)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Modified.After(sessions[j].Modified)
	})
	return sessions, nil
}

// Analyze returns the detailed view of one session.
func (m *Manager) Analyze(sessionID string) (*Analysis, error) {
	info, err := m.inspect(sessionID)
	if err != nil {
		return nil, err
	}
	a := &Analysis{Info: info, FileTypes: make(map[string]int)}

	entries, err := os.ReadDir(info.Path)
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == "" {
			ext = "(none)"
		}
		a.FileTypes[ext]++
	}

	if info.HasTree {
		root, err := m.store.LoadTree(sessionID)
		if err != nil {
			m.logger.Warn("tree file unreadable", "session", sessionID, "error", err)
		} else {
			a.TreeNodes = root.CountNodes()
			a.TreeMaxDepth = root.MaxDepth()
		}
	}
	return a, nil
}

// Cleanup removes sessions older than maxAge. With dryRun it only
// reports what would be removed. It returns the affected sessions.
func (m *Manager) Cleanup(maxAge time.Duration, dryRun bool) ([]Info, error) {
	sessions, err := m.List()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-maxAge)
	var old []Info
	for _, s := range sessions {
		if s.Modified.Before(cutoff) {
			old = append(old, s)
		}
	}
	if dryRun {
		return old, nil
	}

	for _, s := range old {
		if err := os.RemoveAll(s.Path); err != nil {
			return old, fmt.Errorf("removing session %s: %w", s.ID, err)
		}
		m.logger.Info("session removed", "session", s.ID)
	}
	return old, nil
}

// Merge combines two sessions into a new one named outputID (generated
// when empty). The merged snapshot unions the visited sets, sums the
// request counts and keeps the more recent rate-limit state, so a
// crawl resumed from it never re-fetches what either session already
// covered. The first session's tree is carried over when present.
func (m *Manager) Merge(id1, id2, outputID string) (Info, error) {
	snap1, err := m.store.Load(id1)
	if err != nil {
		return Info{}, fmt.Errorf("loading session %s: %w", id1, err)
	}
	snap2, err := m.store.Load(id2)
	if err != nil {
		return Info{}, fmt.Errorf("loading session %s: %w", id2, err)
	}

	if outputID == "" {
		outputID = "merged_" + time.Now().Format(model.SessionIDTimeFormat)
	}

	merged := model.SessionSnapshot{
		SessionID:    outputID,
		VisitedURLs:  unionSorted(snap1.VisitedURLs, snap2.VisitedURLs),
		RequestCount: snap1.RequestCount + snap2.RequestCount,
	}
	if snap1.ConsecutiveRateLimits > snap2.ConsecutiveRateLimits {
		merged.ConsecutiveRateLimits = snap1.ConsecutiveRateLimits
	} else {
		merged.ConsecutiveRateLimits = snap2.ConsecutiveRateLimits
	}
	merged.LastRateLimitTime = laterTimestamp(snap1.LastRateLimitTime, snap2.LastRateLimitTime)

	if err := m.store.Save(merged); err != nil {
		return Info{}, err
	}

	if root, err := m.store.LoadTree(id1); err == nil {
		if err := m.store.SaveTree(outputID, root); err != nil {
			return Info{}, err
		}
	}

	m.logger.Info("sessions merged", "from", id1, "and", id2, "into", outputID)
	return m.inspect(outputID)
}

// inspect reads one session directory into an Info.
func (m *Manager) inspect(sessionID string) (Info, error) {
	dir := m.store.Dir(sessionID)
	stat, err := os.Stat(dir)
	if err != nil {
		return Info{}, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if !stat.IsDir() {
		return Info{}, fmt.Errorf("session %s: not a directory", sessionID)
	}

	info := Info{
		ID:       sessionID,
		Path:     dir,
		Modified: stat.ModTime(),
	}

	err = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info.FileCount++
		if fi, err := d.Info(); err == nil {
			info.SizeBytes += fi.Size()
		}
		return nil
	})
	if err != nil {
		return Info{}, fmt.Errorf("walking session %s: %w", sessionID, err)
	}

	if snap, err := m.store.Load(sessionID); err == nil {
		info.HasState = true
		info.RequestCount = snap.RequestCount
		info.VisitedURLs = len(snap.VisitedURLs)
		info.ConsecutiveRateLimits = snap.ConsecutiveRateLimits
		if snap.LastRateLimitTime != nil {
			info.LastRateLimitTime = *snap.LastRateLimitTime
		}
	}
	if _, err := os.Stat(filepath.Join(dir, TreeFileName)); err == nil {
		info.HasTree = true
	}
	return info, nil
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// laterTimestamp picks the more recent of two RFC 3339 timestamps,
// tolerating nil and unparseable values.
func laterTimestamp(a, b *string) *string {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	ta, errA := time.Parse(time.RFC3339Nano, *a)
	tb, errB := time.Parse(time.RFC3339Nano, *b)
	switch {
	case errA != nil:
		return b
	case errB != nil:
		return a
	case tb.After(ta):
		return b
	default:
		return a
	}
}
