package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shufanz/papertracer/internal/model"
)

// File names inside a session directory.
const (
	StateFileName = "session_state.json"
	TreeFileName  = "citation_tree.json"
)

// Store reads and writes session files under a data root directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir. The directory is created
// lazily on first save.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the data root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory for a session ID.
func (s *Store) Dir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// Save writes the snapshot to the session's state file. The write goes
// through a temp file and rename so a crash mid-write never leaves a
// truncated snapshot behind.
func (s *Store) Save(snap model.SessionSnapshot) error {
	dir := s.Dir(snap.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, StateFileName+".tmp*")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, StateFileName)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot for a session ID. Callers treat any error as
// "no usable snapshot" and start a fresh session.
func (s *Store) Load(sessionID string) (model.SessionSnapshot, error) {
	var snap model.SessionSnapshot
	data, err := os.ReadFile(filepath.Join(s.Dir(sessionID), StateFileName))
	if err != nil {
		return snap, fmt.Errorf("reading session snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decoding session snapshot: %w", err)
	}
	if snap.SessionID == "" {
		snap.SessionID = sessionID
	}
	return snap, nil
}

// SaveTree writes the citation tree into the session directory.
func (s *Store) SaveTree(sessionID string, root *model.CitationNode) error {
	dir := s.Dir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, TreeFileName))
	if err != nil {
		return fmt.Errorf("creating tree file: %w", err)
	}
	if err := model.EncodeTree(f, root); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadTree reads the citation tree from the session directory.
func (s *Store) LoadTree(sessionID string) (*model.CitationNode, error) {
	f, err := os.Open(filepath.Join(s.Dir(sessionID), TreeFileName))
	if err != nil {
		return nil, fmt.Errorf("opening tree file: %w", err)
	}
	defer f.Close()
	return model.DecodeTree(f)
}
