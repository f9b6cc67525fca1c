package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/shufanz/papertracer/internal/model"
)

// CrawlDB stores the diagnostic record of one crawl session: fetch
// attempts with their block classifications, and the papers extracted
// from normal pages.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB inside the given session directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(sessionDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(sessionDir, "papertracer.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(sessionDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating
	// new files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; the crawl is single-threaded
	// anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Attempts record every network or browser fetch, blocked or not
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		url TEXT NOT NULL,
		tier INTEGER NOT NULL,
		status_code INTEGER,
		classification TEXT,
		error TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_url ON attempts(url);
	CREATE INDEX IF NOT EXISTS idx_attempts_timestamp ON attempts(timestamp);

	-- Papers extracted from normal pages, one row per candidate
	CREATE TABLE IF NOT EXISTS papers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		title TEXT NOT NULL,
		authors TEXT,
		year TEXT,
		citation_count INTEGER DEFAULT 0,
		url TEXT,
		cited_by_url TEXT,
		abstract TEXT,
		depth INTEGER DEFAULT 0,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(session_id, title, url)
	);

	CREATE INDEX IF NOT EXISTS idx_papers_session ON papers(session_id);
	CREATE INDEX IF NOT EXISTS idx_papers_citations ON papers(citation_count);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// AttemptRecord is one stored fetch attempt.
type AttemptRecord struct {
	ID             int64
	SessionID      string
	URL            string
	Tier           int
	StatusCode     int
	Classification string
	Error          string
	Timestamp      time.Time
}

// InsertAttempt stores one fetch attempt.
func (cdb *CrawlDB) InsertAttempt(ctx context.Context, record *AttemptRecord) (int64, error) {
	query := `
	INSERT INTO attempts (session_id, url, tier, status_code, classification, error)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := cdb.db.ExecContext(ctx, query,
		record.SessionID,
		record.URL,
		record.Tier,
		record.StatusCode,
		record.Classification,
		record.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert attempt: %w", err)
	}
	return result.LastInsertId()
}

// Attempts returns all stored attempts for a session, oldest first.
func (cdb *CrawlDB) Attempts(ctx context.Context, sessionID string) ([]AttemptRecord, error) {
	query := `
	SELECT id, session_id, url, tier, status_code, classification, error, timestamp
	FROM attempts
	WHERE session_id = ?
	ORDER BY id
	`

	rows, err := cdb.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var records []AttemptRecord
	for rows.Next() {
		var r AttemptRecord
		var timestamp string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.URL, &r.Tier, &r.StatusCode, &r.Classification, &r.Error, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		r.Timestamp = parseTimestamp(timestamp)
		records = append(records, r)
	}
	return records, rows.Err()
}

// ClassificationCounts returns how many attempts ended in each
// classification for a session. Attempts that failed at the transport
// layer (no classification) are keyed by the empty string.
func (cdb *CrawlDB) ClassificationCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	query := `
	SELECT classification, COUNT(*)
	FROM attempts
	WHERE session_id = ?
	GROUP BY classification
	`

	rows, err := cdb.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query classification counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var classification string
		var count int
		if err := rows.Scan(&classification, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[classification] = count
	}
	return counts, rows.Err()
}

// InsertPaper stores one extracted paper at the given tree depth.
// Uses UPSERT so re-encountering the same paper updates its counters
// instead of duplicating the row.
func (cdb *CrawlDB) InsertPaper(ctx context.Context, sessionID string, paper model.Paper, depth int) error {
	query := `
	INSERT INTO papers (session_id, title, authors, year, citation_count, url, cited_by_url, abstract, depth)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, title, url) DO UPDATE SET
		citation_count = excluded.citation_count,
		cited_by_url = excluded.cited_by_url,
		abstract = excluded.abstract,
		timestamp = CURRENT_TIMESTAMP
	`

	_, err := cdb.db.ExecContext(ctx, query,
		sessionID,
		paper.Title,
		paper.Authors,
		paper.Year,
		paper.CitationCount,
		paper.URL,
		paper.CitedByURL,
		paper.Abstract,
		depth,
	)
	if err != nil {
		return fmt.Errorf("failed to insert paper: %w", err)
	}
	return nil
}

// InsertTree stores every node of a citation tree.
func (cdb *CrawlDB) InsertTree(ctx context.Context, sessionID string, root *model.CitationNode) error {
	var insertErr error
	root.Walk(func(n *model.CitationNode) {
		if insertErr != nil || !n.Paper.Valid() {
			return
		}
		insertErr = cdb.InsertPaper(ctx, sessionID, n.Paper, n.Depth)
	})
	return insertErr
}

// TopPapers returns the most-cited papers stored for a session.
func (cdb *CrawlDB) TopPapers(ctx context.Context, sessionID string, limit int) ([]model.Paper, error) {
	query := `
	SELECT title, authors, year, citation_count, url, cited_by_url, abstract
	FROM papers
	WHERE session_id = ?
	ORDER BY citation_count DESC, title
	LIMIT ?
	`

	rows, err := cdb.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query papers: %w", err)
	}
	defer rows.Close()

	var papers []model.Paper
	for rows.Next() {
		var p model.Paper
		if err := rows.Scan(&p.Title, &p.Authors, &p.Year, &p.CitationCount, &p.URL, &p.CitedByURL, &p.Abstract); err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
