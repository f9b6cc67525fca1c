// Package database provides SQLite-based storage for crawl
// diagnostics: every fetch attempt with its block classification, and
// the papers extracted along the way.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for a single-threaded crawl
// 4. WAL mode provides good concurrent read performance
//
// The database is pure diagnostics; the crawl itself runs off the
// in-memory CrawlSession and its JSON snapshot. Losing the database
// loses the audit trail of how the source behaved, not crawl
// progress. One database file lives in each session directory, so a
// session can be archived or deleted as a unit.
package database
