// Package session persists crawl state so an interrupted crawl can
// resume without redoing work or resetting its delay trajectory.
//
// Each session owns a directory under the data root, named by its ID.
// The directory holds the session snapshot (session_state.json), the
// citation tree (citation_tree.json) and whatever reports the crawl
// produced. Store reads and writes those files; Checkpointer saves
// snapshots periodically while a crawl runs; Manager implements the
// maintenance commands (list, analyze, cleanup, merge) over the whole
// data root.
//
// Load failures are deliberately soft: a missing or corrupt snapshot
// means "start fresh", never "abort the crawl". Save failures are
// surfaced because they risk losing checkpoint data.
package session
