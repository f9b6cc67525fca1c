// Package extract turns rendered result pages into Paper candidates.
//
// The extractor walks the HTML tree (golang.org/x/net/html) looking for
// result blocks and pulls the title, byline, citation link and abstract
// out of each one. The structural heuristics (class names, link text
// shapes) are configurable because the source markup changes over time;
// correctness does not depend on any particular selector surviving.
//
// Extraction is deliberately tolerant: a malformed block produces a
// candidate with an empty title, which the orchestrator discards, and a
// page with no recognizable result structure is reported as
// unparseable so the caller can distinguish "no results" from "not a
// results page".
package extract
