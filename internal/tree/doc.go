// Package tree builds the bounded citation tree that is the crawl's
// end product.
//
// The Builder drives depth-first expansion through a Fetcher (the
// fetch.Orchestrator in production). Each node's cited-by listing is
// fetched at most once for the whole crawl; a URL encountered again
// anywhere in the tree collapses to a childless leaf, which guarantees
// termination even when the source's citation relation has cycles.
//
// Bounds: a node is expanded only while its children would still fall
// inside maxDepth, and at most maxPapersPerLevel children are taken
// from each listing. Candidates arrive from the Fetcher already sorted
// by citation count descending, so truncation keeps the highest-impact
// branches.
package tree
