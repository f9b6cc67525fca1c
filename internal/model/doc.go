// Package model defines the core data types for PaperTracer.
//
// # Types
//
//   - Paper: a single citation record extracted from a results page
//   - CitationNode: a node in the bounded citation tree
//   - CrawlSession: the mutable crawl state (visited set, counters)
//
// The types in this package carry no crawling logic. Paper and
// CitationNode are immutable by convention once attached to a tree;
// CrawlSession is mutated only by the fetch orchestrator and snapshotted
// by the session package for checkpoint/resume.
//
// # Serialization
//
// CitationNode serializes to the nested JSON shape consumed by the report
// writers and external visualization tools. SessionSnapshot is the flat,
// durable form of CrawlSession. Both round-trip losslessly.
package model
