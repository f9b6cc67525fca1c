// Package main provides the entry point for the PaperTracer CLI.
//
// PaperTracer builds citation trees from academic search results. It
// follows "cited by" links recursively, escalating through anti-block
// mitigation tiers when the source pushes back.
//
// Usage:
//
//	papertracer crawl <paper-url>
//	papertracer session list
//
// See --help for all available options.
package main

// main is the entry point for PaperTracer.
func main() {
	Execute()
}
