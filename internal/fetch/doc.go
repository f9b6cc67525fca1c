// Package fetch implements the retrieval side of the crawl: fetching
// cited-by listings from a source that actively detects and blocks
// automation.
//
// The central type is Orchestrator. Given a URL it escalates through
// tiers until it obtains a normal page or exhausts its retry budget:
//
//   - Tier 0: direct HTTP GET with browser-like rotating headers,
//     paced by an adaptive delay.
//   - Tier 1: mitigation after a block. Rotate headers, advance the
//     proxy ring, back off exponentially, retry Tier 0.
//   - Tier 2: render the page in a headless browser (chromedp) and
//     re-classify the rendered content.
//   - Tier 3: open a visible browser and wait for a human to clear
//     the challenge, then re-read the page.
//
// Skip mode disables Tier 3 so an unattended crawl never blocks on
// human input; a surviving block just exhausts the budget.
//
// Design decision: the crawl is single-threaded and the Orchestrator
// never has more than one network or browser operation in flight.
// Concurrent fetches would amplify exactly the automation signal the
// tiers exist to suppress, so sequential execution is the backpressure
// strategy, not a limitation.
//
// All collaborators (transport, renderer, manual gate, delay policy,
// sleeper) are injectable so tests can simulate block sequences
// without network access or real sleeps.
package fetch
