// Package detect classifies fetched pages as normal content, soft
// anti-bot challenges, or hard rate limits.
//
// Classification is a pure function over the page text and HTTP status:
// no network access, no state. It is intentionally keyword and marker
// based and tolerant of false negatives: an undetected block looks
// like a page with no results, which extraction handles separately.
package detect
