// Package config provides configuration structures and utilities for
// PaperTracer. It defines the crawl-shape settings (depth, fan-out,
// pacing), the anti-block escalation switches, session persistence
// options, and the named presets, along with YAML file and environment
// loading.
package config
