package fetch

import (
	"testing"
)

func TestHeaderRotator_Header(t *testing.T) {
	t.Parallel()

	r := NewHeaderRotator()
	h := r.Header()

	if h.Get("User-Agent") == "" {
		t.Error("User-Agent should be set")
	}
	if h.Get("Accept") == "" {
		t.Error("Accept should be set")
	}
	if h.Get("Accept-Language") == "" {
		t.Error("Accept-Language should be set")
	}
	if h.Get("Upgrade-Insecure-Requests") != "1" {
		t.Error("Upgrade-Insecure-Requests should be 1")
	}
}

func TestHeaderRotator_Rotate(t *testing.T) {
	t.Parallel()

	r := NewHeaderRotator()
	first := r.UserAgent()
	r.Rotate()
	second := r.UserAgent()

	if first == second {
		t.Error("rotation should change the User-Agent")
	}

	// The pool is a ring: a full cycle returns to the start.
	for i := 1; i < len(userAgents); i++ {
		r.Rotate()
	}
	if got := r.UserAgent(); got != first {
		t.Errorf("after full cycle UserAgent = %q, want %q", got, first)
	}
}

func TestHeaderRotator_HeaderIsFresh(t *testing.T) {
	t.Parallel()

	r := NewHeaderRotator()
	h := r.Header()
	h.Set("User-Agent", "mutated")

	if r.Header().Get("User-Agent") == "mutated" {
		t.Error("Header must return a fresh set, not shared state")
	}
}
