package model

import (
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCrawlSession_ClaimURL(t *testing.T) {
	t.Parallel()

	s := NewCrawlSession()

	if !s.ClaimURL("https://example.org/cites?id=1") {
		t.Fatal("first claim should succeed")
	}
	if s.ClaimURL("https://example.org/cites?id=1") {
		t.Fatal("second claim of the same URL should fail")
	}
	if !s.Visited("https://example.org/cites?id=1") {
		t.Error("claimed URL should be visited")
	}
	if s.VisitedCount() != 1 {
		t.Errorf("VisitedCount() = %d, want 1", s.VisitedCount())
	}
}

func TestCrawlSession_ClaimURL_Concurrent(t *testing.T) {
	t.Parallel()

	s := NewCrawlSession()

	const goroutines = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.ClaimURL("https://example.org/contested") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("URL claimed %d times, want exactly 1", count)
	}
}

func TestCrawlSession_SessionIDFormat(t *testing.T) {
	t.Parallel()

	s := NewCrawlSession()
	if !strings.HasPrefix(s.ID(), "session_") {
		t.Errorf("ID() = %q, want session_ prefix", s.ID())
	}
	stamp := strings.TrimPrefix(s.ID(), "session_")
	if _, err := time.Parse(SessionIDTimeFormat, stamp); err != nil {
		t.Errorf("ID timestamp %q does not parse: %v", stamp, err)
	}
}

func TestCrawlSession_RateLimitCounters(t *testing.T) {
	t.Parallel()

	s := NewCrawlSession()
	now := time.Now()

	s.RecordRateLimit(now)
	s.RecordRateLimit(now.Add(time.Second))

	if got := s.ConsecutiveRateLimits(); got != 2 {
		t.Errorf("ConsecutiveRateLimits() = %d, want 2", got)
	}

	last, ok := s.LastRateLimit()
	if !ok {
		t.Fatal("LastRateLimit() should report an event")
	}
	if !last.Equal(now.Add(time.Second)) {
		t.Errorf("LastRateLimit() = %v, want %v", last, now.Add(time.Second))
	}

	s.ResetRateLimits()
	if got := s.ConsecutiveRateLimits(); got != 0 {
		t.Errorf("ConsecutiveRateLimits() after reset = %d, want 0", got)
	}
	// The timestamp survives the reset so the delay policy can still
	// see how recently the source pushed back.
	if _, ok := s.LastRateLimit(); !ok {
		t.Error("LastRateLimit() should survive ResetRateLimits")
	}
}

func TestCrawlSession_AdvanceProxy(t *testing.T) {
	t.Parallel()

	s := NewCrawlSession()

	if got := s.AdvanceProxy(0); got != 0 {
		t.Errorf("AdvanceProxy(0) = %d, want 0", got)
	}

	got := []int{s.AdvanceProxy(3), s.AdvanceProxy(3), s.AdvanceProxy(3), s.AdvanceProxy(3)}
	want := []int{1, 2, 0, 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AdvanceProxy ring = %v, want %v", got, want)
	}
}

func TestCrawlSession_SnapshotRestore(t *testing.T) {
	t.Parallel()

	s := NewCrawlSession()
	s.ClaimURL("https://example.org/cites?id=2")
	s.ClaimURL("https://example.org/cites?id=1")
	s.RecordRequest()
	s.RecordRequest()
	s.RecordRequest()
	s.RecordRateLimit(time.Date(2025, 6, 2, 12, 34, 56, 0, time.UTC))
	s.AdvanceProxy(4)

	snap := s.Snapshot()

	if snap.SessionID != s.ID() {
		t.Errorf("snapshot session_id = %q, want %q", snap.SessionID, s.ID())
	}
	wantURLs := []string{
		"https://example.org/cites?id=1",
		"https://example.org/cites?id=2",
	}
	if !reflect.DeepEqual(snap.VisitedURLs, wantURLs) {
		t.Errorf("snapshot visited_urls = %v, want sorted %v", snap.VisitedURLs, wantURLs)
	}
	if snap.RequestCount != 3 || snap.ConsecutiveRateLimits != 1 || snap.CurrentProxyIndex != 1 {
		t.Errorf("snapshot counters = %+v", snap)
	}
	if snap.LastRateLimitTime == nil {
		t.Fatal("snapshot last_rate_limit_time should be set")
	}

	restored := NewCrawlSession()
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if restored.ID() != s.ID() {
		t.Errorf("restored ID = %q, want %q", restored.ID(), s.ID())
	}
	if restored.ClaimURL("https://example.org/cites?id=1") {
		t.Error("restored session should refuse re-claiming visited URLs")
	}
	if restored.RequestCount() != 3 {
		t.Errorf("restored RequestCount() = %d, want 3", restored.RequestCount())
	}
	if restored.ProxyIndex() != 1 {
		t.Errorf("restored ProxyIndex() = %d, want 1", restored.ProxyIndex())
	}
	last, ok := restored.LastRateLimit()
	if !ok || !last.Equal(time.Date(2025, 6, 2, 12, 34, 56, 0, time.UTC)) {
		t.Errorf("restored LastRateLimit() = %v, %v", last, ok)
	}

	// A restored snapshot must round-trip to an identical snapshot.
	if !reflect.DeepEqual(restored.Snapshot(), snap) {
		t.Errorf("snapshot round trip mismatch:\ngot  %+v\nwant %+v", restored.Snapshot(), snap)
	}
}

func TestCrawlSession_RestoreNoRateLimit(t *testing.T) {
	t.Parallel()

	s := NewCrawlSession()
	snap := s.Snapshot()
	if snap.LastRateLimitTime != nil {
		t.Errorf("fresh snapshot last_rate_limit_time = %v, want nil", *snap.LastRateLimitTime)
	}

	restored := NewCrawlSession()
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if _, ok := restored.LastRateLimit(); ok {
		t.Error("restored session should have no rate-limit event")
	}
}
