package debounce

import (
	"testing"
	"time"
)

// fakeClock provides a manually advanced monotonic clock.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1000, 0)}
}

func (c *fakeClock) now() time.Time            { return c.t }
func (c *fakeClock) advance(d time.Duration)   { c.t = c.t.Add(d) }

func TestNotify_OpensAndRefreshes(t *testing.T) {
	clock := newFakeClock()
	s := New().WithClock(clock.now)

	s.Notify("t/1", "/t/1", "Alex", 100)
	if got := s.Pending(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	// Quiet for 2s, another event at 1s shy of ripeness: window stays open.
	clock.advance(2 * time.Second)
	s.Notify("t/1", "", "", 102)

	clock.advance(2 * time.Second)
	ripe := s.PollRipe(3 * time.Second)
	if len(ripe) != 0 {
		t.Fatalf("window should not be ripe 2s after refresh, got %d", len(ripe))
	}

	clock.advance(time.Second)
	ripe = s.PollRipe(3 * time.Second)
	if len(ripe) != 1 {
		t.Fatalf("window should be ripe, got %d", len(ripe))
	}
}

func TestNotify_SinceTSNeverIncreases(t *testing.T) {
	clock := newFakeClock()
	s := New().WithClock(clock.now)

	s.Notify("t/1", "/t/1", "Alex", 100)
	clock.advance(time.Second)
	s.Notify("t/1", "/t/1", "Alex", 200) // later wall ts must not move SinceTS
	clock.advance(5 * time.Second)

	ripe := s.PollRipe(3 * time.Second)
	if len(ripe) != 1 {
		t.Fatalf("expected 1 ripe window, got %d", len(ripe))
	}
	if ripe[0].SinceTS != 100 {
		t.Errorf("SinceTS = %d, want the original 100", ripe[0].SinceTS)
	}
}

func TestNotify_RefreshKeepsNonEmptyMeta(t *testing.T) {
	clock := newFakeClock()
	s := New().WithClock(clock.now)

	s.Notify("t/1", "/t/1", "Alex", 100)
	s.Notify("t/1", "", "", 101) // empty refresh must not blank href/name
	clock.advance(5 * time.Second)

	ripe := s.PollRipe(3 * time.Second)
	if len(ripe) != 1 {
		t.Fatal("expected ripe window")
	}
	if ripe[0].Href != "/t/1" || ripe[0].BuyerName != "Alex" {
		t.Errorf("meta lost on refresh: %+v", ripe[0])
	}

	// Non-empty values do refresh.
	s.Notify("t/2", "", "Buyer", 100)
	s.Notify("t/2", "/t/2", "Sam", 101)
	clock.advance(5 * time.Second)
	ripe = s.PollRipe(3 * time.Second)
	if len(ripe) != 1 || ripe[0].Href != "/t/2" || ripe[0].BuyerName != "Sam" {
		t.Errorf("meta not refreshed: %+v", ripe)
	}
}

func TestPollRipe_TakesAtomically(t *testing.T) {
	clock := newFakeClock()
	s := New().WithClock(clock.now)

	s.Notify("t/1", "/t/1", "Alex", 100)
	s.Notify("t/2", "/t/2", "Sam", 100)
	clock.advance(10 * time.Second)

	first := s.PollRipe(3 * time.Second)
	if len(first) != 2 {
		t.Fatalf("expected 2 ripe windows, got %d", len(first))
	}

	second := s.PollRipe(3 * time.Second)
	if len(second) != 0 {
		t.Errorf("second poll must return nothing, got %d", len(second))
	}
	if s.Pending() != 0 {
		t.Errorf("pending = %d after take, want 0", s.Pending())
	}
}

func TestPollRipe_IndependentThreads(t *testing.T) {
	clock := newFakeClock()
	s := New().WithClock(clock.now)

	s.Notify("t/1", "/t/1", "Alex", 100)
	clock.advance(2 * time.Second)
	s.Notify("t/2", "/t/2", "Sam", 102)
	clock.advance(2 * time.Second)

	// t/1 idle 4s (ripe), t/2 idle 2s (not ripe).
	ripe := s.PollRipe(3 * time.Second)
	if len(ripe) != 1 || ripe[0].ThreadKey != "t/1" {
		t.Fatalf("expected only t/1 ripe, got %+v", ripe)
	}
	if s.Pending() != 1 {
		t.Errorf("t/2 should stay pending")
	}
}
