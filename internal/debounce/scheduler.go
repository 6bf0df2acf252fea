// Package debounce collapses bursts of buyer activity per thread into one
// decision pass. Windows are polled for ripeness rather than armed with
// per-thread timers: the whole pipeline stays single-threaded-cooperative at
// the cost of up to one poll interval of extra flush delay.
package debounce

import (
	"sync"
	"time"
)

// Window is one open debounce window for a thread.
type Window struct {
	ThreadKey  string
	SinceTS    int64     // earliest unflushed buyer activity (unix seconds)
	LastUpdate time.Time // monotonic clock of most recent activity
	Href       string
	BuyerName  string
}

// Scheduler tracks open windows. Safe for concurrent use.
type Scheduler struct {
	mu      sync.Mutex
	windows map[string]*Window
	now     func() time.Time
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		windows: make(map[string]*Window),
		now:     time.Now,
	}
}

// WithClock overrides the monotonic clock (tests).
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Notify records buyer activity for a thread. A fresh window pins SinceTS to
// wallTS; an existing window only bumps LastUpdate. SinceTS never moves
// later, and href/buyer refresh only with non-empty values.
func (s *Scheduler) Notify(threadKey, href, buyerName string, wallTS int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[threadKey]
	if !ok {
		s.windows[threadKey] = &Window{
			ThreadKey:  threadKey,
			SinceTS:    wallTS,
			LastUpdate: s.now(),
			Href:       href,
			BuyerName:  buyerName,
		}
		return
	}

	w.LastUpdate = s.now()
	if href != "" {
		w.Href = href
	}
	if buyerName != "" {
		w.BuyerName = buyerName
	}
}

// PollRipe removes and returns every window whose last activity is at least
// quietPeriod old. Taking is atomic with the ripeness check, so a window can
// never be flushed twice.
func (s *Scheduler) PollRipe(quietPeriod time.Duration) []*Window {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var ripe []*Window
	for key, w := range s.windows {
		if now.Sub(w.LastUpdate) >= quietPeriod {
			ripe = append(ripe, w)
			delete(s.windows, key)
		}
	}
	return ripe
}

// Pending returns the number of open windows.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
