// Package pipeline drives the observe, debounce, decide, dispatch loop. One
// goroutine ticks the loop; each ripe thread's decision pass runs on its own
// goroutine because approval can block for up to an hour.
package pipeline

import (
	"context"
	"time"

	"github.com/ducth/stallbot/internal/approval"
	"github.com/ducth/stallbot/internal/config"
	"github.com/ducth/stallbot/internal/engine"
	"github.com/ducth/stallbot/internal/meetuplog"
)

// Side tells who authored the bottom bubble of a thread, as far as the
// observer could tell from the DOM.
type Side int

const (
	SideUnknown Side = iota
	SideBuyer
	SideSeller
)

// Observation is one sidebar reading for one thread: the current bottom
// message plus whatever addressing metadata was visible.
type Observation struct {
	ThreadKey  string
	BuyerName  string
	Href       string
	BottomText string
	Side       Side
}

// Observer scans the message surface and reports the current state of the
// visible threads. Implementations may return partial results with an error.
type Observer interface {
	Observe(ctx context.Context) ([]Observation, error)
}

// Sender delivers one reply to a thread. Href may be empty, in which case
// the implementation resolves the thread by key.
type Sender interface {
	Send(ctx context.Context, threadKey, href, text string) error
}

// Classifier turns a batch of buyer text plus history into a decision.
// Implementations never fail; degraded output is still a decision.
type Classifier interface {
	Classify(ctx context.Context, historyText, batchedText string, product config.ProductConfig) engine.Decision
}

// Approver gates replies behind a human. Actions carries custom replies the
// operator typed instead of picking a canned branch.
type Approver interface {
	Request(ctx context.Context, req approval.Request) (approval.Outcome, error)
	Actions() <-chan approval.SendAction
}

// MeetupLogger records a confirmed meetup.
type MeetupLogger interface {
	Append(e meetuplog.Entry) error
}

// Notifier pushes a free-form note to the owner. Failures are logged, never
// fatal.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// DigestTicker gets a chance to emit the daily digest once per pipeline tick.
type DigestTicker interface {
	Tick(ctx context.Context, now time.Time)
}
