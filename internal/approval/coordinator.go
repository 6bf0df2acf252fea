// Package approval manages outstanding human-decision requests. Each request
// is resolved exactly once by whichever of {UI action, timeout} fires first;
// later answers for the same id are no-ops.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of one request. Exactly one terminal transition
// happens per request.
type State string

const (
	StatePending      State = "pending"
	StateApproved     State = "approved"
	StateDeclined     State = "declined"
	StateCustomQueued State = "custom_queued"
	StateExpired      State = "expired"
)

// ErrThreadPending is returned when a thread already has an unresolved
// request. Two interleaved prompts for one buyer invite contradictory
// answers; the caller skips this pass and the thread's next activity cycle
// re-batches the unanswered messages.
var ErrThreadPending = errors.New("approval request already pending for thread")

// Request is one human-decision prompt.
type Request struct {
	ID             string
	ThreadKey      string
	Href           string
	BuyerName      string
	IntentSummary  string
	AcceptText     string
	DeclineText    string
	MeetupTimeText string // non-empty when the decision flagged a confirmed meetup
}

// Outcome is the terminal result seen by the calling decision pass.
// CustomQueued means the real text travels via a SendAction, so the caller
// must short-circuit its own accept-text send.
type Outcome struct {
	Approved     bool
	CustomQueued bool
	State        State
}

// SendAction is a custom reply queued for asynchronous execution by the
// pipeline driver.
type SendAction struct {
	ThreadKey      string
	Href           string
	BuyerName      string
	Text           string
	Origin         string // "custom_reply"
	MeetupTimeText string
}

// UI presents a pending request to the human operator. Answers arrive
// asynchronously via Resolve/ResolveCustom.
type UI interface {
	Present(ctx context.Context, req Request) error
}

type pending struct {
	req      Request
	done     chan Outcome // buffered(1); written exactly once
	resolved bool
	state    State
}

// Coordinator tracks pending requests and their exactly-once resolution.
// Multiple Request calls may be outstanding simultaneously for different
// threads; each is independent.
type Coordinator struct {
	ui      UI
	timeout time.Duration

	mu        sync.Mutex
	requests  map[string]*pending
	byThread  map[string]string // threadKey → pending request id
	actions   chan SendAction
	newID     func() string
}

// New creates a coordinator with the given answer timeout.
func New(ui UI, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Coordinator{
		ui:       ui,
		timeout:  timeout,
		requests: make(map[string]*pending),
		byThread: make(map[string]string),
		actions:  make(chan SendAction, 64),
		newID:    func() string { return uuid.NewString() },
	}
}

// Actions is the queue of custom replies for the driver to drain.
func (c *Coordinator) Actions() <-chan SendAction { return c.actions }

// Request presents req to the operator and blocks the calling goroutine
// (never the driver loop itself) until a UI action or the timeout resolves
// it. Exactly one of approve/decline/custom/expire fires.
func (c *Coordinator) Request(ctx context.Context, req Request) (Outcome, error) {
	c.mu.Lock()
	if _, busy := c.byThread[req.ThreadKey]; busy {
		c.mu.Unlock()
		return Outcome{State: StateDeclined}, ErrThreadPending
	}
	req.ID = c.newID()
	p := &pending{req: req, done: make(chan Outcome, 1), state: StatePending}
	c.requests[req.ID] = p
	c.byThread[req.ThreadKey] = req.ID
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.requests, req.ID)
		c.mu.Unlock()
	}()

	if err := c.ui.Present(ctx, req); err != nil {
		// Could not reach the operator: fail toward the decline branch.
		c.finish(req.ID, Outcome{Approved: false, State: StateDeclined})
		<-p.done
		return Outcome{Approved: false, State: StateDeclined}, fmt.Errorf("present approval request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case out := <-p.done:
		return out, nil
	case <-timer.C:
		if c.finish(req.ID, Outcome{Approved: false, State: StateExpired}) {
			slog.Info("approval request expired", "id", req.ID, "thread", req.ThreadKey)
		}
		return <-p.done, nil
	case <-ctx.Done():
		c.finish(req.ID, Outcome{Approved: false, State: StateDeclined})
		<-p.done
		return Outcome{Approved: false, State: StateDeclined}, ctx.Err()
	}
}

// Resolve records an approve/decline answer from the UI. Returns false when
// the id is unknown or already resolved (duplicate taps are no-ops).
func (c *Coordinator) Resolve(id string, approved bool) bool {
	state := StateDeclined
	if approved {
		state = StateApproved
	}
	return c.finish(id, Outcome{Approved: approved, State: state})
}

// ResolveCustom records a custom-reply escalation: the request resolves as
// approved-with-short-circuit and the text is queued as a SendAction for the
// driver.
func (c *Coordinator) ResolveCustom(id, text string) bool {
	c.mu.Lock()
	p, ok := c.requests[id]
	if !ok || p.resolved {
		c.mu.Unlock()
		return false
	}
	action := SendAction{
		ThreadKey:      p.req.ThreadKey,
		Href:           p.req.Href,
		BuyerName:      p.req.BuyerName,
		Text:           text,
		Origin:         "custom_reply",
		MeetupTimeText: p.req.MeetupTimeText,
	}
	c.mu.Unlock()

	if !c.finish(id, Outcome{Approved: true, CustomQueued: true, State: StateCustomQueued}) {
		return false
	}

	select {
	case c.actions <- action:
	default:
		slog.Warn("send action queue full, dropping custom reply", "thread", action.ThreadKey)
	}
	return true
}

// Meta returns the request metadata for a pending id (UI rendering).
func (c *Coordinator) Meta(id string) (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.requests[id]
	if !ok || p.resolved {
		return Request{}, false
	}
	return p.req, true
}

// finish performs the single terminal transition for id. Returns false when
// the request is unknown or already resolved.
func (c *Coordinator) finish(id string, out Outcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.requests[id]
	if !ok || p.resolved {
		return false
	}
	p.resolved = true
	p.state = out.State
	delete(c.byThread, p.req.ThreadKey)
	p.done <- out
	return true
}
