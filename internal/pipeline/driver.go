package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ducth/stallbot/internal/approval"
	"github.com/ducth/stallbot/internal/config"
	"github.com/ducth/stallbot/internal/debounce"
	"github.com/ducth/stallbot/internal/engine"
	"github.com/ducth/stallbot/internal/meetuplog"
	"github.com/ducth/stallbot/internal/store"
)

// Deps bundles the driver's collaborators. Digest and Notifier are optional.
type Deps struct {
	Store     *store.Store
	Scheduler *debounce.Scheduler
	Engine    Classifier
	Approver  Approver
	Observer  Observer
	Sender    Sender
	Products  *config.Products
	Meetups   MeetupLogger
	Notifier  Notifier
	Digest    DigestTicker
	Location  *time.Location
}

// Driver owns the tick loop. Each tick drains queued custom replies, flushes
// ripe debounce windows onto worker goroutines, then ingests fresh
// observations.
type Driver struct {
	cfg      config.PipelineConfig
	store    *store.Store
	sched    *debounce.Scheduler
	engine   Classifier
	approver Approver
	observer Observer
	dispatch *Dispatcher
	products *config.Products
	meetups  MeetupLogger
	notifier Notifier
	digest   DigestTicker
	cache    *stateCache
	tracer   trace.Tracer
	loc      *time.Location
	now      func() time.Time
	wg       sync.WaitGroup
}

// New builds a driver and warms the jitter cache from persisted thread
// state, so a restart doesn't re-ingest the bubbles it already handled.
func New(cfg config.PipelineConfig, deps Deps) (*Driver, error) {
	if deps.Store == nil || deps.Scheduler == nil || deps.Engine == nil ||
		deps.Approver == nil || deps.Observer == nil || deps.Sender == nil ||
		deps.Products == nil {
		return nil, errors.New("pipeline: missing required dependency")
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}

	cache := newStateCache()
	states, err := deps.Store.LoadThreadStates()
	if err != nil {
		return nil, fmt.Errorf("warm thread state cache: %w", err)
	}
	cache.warm(states)

	return &Driver{
		cfg:      cfg,
		store:    deps.Store,
		sched:    deps.Scheduler,
		engine:   deps.Engine,
		approver: deps.Approver,
		observer: deps.Observer,
		dispatch: &Dispatcher{store: deps.Store, sender: deps.Sender, cache: cache},
		products: deps.Products,
		meetups:  deps.Meetups,
		notifier: deps.Notifier,
		digest:   deps.Digest,
		cache:    cache,
		tracer:   otel.Tracer("stallbot/pipeline"),
		loc:      loc,
		now:      time.Now,
	}, nil
}

func (d *Driver) quietPeriod() time.Duration {
	if q := d.cfg.QuietPeriod.Std(); q > 0 {
		return q
	}
	return 3 * time.Second
}

func (d *Driver) pollInterval() time.Duration {
	if p := d.cfg.PollInterval.Std(); p > 0 {
		return p
	}
	return time.Second
}

func (d *Driver) maxBatch() int {
	if d.cfg.MaxBatch > 0 {
		return d.cfg.MaxBatch
	}
	return 8
}

func (d *Driver) historyLimit() int {
	if d.cfg.HistoryLimit > 0 {
		return d.cfg.HistoryLimit
	}
	return 140
}

// Run ticks the loop until ctx is canceled, then waits for in-flight
// decision passes to unwind (they all select on ctx).
func (d *Driver) Run(ctx context.Context) error {
	slog.Info("pipeline started",
		"quiet_period", d.quietPeriod(),
		"poll_interval", d.pollInterval(),
		"max_batch", d.maxBatch())

	ticker := time.NewTicker(d.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			slog.Info("pipeline stopped")
			return ctx.Err()
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Driver) tick(ctx context.Context) {
	d.drainActions(ctx)

	for _, win := range d.sched.PollRipe(d.quietPeriod()) {
		win := win
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handleWindow(ctx, win)
		}()
	}

	d.ingest(ctx)

	if d.digest != nil {
		d.digest.Tick(ctx, d.now().In(d.loc))
	}
}

// drainActions executes custom replies the operator queued since the last
// tick. A failed send drops the action; the request stays resolved either
// way, and the owner already has the thread open.
func (d *Driver) drainActions(ctx context.Context) {
	for {
		select {
		case a := <-d.approver.Actions():
			if err := d.dispatch.Deliver(ctx, a.ThreadKey, a.Href, a.BuyerName, a.Text); err != nil {
				slog.Warn("custom reply failed", "thread", a.ThreadKey, "error", err)
				continue
			}
			if a.MeetupTimeText != "" {
				d.logMeetup(ctx, a.BuyerName, a.ThreadKey, a.MeetupTimeText, "approved with custom reply")
			}
		default:
			return
		}
	}
}

// ingest folds fresh observations into the store and the debounce scheduler.
func (d *Driver) ingest(ctx context.Context) {
	obs, err := d.observer.Observe(ctx)
	if err != nil {
		slog.Warn("observe failed", "error", err)
	}
	for _, o := range obs {
		text := strings.TrimSpace(o.BottomText)
		if o.ThreadKey == "" || text == "" {
			continue
		}

		if !d.cache.noteBottom(o.ThreadKey, text) {
			continue // unchanged bottom, pure jitter
		}

		incoming := o.Side == SideBuyer ||
			(o.Side == SideUnknown && text != d.cache.lastSent(o.ThreadKey))

		if incoming && d.cache.noteIncoming(o.ThreadKey, text) {
			inserted, err := d.store.InsertMessage(o.ThreadKey, store.RoleBuyer, text)
			if err != nil {
				slog.Warn("persist buyer message", "thread", o.ThreadKey, "error", err)
			} else if inserted {
				d.sched.Notify(o.ThreadKey, o.Href, o.BuyerName, d.now().Unix())
				slog.Debug("buyer message ingested", "thread", o.ThreadKey, "buyer", o.BuyerName)
			}
		} else if !incoming {
			// Seller-side text lands in history too, so replies the owner
			// typed by hand reach the classifier. Replies we dispatched are
			// already stored and the content hash skips them.
			if _, err := d.store.InsertMessage(o.ThreadKey, store.RoleSeller, text); err != nil {
				slog.Warn("persist seller message", "thread", o.ThreadKey, "error", err)
			}
		}

		tc := d.cache.snapshot(o.ThreadKey)
		err = d.store.UpsertThreadState(store.ThreadState{
			ThreadKey:        o.ThreadKey,
			BuyerName:        o.BuyerName,
			Href:             o.Href,
			LastSeenBottom:   tc.lastBottom,
			LastSeenIncoming: tc.lastIncoming,
			LastSentByUs:     tc.lastSent,
		})
		if err != nil {
			slog.Warn("persist thread state", "thread", o.ThreadKey, "error", err)
		}
	}
}

// handleWindow runs one decision pass for a thread whose quiet period
// elapsed: batch the unflushed buyer messages, classify, then either reply
// directly or route through approval.
func (d *Driver) handleWindow(ctx context.Context, win *debounce.Window) {
	ctx, span := d.tracer.Start(ctx, "pipeline.decide",
		trace.WithAttributes(attribute.String("thread.key", win.ThreadKey)))
	defer span.End()

	batch, err := d.store.GetBuyerMessagesSince(win.ThreadKey, win.SinceTS, d.maxBatch())
	if err != nil {
		slog.Warn("load batched messages", "thread", win.ThreadKey, "error", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	history, err := d.store.GetHistory(win.ThreadKey, d.historyLimit())
	if err != nil {
		slog.Warn("load history", "thread", win.ThreadKey, "error", err)
	}

	product := d.products.Snapshot()
	dec := d.engine.Classify(ctx, store.HistoryText(history), strings.Join(batch, "\n"), product)

	// Meetup traffic always goes through a human, whatever the classifier said.
	if dec.Category == engine.CategoryMeetupScheduling || dec.Category == engine.CategoryMeetupConfirmation {
		dec.RequiresApproval = true
	}
	engine.FallbackReplies(&dec, product)
	span.SetAttributes(
		attribute.String("decision.category", dec.Category),
		attribute.Bool("decision.requires_approval", dec.RequiresApproval),
		attribute.Int("decision.batch_size", len(batch)),
	)

	buyer, href := win.BuyerName, win.Href
	if meta, err := d.store.GetThreadMeta(win.ThreadKey); err == nil {
		if buyer == "" {
			buyer = meta.BuyerName
		}
		if href == "" {
			href = meta.Href
		}
	}

	if dec.NotesForOwner != "" {
		d.notify(ctx, fmt.Sprintf("Note on %s: %s", buyer, dec.NotesForOwner))
	}

	if !dec.RequiresApproval {
		if err := d.dispatch.Deliver(ctx, win.ThreadKey, href, buyer, dec.AcceptText); err != nil {
			slog.Warn("auto reply failed", "thread", win.ThreadKey, "error", err)
			return
		}
		if dec.MeetupConfirmed && dec.MeetupTimeText != "" {
			d.logMeetup(ctx, buyer, win.ThreadKey, dec.MeetupTimeText, dec.NotesForOwner)
		}
		return
	}

	// Only confirmed meetups carry the time text; the custom-reply drain
	// logs whenever it is set.
	meetupTime := ""
	if dec.MeetupConfirmed {
		meetupTime = dec.MeetupTimeText
	}

	out, err := d.approver.Request(ctx, approval.Request{
		ThreadKey:      win.ThreadKey,
		Href:           href,
		BuyerName:      buyer,
		IntentSummary:  dec.IntentSummary,
		AcceptText:     dec.AcceptText,
		DeclineText:    dec.DeclineText,
		MeetupTimeText: meetupTime,
	})
	if err != nil {
		if errors.Is(err, approval.ErrThreadPending) {
			slog.Info("approval already pending, skipping pass", "thread", win.ThreadKey)
			return
		}
		slog.Warn("approval request failed", "thread", win.ThreadKey, "error", err)
	}

	switch {
	case out.CustomQueued:
		// The typed reply arrives as a SendAction; nothing to send here.
	case out.Approved:
		if err := d.dispatch.Deliver(ctx, win.ThreadKey, href, buyer, dec.AcceptText); err != nil {
			slog.Warn("approved reply failed", "thread", win.ThreadKey, "error", err)
			return
		}
		if dec.MeetupConfirmed && dec.MeetupTimeText != "" {
			d.logMeetup(ctx, buyer, win.ThreadKey, dec.MeetupTimeText, dec.NotesForOwner)
		}
	default:
		if err := d.dispatch.Deliver(ctx, win.ThreadKey, href, buyer, dec.DeclineText); err != nil {
			slog.Warn("decline reply failed", "thread", win.ThreadKey, "error", err)
		}
	}
}

func (d *Driver) logMeetup(ctx context.Context, buyer, threadKey, meetupText, notes string) {
	product := d.products.Snapshot()
	item := product.ActiveItem()

	if d.meetups != nil {
		err := d.meetups.Append(meetuplog.Entry{
			LoggedAt:   d.now(),
			BuyerName:  buyer,
			ThreadKey:  threadKey,
			ItemName:   item.Name,
			Location:   product.Location,
			MeetupText: meetupText,
			Notes:      notes,
		})
		if err != nil {
			slog.Warn("append meetup log", "thread", threadKey, "error", err)
		}
	}
	d.notify(ctx, fmt.Sprintf("Meetup confirmed with %s: %s (%s at %s)",
		buyer, meetupText, item.Name, product.Location))
}

func (d *Driver) notify(ctx context.Context, text string) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, text); err != nil {
		slog.Warn("owner notification failed", "error", err)
	}
}
