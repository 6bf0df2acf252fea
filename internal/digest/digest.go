// Package digest sends the owner a once-a-day summary of confirmed meetups.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/ducth/stallbot/internal/meetuplog"
)

// Notifier matches the pipeline's owner-notification hook.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Digest checks a cron expression once per pipeline tick and, on the first
// tick of a due minute, summarizes the last 24h of meetup log entries.
type Digest struct {
	expr     string
	log      *meetuplog.Log
	notifier Notifier
	gron     *gronx.Gronx

	lastSent string // "2006-01-02 15:04" of the minute last fired
}

// New creates a digest on the given 5-field cron expression.
func New(expr string, log *meetuplog.Log, notifier Notifier) (*Digest, error) {
	g := gronx.New()
	if !g.IsValid(expr) {
		return nil, fmt.Errorf("invalid digest cron expression %q", expr)
	}
	return &Digest{expr: expr, log: log, notifier: notifier, gron: g}, nil
}

// Tick fires the digest at most once per due minute. Ticks arrive about once
// a second, so the minute guard is what makes this exactly-once.
func (d *Digest) Tick(ctx context.Context, now time.Time) {
	minute := now.Format("2006-01-02 15:04")
	if minute == d.lastSent {
		return
	}
	due, err := d.gron.IsDue(d.expr, now)
	if err != nil || !due {
		return
	}
	d.lastSent = minute

	if err := d.notifier.Notify(ctx, d.render(now)); err != nil {
		slog.Warn("digest notification failed", "error", err)
		return
	}
	slog.Info("daily digest sent")
}

func (d *Digest) render(now time.Time) string {
	entries, err := d.log.ReadSince(now.Add(-24 * time.Hour))
	if err != nil {
		slog.Warn("read meetup log for digest", "error", err)
	}
	if len(entries) == 0 {
		return "Daily digest: no meetups confirmed in the last 24h."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Daily digest: %d meetup(s) confirmed in the last 24h.\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s (%s)", e.BuyerName, e.MeetupText, e.ItemName)
		if e.Notes != "" {
			fmt.Fprintf(&b, " [%s]", e.Notes)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
