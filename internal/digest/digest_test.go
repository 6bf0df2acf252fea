package digest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ducth/stallbot/internal/meetuplog"
)

type captureNotifier struct {
	notes []string
}

func (c *captureNotifier) Notify(ctx context.Context, text string) error {
	c.notes = append(c.notes, text)
	return nil
}

func newTestDigest(t *testing.T, expr string) (*Digest, *meetuplog.Log, *captureNotifier) {
	t.Helper()
	log := meetuplog.New(filepath.Join(t.TempDir(), "meetups.csv"), time.UTC)
	n := &captureNotifier{}
	d, err := New(expr, log, n)
	if err != nil {
		t.Fatal(err)
	}
	return d, log, n
}

func TestNew_RejectsBadCron(t *testing.T) {
	log := meetuplog.New(filepath.Join(t.TempDir(), "meetups.csv"), time.UTC)
	if _, err := New("not a cron", log, &captureNotifier{}); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}

func TestTick_FiresOncePerDueMinute(t *testing.T) {
	d, _, n := newTestDigest(t, "0 9 * * *")

	due := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	// Several ticks land inside the same due minute.
	for i := 0; i < 5; i++ {
		d.Tick(context.Background(), due.Add(time.Duration(i)*10*time.Second))
	}
	if len(n.notes) != 1 {
		t.Fatalf("digest fired %d times in one minute, want 1", len(n.notes))
	}

	// Next day's due minute fires again.
	d.Tick(context.Background(), due.Add(24*time.Hour))
	if len(n.notes) != 2 {
		t.Fatalf("digest fired %d times across two days, want 2", len(n.notes))
	}
}

func TestTick_NotDue(t *testing.T) {
	d, _, n := newTestDigest(t, "0 9 * * *")
	d.Tick(context.Background(), time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC))
	if len(n.notes) != 0 {
		t.Fatalf("digest fired off-schedule: %v", n.notes)
	}
}

func TestRender_SummarizesLast24h(t *testing.T) {
	d, log, n := newTestDigest(t, "0 9 * * *")
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	entries := []meetuplog.Entry{
		{LoggedAt: now.Add(-30 * time.Hour), BuyerName: "Stale", MeetupText: "two days ago", ItemName: "cable"},
		{LoggedAt: now.Add(-3 * time.Hour), BuyerName: "Ana", MeetupText: "today 7pm", ItemName: "cable", Notes: "cash only"},
	}
	for _, e := range entries {
		if err := log.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	d.Tick(context.Background(), now)
	if len(n.notes) != 1 {
		t.Fatalf("notes = %v", n.notes)
	}
	got := n.notes[0]
	if !strings.Contains(got, "1 meetup") || !strings.Contains(got, "Ana") || !strings.Contains(got, "cash only") {
		t.Errorf("digest text = %q", got)
	}
	if strings.Contains(got, "Stale") {
		t.Errorf("digest includes entry older than 24h: %q", got)
	}
}

func TestRender_EmptyLog(t *testing.T) {
	d, _, n := newTestDigest(t, "* * * * *")
	d.Tick(context.Background(), time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	if len(n.notes) != 1 || !strings.Contains(n.notes[0], "no meetups") {
		t.Fatalf("notes = %v", n.notes)
	}
}
