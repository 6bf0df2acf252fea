package meetuplog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendAndReadSince(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meetups.csv")
	log := New(path, time.UTC)

	base := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	entries := []Entry{
		{LoggedAt: base.Add(-48 * time.Hour), BuyerName: "Old Buyer", ThreadKey: "t-old", ItemName: "cable", Location: "library", MeetupText: "last week"},
		{LoggedAt: base.Add(-2 * time.Hour), BuyerName: "Ana", ThreadKey: "t1", ItemName: "cable", Location: "library", MeetupText: "today 7pm", Notes: "bring change"},
		{LoggedAt: base.Add(-1 * time.Hour), BuyerName: "Bo", ThreadKey: "t2", ItemName: "cable", Location: "library", MeetupText: "tomorrow noon"},
	}
	for _, e := range entries {
		if err := log.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := log.ReadSince(base.Add(-24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].BuyerName != "Ana" || got[1].BuyerName != "Bo" {
		t.Errorf("wrong order: %+v", got)
	}
	if got[0].Notes != "bring change" {
		t.Errorf("notes = %q", got[0].Notes)
	}
}

func TestAppend_HeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meetups.csv")
	log := New(path, time.UTC)

	for i := 0; i < 2; i++ {
		if err := log.Append(Entry{LoggedAt: time.Now(), BuyerName: "B", ThreadKey: "t"}); err != nil {
			t.Fatal(err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(raw), "logged_at_local"); n != 1 {
		t.Errorf("header appears %d times, want 1", n)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Errorf("got %d lines, want header + 2 rows", len(lines))
	}
}

func TestReadSince_MissingFile(t *testing.T) {
	log := New(filepath.Join(t.TempDir(), "nope.csv"), time.UTC)
	got, err := log.ReadSince(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d entries from missing file", len(got))
	}
}

func TestAppend_FieldWithComma(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meetups.csv")
	log := New(path, time.UTC)

	e := Entry{LoggedAt: time.Now(), BuyerName: "Ana", ThreadKey: "t1", MeetupText: "Sat, 2pm, main entrance"}
	if err := log.Append(e); err != nil {
		t.Fatal(err)
	}

	got, err := log.ReadSince(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].MeetupText != "Sat, 2pm, main entrance" {
		t.Errorf("got %+v", got)
	}
}
