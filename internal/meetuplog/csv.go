// Package meetuplog keeps an append-only CSV side-log of confirmed meetups.
// The file is human-facing: the owner opens it in a spreadsheet, so rows are
// flat strings and the header is written once on creation.
package meetuplog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var header = []string{
	"logged_at_local",
	"buyer_name",
	"thread_key",
	"item_name",
	"location",
	"meetup_datetime_text",
	"notes",
}

const timeLayout = "2006-01-02 15:04:05"

// Entry is one confirmed-meetup row.
type Entry struct {
	LoggedAt   time.Time
	BuyerName  string
	ThreadKey  string
	ItemName   string
	Location   string
	MeetupText string
	Notes      string
}

// Log appends meetup entries to a CSV file, creating it with a header row on
// first use. Safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
	loc  *time.Location
}

// New creates a log writing to path. Timestamps are rendered in loc.
func New(path string, loc *time.Location) *Log {
	if loc == nil {
		loc = time.UTC
	}
	return &Log{path: path, loc: loc}
}

// Append writes one entry. A zero LoggedAt is filled with the current time.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create meetup log dir: %w", err)
	}

	_, statErr := os.Stat(l.path)
	needHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open meetup log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write meetup log header: %w", err)
		}
	}
	row := []string{
		e.LoggedAt.In(l.loc).Format(timeLayout),
		e.BuyerName,
		e.ThreadKey,
		e.ItemName,
		e.Location,
		e.MeetupText,
		e.Notes,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write meetup log row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// ReadSince returns entries logged at or after cutoff, oldest first. A
// missing file yields an empty slice. Malformed rows are skipped.
func (l *Log) ReadSince(cutoff time.Time) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open meetup log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read meetup log: %w", err)
	}

	var out []Entry
	for i, row := range rows {
		if i == 0 || len(row) < len(header) {
			continue
		}
		ts, err := time.ParseInLocation(timeLayout, row[0], l.loc)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			continue
		}
		out = append(out, Entry{
			LoggedAt:   ts,
			BuyerName:  row[1],
			ThreadKey:  row[2],
			ItemName:   row[3],
			Location:   row[4],
			MeetupText: row[5],
			Notes:      row[6],
		})
	}
	return out, nil
}
