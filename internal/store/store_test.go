package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertMessage_Idempotent(t *testing.T) {
	s := openTestStore(t)

	first, err := s.InsertMessage("t/1", RoleBuyer, "hi there")
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Error("first insert should report inserted=true")
	}

	second, err := s.InsertMessage("t/1", RoleBuyer, "hi there")
	if err != nil {
		t.Fatal(err)
	}
	if second {
		t.Error("duplicate insert should report inserted=false")
	}

	hist, err := s.GetHistory("t/1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected exactly 1 stored row, got %d", len(hist))
	}
}

func TestInsertMessage_RejectsEmptyText(t *testing.T) {
	s := openTestStore(t)

	for _, text := range []string{"", "   ", "\n\t "} {
		inserted, err := s.InsertMessage("t/1", RoleBuyer, text)
		if err != nil {
			t.Fatal(err)
		}
		if inserted {
			t.Errorf("whitespace text %q should not be stored", text)
		}
	}

	hist, err := s.GetHistory("t/1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 0 {
		t.Fatalf("expected no rows, got %d", len(hist))
	}
}

func TestInsertMessage_SameTextDifferentRole(t *testing.T) {
	s := openTestStore(t)

	for _, role := range []Role{RoleBuyer, RoleSeller} {
		inserted, err := s.InsertMessage("t/1", role, "sounds good")
		if err != nil {
			t.Fatal(err)
		}
		if !inserted {
			t.Errorf("role %s should insert independently", role)
		}
	}
}

func TestGetHistory_OrderAndLimit(t *testing.T) {
	s := openTestStore(t)

	texts := []string{"one", "two", "three", "four"}
	for _, txt := range texts {
		if _, err := s.InsertMessage("t/1", RoleBuyer, txt); err != nil {
			t.Fatal(err)
		}
	}

	hist, err := s.GetHistory("t/1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(hist))
	}
	// Bounded to the most recent 3, returned oldest→newest.
	want := []string{"two", "three", "four"}
	for i, e := range hist {
		if e.Text != want[i] {
			t.Errorf("hist[%d] = %q, want %q", i, e.Text, want[i])
		}
	}
}

func TestGetBuyerMessagesSince_FiltersRole(t *testing.T) {
	s := openTestStore(t)

	s.InsertMessage("t/1", RoleBuyer, "is it available")
	s.InsertMessage("t/1", RoleSeller, "yes it is")
	s.InsertMessage("t/1", RoleBuyer, "can you do 3")

	msgs, err := s.GetBuyerMessagesSince("t/1", 0, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 buyer messages, got %d: %v", len(msgs), msgs)
	}
	if msgs[0] != "is it available" || msgs[1] != "can you do 3" {
		t.Errorf("unexpected order: %v", msgs)
	}
}

func TestUpsertThreadState_HrefMerge(t *testing.T) {
	s := openTestStore(t)

	err := s.UpsertThreadState(ThreadState{
		ThreadKey: "t/1", BuyerName: "Alex", Href: "/t/123",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Second upsert with empty href must keep the stored one.
	err = s.UpsertThreadState(ThreadState{
		ThreadKey: "t/1", BuyerName: "Alex B", Href: "",
	})
	if err != nil {
		t.Fatal(err)
	}

	meta, err := s.GetThreadMeta("t/1")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Href != "/t/123" {
		t.Errorf("href = %q, want merged /t/123", meta.Href)
	}
	if meta.BuyerName != "Alex B" {
		t.Errorf("buyer name = %q, want last-write-wins Alex B", meta.BuyerName)
	}

	// A new non-empty href does overwrite.
	if err := s.UpsertThreadState(ThreadState{ThreadKey: "t/1", BuyerName: "Alex B", Href: "/t/456"}); err != nil {
		t.Fatal(err)
	}
	meta, _ = s.GetThreadMeta("t/1")
	if meta.Href != "/t/456" {
		t.Errorf("href = %q, want /t/456", meta.Href)
	}
}

func TestGetThreadMeta_Defaults(t *testing.T) {
	s := openTestStore(t)

	meta, err := s.GetThreadMeta("never-seen")
	if err != nil {
		t.Fatal(err)
	}
	if meta.BuyerName != "Buyer" {
		t.Errorf("buyer name = %q, want default Buyer", meta.BuyerName)
	}
	if meta.Href != "" {
		t.Errorf("href = %q, want empty", meta.Href)
	}
}

func TestLoadThreadStates_Roundtrip(t *testing.T) {
	s := openTestStore(t)

	in := ThreadState{
		ThreadKey:        "t/9",
		BuyerName:        "Sam",
		Href:             "/t/9",
		LastSeenBottom:   "see you then",
		LastSeenIncoming: "see you then",
		LastSentByUs:     "great, 4pm works",
	}
	if err := s.UpsertThreadState(in); err != nil {
		t.Fatal(err)
	}

	states, err := s.LoadThreadStates()
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 1 {
		t.Fatalf("expected 1 state, got %d", len(states))
	}
	if states[0] != in {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", states[0], in)
	}
}

func TestHistoryText(t *testing.T) {
	got := HistoryText([]HistoryEntry{
		{Role: RoleBuyer, Text: "hi"},
		{Role: RoleSeller, Text: "hello"},
	})
	want := "Buyer: hi\nMe: hello"
	if got != want {
		t.Errorf("HistoryText = %q, want %q", got, want)
	}
}
