package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ThreadState is the per-thread cached-state row. Href uses
// keep-existing-non-null merge semantics on upsert; every other field is
// last-write-wins.
type ThreadState struct {
	ThreadKey        string
	BuyerName        string
	Href             string
	LastSeenBottom   string
	LastSeenIncoming string
	LastSentByUs     string
}

// ThreadMeta is the subset of thread state needed to address a reply.
type ThreadMeta struct {
	BuyerName string
	Href      string
}

// UpsertThreadState writes the per-thread cached state. An empty Href never
// overwrites a stored one (NULLIF + COALESCE), so the thread stays reachable
// after an observation that couldn't resolve the link.
func (s *Store) UpsertThreadState(st ThreadState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO thread_state(thread_key, buyer_name, thread_href, last_seen_bottom, last_seen_incoming, last_sent_by_us, updated_at)
		 VALUES(?,?,NULLIF(?,''),?,?,?,?)
		 ON CONFLICT(thread_key) DO UPDATE SET
		   buyer_name=excluded.buyer_name,
		   thread_href=COALESCE(excluded.thread_href, thread_state.thread_href),
		   last_seen_bottom=excluded.last_seen_bottom,
		   last_seen_incoming=excluded.last_seen_incoming,
		   last_sent_by_us=excluded.last_sent_by_us,
		   updated_at=excluded.updated_at`,
		st.ThreadKey, st.BuyerName, st.Href,
		st.LastSeenBottom, st.LastSeenIncoming, st.LastSentByUs,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert thread state: %w", err)
	}
	return nil
}

// GetThreadMeta returns buyer name (default "Buyer") and href ("" when
// unknown) for a thread.
func (s *Store) GetThreadMeta(threadKey string) (ThreadMeta, error) {
	var name, href sql.NullString
	err := s.db.QueryRow(
		`SELECT buyer_name, thread_href FROM thread_state WHERE thread_key=?`,
		threadKey,
	).Scan(&name, &href)
	if err == sql.ErrNoRows {
		return ThreadMeta{BuyerName: "Buyer"}, nil
	}
	if err != nil {
		return ThreadMeta{}, fmt.Errorf("query thread meta: %w", err)
	}

	meta := ThreadMeta{BuyerName: "Buyer"}
	if name.Valid && name.String != "" {
		meta.BuyerName = name.String
	}
	if href.Valid {
		meta.Href = href.String
	}
	return meta, nil
}

// LoadThreadStates returns every persisted thread state row. Used at startup
// to warm the driver's jitter-lock caches so a restart does not re-trigger
// replies to already-seen messages.
func (s *Store) LoadThreadStates() ([]ThreadState, error) {
	rows, err := s.db.Query(
		`SELECT thread_key, buyer_name, thread_href, last_seen_bottom, last_seen_incoming, last_sent_by_us
		 FROM thread_state`,
	)
	if err != nil {
		return nil, fmt.Errorf("query thread states: %w", err)
	}
	defer rows.Close()

	var out []ThreadState
	for rows.Next() {
		var st ThreadState
		var name, href, bottom, incoming, sent sql.NullString
		if err := rows.Scan(&st.ThreadKey, &name, &href, &bottom, &incoming, &sent); err != nil {
			return nil, fmt.Errorf("scan thread state: %w", err)
		}
		st.BuyerName = name.String
		st.Href = href.String
		st.LastSeenBottom = bottom.String
		st.LastSeenIncoming = incoming.String
		st.LastSentByUs = sent.String
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread states: %w", err)
	}
	return out, nil
}
