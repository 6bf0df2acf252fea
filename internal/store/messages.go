package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Role identifies which party sent a message.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// HistoryEntry is one stored message, oldest→newest when returned in slices.
type HistoryEntry struct {
	Role Role
	Text string
}

// hashMessage derives the idempotency key for (thread, role, text).
func hashMessage(threadKey string, role Role, text string) string {
	sum := sha256.Sum256([]byte(threadKey + "|" + string(role) + "|" + text))
	return hex.EncodeToString(sum[:])[:32]
}

// InsertMessage appends a message if the exact (thread, role, text) was not
// stored before. Returns false without error both for duplicates and for
// empty/whitespace text, neither of which is stored.
func (s *Store) InsertMessage(threadKey string, role Role, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO messages(thread_key, msg_hash, role, text, created_at)
		 VALUES(?,?,?,?,?)`,
		threadKey, hashMessage(threadKey, role, text), string(role), text, time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert message rows: %w", err)
	}
	return n == 1, nil
}

// GetHistory returns the most recent `limit` messages for a thread,
// oldest→newest.
func (s *Store) GetHistory(threadKey string, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(
		`SELECT role, text FROM messages WHERE thread_key=? ORDER BY id DESC LIMIT ?`,
		threadKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var role string
		if err := rows.Scan(&role, &e.Text); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Role = Role(role)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	// Query is newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetBuyerMessagesSince returns the most recent `limit` buyer messages at or
// after the given unix timestamp, oldest→newest.
func (s *Store) GetBuyerMessagesSince(threadKey string, since int64, limit int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT text FROM messages
		 WHERE thread_key=? AND role='buyer' AND created_at>=?
		 ORDER BY id DESC LIMIT ?`,
		threadKey, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query buyer messages: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan buyer message: %w", err)
		}
		out = append(out, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buyer messages: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// HistoryText renders stored history the way the decision engine prompt
// expects it: "Buyer: ..." / "Me: ..." lines, oldest first.
func HistoryText(history []HistoryEntry) string {
	var b strings.Builder
	for i, e := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		if e.Role == RoleBuyer {
			b.WriteString("Buyer: ")
		} else {
			b.WriteString("Me: ")
		}
		b.WriteString(e.Text)
	}
	return b.String()
}
