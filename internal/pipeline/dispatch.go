package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ducth/stallbot/internal/store"
)

// threadCache is the in-memory jitter state for one thread. lastBottom
// suppresses re-reads of an unchanged thread row; lastIncoming suppresses
// re-ingesting the same buyer bubble after our own reply pushed it up.
type threadCache struct {
	lastBottom   string
	lastIncoming string
	lastSent     string
}

// stateCache is shared between the driver (ingest path) and the dispatcher
// (send path), so a sent reply immediately counts as the thread's bottom.
type stateCache struct {
	mu      sync.Mutex
	threads map[string]*threadCache
}

func newStateCache() *stateCache {
	return &stateCache{threads: make(map[string]*threadCache)}
}

func (c *stateCache) warm(states []store.ThreadState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range states {
		c.threads[st.ThreadKey] = &threadCache{
			lastBottom:   st.LastSeenBottom,
			lastIncoming: st.LastSeenIncoming,
			lastSent:     st.LastSentByUs,
		}
	}
}

func (c *stateCache) entry(key string) *threadCache {
	tc, ok := c.threads[key]
	if !ok {
		tc = &threadCache{}
		c.threads[key] = tc
	}
	return tc
}

// noteBottom records text as the thread's bottom bubble. Returns false when
// the bottom is unchanged, meaning the observation is jitter.
func (c *stateCache) noteBottom(key, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	tc := c.entry(key)
	if tc.lastBottom == text {
		return false
	}
	tc.lastBottom = text
	return true
}

// noteIncoming records text as the latest buyer bubble. Returns false when
// the same buyer text was already ingested.
func (c *stateCache) noteIncoming(key, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	tc := c.entry(key)
	if tc.lastIncoming == text {
		return false
	}
	tc.lastIncoming = text
	return true
}

func (c *stateCache) recordSent(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tc := c.entry(key)
	tc.lastSent = text
	tc.lastBottom = text
}

func (c *stateCache) lastSent(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry(key).lastSent
}

func (c *stateCache) snapshot(key string) threadCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.entry(key)
}

// Dispatcher performs one reply send and, only on success, records the
// seller message and refreshed thread state. A failed send mutates nothing,
// so the next pass retries from the same state.
type Dispatcher struct {
	store  *store.Store
	sender Sender
	cache  *stateCache
}

// Deliver sends text to a thread. Empty text is a no-op.
func (dp *Dispatcher) Deliver(ctx context.Context, threadKey, href, buyerName, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if href == "" || buyerName == "" {
		if meta, err := dp.store.GetThreadMeta(threadKey); err == nil {
			if href == "" {
				href = meta.Href
			}
			if buyerName == "" {
				buyerName = meta.BuyerName
			}
		}
	}

	if err := dp.sender.Send(ctx, threadKey, href, text); err != nil {
		return fmt.Errorf("send reply to %s: %w", threadKey, err)
	}

	if _, err := dp.store.InsertMessage(threadKey, store.RoleSeller, text); err != nil {
		slog.Warn("record sent message", "thread", threadKey, "error", err)
	}
	dp.cache.recordSent(threadKey, text)

	tc := dp.cache.snapshot(threadKey)
	err := dp.store.UpsertThreadState(store.ThreadState{
		ThreadKey:        threadKey,
		BuyerName:        buyerName,
		Href:             href,
		LastSeenBottom:   tc.lastBottom,
		LastSeenIncoming: tc.lastIncoming,
		LastSentByUs:     tc.lastSent,
	})
	if err != nil {
		slog.Warn("persist thread state after send", "thread", threadKey, "error", err)
	}
	slog.Info("reply sent", "thread", threadKey, "buyer", buyerName, "chars", len(text))
	return nil
}
