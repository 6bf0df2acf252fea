package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ducth/stallbot/internal/pipeline"
)

const sidebarRowSelector = `a[href*="/t/"]`

// Observer reads the marketplace inbox sidebar. Each visible row yields one
// observation: thread key, buyer name, and whatever the preview says the
// bottom message is.
type Observer struct {
	sess       *Session
	maxThreads int
}

// NewObserver creates an observer over an open session.
func NewObserver(sess *Session, maxThreads int) *Observer {
	if maxThreads <= 0 {
		maxThreads = 10
	}
	return &Observer{sess: sess, maxThreads: maxThreads}
}

// Observe scans the visible sidebar rows. Rows that don't parse as
// marketplace threads are skipped, not fatal.
func (o *Observer) Observe(ctx context.Context) ([]pipeline.Observation, error) {
	page := o.sess.Page().Context(ctx)

	rows, err := page.Timeout(10 * time.Second).Elements(sidebarRowSelector)
	if err != nil {
		return nil, fmt.Errorf("scan sidebar: %w", err)
	}

	var out []pipeline.Observation
	for i, row := range rows {
		if len(out) >= o.maxThreads {
			break
		}

		href := ""
		if hrefAttr, err := row.Attribute("href"); err == nil && hrefAttr != nil {
			href = *hrefAttr
		}

		raw, err := row.Text()
		if err != nil {
			slog.Debug("sidebar row text unavailable", "href", href, "error", err)
			continue
		}
		buyerName, preview := splitRowText(raw)
		if preview == "" {
			continue
		}

		threadKey := threadKeyFromHref(href)
		if threadKey == "" {
			threadKey = fallbackThreadKey(i, buyerName)
		}
		if threadKey == "" {
			continue
		}
		side, text := classifySide(buyerName, preview)

		out = append(out, pipeline.Observation{
			ThreadKey:  threadKey,
			BuyerName:  buyerName,
			Href:       href,
			BottomText: text,
			Side:       side,
		})
	}
	return out, nil
}
