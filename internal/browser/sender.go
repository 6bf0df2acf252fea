package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"
	"golang.org/x/time/rate"

	"github.com/ducth/stallbot/internal/config"
)

const composerSelector = `div[role="textbox"][contenteditable="true"]`

// Sender types replies into a thread's composer. Sends are paced by a token
// bucket so a burst of decisions doesn't look like a bot hammering the UI.
type Sender struct {
	sess    *Session
	limiter *rate.Limiter
}

// NewSender creates a paced sender over an open session.
func NewSender(sess *Session, cfg config.BrowserConfig) *Sender {
	perSec := cfg.SendRate
	if perSec <= 0 {
		perSec = 0.5
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = 1
	}
	return &Sender{sess: sess, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Send opens the thread and types text into the composer. The typed content
// is verified before pressing Enter; a mismatch clears and retries.
func (s *Sender) Send(ctx context.Context, threadKey, href, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send pacing: %w", err)
	}

	target := threadURL(threadKey, href)
	if target == "" {
		return fmt.Errorf("thread %s has no stable link to open", threadKey)
	}

	page := s.sess.Page().Context(ctx)
	if err := page.Navigate(target); err != nil {
		return fmt.Errorf("open thread %s: %w", threadKey, err)
	}
	if err := page.Timeout(30 * time.Second).WaitLoad(); err != nil {
		return fmt.Errorf("load thread %s: %w", threadKey, err)
	}

	box, err := page.Timeout(15 * time.Second).Element(composerSelector)
	if err != nil {
		return fmt.Errorf("find composer in %s: %w", threadKey, err)
	}
	if err := box.Focus(); err != nil {
		return fmt.Errorf("focus composer: %w", err)
	}

	const attempts = 3
	for attempt := 1; ; attempt++ {
		if err := box.Input(text); err != nil {
			return fmt.Errorf("type reply: %w", err)
		}
		typed, err := box.Text()
		if err == nil && strings.TrimSpace(typed) == strings.TrimSpace(text) {
			break
		}
		if attempt >= attempts {
			return fmt.Errorf("composer text mismatch after %d attempts", attempts)
		}
		slog.Debug("composer mismatch, retrying", "thread", threadKey, "attempt", attempt)
		if err := box.SelectAllText(); err == nil {
			_ = box.Input("")
		}
	}

	if err := box.Type(input.Enter); err != nil {
		return fmt.Errorf("submit reply: %w", err)
	}
	return nil
}

// threadURL resolves the navigation target, preferring a stored href.
// Positional fallback keys carry no routable id, so without an href there is
// nothing to navigate to.
func threadURL(threadKey, href string) string {
	if href != "" {
		if strings.HasPrefix(href, "http") {
			return href
		}
		return baseURL + href
	}
	if strings.Contains(threadKey, ":") {
		return ""
	}
	return fmt.Sprintf("%s/t/%s/", baseURL, threadKey)
}
