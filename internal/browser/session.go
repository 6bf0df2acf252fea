// Package browser drives a real messenger.com session through the Chrome
// DevTools protocol. The observer reads sidebar previews; the sender types
// into a thread's composer. Both share one logged-in Session.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ducth/stallbot/internal/config"
)

const (
	baseURL  = "https://www.messenger.com"
	inboxURL = baseURL + "/marketplace/"
)

// Session is one attached browser with the marketplace inbox open.
type Session struct {
	cfg         config.BrowserConfig
	cookiesPath string

	launch  *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
}

// NewSession prepares a session; Start launches the browser.
func NewSession(cfg config.BrowserConfig, cookiesPath string) *Session {
	return &Session{cfg: cfg, cookiesPath: cookiesPath}
}

// Start launches Chrome, restores saved cookies, and opens the inbox.
func (s *Session) Start(ctx context.Context) error {
	s.launch = launcher.New().Headless(s.cfg.Headless).Leakless(true)
	controlURL, err := s.launch.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	s.browser = rod.New().ControlURL(controlURL).Context(ctx)
	if err := s.browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}

	if err := s.restoreCookies(); err != nil {
		slog.Warn("cookie restore failed, session may need login", "error", err)
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: inboxURL})
	if err != nil {
		return fmt.Errorf("open inbox: %w", err)
	}
	if err := page.Timeout(45 * time.Second).WaitLoad(); err != nil {
		return fmt.Errorf("load inbox: %w", err)
	}
	s.page = page
	slog.Info("browser session ready", "headless", s.cfg.Headless)
	return nil
}

// Page returns the inbox page. Valid after Start.
func (s *Session) Page() *rod.Page { return s.page }

func (s *Session) restoreCookies() error {
	raw, err := os.ReadFile(s.cookiesPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("no cookie file at %s, run `stallbot login` first", s.cookiesPath)
	}
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}
	var cookies []*proto.NetworkCookieParam
	if err := json.Unmarshal(raw, &cookies); err != nil {
		return fmt.Errorf("parse cookies: %w", err)
	}
	if err := s.browser.SetCookies(cookies); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// SaveCookies writes the browser's current cookies so the next run can skip
// the login flow.
func (s *Session) SaveCookies() error {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return fmt.Errorf("get cookies: %w", err)
	}
	raw, err := json.MarshalIndent(proto.CookiesToParams(cookies), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.cookiesPath), 0o755); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	if err := os.WriteFile(s.cookiesPath, raw, 0o600); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	slog.Info("cookies saved", "path", s.cookiesPath, "count", len(cookies))
	return nil
}

// Close shuts the browser down.
func (s *Session) Close() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			slog.Warn("browser close failed", "error", err)
		}
	}
	if s.launch != nil {
		s.launch.Cleanup()
	}
}
