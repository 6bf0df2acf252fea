package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"
)

// Duration wraps time.Duration to accept "3s" / "1h" strings in JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("parse duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration for the stallbot daemon.
type Config struct {
	DataDir   string          `json:"data_dir"`
	Timezone  string          `json:"timezone"` // IANA zone for prompts and meetup logging
	Engine    EngineConfig    `json:"engine"`
	Telegram  TelegramConfig  `json:"telegram"`
	Browser   BrowserConfig   `json:"browser"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Digest    DigestConfig    `json:"digest,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// EngineConfig configures the decision engine (OpenAI-compatible proxy).
// APIKey is never read from config.json; it comes from env STALLBOT_ENGINE_API_KEY only.
type EngineConfig struct {
	APIKey   string   `json:"-"` // from env STALLBOT_ENGINE_API_KEY only
	BaseURLs []string `json:"base_urls"`
	Model    string   `json:"model"`
	Timeout  Duration `json:"timeout,omitempty"`
}

// TelegramConfig configures the approval UI bot.
// Token comes from env STALLBOT_TELEGRAM_TOKEN only.
type TelegramConfig struct {
	Token       string `json:"-"`             // from env STALLBOT_TELEGRAM_TOKEN only
	AdminChatID int64  `json:"admin_chat_id"` // the only chat honored for approvals and commands
}

// BrowserConfig configures the messenger.com observer/sender.
type BrowserConfig struct {
	CookiesFile string  `json:"cookies_file,omitempty"` // storage state saved by `stallbot login`
	Headless    bool    `json:"headless"`
	MaxThreads  int     `json:"max_threads"`         // sidebar rows scanned per tick
	SendRate    float64 `json:"send_rate,omitempty"` // outbound sends per second (token bucket)
	SendBurst   int     `json:"send_burst,omitempty"`
}

// PipelineConfig tunes the driver loop and debounce scheduler.
// Quiet period and poll interval are independently configurable; polling adds
// up to one interval of extra flush delay beyond the quiet period.
type PipelineConfig struct {
	QuietPeriod     Duration `json:"quiet_period"`
	PollInterval    Duration `json:"poll_interval"`
	MaxBatch        int      `json:"max_batch"`        // most-recent-N buyer messages per flush
	HistoryLimit    int      `json:"history_limit"`    // chat history lines fed to the engine
	ApprovalTimeout Duration `json:"approval_timeout"` // no answer → decline branch
}

// DigestConfig schedules the daily meetup digest to the admin chat.
type DigestConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Cron    string `json:"cron,omitempty"` // standard 5-field cron expression
}

// TelemetryConfig configures optional OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"` // host:port of the OTLP HTTP collector
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// CookiesPath resolves the cookie storage state file location.
func (c *Config) CookiesPath() string {
	if c.Browser.CookiesFile != "" {
		if filepath.IsAbs(c.Browser.CookiesFile) {
			return c.Browser.CookiesFile
		}
		return filepath.Join(c.DataDir, c.Browser.CookiesFile)
	}
	return filepath.Join(c.DataDir, "fb_cookies.json")
}

// DBPath is the sqlite database location.
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "stallbot.db") }

// MeetupsPath is the meetup CSV side-log location.
func (c *Config) MeetupsPath() string { return filepath.Join(c.DataDir, "meetups.csv") }

// ProductConfigPath is the runtime-mutable product catalog location.
func (c *Config) ProductConfigPath() string {
	return filepath.Join(c.DataDir, "product_config.json")
}

// Location loads the configured IANA timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
