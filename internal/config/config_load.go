package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DataDir:  "~/.stallbot",
		Timezone: "America/Vancouver",
		Engine: EngineConfig{
			BaseURLs: []string{"https://api.ttk.homes/v1", "https://ai.ttk.homes/v1"},
			Model:    "gemini-3-flash-preview-cli",
			Timeout:  Duration(30 * time.Second),
		},
		Browser: BrowserConfig{
			Headless:   false,
			MaxThreads: 6,
			SendRate:   0.5,
			SendBurst:  2,
		},
		Pipeline: PipelineConfig{
			QuietPeriod:     Duration(3 * time.Second),
			PollInterval:    Duration(time.Second),
			MaxBatch:        8,
			HistoryLimit:    140,
			ApprovalTimeout: Duration(time.Hour),
		},
		Digest: DigestConfig{
			Cron: "0 9 * * *",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "stallbot",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults + env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			cfg.expandDataDir()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.expandDataDir()
	return cfg, nil
}

// Save writes the config as plain JSON (secrets are excluded by `json:"-"` tags).
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("STALLBOT_ENGINE_API_KEY", &c.Engine.APIKey)
	envStr("STALLBOT_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("STALLBOT_ENGINE_MODEL", &c.Engine.Model)
	envStr("STALLBOT_DATA_DIR", &c.DataDir)
	envStr("STALLBOT_TIMEZONE", &c.Timezone)

	if v := os.Getenv("STALLBOT_ADMIN_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id != 0 {
			c.Telegram.AdminChatID = id
		}
	}

	envStr("STALLBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	if v := os.Getenv("STALLBOT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
}

// expandDataDir resolves a leading ~ in the data dir against the home directory.
func (c *Config) expandDataDir() {
	if len(c.DataDir) >= 2 && c.DataDir[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DataDir = filepath.Join(home, c.DataDir[2:])
		}
	}
}
