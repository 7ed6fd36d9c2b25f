package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultFetchIntervalSec is applied when an account slot has no interval
// configured. Surfaced so the settings UI can display it.
const DefaultFetchIntervalSec = 600

const (
	defaultTrackerDomain = "backlog.jp"
	defaultHTTPTimeout   = 15 * time.Second
	defaultRatePerSec    = 2
)

type Config struct {
	App      AppConfig      `json:"app"`
	Tracker  TrackerConfig  `json:"tracker"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`
}

type AppConfig struct {
	// Name appears in notification titles, e.g. "(3) Backlog Notifier".
	Name string `json:"name"`
}

type TrackerConfig struct {
	// Domain is the tracker's base domain; accounts resolve to
	// https://{spaceId}.{domain}.
	Domain      string `json:"domain"`
	HTTPTimeout string `json:"http_timeout"`
	RatePerSec  int    `json:"rate_per_sec"`
}

type StorageConfig struct {
	// Driver: "file" or "sqlite".
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    LogFileCfg `json:"file"`
}

type LogFileCfg struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

type TelegramConfig struct {
	// Mirror notifications to a Telegram chat. Display-only; the desktop
	// channel stays the interactive one.
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
}

// ApplyDefaults fills zero-valued fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.App.Name) == "" {
		c.App.Name = "Backlog Notifier"
	}
	if strings.TrimSpace(c.Tracker.Domain) == "" {
		c.Tracker.Domain = defaultTrackerDomain
	}
	if c.Tracker.RatePerSec <= 0 {
		c.Tracker.RatePerSec = defaultRatePerSec
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "file"
	}
}

// Validate rejects configs that cannot be started with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := ParseDurationField("tracker.http_timeout", c.Tracker.HTTPTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required when telegram.enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram.enabled")
		}
	}
	return nil
}

// HTTPTimeout returns the parsed tracker HTTP timeout with the default applied.
func (c *Config) HTTPTimeout() time.Duration {
	d, err := ParseDurationOrDefault("tracker.http_timeout", c.Tracker.HTTPTimeout, defaultHTTPTimeout)
	if err != nil {
		return defaultHTTPTimeout
	}
	return d
}

// BusyTimeout returns the parsed sqlite busy timeout; 0 means driver default.
func (c *Config) BusyTimeout() time.Duration {
	d, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return 0
	}
	return d
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
