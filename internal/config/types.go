package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Trigger   TriggerConfig   `json:"trigger"`
	Parser    ParserConfig    `json:"parser"`
	Storage   StorageConfig   `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec throttles outbound messages; 0 keeps the default.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Timezone is an IANA name (e.g. "Europe/Berlin"); empty means Local.
	Timezone string `json:"timezone,omitempty"`
}

// TriggerConfig controls the outbound search-trigger gate.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type TriggerConfig struct {
	Endpoint      string `json:"endpoint"`
	MaxConcurrent int    `json:"max_concurrent,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
}

// ParserConfig selects the free-text parser. With an api_key the
// OpenAI-backed parser is used; without one the rule-based parser runs.
type ParserConfig struct {
	APIKey    string `json:"api_key,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// Validate rejects configs the app cannot start (or keep running) with.
// It is also the hot-reload gate: a config that fails here is never
// committed or published.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("trigger.timeout", c.Trigger.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if c.Trigger.MaxConcurrent < 0 {
		return errors.New("trigger.max_concurrent must be >= 0")
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	switch lvl := strings.ToLower(strings.TrimSpace(c.Logging.Level)); lvl {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}
