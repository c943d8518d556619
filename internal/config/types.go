package config

import (
	"fmt"
	"strings"
	"time"

	"smscast/internal/message"
)

// Config is the whole smscast configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Secrets (provider.api_key / provider.api_secret) are never logged;
// reload summaries only report whether they are set.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Provider  ProviderConfig  `json:"provider"`
	Message   MessageConfig   `json:"message"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	History   HistoryConfig   `json:"history"`
	Roster    RosterConfig    `json:"roster"`
	Scheduler SchedulerConfig `json:"scheduler"`
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

// ProviderConfig holds the messaging API credentials and sender identity.
type ProviderConfig struct {
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	SenderPhone string `json:"sender_phone"`
	// Endpoint overrides the provider send URL (tests, staging).
	Endpoint string `json:"endpoint,omitempty"`
}

type MessageConfig struct {
	DefaultTemplate string `json:"default_template"`
}

// DispatchConfig tunes the throttled send loop.
//
// The loop is sequential by contract; these knobs only shape the pause
// between consecutive sends and the per-call bound:
//   - send_delay: flat pause after each send except the last (default "500ms")
//   - rate_per_sec: when > 0, use a token bucket instead of the flat delay
//   - send_timeout: per-call bound; expiry counts as a failed outcome (default "10s")
type DispatchConfig struct {
	SendDelay   string `json:"send_delay,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

// HistoryConfig selects the delivery-history driver.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type RosterConfig struct {
	Path string `json:"path"`
}

// SchedulerConfig controls the daily birthday dispatch job.
type SchedulerConfig struct {
	Enabled bool   `json:"enabled"`
	DailyAt string `json:"daily_at,omitempty"` // "HH:MM", default "09:00"
	// Timezone is an IANA TZ, e.g. "Asia/Seoul".
	Timezone string `json:"timezone,omitempty"`
}

// Validate rejects configs that must not be committed or published.
// It checks shape only; reachability of paths and the provider API is
// each component's business.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := ParseDurationField("dispatch.send_delay", c.Dispatch.SendDelay); err != nil {
		return err
	}
	if _, err := ParseDurationField("dispatch.send_timeout", c.Dispatch.SendTimeout); err != nil {
		return err
	}
	if c.Dispatch.RatePerSec < 0 {
		return fmt.Errorf("dispatch.rate_per_sec: must be >= 0")
	}
	if _, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.History.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("history.driver: unknown driver %q", c.History.Driver)
	}
	if p := strings.TrimSpace(c.Provider.SenderPhone); p != "" && !message.ValidPhone(p) {
		return fmt.Errorf("provider.sender_phone: not a valid 10-11 digit number")
	}
	if raw := strings.TrimSpace(c.Scheduler.DailyAt); raw != "" {
		if _, _, err := ParseClock(raw); err != nil {
			return err
		}
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	return nil
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(raw string) (hour, minute int, err error) {
	t, perr := time.Parse("15:04", strings.TrimSpace(raw))
	if perr != nil {
		return 0, 0, fmt.Errorf("scheduler.daily_at: invalid time %q (want HH:MM)", raw)
	}
	return t.Hour(), t.Minute(), nil
}
