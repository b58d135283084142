package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Wildberries WildberriesConfig `json:"wildberries"`
	Poll        PollConfig        `json:"poll"`
	Settings    SettingsConfig    `json:"settings"`
	Logging     LoggingConfig     `json:"logging"`
}

type TelegramConfig struct {
	// Token may be omitted in the file; the TG_BOT_TOKEN environment
	// variable is used as a fallback.
	Token string `json:"token,omitempty"`

	// AllowedUserIDs is the static recipient allow-list. Every entry both
	// receives notifications and may issue commands.
	AllowedUserIDs []int64 `json:"allowed_user_ids"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type WildberriesConfig struct {
	// APIKey may be omitted in the file; WB_API_KEY is used as a fallback.
	APIKey string `json:"api_key,omitempty"`

	// Base URLs are overridable for tests; empty means production defaults.
	StatisticsURL string `json:"statistics_url,omitempty"`
	FeedbacksURL  string `json:"feedbacks_url,omitempty"`

	// RequestTimeout is a Go duration string. Default "15s".
	RequestTimeout string `json:"request_timeout,omitempty"`

	// RatePerSec caps outbound API calls. Default 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// PollConfig controls the background polling cycles.
//
// All durations are Go duration strings (e.g. "3m", "600s").
type PollConfig struct {
	Enabled bool `json:"enabled"`

	// SalesEvery is the sales-window cycle cadence. Default "10m".
	SalesEvery string `json:"sales_every,omitempty"`

	// FeedbackEvery is the reviews/questions cycle cadence. Default "3m".
	FeedbackEvery string `json:"feedback_every,omitempty"`

	// PageSize for the feedbacks/questions endpoints. Default 10.
	PageSize int `json:"page_size,omitempty"`

	// RetryMax bounds in-cycle retries for transient remote failures.
	// 0 disables retries; omit the key for the default of 3.
	RetryMax *int `json:"retry_max,omitempty"`
}

// SettingsConfig controls where per-recipient notification modes live.
//
// Driver values:
//   - "file" (default): flat JSON mapping, atomically rewritten on change
//   - "sqlite": SQLite database file
type SettingsConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
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

// ApplyEnv fills credentials from the environment when the file omits them.
// File values win over environment values.
func (c *Config) ApplyEnv() {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		c.Telegram.Token = os.Getenv("TG_BOT_TOKEN")
	}
	if strings.TrimSpace(c.Wildberries.APIKey) == "" {
		c.Wildberries.APIKey = os.Getenv("WB_API_KEY")
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is empty (set it in the config file or TG_BOT_TOKEN)")
	}
	if len(c.Telegram.AllowedUserIDs) == 0 {
		return errors.New("telegram.allowed_user_ids is empty")
	}
	if strings.TrimSpace(c.Wildberries.APIKey) == "" {
		return errors.New("wildberries.api_key is empty (set it in the config file or WB_API_KEY)")
	}
	for _, f := range []struct {
		path string
		raw  string
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"wildberries.request_timeout", c.Wildberries.RequestTimeout},
		{"poll.sales_every", c.Poll.SalesEvery},
		{"poll.feedback_every", c.Poll.FeedbackEvery},
		{"settings.busy_timeout", c.Settings.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Poll.PageSize < 0 {
		return errors.New("poll.page_size must be >= 0")
	}
	if c.Poll.RetryMax != nil && *c.Poll.RetryMax < 0 {
		return errors.New("poll.retry_max must be >= 0")
	}
	switch d := strings.ToLower(strings.TrimSpace(c.Settings.Driver)); d {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("settings.driver: unknown driver %q", d)
	}
	return nil
}

// Allowed reports whether the given Telegram user ID is on the allow-list.
func (c *Config) Allowed(userID int64) bool {
	for _, id := range c.Telegram.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
