// Package settings persists each recipient's notification mode.
//
// Two drivers mirror the storage layer layout: a flat JSON file (default)
// and SQLite. Load never fails: missing or corrupt state degrades to an
// empty snapshot so the bot keeps running with defaults.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "sellerbot/pkg/logx"
)

// Mode is a recipient's notification preference.
type Mode string

const (
	// ModeAll delivers every event kind. This is the default for
	// recipients who never picked a mode.
	ModeAll Mode = "all"
	// ModeReviews delivers only review and question alerts.
	ModeReviews Mode = "reviews"
	// ModeOff delivers nothing.
	ModeOff Mode = "off"
)

// ParseMode validates a stored string.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.TrimSpace(s)) {
	case ModeAll:
		return ModeAll, true
	case ModeReviews:
		return ModeReviews, true
	case ModeOff:
		return ModeOff, true
	}
	return "", false
}

// Snapshot is the full recipient -> mode mapping.
type Snapshot map[int64]Mode

// Mode returns the recipient's preference, defaulting to ModeAll.
func (s Snapshot) Mode(userID int64) Mode {
	if m, ok := s[userID]; ok {
		return m
	}
	return ModeAll
}

// Store is the persistence API for notification preferences.
//
// Set re-reads the backing state before mutating, so interleaved writes from
// different commands don't clobber each other (single-process assumption).
type Store interface {
	Load(ctx context.Context) Snapshot
	Set(ctx context.Context, userID int64, mode Mode) error
	Close() error
}

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store. An empty driver means "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown settings driver: %s", driver)
	}
}

var errClosed = errors.New("settings store closed")
