package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	logx "sellerbot/pkg/logx"
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if path == "" {
		path = "./user_settings.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS prefs (
			user_id INTEGER PRIMARY KEY,
			mode    TEXT NOT NULL
		)`,
	); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context) Snapshot {
	snap := Snapshot{}
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, mode FROM prefs`)
	if err != nil {
		s.log.Warn("settings query failed; using empty snapshot", logx.Err(err))
		return snap
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			s.log.Warn("settings row skipped", logx.Err(err))
			continue
		}
		mode, ok := ParseMode(raw)
		if !ok {
			s.log.Warn("settings row skipped (bad mode)", logx.Int64("user_id", id), logx.String("mode", raw))
			continue
		}
		snap[id] = mode
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("settings scan incomplete", logx.Err(err))
	}
	return snap
}

func (s *sqliteStore) Set(ctx context.Context, userID int64, mode Mode) error {
	if s.db == nil {
		return errClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs(user_id, mode) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET mode=excluded.mode`,
		userID, string(mode),
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
