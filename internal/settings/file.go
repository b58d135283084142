package settings

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	logx "sellerbot/pkg/logx"
)

// fileStore keeps the snapshot as one flat JSON object
// ("<user id>" -> mode). Writes go through tmp+rename so readers never
// observe a partial file.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex

	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if path == "" {
		path = "./user_settings.json"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Load(ctx context.Context) Snapshot {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *fileStore) loadLocked() Snapshot {
	b, err := os.ReadFile(s.path)
	if err != nil {
		// A missing file is the normal first-run state.
		if !os.IsNotExist(err) {
			s.log.Warn("settings unreadable; using empty snapshot", logx.String("path", s.path), logx.Err(err))
		}
		return Snapshot{}
	}

	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		s.log.Warn("settings corrupt; using empty snapshot", logx.String("path", s.path), logx.Err(err))
		return Snapshot{}
	}

	snap := make(Snapshot, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			s.log.Warn("settings entry skipped (bad key)", logx.String("key", k))
			continue
		}
		mode, ok := ParseMode(v)
		if !ok {
			s.log.Warn("settings entry skipped (bad mode)", logx.String("key", k), logx.String("mode", v))
			continue
		}
		snap[id] = mode
	}
	return snap
}

func (s *fileStore) Set(ctx context.Context, userID int64, mode Mode) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	// Re-load before mutating so we never clobber entries written since
	// our last read.
	snap := s.loadLocked()
	snap[userID] = mode

	raw := make(map[string]string, len(snap))
	for id, m := range snap {
		raw[strconv.FormatInt(id, 10)] = string(m)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
