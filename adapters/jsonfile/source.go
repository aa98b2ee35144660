// Package jsonfile serves users from a JSON fixture file. It gives the user
// cache a deterministic upstream without running a database.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cachecompare/core"
	"cachecompare/engine"
)

// Config locates the fixture. Latency, if set, is added to every fetch.
type Config struct {
	Path    string        `json:"path" env:"CACHECOMPARE_USERS_FILE_PATH"`
	Latency time.Duration `json:"latency" env:"CACHECOMPARE_USERS_FILE_LATENCY"`
}

// Source holds the fixture in memory. The file is a JSON array of
// {"id","name","email"} objects.
type Source struct {
	cfg   Config
	mu    sync.RWMutex
	users map[core.UserID]core.UserRecord
}

func New(cfg Config) (*Source, error) {
	s := &Source{cfg: cfg}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the fixture, replacing the served set atomically.
func (s *Source) Reload() error {
	b, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("read user fixture: %w", err)
	}
	var recs []core.UserRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return fmt.Errorf("parse user fixture %s: %w", s.cfg.Path, err)
	}
	users := make(map[core.UserID]core.UserRecord, len(recs))
	for _, r := range recs {
		users[r.ID] = r
	}
	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	return nil
}

func (s *Source) FetchUser(ctx context.Context, id core.UserID) (core.UserRecord, error) {
	if s.cfg.Latency > 0 {
		t := time.NewTimer(s.cfg.Latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return core.UserRecord{}, ctx.Err()
		}
	}
	s.mu.RLock()
	rec, ok := s.users[id]
	s.mu.RUnlock()
	if !ok {
		return core.UserRecord{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return rec, nil
}

// Len reports how many users the fixture holds.
func (s *Source) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// WriteFixture writes recs to path via a temp file and rename, so readers
// never observe a partial file.
func WriteFixture(path string, recs []core.UserRecord) error {
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

var _ engine.UserSource = (*Source)(nil)
