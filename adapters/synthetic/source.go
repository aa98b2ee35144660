// Package synthetic is a user source that fabricates users 1..Users after a
// fixed delay, standing in for a slow database during benchmarks.
package synthetic

import (
	"context"
	"fmt"
	"time"

	"cachecompare/core"
	"cachecompare/engine"
)

type Config struct {
	Users   int64         `json:"users" env:"CACHECOMPARE_SYNTHETIC_USERS"`
	Latency time.Duration `json:"latency" env:"CACHECOMPARE_SYNTHETIC_LATENCY"`
}

func DefaultConfig() Config {
	return Config{Users: 100_000, Latency: 100 * time.Millisecond}
}

type Source struct {
	cfg Config
}

func New(cfg Config) *Source { return &Source{cfg: cfg} }

// FetchUser waits Latency (or until ctx ends) and returns a deterministic
// record. Ids outside 1..Users are not found.
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
	if id < 1 || int64(id) > s.cfg.Users {
		return core.UserRecord{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return core.UserRecord{
		ID:    id,
		Name:  fmt.Sprintf("User %d", id),
		Email: fmt.Sprintf("user%d@example.com", id),
	}, nil
}

var _ engine.UserSource = (*Source)(nil)
