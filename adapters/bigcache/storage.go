package bigcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"cachecompare/engine"
)

// Config holds bigcache settings. BigCache evicts by a single LifeWindow,
// so per-entry TTLs passed to Put are ignored; callers that need exact
// expiry must carry a deadline in the value.
type Config struct {
	LifeWindow         time.Duration `json:"life_window" env:"CACHECOMPARE_BIGCACHE_LIFE_WINDOW"`
	CleanWindow        time.Duration `json:"clean_window" env:"CACHECOMPARE_BIGCACHE_CLEAN_WINDOW"`
	Shards             int           `json:"shards" env:"CACHECOMPARE_BIGCACHE_SHARDS"`
	MaxEntriesInWindow int           `json:"max_entries_in_window" env:"CACHECOMPARE_BIGCACHE_MAX_ENTRIES_IN_WINDOW"`
	MaxEntrySize       int           `json:"max_entry_size" env:"CACHECOMPARE_BIGCACHE_MAX_ENTRY_SIZE"`
	HardMaxCacheSizeMB int           `json:"hard_max_cache_size_mb" env:"CACHECOMPARE_BIGCACHE_HARD_MAX_MB"` // 0 = unlimited
}

func DefaultConfig() Config {
	return Config{
		LifeWindow:         10 * time.Minute,
		CleanWindow:        time.Minute,
		Shards:             256,
		MaxEntriesInWindow: 64 * 1024,
		MaxEntrySize:       512,
	}
}

// Store adapts BigCache to engine.Backend.
type Store struct {
	c *bc.BigCache
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache: life window must be positive")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("bigcache: %w", err)
	}
	return &Store{c: c}, nil
}

func (s *Store) Name() string { return "bigcache" }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, engine.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("bigcache get: %w", err)
	}
	return b, nil
}

// Put stores value; ttl is ignored in favour of the configured LifeWindow.
func (s *Store) Put(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.c.Set(key, value); err != nil {
		return fmt.Errorf("bigcache set: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return fmt.Errorf("bigcache delete: %w", err)
	}
	return nil
}

// Scan walks the shard iterator. Entries evicted mid-iteration are skipped.
func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error {
	it := s.c.Iterator()
	for it.SetNext() {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := it.Value()
		if err != nil {
			continue
		}
		if !strings.HasPrefix(info.Key(), prefix) {
			continue
		}
		if !fn(info.Key(), info.Value()) {
			return nil
		}
	}
	return nil
}

// Len reports the number of live entries.
func (s *Store) Len() int { return s.c.Len() }

func (s *Store) Close() error { return s.c.Close() }

var _ engine.Backend = (*Store)(nil)
