package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"cachecompare/engine"
)

// Config holds ristretto settings. Cost is the value length in bytes, so
// MaxCost bounds the cache's payload size.
type Config struct {
	NumCounters int64 `json:"num_counters" env:"CACHECOMPARE_RISTRETTO_NUM_COUNTERS"`
	MaxCost     int64 `json:"max_cost" env:"CACHECOMPARE_RISTRETTO_MAX_COST"`
	BufferItems int64 `json:"buffer_items" env:"CACHECOMPARE_RISTRETTO_BUFFER_ITEMS"`
	Metrics     bool  `json:"metrics" env:"CACHECOMPARE_RISTRETTO_METRICS"`
}

func DefaultConfig() Config {
	return Config{
		NumCounters: 1_000_000,
		MaxCost:     256 << 20,
		BufferItems: 64,
	}
}

// Store adapts a ristretto cache to engine.Backend. Ristretto admits writes
// asynchronously and may refuse them; Put waits for the write buffer and
// reports a refusal as engine.ErrRejected.
type Store struct {
	c *rc.Cache
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Name() string { return "ristretto" }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := s.c.Get(key)
	if !ok {
		return nil, engine.ErrMiss
	}
	b, _ := v.([]byte)
	if b == nil {
		// drop unexpected entry shape
		s.c.Del(key)
		return nil, engine.ErrMiss
	}
	return b, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	v := make([]byte, len(value))
	copy(v, value)
	cost := int64(len(v))
	if cost == 0 {
		cost = 1
	}
	if !s.c.SetWithTTL(key, v, cost, ttl) {
		return engine.ErrRejected
	}
	// Wait drains the shared set buffer so the value is readable on return.
	// It serializes concurrent writers.
	s.c.Wait()
	if _, ok := s.c.Get(key); !ok {
		return engine.ErrRejected
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.c.Del(key)
	return nil
}

// Scan is not supported: ristretto exposes no iteration.
func (s *Store) Scan(context.Context, string, func(string, []byte) bool) error {
	return engine.ErrScanUnsupported
}

// Metrics exposes ristretto's counters when Config.Metrics is set.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }

func (s *Store) Close() error {
	s.c.Wait()
	s.c.Close()
	return nil
}

var _ engine.Backend = (*Store)(nil)
