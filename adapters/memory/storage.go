package memory

import (
	"context"
	"hash/maphash"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cachecompare/engine"
)

// Config holds in-process backend settings.
type Config struct {
	// Shards is rounded up to a power of two.
	Shards int `json:"shards" env:"CACHECOMPARE_MEMORY_SHARDS"`
	// CleanupInterval is the reaper period; 0 disables background reaping
	// (expired entries are still invisible to reads).
	CleanupInterval time.Duration `json:"cleanup_interval" env:"CACHECOMPARE_MEMORY_CLEANUP_INTERVAL"`
}

// DefaultConfig returns sensible defaults for the in-process backend.
func DefaultConfig() Config {
	return Config{
		Shards:          64,
		CleanupInterval: 5 * time.Second,
	}
}

type entry struct {
	value    []byte
	deadline int64 // unix nanos; 0 => no expiry
}

func (e entry) expired(now int64) bool {
	return e.deadline != 0 && now > e.deadline
}

type shard struct {
	mu sync.RWMutex
	m  map[string]entry
}

// Store is a sharded, concurrent in-memory Backend with per-entry TTL.
// Expired entries are hidden on read and reclaimed by a background reaper.
type Store struct {
	shards []*shard
	mask   uint64
	seed   maphash.Seed
	now    func() time.Time
	log    *slog.Logger

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithLogger sets the logger used by the reaper.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func New(cfg Config, opts ...Option) *Store {
	n := 1
	for n < cfg.Shards {
		n <<= 1
	}
	s := &Store{
		shards: make([]*shard, n),
		mask:   uint64(n - 1),
		seed:   maphash.MakeSeed(),
		now:    time.Now,
		log:    slog.Default(),
	}
	for i := range s.shards {
		s.shards[i] = &shard{m: make(map[string]entry)}
	}
	for _, o := range opts {
		o(s)
	}
	if cfg.CleanupInterval > 0 {
		s.ticker = time.NewTicker(cfg.CleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Reap()
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Store) Name() string { return "memory" }

func (s *Store) shardFor(key string) *shard {
	return s.shards[maphash.String(s.seed, key)&s.mask]
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok || e.expired(s.now().UnixNano()) {
		return nil, engine.ErrMiss
	}
	return e.value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var deadline int64
	if ttl > 0 {
		deadline = s.now().Add(ttl).UnixNano()
	}
	// copy so later caller mutation cannot reach stored bytes
	v := make([]byte, len(value))
	copy(v, value)
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.m[key] = entry{value: v, deadline: deadline}
	sh.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
	return nil
}

// Scan visits a copy of each shard so fn runs without holding shard locks.
func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error {
	type kv struct {
		k string
		v []byte
	}
	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.now().UnixNano()
		sh.mu.RLock()
		batch := make([]kv, 0, len(sh.m))
		for k, e := range sh.m {
			if strings.HasPrefix(k, prefix) && !e.expired(now) {
				batch = append(batch, kv{k, e.value})
			}
		}
		sh.mu.RUnlock()
		for _, it := range batch {
			if !fn(it.k, it.v) {
				return nil
			}
		}
	}
	return nil
}

// Reap removes expired entries one shard at a time, so readers of other
// shards are never blocked.
func (s *Store) Reap() int {
	removed := 0
	for _, sh := range s.shards {
		now := s.now().UnixNano()
		sh.mu.Lock()
		for k, e := range sh.m {
			if e.expired(now) {
				delete(sh.m, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		s.log.Debug("memory backend reaped expired entries", "removed", removed)
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// Close stops the reaper. Safe to call more than once.
func (s *Store) Close() error {
	s.once.Do(func() {
		if s.stopCh != nil {
			s.ticker.Stop()
			close(s.stopCh)
			s.wg.Wait()
		}
	})
	return nil
}

var _ engine.Backend = (*Store)(nil)
