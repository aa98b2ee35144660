package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cachecompare/adapters/memory"
	"cachecompare/codec"
	"cachecompare/core"
	"cachecompare/engine"
	"cachecompare/leaderboard"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyBackend wraps a backend and fails calls on demand.
type flakyBackend struct {
	engine.Backend
	fail      atomic.Bool
	noScan    bool
	putDelay  time.Duration
	getDelay  time.Duration
	deletions atomic.Int64
}

var errBoom = errors.New("connection reset by peer 10.0.0.7:6379")

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getDelay > 0 {
		select {
		case <-time.After(f.getDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail.Load() {
		return nil, errBoom
	}
	return f.Backend.Get(ctx, key)
}

func (f *flakyBackend) Put(ctx context.Context, key string, v []byte, ttl time.Duration) error {
	if f.putDelay > 0 {
		select {
		case <-time.After(f.putDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail.Load() {
		return errBoom
	}
	return f.Backend.Put(ctx, key, v, ttl)
}

func (f *flakyBackend) Delete(ctx context.Context, key string) error {
	if f.fail.Load() {
		return errBoom
	}
	f.deletions.Add(1)
	return f.Backend.Delete(ctx, key)
}

func (f *flakyBackend) Scan(ctx context.Context, prefix string, fn func(string, []byte) bool) error {
	if f.noScan {
		return engine.ErrScanUnsupported
	}
	return f.Backend.Scan(ctx, prefix, fn)
}

func newMemory(t *testing.T, opts ...memory.Option) *memory.Store {
	t.Helper()
	s := memory.New(memory.Config{Shards: 8}, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeSource serves users 1..known and counts calls. When gate is non-nil
// every fetch blocks until it is closed.
type fakeSource struct {
	known int64
	calls atomic.Int64
	gate  chan struct{}
	err   error
}

func (s *fakeSource) FetchUser(ctx context.Context, id core.UserID) (core.UserRecord, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return core.UserRecord{}, ctx.Err()
		}
	}
	if s.err != nil {
		return core.UserRecord{}, s.err
	}
	if int64(id) < 1 || int64(id) > s.known {
		return core.UserRecord{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return core.UserRecord{ID: id, Name: fmt.Sprintf("user-%d", id), Email: fmt.Sprintf("user-%d@example.com", id)}, nil
}

func mustCodec[V any](t *testing.T, name string) codec.Codec[V] {
	t.Helper()
	c, err := codec.ByName[V](name)
	require.NoError(t, err)
	return c
}

func newLeaderboard(t *testing.T, b engine.Backend, opts ...engine.Option) *engine.Leaderboard {
	t.Helper()
	return engine.NewLeaderboard(b, leaderboard.NewSharded(4), mustCodec[core.ScoreEntry](t, codec.NameMsgpack), opts...)
}
