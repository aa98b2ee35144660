package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecompare/adapters/backendtest"
	"cachecompare/engine"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

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

func TestMemoryStoreContract(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	backendtest.Run(t, func(t *testing.T) engine.Backend {
		s := New(Config{Shards: 8}, WithClock(clock.Now))
		t.Cleanup(func() { _ = s.Close() })
		return s
	}, backendtest.Options{PerEntryTTL: true, Advance: clock.Advance, Scan: true})
}

func TestMemoryStoreReap(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := New(Config{Shards: 4}, WithClock(clock.Now))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, s.Put(ctx, "b", []byte("2"), 0))
	assert.Equal(t, 2, s.Len())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, s.Reap())
	assert.Equal(t, 1, s.Len())
	_, err := s.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestMemoryStoreBackgroundReaper(t *testing.T) {
	s := New(Config{Shards: 2, CleanupInterval: 10 * time.Millisecond})
	defer s.Close()
	require.NoError(t, s.Put(context.Background(), "a", []byte("1"), 5*time.Millisecond))

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStoreShardRounding(t *testing.T) {
	s := New(Config{Shards: 5})
	defer s.Close()
	assert.Len(t, s.shards, 8)
	assert.Equal(t, uint64(7), s.mask)
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := New(DefaultConfig())
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Put(ctx, "a", nil, 0), context.Canceled)
}

func TestMemoryStoreCloseTwice(t *testing.T) {
	s := New(Config{CleanupInterval: time.Millisecond})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
