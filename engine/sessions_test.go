package engine_test

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecompare/adapters/bigcache"
	"cachecompare/adapters/memory"
	"cachecompare/core"
	"cachecompare/engine"
)

func newSessions(t *testing.T, b engine.Backend, cfg engine.SessionConfig, opts ...engine.Option) *engine.Sessions {
	t.Helper()
	return engine.NewSessions(b, mustCodec[core.Session](t, "msgpack"), cfg, opts...)
}

func TestSessionLoginRead(t *testing.T) {
	clock := newFakeClock()
	s := newSessions(t, newMemory(t, memory.WithClock(clock.Now)),
		engine.SessionConfig{PayloadSize: 512, TTL: 10 * time.Second}, engine.WithClock(clock.Now))
	ctx := context.Background()

	sess, err := s.Login(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sess.ID, engine.SessionIDPrefix))
	assert.Equal(t, clock.Now().Add(10*time.Second), sess.ExpiresAt)
	assert.Len(t, sess.Payload, base64.StdEncoding.EncodedLen(512))

	got, err := s.Read(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Payload, got)

	other, err := s.Login(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, other.ID)
	assert.NotEqual(t, sess.Payload, other.Payload)
}

func TestSessionExpiresAbsolutely(t *testing.T) {
	clock := newFakeClock()
	s := newSessions(t, newMemory(t, memory.WithClock(clock.Now)),
		engine.SessionConfig{PayloadSize: 16, TTL: 10 * time.Second}, engine.WithClock(clock.Now))
	ctx := context.Background()

	sess, err := s.Login(ctx)
	require.NoError(t, err)

	clock.Advance(9 * time.Second)
	_, err = s.Read(ctx, sess.ID) // reads do not extend the TTL
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = s.Read(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSessionExpiryWithoutBackendTTL(t *testing.T) {
	clock := newFakeClock()
	bc, err := bigcache.New(context.Background(), bigcache.Config{LifeWindow: time.Hour, Shards: 4, MaxEntriesInWindow: 64, MaxEntrySize: 256})
	require.NoError(t, err)
	defer bc.Close()

	s := newSessions(t, bc, engine.SessionConfig{PayloadSize: 16, TTL: time.Second}, engine.WithClock(clock.Now))
	ctx := context.Background()
	sess, err := s.Login(ctx)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = s.Read(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = bc.Get(ctx, engine.SessionKey(sess.ID))
	assert.ErrorIs(t, err, engine.ErrMiss, "expired record is removed on read")
}

func TestSessionLogoutIdempotent(t *testing.T) {
	s := newSessions(t, newMemory(t), engine.SessionConfig{PayloadSize: 8, TTL: time.Minute})
	ctx := context.Background()

	sess, err := s.Login(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx, sess.ID))
	require.NoError(t, s.Logout(ctx, sess.ID))
	require.NoError(t, s.Logout(ctx, "sess_never-issued"))

	_, err = s.Read(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSessionReadUnknown(t *testing.T) {
	s := newSessions(t, newMemory(t), engine.SessionConfig{PayloadSize: 8, TTL: time.Minute})
	_, err := s.Read(context.Background(), "sess_missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSessionStoreFailure(t *testing.T) {
	fb := &flakyBackend{Backend: newMemory(t)}
	fb.fail.Store(true)
	s := newSessions(t, fb, engine.SessionConfig{PayloadSize: 8, TTL: time.Minute})

	_, err := s.Login(context.Background())
	assert.ErrorIs(t, err, errBoom)
	_, err = s.Read(context.Background(), "sess_x")
	assert.ErrorIs(t, err, errBoom)
}

func TestSessionRealTTLEndToEnd(t *testing.T) {
	mem := memory.New(memory.Config{Shards: 2, CleanupInterval: 20 * time.Millisecond})
	defer mem.Close()
	s := newSessions(t, mem, engine.SessionConfig{PayloadSize: 32, TTL: 100 * time.Millisecond})
	ctx := context.Background()

	sess, err := s.Login(ctx)
	require.NoError(t, err)
	got, err := s.Read(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Payload, got)

	time.Sleep(200 * time.Millisecond)
	_, err = s.Read(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Zero(t, mem.Len(), "reaper reclaimed the record")
}

func TestSessionEvents(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	var types []core.EventType
	for _, typ := range []core.EventType{core.EventSessionCreated, core.EventSessionEnded} {
		bus.Subscribe(typ, func(_ context.Context, e core.Event) { types = append(types, e.Type) })
	}
	s := newSessions(t, newMemory(t), engine.SessionConfig{PayloadSize: 8, TTL: time.Minute}, engine.WithEventBus(bus))
	sess, err := s.Login(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Logout(context.Background(), sess.ID))
	assert.Equal(t, []core.EventType{core.EventSessionCreated, core.EventSessionEnded}, types)
}
