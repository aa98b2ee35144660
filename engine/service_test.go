package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecompare/core"
	"cachecompare/engine"
)

type serviceFixture struct {
	svc     *engine.Service
	backend *flakyBackend
	source  *fakeSource
}

func newService(t *testing.T, cfg engine.ServiceConfig) serviceFixture {
	t.Helper()
	fb := &flakyBackend{Backend: newMemory(t)}
	src := &fakeSource{known: 100}
	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewService(fb,
		newLeaderboard(t, fb, engine.WithEventBus(bus)),
		newSessions(t, fb, engine.SessionConfig{PayloadSize: 64, TTL: time.Minute}, engine.WithEventBus(bus)),
		newUsers(t, fb, src, engine.WithEventBus(bus)),
		bus, cfg, nil)
	return serviceFixture{svc: svc, backend: fb, source: src}
}

func TestServiceValidation(t *testing.T) {
	f := newService(t, engine.ServiceConfig{MaxTopN: 100})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"negative user", func() error { _, err := f.svc.SubmitScore(ctx, -1, 1); return err }},
		{"score too large", func() error { _, err := f.svc.SubmitScore(ctx, 1, core.MaxScore+1); return err }},
		{"zero n", func() error { _, err := f.svc.TopN(ctx, 0); return err }},
		{"negative n", func() error { _, err := f.svc.TopN(ctx, -3); return err }},
		{"n over cap", func() error { _, err := f.svc.TopN(ctx, 101); return err }},
		{"empty session", func() error { _, err := f.svc.ReadSession(ctx, ""); return err }},
		{"bad logout id", func() error { return f.svc.Logout(ctx, "a/b") }},
		{"negative get user", func() error { _, err := f.svc.GetUser(ctx, -5); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidArgument)
		})
	}
}

func TestServiceWorkflow(t *testing.T) {
	f := newService(t, engine.ServiceConfig{OpTimeout: time.Second})
	ctx := context.Background()

	_, err := f.svc.SubmitScore(ctx, 1, 10)
	require.NoError(t, err)
	_, err = f.svc.SubmitScore(ctx, 2, 30)
	require.NoError(t, err)
	_, err = f.svc.SubmitScore(ctx, 1, 40)
	require.NoError(t, err)

	top, err := f.svc.TopN(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []core.ScoreEntry{{UserID: 1, Score: 40}, {UserID: 2, Score: 30}}, top)

	e, err := f.svc.ScoreOf(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(30), e.Score)

	sess, err := f.svc.Login(ctx)
	require.NoError(t, err)
	payload, err := f.svc.ReadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Payload, payload)
	require.NoError(t, f.svc.Logout(ctx, sess.ID))
	_, err = f.svc.ReadSession(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	rec, err := f.svc.GetUser(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "user-9", rec.Name)
	_, err = f.svc.GetUser(ctx, 1000)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, f.svc.Health(ctx))
	st := f.svc.Stats()
	assert.Equal(t, "memory", st.Backend)
	assert.False(t, st.Native)
	assert.Equal(t, uint64(2), st.Users.Misses)
}

func TestServiceHidesBackendDetail(t *testing.T) {
	f := newService(t, engine.ServiceConfig{})
	f.backend.fail.Store(true)
	ctx := context.Background()

	_, err := f.svc.Login(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.False(t, strings.Contains(err.Error(), "10.0.0.7"), "cause leaked: %s", err)
	assert.ErrorIs(t, core.CauseOf(err), errBoom)

	_, err = f.svc.SubmitScore(ctx, 1, 1)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	_, err = f.svc.ReadSession(ctx, "sess_x")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	err = f.svc.Logout(ctx, "sess_x")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	err = f.svc.Health(ctx)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	var oe *core.OpError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, engine.OpHealth, oe.Op)
}

func TestServiceOpTimeout(t *testing.T) {
	f := newService(t, engine.ServiceConfig{OpTimeout: 20 * time.Millisecond})
	f.backend.putDelay = time.Second

	start := time.Now()
	_, err := f.svc.SubmitScore(context.Background(), 1, 1)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestServiceUpstreamTimeout(t *testing.T) {
	f := newService(t, engine.ServiceConfig{OpTimeout: 20 * time.Millisecond})
	f.source.gate = make(chan struct{})
	defer close(f.source.gate)

	_, err := f.svc.GetUser(context.Background(), 1)
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}

func TestServiceUserCacheReadTimeout(t *testing.T) {
	f := newService(t, engine.ServiceConfig{OpTimeout: 20 * time.Millisecond})
	f.backend.getDelay = time.Second

	_, err := f.svc.GetUser(context.Background(), 1)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, core.ErrUpstreamUnavailable)
	assert.Zero(t, f.source.calls.Load())
}

func TestServiceSubscribe(t *testing.T) {
	f := newService(t, engine.ServiceConfig{})
	var seen int
	unsub := f.svc.Subscribe(core.EventScoreSubmitted, func(context.Context, core.Event) { seen++ })
	defer unsub()

	_, err := f.svc.SubmitScore(context.Background(), 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}
