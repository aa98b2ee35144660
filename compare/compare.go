// Package compare assembles a ready-to-use workload service from parts.
package compare

import (
	"log/slog"
	"time"

	"cachecompare/adapters/memory"
	"cachecompare/adapters/synthetic"
	"cachecompare/codec"
	"cachecompare/core"
	"cachecompare/engine"
	"cachecompare/leaderboard"
	"cachecompare/realtime"
)

// Option configures the service builder.
type Option func(*config)

type config struct {
	backend  engine.Backend
	index    leaderboard.Board
	source   engine.UserSource
	codec    string
	mode     engine.DispatchMode
	hub      *realtime.Hub
	log      *slog.Logger
	now      func() time.Time
	sessions engine.SessionConfig
	users    engine.UserConfig
	service  engine.ServiceConfig
}

// WithBackend sets the cache backend shared by all workloads.
func WithBackend(b engine.Backend) Option { return func(c *config) { c.backend = b } }

// WithIndex sets the in-process ranking used when the backend has no sorted set.
func WithIndex(b leaderboard.Board) Option { return func(c *config) { c.index = b } }

// WithUserSource sets the upstream behind the user cache.
func WithUserSource(s engine.UserSource) Option { return func(c *config) { c.source = s } }

// WithCodec selects the record encoding by name (msgpack, cbor, json).
func WithCodec(name string) Option { return func(c *config) { c.codec = name } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime relays leaderboard updates to a realtime hub.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.log = l } }

func WithClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

func WithSessionConfig(s engine.SessionConfig) Option { return func(c *config) { c.sessions = s } }

func WithUserConfig(u engine.UserConfig) Option { return func(c *config) { c.users = u } }

func WithServiceConfig(s engine.ServiceConfig) Option { return func(c *config) { c.service = s } }

// RealtimeEvents are the event types relayed to a realtime hub. The hub
// backs the leaderboard feed, so only score updates are relayed.
var RealtimeEvents = []core.EventType{
	core.EventScoreSubmitted,
}

// New builds a configured Service. If not provided, defaults are used:
//   - backend: in-process memory store
//   - index: 16-way sharded skip list
//   - users: synthetic source
//   - codec: msgpack
//   - dispatch: async
func New(opts ...Option) (*engine.Service, error) {
	cfg := &config{
		codec:    codec.NameMsgpack,
		mode:     engine.DispatchAsync,
		sessions: engine.SessionConfig{PayloadSize: 512, TTL: 10 * time.Second},
		users:    engine.UserConfig{TTL: 10 * time.Minute, FetchTimeout: 5 * time.Second},
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.log == nil {
		cfg.log = slog.Default()
	}
	if cfg.backend == nil {
		cfg.backend = memory.New(memory.DefaultConfig(), memory.WithLogger(cfg.log))
	}
	if cfg.index == nil {
		cfg.index = leaderboard.NewSharded(16)
	}
	if cfg.source == nil {
		cfg.source = synthetic.New(synthetic.DefaultConfig())
	}

	scores, err := codec.ByName[core.ScoreEntry](cfg.codec)
	if err != nil {
		return nil, err
	}
	sessions, err := codec.ByName[core.Session](cfg.codec)
	if err != nil {
		return nil, err
	}
	users, err := codec.ByName[core.UserRecord](cfg.codec)
	if err != nil {
		return nil, err
	}

	bus := engine.NewEventBus(cfg.mode)
	eopts := []engine.Option{engine.WithEventBus(bus), engine.WithLogger(cfg.log)}
	if cfg.now != nil {
		eopts = append(eopts, engine.WithClock(cfg.now))
	}
	svc := engine.NewService(
		cfg.backend,
		engine.NewLeaderboard(cfg.backend, cfg.index, scores, eopts...),
		engine.NewSessions(cfg.backend, sessions, cfg.sessions, eopts...),
		engine.NewUsers(cfg.backend, cfg.source, users, cfg.users, eopts...),
		bus,
		cfg.service,
		cfg.log,
	)
	if cfg.hub != nil {
		realtime.Forward(bus, cfg.hub, RealtimeEvents...)
	}
	return svc, nil
}
