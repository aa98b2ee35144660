package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cachecompare/core"
)

// Operation names used in classified errors and logs.
const (
	OpSubmitScore = "submit_score"
	OpTopN        = "top_n"
	OpLogin       = "login"
	OpReadSession = "read_session"
	OpLogout      = "logout"
	OpGetUser     = "get_user"
	OpScoreOf     = "score_of"
	OpHealth      = "health"
)

// ServiceConfig bounds the workload operations.
type ServiceConfig struct {
	// OpTimeout caps every operation; 0 disables the cap.
	OpTimeout time.Duration
	// MaxTopN caps the n accepted by TopN; 0 means unlimited.
	MaxTopN int
}

// Stats is a snapshot of service counters.
type Stats struct {
	Backend       string    `json:"backend"`
	Native        bool      `json:"native_ranking"`
	Users         UserStats `json:"users"`
	EventsDropped uint64    `json:"events_dropped"`
}

// Service is the workload adapter: it validates input, bounds each call and
// maps every failure onto the core error taxonomy.
type Service struct {
	backend  Backend
	lb       *Leaderboard
	sessions *Sessions
	users    *Users
	bus      *EventBus
	cfg      ServiceConfig
	log      *slog.Logger
}

func NewService(backend Backend, lb *Leaderboard, sessions *Sessions, users *Users, bus *EventBus, cfg ServiceConfig, log *slog.Logger) *Service {
	if backend == nil || lb == nil || sessions == nil || users == nil || bus == nil {
		panic("NewService requires non-nil backend, workloads, and bus")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{backend: backend, lb: lb, sessions: sessions, users: users, bus: bus, cfg: cfg, log: log}
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

// Subscribe registers handler for events of typ published by the
// workloads. The returned func removes the handler.
func (s *Service) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

// SubmitScore records a user's score, replacing the previous one.
func (s *Service) SubmitScore(ctx context.Context, id core.UserID, score int64) (core.ScoreEntry, error) {
	if err := core.ValidateUserID(id); err != nil {
		return core.ScoreEntry{}, core.Invalid(OpSubmitScore, err)
	}
	if err := core.ValidateScore(score); err != nil {
		return core.ScoreEntry{}, core.Invalid(OpSubmitScore, err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	e, err := s.lb.Submit(ctx, id, score)
	if err != nil {
		return core.ScoreEntry{}, core.Classify(OpSubmitScore, err, core.ErrStoreUnavailable)
	}
	return e, nil
}

// TopN returns the n best entries, score descending, ties by user id.
func (s *Service) TopN(ctx context.Context, n int) ([]core.ScoreEntry, error) {
	if n <= 0 {
		return nil, core.Invalid(OpTopN, errors.New("n must be positive"))
	}
	if s.cfg.MaxTopN > 0 && n > s.cfg.MaxTopN {
		return nil, core.Invalid(OpTopN, fmt.Errorf("n must be <= %d", s.cfg.MaxTopN))
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	top, err := s.lb.TopN(ctx, n)
	if err != nil {
		return nil, core.Classify(OpTopN, err, core.ErrStoreUnavailable)
	}
	return top, nil
}

// ScoreOf returns one user's entry.
func (s *Service) ScoreOf(ctx context.Context, id core.UserID) (core.ScoreEntry, error) {
	if err := core.ValidateUserID(id); err != nil {
		return core.ScoreEntry{}, core.Invalid(OpScoreOf, err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	e, err := s.lb.Get(ctx, id)
	if err != nil {
		return core.ScoreEntry{}, core.Classify(OpScoreOf, err, core.ErrStoreUnavailable)
	}
	return e, nil
}

// RebuildLeaderboard reloads the ranked index from the backend.
func (s *Service) RebuildLeaderboard(ctx context.Context) (int, error) {
	return s.lb.Rebuild(ctx)
}

// Login creates a session.
func (s *Service) Login(ctx context.Context) (core.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	sess, err := s.sessions.Login(ctx)
	if err != nil {
		return core.Session{}, core.Classify(OpLogin, err, core.ErrStoreUnavailable)
	}
	return sess, nil
}

// ReadSession returns a live session's payload.
func (s *Service) ReadSession(ctx context.Context, id string) ([]byte, error) {
	if err := core.ValidateSessionID(id); err != nil {
		return nil, core.Invalid(OpReadSession, err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	p, err := s.sessions.Read(ctx, id)
	if err != nil {
		return nil, core.Classify(OpReadSession, err, core.ErrStoreUnavailable)
	}
	return p, nil
}

// Logout ends a session; unknown ids succeed.
func (s *Service) Logout(ctx context.Context, id string) error {
	if err := core.ValidateSessionID(id); err != nil {
		return core.Invalid(OpLogout, err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.sessions.Logout(ctx, id); err != nil {
		return core.Classify(OpLogout, err, core.ErrStoreUnavailable)
	}
	return nil
}

// GetUser returns a user profile through the cache.
func (s *Service) GetUser(ctx context.Context, id core.UserID) (core.UserRecord, error) {
	if err := core.ValidateUserID(id); err != nil {
		return core.UserRecord{}, core.Invalid(OpGetUser, err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rec, err := s.users.Get(ctx, id)
	if err != nil {
		return core.UserRecord{}, core.Classify(OpGetUser, err, core.ErrUpstreamUnavailable)
	}
	return rec, nil
}

// Health probes the backend with a read of a key that never exists.
func (s *Service) Health(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.backend.Get(ctx, "health:probe"); err != nil && !errors.Is(err, ErrMiss) {
		return core.Classify(OpHealth, err, core.ErrStoreUnavailable)
	}
	return nil
}

// Stats returns the current counters.
func (s *Service) Stats() Stats {
	return Stats{
		Backend:       s.backend.Name(),
		Native:        s.lb.Native(),
		Users:         s.users.Stats(),
		EventsDropped: s.bus.Dropped(),
	}
}

// BackendName identifies the configured backend.
func (s *Service) BackendName() string { return s.backend.Name() }

// Close stops the event bus and releases the backend.
func (s *Service) Close() error {
	s.bus.Close()
	return s.backend.Close()
}
