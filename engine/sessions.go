package engine

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cachecompare/codec"
	"cachecompare/core"
)

const (
	// SessionKeyPrefix prefixes session records in the backend.
	SessionKeyPrefix = "session:"
	// SessionIDPrefix prefixes every issued session id.
	SessionIDPrefix = "sess_"
)

// SessionKey returns the backend key holding a session record.
func SessionKey(id string) string { return SessionKeyPrefix + id }

// SessionConfig sizes and times issued sessions.
type SessionConfig struct {
	// PayloadSize is the number of random bytes behind each payload; the
	// stored payload is their standard base64 encoding.
	PayloadSize int
	// TTL is absolute from creation and never extended by reads.
	TTL time.Duration
}

// Sessions is the TTL-scoped session workload. Each record carries its own
// expiry, checked on every read, so backends without per-entry TTL still
// honour it.
type Sessions struct {
	backend Backend
	codec   codec.Codec[core.Session]
	cfg     SessionConfig
	opts    options
}

func NewSessions(backend Backend, c codec.Codec[core.Session], cfg SessionConfig, opts ...Option) *Sessions {
	if backend == nil || c == nil {
		panic("NewSessions requires non-nil backend and codec")
	}
	return &Sessions{backend: backend, codec: c, cfg: cfg, opts: buildOptions(opts)}
}

// Login issues a new session and stores it.
func (s *Sessions) Login(ctx context.Context) (core.Session, error) {
	raw := make([]byte, s.cfg.PayloadSize)
	if _, err := rand.Read(raw); err != nil {
		return core.Session{}, fmt.Errorf("generate payload: %w", err)
	}
	now := s.opts.now()
	sess := core.Session{
		ID:        SessionIDPrefix + uuid.NewString(),
		Payload:   []byte(base64.StdEncoding.EncodeToString(raw)),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	b, err := s.codec.Encode(sess)
	if err != nil {
		return core.Session{}, fmt.Errorf("encode session: %w", err)
	}
	if err := s.backend.Put(ctx, SessionKey(sess.ID), b, s.cfg.TTL); err != nil {
		return core.Session{}, err
	}
	s.opts.bus.Publish(ctx, core.NewSessionCreated(sess.ID))
	return sess, nil
}

// Read returns the payload of a live session, or core.ErrNotFound.
func (s *Sessions) Read(ctx context.Context, id string) ([]byte, error) {
	key := SessionKey(id)
	b, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess, err := s.codec.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Expired(s.opts.now()) {
		// best effort; a failed delete only delays reclamation
		if err := s.backend.Delete(ctx, key); err != nil {
			s.opts.log.Debug("delete expired session failed", "error", err)
		}
		return nil, core.ErrNotFound
	}
	return sess.Payload, nil
}

// Logout removes the session. Unknown or expired ids succeed.
func (s *Sessions) Logout(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, SessionKey(id)); err != nil {
		return err
	}
	s.opts.bus.Publish(ctx, core.NewSessionEnded(id))
	return nil
}
