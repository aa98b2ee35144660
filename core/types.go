package core

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// UserID identifies a user across all three workloads. Valid ids are >= 0.
type UserID int64

// MaxScore bounds accepted scores so every backend, including those that keep
// scores as float64, stores them exactly.
const MaxScore int64 = 1 << 53

// ScoreEntry is one user's current score. A later submission replaces it.
type ScoreEntry struct {
	UserID UserID `json:"user_id" msgpack:"u" cbor:"1,keyasint"`
	Score  int64  `json:"score" msgpack:"s" cbor:"2,keyasint"`
}

// Session is an issued login session. Payload is immutable after creation.
type Session struct {
	ID        string    `json:"id" msgpack:"id" cbor:"1,keyasint"`
	Payload   []byte    `json:"payload" msgpack:"p" cbor:"2,keyasint"`
	CreatedAt time.Time `json:"created_at" msgpack:"c" cbor:"3,keyasint"`
	ExpiresAt time.Time `json:"expires_at" msgpack:"e" cbor:"4,keyasint"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// UserRecord is the cached copy of an upstream user profile.
type UserRecord struct {
	ID    UserID `json:"id" msgpack:"id" cbor:"1,keyasint"`
	Name  string `json:"name" msgpack:"n" cbor:"2,keyasint"`
	Email string `json:"email" msgpack:"e" cbor:"3,keyasint"`
}

// ParseUserID parses a decimal user id from request input.
func ParseUserID(s string) (UserID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty user id")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New("user id must be an integer")
	}
	id := UserID(v)
	if err := ValidateUserID(id); err != nil {
		return 0, err
	}
	return id, nil
}

// ValidateUserID rejects negative ids.
func ValidateUserID(id UserID) error {
	if id < 0 {
		return errors.New("user id must be >= 0")
	}
	return nil
}

// ValidateScore ensures the score is representable by every backend.
func ValidateScore(score int64) error {
	if score > MaxScore || score < -MaxScore {
		return errors.New("score out of range")
	}
	return nil
}

// ValidateSessionID ensures non-empty ids without path separators.
func ValidateSessionID(id string) error {
	s := strings.TrimSpace(id)
	if s == "" {
		return errors.New("empty session id")
	}
	if strings.ContainsAny(s, "/ ") {
		return errors.New("invalid session id")
	}
	return nil
}
