package engine

import (
	"context"
	"errors"
	"time"

	"cachecompare/core"
)

// Backend errors. Adapters wrap transport failures with %w and return these
// sentinels for the conditions the workloads act on.
var (
	// ErrMiss reports that the key is absent or expired.
	ErrMiss = errors.New("cache miss")
	// ErrRejected reports that the store refused a write (admission, capacity).
	ErrRejected = errors.New("write rejected by backend")
	// ErrScanUnsupported is returned by backends that cannot enumerate keys.
	ErrScanUnsupported = errors.New("scan not supported by backend")
)

// Backend is the key/value substrate every workload is written against.
// Implementations must be safe for concurrent use without external locking.
// Values handed to Put must not be retained for mutation by the caller and
// values returned by Get must not be mutated by the backend afterwards.
type Backend interface {
	// Name identifies the implementation in logs and stats.
	Name() string
	// Get returns the value or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value; ttl <= 0 means no expiry. Backends without per-entry
	// TTL may keep the entry longer, callers that need exact expiry embed it.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Scan calls fn for each live entry whose key has prefix, in no particular
	// order, until fn returns false.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error
	// Close releases resources.
	Close() error
}

// SortedSet is implemented by backends with native ranked sets. The
// leaderboard uses it instead of its in-process index when available.
type SortedSet interface {
	// ZAdd sets the score of member in set, replacing any previous score.
	ZAdd(ctx context.Context, set string, member core.UserID, score int64) error
	// ZRevRange returns the first n members by score descending, ties by
	// member ascending.
	ZRevRange(ctx context.Context, set string, n int) ([]core.ScoreEntry, error)
	// ZScore returns a member's score or ErrMiss.
	ZScore(ctx context.Context, set string, member core.UserID) (int64, error)
}

// UserSource is the upstream source of record behind the user cache.
// Implementations return an error wrapping core.ErrNotFound for unknown users.
type UserSource interface {
	FetchUser(ctx context.Context, id core.UserID) (core.UserRecord, error)
}
