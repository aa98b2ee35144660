package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"cachecompare/codec"
	"cachecompare/core"
	"cachecompare/leaderboard"
)

const (
	// ScoreKeyPrefix prefixes per-user score records in the backend.
	ScoreKeyPrefix = "lb:score:"
	// SortedSetKey names the native sorted set on backends that have one.
	SortedSetKey = "lb:ranking"

	lockStripes = 256
)

// ScoreKey returns the backend key holding a user's score record.
func ScoreKey(id core.UserID) string {
	return ScoreKeyPrefix + strconv.FormatInt(int64(id), 10)
}

// Leaderboard is the ranked-score workload. Scores are written through to
// the backend and indexed in process, unless the backend ranks natively.
type Leaderboard struct {
	backend Backend
	zset    SortedSet
	index   leaderboard.Board
	codec   codec.Codec[core.ScoreEntry]
	locks   [lockStripes]sync.Mutex
	opts    options
}

// NewLeaderboard builds the workload. index may be nil when the backend
// implements SortedSet.
func NewLeaderboard(backend Backend, index leaderboard.Board, c codec.Codec[core.ScoreEntry], opts ...Option) *Leaderboard {
	if backend == nil || c == nil {
		panic("NewLeaderboard requires non-nil backend and codec")
	}
	l := &Leaderboard{backend: backend, index: index, codec: c, opts: buildOptions(opts)}
	if z, ok := backend.(SortedSet); ok {
		l.zset = z
	} else if index == nil {
		panic("NewLeaderboard requires an index for backends without sorted sets")
	}
	return l
}

// Native reports whether ranking is delegated to the backend.
func (l *Leaderboard) Native() bool { return l.zset != nil }

func (l *Leaderboard) lockFor(id core.UserID) *sync.Mutex {
	return &l.locks[uint64(id)%lockStripes]
}

// Submit records score for id, replacing any previous score. Writes for one
// user are serialized so the backend and the index agree on the last write.
func (l *Leaderboard) Submit(ctx context.Context, id core.UserID, score int64) (core.ScoreEntry, error) {
	entry := core.ScoreEntry{UserID: id, Score: score}
	mu := l.lockFor(id)
	mu.Lock()
	if l.zset != nil {
		if err := l.zset.ZAdd(ctx, SortedSetKey, id, score); err != nil {
			mu.Unlock()
			return core.ScoreEntry{}, err
		}
	} else {
		b, err := l.codec.Encode(entry)
		if err != nil {
			mu.Unlock()
			return core.ScoreEntry{}, fmt.Errorf("encode score: %w", err)
		}
		if err := l.backend.Put(ctx, ScoreKey(id), b, 0); err != nil {
			mu.Unlock()
			return core.ScoreEntry{}, err
		}
		l.index.Update(id, score)
	}
	mu.Unlock()

	l.opts.bus.Publish(ctx, core.NewScoreSubmitted(id, score))
	return entry, nil
}

// TopN returns the n best entries, fewer if fewer users have scored.
func (l *Leaderboard) TopN(ctx context.Context, n int) ([]core.ScoreEntry, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive", core.ErrInvalidArgument)
	}
	if l.zset != nil {
		top, err := l.zset.ZRevRange(ctx, SortedSetKey, n)
		if err != nil {
			return nil, err
		}
		if top == nil {
			top = []core.ScoreEntry{}
		}
		return top, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	top := l.index.TopN(n)
	if top == nil {
		top = []core.ScoreEntry{}
	}
	return top, nil
}

// Get returns one user's current entry.
func (l *Leaderboard) Get(ctx context.Context, id core.UserID) (core.ScoreEntry, error) {
	if l.zset != nil {
		score, err := l.zset.ZScore(ctx, SortedSetKey, id)
		if errors.Is(err, ErrMiss) {
			return core.ScoreEntry{}, core.ErrNotFound
		}
		if err != nil {
			return core.ScoreEntry{}, err
		}
		return core.ScoreEntry{UserID: id, Score: score}, nil
	}
	e, ok := l.index.Get(id)
	if !ok {
		return core.ScoreEntry{}, core.ErrNotFound
	}
	return e, nil
}

// Rebuild loads score records already present in the backend into the
// index. It is a no-op for native rankings and for backends that cannot
// scan, and returns the number of entries loaded. Users already in the
// index are left alone, since a Submit that ran during the scan is newer
// than the record the scan read.
func (l *Leaderboard) Rebuild(ctx context.Context) (int, error) {
	if l.zset != nil {
		return 0, nil
	}
	loaded, skipped := 0, 0
	err := l.backend.Scan(ctx, ScoreKeyPrefix, func(key string, value []byte) bool {
		id, ok := parseScoreKey(key)
		e, err := l.codec.Decode(value)
		if !ok || err != nil || e.UserID != id {
			skipped++
			return true
		}
		mu := l.lockFor(e.UserID)
		mu.Lock()
		if _, indexed := l.index.Get(e.UserID); !indexed {
			l.index.Update(e.UserID, e.Score)
			loaded++
		}
		mu.Unlock()
		return true
	})
	if errors.Is(err, ErrScanUnsupported) {
		l.opts.log.Warn("leaderboard rebuild skipped", "backend", l.backend.Name(), "reason", err)
		return 0, nil
	}
	if err != nil {
		return loaded, fmt.Errorf("rebuild leaderboard: %w", err)
	}
	if skipped > 0 {
		l.opts.log.Warn("leaderboard rebuild skipped undecodable records", "skipped", skipped)
	}
	l.opts.log.Info("leaderboard rebuilt", "backend", l.backend.Name(), "entries", loaded)
	return loaded, nil
}

// parseScoreKey extracts the user id from a score key.
func parseScoreKey(key string) (core.UserID, bool) {
	rest, ok := strings.CutPrefix(key, ScoreKeyPrefix)
	if !ok {
		return 0, false
	}
	id, err := core.ParseUserID(rest)
	return id, err == nil
}
