package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"cachecompare/codec"
	"cachecompare/core"
)

// UserKeyPrefix prefixes cached user records in the backend.
const UserKeyPrefix = "user:"

// UserKey returns the backend key caching a user record.
func UserKey(id core.UserID) string { return UserKeyPrefix + strconv.FormatInt(int64(id), 10) }

// UserConfig tunes the read-through cache.
type UserConfig struct {
	// TTL of a populated record.
	TTL time.Duration
	// FetchTimeout bounds one upstream call. It is independent of callers'
	// contexts because the call is shared by every waiter.
	FetchTimeout time.Duration
}

// UserStats counts cache outcomes since start.
type UserStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Fetches uint64 `json:"fetches"`
}

// Users is the read-through user profile cache. Concurrent misses for one id
// share a single upstream fetch.
type Users struct {
	backend Backend
	source  UserSource
	codec   codec.Codec[core.UserRecord]
	cfg     UserConfig
	group   singleflight.Group
	opts    options

	hits, misses, fetches atomic.Uint64
}

func NewUsers(backend Backend, source UserSource, c codec.Codec[core.UserRecord], cfg UserConfig, opts ...Option) *Users {
	if backend == nil || source == nil || c == nil {
		panic("NewUsers requires non-nil backend, source, and codec")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	return &Users{backend: backend, source: source, codec: c, cfg: cfg, opts: buildOptions(opts)}
}

// Get returns the user, filling the cache from the source on a miss. A
// backend read failure is treated as a miss. Unknown users are not cached.
func (u *Users) Get(ctx context.Context, id core.UserID) (core.UserRecord, error) {
	key := UserKey(id)
	b, err := u.backend.Get(ctx, key)
	switch {
	case err == nil:
		rec, derr := u.codec.Decode(b)
		if derr == nil {
			u.hits.Add(1)
			u.opts.bus.Publish(ctx, core.NewUserCacheHit(id))
			return rec, nil
		}
		u.opts.log.Warn("refetching undecodable user record", "user_id", id, "error", derr)
	case errors.Is(err, ErrMiss):
	case core.Timeout(err):
		return core.UserRecord{}, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	default:
		u.opts.log.Warn("user cache read failed, fetching upstream", "user_id", id, "error", err)
	}

	u.misses.Add(1)
	u.opts.bus.Publish(ctx, core.NewUserCacheMiss(id))

	ch := u.group.DoChan(key, func() (any, error) {
		return u.fill(context.WithoutCancel(ctx), id, key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return core.UserRecord{}, res.Err
		}
		return res.Val.(core.UserRecord), nil
	case <-ctx.Done():
		return core.UserRecord{}, ctx.Err()
	}
}

func (u *Users) fill(ctx context.Context, id core.UserID, key string) (core.UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.FetchTimeout)
	defer cancel()

	u.fetches.Add(1)
	start := time.Now()
	rec, err := u.source.FetchUser(ctx, id)
	u.opts.bus.Publish(ctx, core.NewUpstreamFetch(id, time.Since(start), err))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.UserRecord{}, err
		}
		return core.UserRecord{}, fmt.Errorf("%w: %w", core.ErrUpstreamUnavailable, err)
	}

	b, err := u.codec.Encode(rec)
	if err != nil {
		u.opts.log.Warn("encode user record", "user_id", id, "error", err)
		return rec, nil
	}
	if err := u.backend.Put(ctx, key, b, u.cfg.TTL); err != nil {
		// the caller still gets the record; the next read refetches
		u.opts.log.Warn("populate user cache", "user_id", id, "error", err)
	}
	return rec, nil
}

// Stats returns a snapshot of the cache counters.
func (u *Users) Stats() UserStats {
	return UserStats{Hits: u.hits.Load(), Misses: u.misses.Load(), Fetches: u.fetches.Load()}
}
