package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cachecompare/core"
	"cachecompare/engine"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"CACHECOMPARE_REDIS_ADDR"`
	Password     string        `json:"password" env:"CACHECOMPARE_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"CACHECOMPARE_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"CACHECOMPARE_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"CACHECOMPARE_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"CACHECOMPARE_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"CACHECOMPARE_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"CACHECOMPARE_REDIS_WRITE_TIMEOUT"`
	// KeyPrefix namespaces every key written by this process.
	KeyPrefix string `json:"key_prefix" env:"CACHECOMPARE_REDIS_KEY_PREFIX"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     64,
		MinIdleConns: 8,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "cachecompare:",
	}
}

// Store implements engine.Backend and engine.SortedSet on Redis.
// Data structure:
//   - {prefix}{key} -> raw value bytes, with PX expiry when a TTL is given
//   - {prefix}{set} -> sorted set; members are encoded user ids (see member)
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a new Redis-backed store with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, prefix: config.KeyPrefix}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Name() string { return "redis" }

// Close closes the Redis connection
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, engine.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Scan walks matching keys with SCAN and fetches each batch with MGET. Keys
// that expire between the two calls are skipped.
func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error {
	match := escapeGlob(s.key(prefix)) + "*"
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			vals, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("redis mget: %w", err)
			}
			for i, v := range vals {
				str, ok := v.(string)
				if !ok {
					continue
				}
				if !fn(strings.TrimPrefix(keys[i], s.prefix), []byte(str)) {
					return nil
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// member encodes a user id so that Redis' reverse-lexicographic ordering of
// equal-score members yields ascending user ids.
func member(id core.UserID) string {
	return fmt.Sprintf("%019d", math.MaxInt64-int64(id))
}

func parseMember(m string) (core.UserID, error) {
	v, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid leaderboard member %q: %w", m, err)
	}
	return core.UserID(math.MaxInt64 - v), nil
}

func (s *Store) ZAdd(ctx context.Context, set string, id core.UserID, score int64) error {
	z := redis.Z{Score: float64(score), Member: member(id)}
	if err := s.client.ZAdd(ctx, s.key(set), z).Err(); err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}
	return nil
}

func (s *Store) ZRevRange(ctx context.Context, set string, n int) ([]core.ScoreEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, s.key(set), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange: %w", err)
	}
	out := make([]core.ScoreEntry, 0, len(zs))
	for _, z := range zs {
		m, ok := z.Member.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected leaderboard member type %T", z.Member)
		}
		id, err := parseMember(m)
		if err != nil {
			return nil, err
		}
		out = append(out, core.ScoreEntry{UserID: id, Score: int64(z.Score)})
	}
	return out, nil
}

func (s *Store) ZScore(ctx context.Context, set string, id core.UserID) (int64, error) {
	v, err := s.client.ZScore(ctx, s.key(set), member(id)).Result()
	if err == redis.Nil {
		return 0, engine.ErrMiss
	}
	if err != nil {
		return 0, fmt.Errorf("redis zscore: %w", err)
	}
	return int64(v), nil
}

// escapeGlob escapes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var (
	_ engine.Backend   = (*Store)(nil)
	_ engine.SortedSet = (*Store)(nil)
)
