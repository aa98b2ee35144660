package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"cachecompare/adapters/sqlx"
	"cachecompare/codec"
	"cachecompare/core"
)

func joinErrs(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}

func oneOf(field, value string, valid []string) string {
	if slices.Contains(valid, value) {
		return ""
	}
	return fmt.Sprintf("%s must be one of: %s", field, strings.Join(valid, ", "))
}

func appendIf(errs []string, msg string) []string {
	if msg != "" {
		errs = append(errs, msg)
	}
	return errs
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}
	if s.PathPrefix != "" && (!strings.HasPrefix(s.PathPrefix, "/") || strings.HasSuffix(s.PathPrefix, "/")) {
		errs = append(errs, "path_prefix must start with / and not end with /")
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, "read_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "write_timeout must be positive")
	}
	if s.IdleTimeout <= 0 {
		errs = append(errs, "idle_timeout must be positive")
	}
	if s.ReadHeaderTimeout <= 0 {
		errs = append(errs, "read_header_timeout must be positive")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown_timeout must be positive")
	}
	if s.MaxConcurrent < 0 {
		errs = append(errs, "max_concurrent cannot be negative")
	}

	return joinErrs(errs)
}

// Validate validates backend configuration, including the section of the
// selected adapter.
func (b *BackendConfig) Validate() error {
	var errs []string

	errs = appendIf(errs, oneOf("adapter", b.Adapter, []string{AdapterMemory, AdapterRedis, AdapterBigCache, AdapterRistretto}))
	errs = appendIf(errs, oneOf("codec", b.Codec, []string{codec.NameMsgpack, codec.NameCBOR, codec.NameJSON}))
	if b.OpTimeout < 0 {
		errs = append(errs, "op_timeout cannot be negative")
	}

	switch b.Adapter {
	case AdapterMemory:
		if b.Memory.Shards <= 0 {
			errs = append(errs, "memory.shards must be positive")
		}
		if b.Memory.CleanupInterval < 0 {
			errs = append(errs, "memory.cleanup_interval cannot be negative")
		}
	case AdapterRedis:
		if b.Redis.Addr == "" {
			errs = append(errs, "redis.addr cannot be empty")
		}
		if b.Redis.PoolSize <= 0 {
			errs = append(errs, "redis.pool_size must be positive")
		}
	case AdapterBigCache:
		if b.BigCache.LifeWindow <= 0 {
			errs = append(errs, "bigcache.life_window must be positive")
		}
		if n := b.BigCache.Shards; n <= 0 || n&(n-1) != 0 {
			errs = append(errs, "bigcache.shards must be a positive power of two")
		}
	case AdapterRistretto:
		if b.Ristretto.NumCounters <= 0 || b.Ristretto.MaxCost <= 0 || b.Ristretto.BufferItems <= 0 {
			errs = append(errs, "ristretto.num_counters, max_cost and buffer_items must be positive")
		}
	}

	return joinErrs(errs)
}

// Validate validates leaderboard configuration
func (l *LeaderboardConfig) Validate() error {
	var errs []string
	if l.Shards <= 0 {
		errs = append(errs, "shards must be positive")
	}
	if l.MaxTopN < 0 {
		errs = append(errs, "max_top_n cannot be negative")
	}
	return joinErrs(errs)
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	var errs []string
	if s.PayloadSize <= 0 {
		errs = append(errs, "payload_size must be positive")
	}
	if s.TTL <= 0 {
		errs = append(errs, "ttl must be positive")
	}
	return joinErrs(errs)
}

// Validate validates the user cache and its source
func (u *UsersConfig) Validate() error {
	var errs []string

	errs = appendIf(errs, oneOf("source", u.Source, []string{SourceSynthetic, SourceSQL, SourceFile}))
	if u.TTL <= 0 {
		errs = append(errs, "ttl must be positive")
	}
	if u.FetchTimeout <= 0 {
		errs = append(errs, "fetch_timeout must be positive")
	}

	switch u.Source {
	case SourceSynthetic:
		if u.Synthetic.Users <= 0 {
			errs = append(errs, "synthetic.users must be positive")
		}
		if u.Synthetic.Latency < 0 {
			errs = append(errs, "synthetic.latency cannot be negative")
		}
	case SourceSQL:
		errs = appendIf(errs, oneOf("sql.driver", string(u.SQL.Driver), []string{string(sqlx.DriverMySQL), string(sqlx.DriverPostgres)}))
		if u.SQL.DSN == "" {
			errs = append(errs, "sql.dsn cannot be empty")
		}
	case SourceFile:
		if u.File.Path == "" {
			errs = append(errs, "file.path cannot be empty")
		}
		if u.File.Latency < 0 {
			errs = append(errs, "file.latency cannot be negative")
		}
	}

	return joinErrs(errs)
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string
	errs = appendIf(errs, oneOf("level", l.Level, []string{"debug", "info", "warn", "error"}))
	errs = appendIf(errs, oneOf("format", l.Format, []string{"json", "text"}))
	errs = appendIf(errs, oneOf("output", l.Output, []string{"stdout", "stderr"}))
	return joinErrs(errs)
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	var errs []string

	if m.Enabled {
		if m.Address == "" {
			errs = append(errs, "address cannot be empty when metrics are enabled")
		}
		if !strings.HasPrefix(m.Path, "/") {
			errs = append(errs, "path must start with / when metrics are enabled")
		}
	}

	return joinErrs(errs)
}

// Validate validates webhook configuration
func (w *WebhookConfig) Validate() error {
	if len(w.Endpoints) == 0 {
		return nil
	}
	var errs []string
	for _, ep := range w.Endpoints {
		u, err := url.Parse(ep)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("endpoint %q must be an http(s) URL", ep))
		}
	}
	for _, ev := range w.Events {
		if !slices.Contains(core.EventTypes, core.EventType(ev)) {
			errs = append(errs, fmt.Sprintf("unknown event type %q", ev))
		}
	}
	if w.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	return joinErrs(errs)
}
