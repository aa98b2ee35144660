package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"cachecompare/adapters/bigcache"
	"cachecompare/adapters/jsonfile"
	"cachecompare/adapters/memory"
	redisAdapter "cachecompare/adapters/redis"
	"cachecompare/adapters/ristretto"
	sqlxAdapter "cachecompare/adapters/sqlx"
	"cachecompare/adapters/synthetic"
	"cachecompare/api/httpapi"
	"cachecompare/compare"
	"cachecompare/config"
	"cachecompare/core"
	"cachecompare/engine"
	"cachecompare/integrations/webhook"
	"cachecompare/leaderboard"
	"cachecompare/metrics"
	"cachecompare/realtime"
)

// Environment variables selecting where configuration comes from.
const (
	configFileVar = "CACHECOMPARE_CONFIG_FILE"
	profileVar    = "CACHECOMPARE_PROFILE"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Service *engine.Service
	Handler http.Handler
	Server  *http.Server
	Metrics *MetricsServer
}

// MetricsServer serves Prometheus metrics on its own listener. Nil when
// metrics are disabled.
type MetricsServer struct {
	*http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	if path := os.Getenv(configFileVar); path != "" {
		return config.LoadFromFile(path)
	}
	if profile := os.Getenv(profileVar); profile != "" {
		return config.LoadProfile(profile)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (engine.Backend, error) {
	return setupBackend(ctx, cfg, log)
}

func provideIndex(cfg *config.Config) leaderboard.Board {
	return leaderboard.NewSharded(cfg.Leaderboard.Shards)
}

func provideUserSource(cfg *config.Config) (engine.UserSource, func(), error) {
	switch cfg.Users.Source {
	case config.SourceSynthetic:
		return synthetic.New(cfg.Users.Synthetic), func() {}, nil
	case config.SourceSQL:
		src, err := sqlxAdapter.New(cfg.Users.SQL)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { _ = src.Close() }, nil
	case config.SourceFile:
		src, err := jsonfile.New(cfg.Users.File)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown user source: %s", cfg.Users.Source)
	}
}

func provideService(ctx context.Context, cfg *config.Config, log *slog.Logger, hub *realtime.Hub, backend engine.Backend, index leaderboard.Board, source engine.UserSource) (*engine.Service, func(), error) {
	svc, err := compare.New(
		compare.WithBackend(backend),
		compare.WithIndex(index),
		compare.WithUserSource(source),
		compare.WithCodec(cfg.Backend.Codec),
		compare.WithDispatchMode(engine.DispatchAsync),
		compare.WithRealtime(hub),
		compare.WithLogger(log),
		compare.WithSessionConfig(engine.SessionConfig{
			PayloadSize: cfg.Session.PayloadSize,
			TTL:         cfg.Session.TTL,
		}),
		compare.WithUserConfig(engine.UserConfig{
			TTL:          cfg.Users.TTL,
			FetchTimeout: cfg.Users.FetchTimeout,
		}),
		compare.WithServiceConfig(engine.ServiceConfig{
			OpTimeout: cfg.Backend.OpTimeout,
			MaxTopN:   cfg.Leaderboard.MaxTopN,
		}),
	)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	if cfg.Metrics.Enabled {
		metrics.Subscribe(svc)
	}
	if len(cfg.Webhook.Endpoints) > 0 {
		types := make([]core.EventType, 0, len(cfg.Webhook.Events))
		for _, ev := range cfg.Webhook.Events {
			types = append(types, core.EventType(ev))
		}
		webhook.New(cfg.Webhook.Endpoints,
			webhook.WithClient(&http.Client{Timeout: cfg.Webhook.Timeout}),
			webhook.WithLogger(log),
		).Attach(svc, types...)
		log.Info("webhook forwarding enabled", "endpoints", len(cfg.Webhook.Endpoints))
	}
	if cfg.Leaderboard.RebuildOnStart {
		n, err := svc.RebuildLeaderboard(ctx)
		if err != nil {
			_ = svc.Close()
			return nil, nil, fmt.Errorf("rebuild leaderboard: %w", err)
		}
		log.Info("leaderboard rebuilt", "entries", n, "native", svc.Stats().Native)
	}
	return svc, func() { _ = svc.Close() }, nil
}

func provideHandler(svc *engine.Service, hub *realtime.Hub, cfg *config.Config, log *slog.Logger) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:      cfg.Server.PathPrefix,
		AllowCORSOrigin: cfg.Server.CORSOrigin,
		MaxConcurrent:   cfg.Server.MaxConcurrent,
		Metrics:         cfg.Metrics.Enabled,
		Logger:          log,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func provideMetricsServer(cfg *config.Config) *MetricsServer {
	if !cfg.Metrics.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler(cfg.Metrics.CollectSystem))
	return &MetricsServer{Server: &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupBackend creates the cache backend named by configuration.
func setupBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (engine.Backend, error) {
	switch cfg.Backend.Adapter {
	case config.AdapterMemory:
		return memory.New(cfg.Backend.Memory, memory.WithLogger(log)), nil
	case config.AdapterRedis:
		return redisAdapter.New(cfg.Backend.Redis)
	case config.AdapterBigCache:
		return bigcache.New(ctx, cfg.Backend.BigCache)
	case config.AdapterRistretto:
		return ristretto.New(cfg.Backend.Ristretto)
	default:
		return nil, fmt.Errorf("unknown backend adapter: %s", cfg.Backend.Adapter)
	}
}
