package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"cachecompare/adapters/synthetic"
	"cachecompare/api/httpapi"
	"cachecompare/compare"
	"cachecompare/engine"
	"cachecompare/realtime"
)

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	log := slog.New(textHandler)
	slog.SetDefault(log)

	hub := realtime.NewHub()
	svc, err := compare.New(
		compare.WithRealtime(hub),
		compare.WithLogger(log),
		compare.WithUserSource(synthetic.New(synthetic.Config{Users: 1000, Latency: 20 * time.Millisecond})),
		compare.WithServiceConfig(engine.ServiceConfig{OpTimeout: time.Second, MaxTopN: 100}),
	)
	if err != nil {
		slog.Error("demo server setup failed", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	handler := httpapi.NewMux(svc, hub, httpapi.Options{AllowCORSOrigin: "*", Logger: log})

	slog.Info("starting demo server on :8080", "backend", svc.BackendName())

	srv := &http.Server{Addr: ":8080", Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}
