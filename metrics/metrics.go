// Package metrics exposes Prometheus collectors for the HTTP surface and for
// the workload events published on the engine bus.
package metrics

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cachecompare/core"
)

const namespace = "cachecompare"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	scoresSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_submitted_total",
			Help:      "Leaderboard score submissions accepted",
		},
	)

	sessionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events",
		},
		[]string{"event"},
	)

	userCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_cache_requests_total",
			Help:      "User cache lookups by result",
		},
		[]string{"result"},
	)

	upstreamFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_fetch_duration_seconds",
			Help:      "Latency of user source fetches",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

// Handler serves the default registry. When collectSystem is false the Go
// runtime and process collectors are removed from it.
func Handler(collectSystem bool) http.Handler {
	if !collectSystem {
		prometheus.Unregister(collectors.NewGoCollector())
		prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return promhttp.Handler()
}

// EventSource is satisfied by engine.EventBus and engine.Service.
type EventSource interface {
	Subscribe(core.EventType, func(context.Context, core.Event)) func()
}

// Subscribe feeds workload events from bus into the collectors. The returned
// func detaches every handler.
func Subscribe(bus EventSource) func() {
	handlers := map[core.EventType]func(context.Context, core.Event){
		core.EventScoreSubmitted: func(context.Context, core.Event) { scoresSubmitted.Inc() },
		core.EventSessionCreated: func(context.Context, core.Event) { sessionEvents.WithLabelValues("created").Inc() },
		core.EventSessionEnded:   func(context.Context, core.Event) { sessionEvents.WithLabelValues("ended").Inc() },
		core.EventUserCacheHit:   func(context.Context, core.Event) { userCacheRequests.WithLabelValues("hit").Inc() },
		core.EventUserCacheMiss:  func(context.Context, core.Event) { userCacheRequests.WithLabelValues("miss").Inc() },
		core.EventUpstreamFetch: func(_ context.Context, e core.Event) {
			outcome := "ok"
			if e.Err != "" {
				outcome = "error"
			}
			upstreamFetchDuration.WithLabelValues(outcome).Observe(e.Duration.Seconds())
		},
	}
	unsubs := make([]func(), 0, len(handlers))
	for typ, h := range handlers {
		unsubs = append(unsubs, bus.Subscribe(typ, h))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes through so WebSocket upgrades work behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records request count, latency and in-flight requests. Routes
// are labelled by the ServeMux pattern, not the raw path.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
