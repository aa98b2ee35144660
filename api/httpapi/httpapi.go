package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	wsadapter "cachecompare/adapters/websocket"
	"cachecompare/core"
	"cachecompare/engine"
	"cachecompare/metrics"
	"cachecompare/realtime"
)

// DefaultTopN is used when /leaderboard/top has no n parameter.
const DefaultTopN = 10

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// MaxConcurrent caps in-flight requests; 0 disables the cap.
	MaxConcurrent int
	// Metrics wraps the API with Prometheus request metrics.
	Metrics bool
	Logger  *slog.Logger
}

type api struct {
	svc *engine.Service
	log *slog.Logger
}

// NewMux builds an http.Handler exposing the benchmark workloads.
// Routes:
//   - POST {prefix}/score/{userId}?score=N
//   - GET  {prefix}/score/{userId}
//   - GET  {prefix}/leaderboard/top?n=N
//   - WS   {prefix}/leaderboard/ws
//   - POST {prefix}/login
//   - GET  {prefix}/session/{id}
//   - GET|POST {prefix}/logout/{id}
//   - GET  {prefix}/user?id=N
//   - GET  {prefix}/healthz
//   - GET  {prefix}/stats
func NewMux(svc *engine.Service, hub *realtime.Hub, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	a := &api{svc: svc, log: log}
	p := func(method, path string) string { return method + " " + withPrefix(opts.PathPrefix, path) }

	mux := http.NewServeMux()
	mux.HandleFunc(p(http.MethodPost, "/score/{userId}"), a.submitScore)
	mux.HandleFunc(p(http.MethodGet, "/score/{userId}"), a.scoreOf)
	mux.HandleFunc(p(http.MethodGet, "/leaderboard/top"), a.topN)
	mux.HandleFunc(p(http.MethodPost, "/login"), a.login)
	mux.HandleFunc(p(http.MethodGet, "/session/{id}"), a.readSession)
	mux.HandleFunc(p(http.MethodGet, "/logout/{id}"), a.logout)
	mux.HandleFunc(p(http.MethodPost, "/logout/{id}"), a.logout)
	mux.HandleFunc(p(http.MethodGet, "/user"), a.getUser)
	mux.HandleFunc(p(http.MethodGet, "/healthz"), a.health)
	mux.HandleFunc(p(http.MethodGet, "/stats"), a.stats)
	if hub != nil {
		mux.Handle(p(http.MethodGet, "/leaderboard/ws"), wsadapter.Handler(hub, wsadapter.Options{
			AllowedOrigin: opts.AllowCORSOrigin,
			Logger:        log,
		}))
	}

	var handler http.Handler = mux
	if opts.MaxConcurrent > 0 {
		handler = withConcurrencyLimit(handler, opts.MaxConcurrent)
	}
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if opts.Metrics {
		handler = metrics.Middleware(handler)
	}
	return handler
}

func (a *api) submitScore(w http.ResponseWriter, r *http.Request) {
	user, err := core.ParseUserID(r.PathValue("userId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
		return
	}
	score, err := strconv.ParseInt(r.URL.Query().Get("score"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_score", "score must be an integer", nil)
		return
	}
	entry, err := a.svc.SubmitScore(r.Context(), user, score)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

func (a *api) scoreOf(w http.ResponseWriter, r *http.Request) {
	user, err := core.ParseUserID(r.PathValue("userId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
		return
	}
	entry, err := a.svc.ScoreOf(r.Context(), user)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

func (a *api) topN(w http.ResponseWriter, r *http.Request) {
	n := DefaultTopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_n", "n must be an integer", nil)
			return
		}
		n = v
	}
	top, err := a.svc.TopN(r.Context(), n)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, top)
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	sess, err := a.svc.Login(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeText(w, []byte(sess.ID))
}

func (a *api) readSession(w http.ResponseWriter, r *http.Request) {
	payload, err := a.svc.ReadSession(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeText(w, payload)
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Logout(r.Context(), r.PathValue("id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *api) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseUserID(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
		return
	}
	rec, err := a.svc.GetUser(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rec)
}

// health verifies the backend answers a probe read.
func (a *api) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "healthy",
		"backend": a.svc.BackendName(),
		"checks":  map[string]any{"backend": "ok"},
	}
	code := http.StatusOK
	if err := a.svc.Health(r.Context()); err != nil {
		a.log.Warn("health check failed", "error", core.CauseOf(err))
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"] = map[string]any{"backend": "failed"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func (a *api) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.svc.Stats())
}

// StatusFor maps a classified error to its HTTP status.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, core.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "upstream_unavailable"
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (a *api) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
			"cause", core.CauseOf(err))
	}
	writeError(w, status, code, err.Error(), nil)
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withConcurrencyLimit rejects requests beyond max in flight with 503
// instead of queueing them. WebSocket upgrades are long-lived and exempt.
func withConcurrencyLimit(next http.Handler, max int) http.Handler {
	sem := make(chan struct{}, max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "overloaded", "too many concurrent requests", nil)
		}
	})
}
