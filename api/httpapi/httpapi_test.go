package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecompare/adapters/memory"
	"cachecompare/compare"
	"cachecompare/core"
	"cachecompare/engine"
)

type stubSource struct{ err error }

func (s stubSource) FetchUser(_ context.Context, id core.UserID) (core.UserRecord, error) {
	if s.err != nil {
		return core.UserRecord{}, s.err
	}
	if id > 100 {
		return core.UserRecord{}, core.ErrNotFound
	}
	return core.UserRecord{ID: id, Name: fmt.Sprintf("User %d", id)}, nil
}

// downBackend fails every call like an unreachable server.
type downBackend struct{ engine.Backend }

var errDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func (downBackend) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (downBackend) Put(context.Context, string, []byte, time.Duration) error {
	return errDown
}

func newTestService(t *testing.T, opts ...compare.Option) *engine.Service {
	t.Helper()
	base := []compare.Option{
		compare.WithBackend(memory.New(memory.Config{Shards: 4})),
		compare.WithUserSource(stubSource{}),
		compare.WithDispatchMode(engine.DispatchSync),
		compare.WithServiceConfig(engine.ServiceConfig{MaxTopN: 100}),
	}
	svc, err := compare.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var e apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestSubmitScoreAndTopN(t *testing.T) {
	h := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	for id, score := range map[int]int{1: 50, 2: 90, 3: 50} {
		rec := do(t, h, http.MethodPost, fmt.Sprintf("/api/score/%d?score=%d", id, score))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodGet, "/api/leaderboard/top?n=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var top []core.ScoreEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	assert.Equal(t, []core.ScoreEntry{{UserID: 2, Score: 90}, {UserID: 1, Score: 50}}, top)

	rec = do(t, h, http.MethodGet, "/api/score/3")
	require.Equal(t, http.StatusOK, rec.Code)
	var one core.ScoreEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, int64(50), one.Score)
}

func TestTopNDefaultsToTen(t *testing.T) {
	h := NewMux(newTestService(t), nil, Options{})
	for i := 0; i < 15; i++ {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, fmt.Sprintf("/score/%d?score=%d", i, i)).Code)
	}
	rec := do(t, h, http.MethodGet, "/leaderboard/top")
	require.Equal(t, http.StatusOK, rec.Code)
	var top []core.ScoreEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top, DefaultTopN)
	assert.Equal(t, core.UserID(14), top[0].UserID)
}

func TestTopNEmptyIsArray(t *testing.T) {
	h := NewMux(newTestService(t), nil, Options{})
	rec := do(t, h, http.MethodGet, "/leaderboard/top?n=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestValidationErrors(t *testing.T) {
	h := NewMux(newTestService(t), nil, Options{})
	cases := []struct {
		method, target, code string
	}{
		{http.MethodPost, "/score/1?score=abc", "invalid_score"},
		{http.MethodPost, "/score/1", "invalid_score"},
		{http.MethodPost, "/score/-4?score=1", "invalid_user"},
		{http.MethodPost, "/score/1?score=9007199254740993", "invalid_argument"},
		{http.MethodGet, "/leaderboard/top?n=0", "invalid_argument"},
		{http.MethodGet, "/leaderboard/top?n=-3", "invalid_argument"},
		{http.MethodGet, "/leaderboard/top?n=x", "invalid_n"},
		{http.MethodGet, "/leaderboard/top?n=101", "invalid_argument"},
		{http.MethodGet, "/user", "invalid_user"},
		{http.MethodGet, "/user?id=bob", "invalid_user"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.target)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.code, decodeError(t, rec).Code)
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := NewMux(newTestService(t), nil, Options{})

	rec := do(t, h, http.MethodPost, "/login")
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Body.String()
	require.True(t, strings.HasPrefix(id, engine.SessionIDPrefix), id)

	rec = do(t, h, http.MethodGet, "/session/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/logout/"+id).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/session/"+id).Code)
	// idempotent
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/logout/"+id).Code)
}

func TestUserLookup(t *testing.T) {
	h := NewMux(newTestService(t), nil, Options{})

	rec := do(t, h, http.MethodGet, "/user?id=7")
	require.Equal(t, http.StatusOK, rec.Code)
	var u core.UserRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "User 7", u.Name)

	rec = do(t, h, http.MethodGet, "/user?id=1000")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}

func TestUpstreamFailureIs502(t *testing.T) {
	src := stubSource{err: errors.New("upstream: connection refused")}
	h := NewMux(newTestService(t, compare.WithUserSource(src)), nil, Options{})

	rec := do(t, h, http.MethodGet, "/user?id=7")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "upstream_unavailable", e.Code)
	assert.NotContains(t, e.Message, "connection refused")
}

func TestBackendFailureIs503(t *testing.T) {
	down := downBackend{Backend: memory.New(memory.Config{Shards: 1})}
	h := NewMux(newTestService(t, compare.WithBackend(down)), nil, Options{})

	rec := do(t, h, http.MethodPost, "/score/1?score=5")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "store_unavailable", e.Code)
	assert.NotContains(t, e.Message, "127.0.0.1")

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/login").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/healthz").Code)
}

func TestHealthAndStats(t *testing.T) {
	h := NewMux(newTestService(t), nil, Options{PathPrefix: "/api/"})

	rec := do(t, h, http.MethodGet, "/api/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "memory", health["backend"])

	do(t, h, http.MethodGet, "/api/user?id=1")
	rec = do(t, h, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats engine.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, uint64(1), stats.Users.Misses)
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewMux(newTestService(t), nil, Options{})
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/login").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/score/1").Code)
}

func TestCORSPreflight(t *testing.T) {
	h := NewMux(newTestService(t), nil, Options{AllowCORSOrigin: "*"})
	rec := do(t, h, http.MethodOptions, "/login")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestConcurrencyLimitFailsFast(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	})
	h := withConcurrencyLimit(slow, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		do(t, h, http.MethodGet, "/")
	}()
	<-entered

	rec := do(t, h, http.MethodGet, "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "overloaded", decodeError(t, rec).Code)

	close(release)
	<-done
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		core.Invalid("op", errors.New("bad")):                               http.StatusBadRequest,
		core.NewOpError("op", core.ErrNotFound, nil):                        http.StatusNotFound,
		core.NewOpError("op", core.ErrConflict, nil):                        http.StatusConflict,
		core.NewOpError("op", core.ErrUpstreamUnavailable, errors.New("x")): http.StatusBadGateway,
		core.NewOpError("op", core.ErrStoreUnavailable, errors.New("x")):    http.StatusServiceUnavailable,
		errors.New("mystery"):                                               http.StatusInternalServerError,
	}
	for err, want := range cases {
		got, _ := StatusFor(err)
		assert.Equal(t, want, got, err.Error())
	}
}
