package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"cachecompare/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the cache comparison HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// SubmitScore records a user's score and returns the stored entry.
func (c *Client) SubmitScore(ctx context.Context, user core.UserID, score int64) (core.ScoreEntry, error) {
	q := url.Values{"score": {strconv.FormatInt(score, 10)}}
	resp, err := c.do(ctx, http.MethodPost, "/score/"+formatID(user), q)
	if err != nil {
		return core.ScoreEntry{}, err
	}
	defer resp.Body.Close()

	var e core.ScoreEntry
	if err := decodeJSON(resp, &e); err != nil {
		return core.ScoreEntry{}, err
	}
	return e, nil
}

// ScoreOf returns a single user's entry.
func (c *Client) ScoreOf(ctx context.Context, user core.UserID) (core.ScoreEntry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/score/"+formatID(user), nil)
	if err != nil {
		return core.ScoreEntry{}, err
	}
	defer resp.Body.Close()

	var e core.ScoreEntry
	if err := decodeJSON(resp, &e); err != nil {
		return core.ScoreEntry{}, err
	}
	return e, nil
}

// TopN returns the n best entries. The server rejects n <= 0 with an
// error matching core.ErrInvalidArgument.
func (c *Client) TopN(ctx context.Context, n int) ([]core.ScoreEntry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/leaderboard/top", url.Values{"n": {strconv.Itoa(n)}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var top []core.ScoreEntry
	if err := decodeJSON(resp, &top); err != nil {
		return nil, err
	}
	return top, nil
}

// Login creates a session and returns its id.
func (c *Client) Login(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/login", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadSession returns the session payload. Expired and unknown sessions
// yield an error matching core.ErrNotFound.
func (c *Client) ReadSession(ctx context.Context, id string) ([]byte, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptySessionID
	}
	resp, err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// Logout ends a session.
func (c *Client) Logout(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptySessionID
	}
	resp, err := c.do(ctx, http.MethodPost, "/logout/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// GetUser fetches a user profile through the server's cache.
func (c *Client) GetUser(ctx context.Context, user core.UserID) (core.UserRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, "/user", url.Values{"id": {formatID(user)}})
	if err != nil {
		return core.UserRecord{}, err
	}
	defer resp.Body.Close()

	var rec core.UserRecord
	if err := decodeJSON(resp, &rec); err != nil {
		return core.UserRecord{}, err
	}
	return rec, nil
}

// Health probes /healthz. An unhealthy server returns the status with an error.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var hs HealthStatus
	if resp.StatusCode == http.StatusServiceUnavailable {
		// unhealthy servers still describe their checks
		if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
			return HealthStatus{}, err
		}
		return hs, &APIError{Status: resp.StatusCode, Code: "unhealthy", Message: hs.Status}
	}
	if err := decodeJSON(resp, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// Stats fetches the server counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	resp, err := c.do(ctx, http.MethodGet, "/stats", nil)
	if err != nil {
		return Stats{}, err
	}
	defer resp.Body.Close()

	var st Stats
	if err := decodeJSON(resp, &st); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// SubscribeLeaderboard connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeLeaderboard(ctx context.Context) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// unblocks ReadJSON below
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func formatID(id core.UserID) string { return strconv.FormatInt(int64(id), 10) }

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/leaderboard/ws"
	return u.String()
}
