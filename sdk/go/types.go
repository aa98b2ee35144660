package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cachecompare/core"
)

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status  string         `json:"status"`
	Backend string         `json:"backend"`
	Checks  map[string]any `json:"checks"`
}

// Stats mirrors the /stats response.
type Stats struct {
	Backend       string `json:"backend"`
	Native        bool   `json:"native_ranking"`
	EventsDropped uint64 `json:"events_dropped"`
	Users         struct {
		Hits    uint64 `json:"hits"`
		Misses  uint64 `json:"misses"`
		Fetches uint64 `json:"fetches"`
	} `json:"users"`
}

// APIError is a non-2xx response. It matches the core error kinds with
// errors.Is, so callers can test for core.ErrNotFound and friends.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: status %d", e.Status)
	}
	return fmt.Sprintf("request failed: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return core.ErrInvalidArgument
	case http.StatusNotFound:
		return core.ErrNotFound
	case http.StatusConflict:
		return core.ErrConflict
	case http.StatusBadGateway:
		return core.ErrUpstreamUnavailable
	case http.StatusServiceUnavailable:
		return core.ErrStoreUnavailable
	default:
		return nil
	}
}

// checkStatus turns an error status into *APIError. Plain-text and empty
// error bodies are tolerated.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(body, apiErr)
	return apiErr
}

func decodeJSON(resp *http.Response, target any) error {
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptySessionID is returned when a session id is empty.
var ErrEmptySessionID = errors.New("session id is required")
