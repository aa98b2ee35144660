package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventScoreSubmitted EventType = "score_submitted"
	EventSessionCreated EventType = "session_created"
	EventSessionEnded   EventType = "session_ended"
	EventUserCacheHit   EventType = "user_cache_hit"
	EventUserCacheMiss  EventType = "user_cache_miss"
	EventUpstreamFetch  EventType = "upstream_fetch"
)

// EventTypes lists every event the engine publishes.
var EventTypes = []EventType{
	EventScoreSubmitted,
	EventSessionCreated,
	EventSessionEnded,
	EventUserCacheHit,
	EventUserCacheMiss,
	EventUpstreamFetch,
}

// Event represents an immutable domain event.
type Event struct {
	Type      EventType      `json:"type"`
	Time      time.Time      `json:"time"`
	UserID    UserID         `json:"user_id,omitempty"`
	Score     int64          `json:"score,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Err       string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewScoreSubmitted(user UserID, score int64) Event {
	return Event{Type: EventScoreSubmitted, Time: time.Now().UTC(), UserID: user, Score: score}
}

func NewSessionCreated(id string) Event {
	return Event{Type: EventSessionCreated, Time: time.Now().UTC(), SessionID: id}
}

func NewSessionEnded(id string) Event {
	return Event{Type: EventSessionEnded, Time: time.Now().UTC(), SessionID: id}
}

func NewUserCacheHit(user UserID) Event {
	return Event{Type: EventUserCacheHit, Time: time.Now().UTC(), UserID: user}
}

func NewUserCacheMiss(user UserID) Event {
	return Event{Type: EventUserCacheMiss, Time: time.Now().UTC(), UserID: user}
}

// NewUpstreamFetch records one call to the user source and how long it took.
func NewUpstreamFetch(user UserID, took time.Duration, err error) Event {
	ev := Event{Type: EventUpstreamFetch, Time: time.Now().UTC(), UserID: user, Duration: took}
	if err != nil {
		ev.Err = err.Error()
	}
	return ev
}
