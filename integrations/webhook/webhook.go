// Package webhook forwards engine events to HTTP endpoints, typically a
// benchmark harness collecting upstream fetch timings.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cachecompare/core"
)

// EventSource is satisfied by engine.EventBus and engine.Service.
type EventSource interface {
	Subscribe(core.EventType, func(context.Context, core.Event)) func()
}

// Sink posts domain events to configured HTTP endpoints.
// Posting is synchronous; attach it to an async bus to keep it off the request path.
type Sink struct {
	client    *http.Client
	endpoints []string
	log       *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// OnEvent posts the event JSON to all endpoints. Failures are logged and
// never retried.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		return
	}
	// the bus may hand us a request context that ends before delivery
	ctx = context.WithoutCancel(ctx)
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			s.log.Warn("webhook request build failed", "endpoint", ep, "error", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Warn("webhook delivery failed", "endpoint", ep, "event", e.Type, "error", err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= http.StatusMultipleChoices {
			s.log.Warn("webhook rejected event", "endpoint", ep, "event", e.Type, "status", resp.StatusCode)
		}
	}
}

// Attach subscribes the sink to the given event types, or to every event
// type when none are given. The returned func detaches it.
func (s *Sink) Attach(src EventSource, types ...core.EventType) func() {
	if len(types) == 0 {
		types = core.EventTypes
	}
	unsubs := make([]func(), 0, len(types))
	for _, typ := range types {
		unsubs = append(unsubs, src.Subscribe(typ, s.OnEvent))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
