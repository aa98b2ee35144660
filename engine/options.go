package engine

import (
	"log/slog"
	"time"
)

type options struct {
	bus *EventBus
	log *slog.Logger
	now func() time.Time
}

// Option configures a workload component.
type Option func(*options)

// WithEventBus publishes the component's domain events on bus.
func WithEventBus(bus *EventBus) Option { return func(o *options) { o.bus = bus } }

// WithLogger sets the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: slog.Default(), now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
