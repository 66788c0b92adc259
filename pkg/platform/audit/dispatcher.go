package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Fanout emits to every sink in order and fails on the first error, so a
// broken durable sink keeps fail-closed semantics for compliance events.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, event Event) error {
	for _, emitter := range f {
		if err := emitter.Emit(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Dispatcher routes events by category. Compliance events go through the
// synchronous emitter and their error propagates to the caller; operations
// events are queued for the background worker and never block or fail the
// request. A full queue drops the event with a log line.
type Dispatcher struct {
	sync   Emitter
	inbox  chan Event
	logger *slog.Logger
}

func NewDispatcher(sync Emitter, buffer int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sync:   sync,
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Inbox is the channel the worker drains.
func (d *Dispatcher) Inbox() <-chan Event {
	return d.inbox
}

func (d *Dispatcher) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}

	if event.Category == CategoryCompliance {
		return d.sync.Emit(ctx, event)
	}

	select {
	case d.inbox <- event:
	default:
		d.logger.WarnContext(ctx, "audit queue full, dropping operations event",
			"action", string(event.Action))
	}
	return nil
}
