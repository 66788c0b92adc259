// Package worker drains audit events from a channel into a store, keeping
// event persistence off the request path for operations-category events.
package worker

import (
	"context"
	"log/slog"

	audit "tranche/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them. Compliance
// events are written synchronously by the publisher; the worker only ever
// sees operations-category traffic, so a failed append is logged and
// dropped rather than retried.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				if w.logger != nil {
					w.logger.ErrorContext(ctx, "failed to persist audit event",
						"action", string(event.Action),
						"error", err,
					)
				}
			}
		}
	}
}
