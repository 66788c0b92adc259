package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "tranche/pkg/domain"
)

//go:generate mockgen -source=publisher.go -destination=mocks/mocks.go -package=mocks Store,Emitter

// Store persists audit events. It is append-only so sinks can be swapped
// (memory for tests, postgres or kafka in deployment).
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject id.Identity) ([]Event, error)
}

// Emitter is the port domain services publish through.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Publisher captures structured audit events synchronously against a store.
// Ledger mutations use it fail-closed: if the trail cannot be written, the
// operation must not report success.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	return p.store.Append(ctx, event)
}

func (p *Publisher) List(ctx context.Context, subject id.Identity) ([]Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

// NopEmitter drops events. Used where a service is constructed without an
// audit sink (unit tests, tooling).
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) error { return nil }
