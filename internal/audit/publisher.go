package audit

import (
	"context"
	"time"

	"gradenorm/pkg/requestcontext"
)

// Publisher is what domain services emit through. Implementations must be
// safe for concurrent use.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists events append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEntity(ctx context.Context, entityID string) ([]Event, error)
}

// StorePublisher appends events to the storage layer directly. Tests and
// single-node deployments use it; production wires the kafka sink in front.
type StorePublisher struct {
	store Store
}

func NewStorePublisher(store Store) *StorePublisher {
	return &StorePublisher{store: store}
}

func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	return p.store.Append(ctx, fill(ctx, event))
}

// List exposes the stored trail for the entity, oldest first.
func (p *StorePublisher) List(ctx context.Context, entityID string) ([]Event, error) {
	return p.store.ListByEntity(ctx, entityID)
}

// fill stamps category, timestamp, and request-scoped fields the caller did
// not set explicitly.
func fill(ctx context.Context, event Event) Event {
	if event.Category == "" {
		event.Category = event.Operation.Category()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Actor == "" {
		event.Actor = requestcontext.Actor(ctx)
	}
	return event
}

// Fanout emits to several publishers, returning the first error. Used to
// pair the durable store with the kafka sink.
type Fanout []Publisher

func (f Fanout) Emit(ctx context.Context, event Event) error {
	for _, p := range f {
		if err := p.Emit(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
