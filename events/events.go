// Package events is the ingest subsystem's typed event surface, built
// directly on github.com/asaidimu/go-events' TypedEventBus[T] — the same
// dependency the teacher uses for PersistenceEvent. It generalizes the
// teacher's start/success/failed triple (withEventEmission in
// core/persistence/collection-events.go) from CRUD verbs to the single
// ingest verb, and carries the onCreateCollection system-event listener
// contract of §4.C/§6.
package events

import (
	gevents "github.com/asaidimu/go-events"
)

// Type identifies the kind of event carried on the bus.
type Type string

const (
	// IngestStart fires when a Deserialize call begins.
	IngestStart Type = "ingest:start"
	// IngestSuccess fires when a Deserialize call returns an Event.
	IngestSuccess Type = "ingest:success"
	// IngestFailed fires when a Deserialize call returns an error.
	IngestFailed Type = "ingest:failed"
	// CollectionCreated fires when CreateOrGetCollectionField causes a
	// collection to come into existence (§4.C's onCreateCollection).
	CollectionCreated Type = "collection:created"
)

// Event is the payload carried for every Type on the bus.
type Event struct {
	Type       Type
	Project    string
	Collection string
	DurationMS int64
	Err        string
}

// Bus wraps a TypedEventBus[Event]. A nil *Bus is valid and Emit/Subscribe
// become no-ops, so callers that do not care about observability can simply
// omit it.
type Bus struct {
	inner *gevents.TypedEventBus[Event]
}

// NewBus constructs a Bus over go-events' default configuration, mirroring
// persistence.NewPersistence's events.NewTypedEventBus[PersistenceEvent]
// construction.
func NewBus() (*Bus, error) {
	b, err := gevents.NewTypedEventBus[Event](gevents.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return &Bus{inner: b}, nil
}

// Emit publishes e on the bus keyed by its Type.
func (b *Bus) Emit(e Event) {
	if b == nil || b.inner == nil {
		return
	}
	b.inner.Emit(string(e.Type), e)
}

// Subscribe registers cb for events of type t, returning an unsubscribe
// function.
func (b *Bus) Subscribe(t Type, cb func(Event)) func() {
	if b == nil || b.inner == nil {
		return func() {}
	}
	return b.inner.Subscribe(string(t), cb)
}
