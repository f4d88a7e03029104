package store

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/layer"
)

// Event is the sealed union of store notifications. Each event carries
// the minimal delta, not full container state, so subscriber cost stays
// proportional to the size of the change.
type Event interface{ isEvent() }

// LayerCreated is emitted after a layer is added to a container.
type LayerCreated struct {
	ContainerID uuid.UUID
	Layer       *layer.Layer // deep copy, safe to retain
}

// LayerUpdated is emitted after a partial update. Patch holds only the
// fields that changed so downstream caches can do minimal invalidation.
type LayerUpdated struct {
	ContainerID uuid.UUID
	LayerID     uuid.UUID
	Patch       Patch
}

// LayerDeleted is emitted after a layer is removed. Reparented lists the
// children that were moved to the deleted layer's parent.
type LayerDeleted struct {
	ContainerID uuid.UUID
	LayerID     uuid.UUID
	Reparented  []uuid.UUID
}

// LayerReordered is emitted after a paint-order move.
type LayerReordered struct {
	ContainerID uuid.UUID
	LayerID     uuid.UUID
	OldIndex    int
	NewIndex    int
}

// SelectionChanged is emitted after the selection set changes.
type SelectionChanged struct {
	ContainerID uuid.UUID
	Selected    []uuid.UUID
}

// ContainerLoaded is emitted after a container is materialized from an
// artifact at the store boundary.
type ContainerLoaded struct {
	ContainerID uuid.UUID
}

// ContainerSaved is emitted after a container is exported to an artifact.
type ContainerSaved struct {
	ContainerID uuid.UUID
}

func (LayerCreated) isEvent()     {}
func (LayerUpdated) isEvent()     {}
func (LayerDeleted) isEvent()     {}
func (LayerReordered) isEvent()   {}
func (SelectionChanged) isEvent() {}
func (ContainerLoaded) isEvent()  {}
func (ContainerSaved) isEvent()   {}

// Bus fans events out to subscribers over buffered channels. Publish
// never blocks a store mutation: when a subscriber's buffer is full the
// event is dropped for that subscriber and a warning is logged.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	logger *slog.Logger
}

// NewBus creates an event bus. A nil logger falls back to the package
// logger configured via canvas.SetLogger.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = canvas.Logger()
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// Subscribe registers a subscriber with the given channel buffer size
// (minimum 1). The returned cancel function removes the subscription and
// closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	// Presence in subs decides who closes the channel: whichever of
	// cancel and Close removes the id first closes it, the other is a
	// no-op. This keeps cancel idempotent and safe after Close.
	cancel := func() {
		b.mu.Lock()
		_, live := b.subs[id]
		delete(b.subs, id)
		b.mu.Unlock()
		if live {
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("event dropped for slow subscriber",
				"subscriber", id, "event", eventName(ev))
		}
	}
}

// Close removes all subscribers and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func eventName(ev Event) string {
	switch ev.(type) {
	case LayerCreated:
		return "layer:created"
	case LayerUpdated:
		return "layer:updated"
	case LayerDeleted:
		return "layer:deleted"
	case LayerReordered:
		return "layer:reordered"
	case SelectionChanged:
		return "layer:selected"
	case ContainerLoaded:
		return "container:loaded"
	case ContainerSaved:
		return "container:saved"
	default:
		return "unknown"
	}
}
