package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/layer"
)

// TextMeasurer sizes text content for default bounding boxes. The text
// package provides an implementation backed by go-text/typesetting; a
// nil measurer falls back to a crude advance estimate.
type TextMeasurer interface {
	Measure(c layer.TextContent) (width, height float64, err error)
}

// Store owns one or more layer containers and is their single writer:
// every mutation goes through a Store method, which validates input,
// bumps the container version, records an undo operation, and emits a
// minimal-delta event. Direct field mutation from outside is forbidden.
//
// Store is safe for concurrent use. The synchronization engine and the
// UI both mutate through it, which preserves the single-writer invariant
// on the underlying containers.
type Store struct {
	mu         sync.Mutex
	containers map[uuid.UUID]*Container
	active     uuid.UUID
	histories  map[uuid.UUID]*History
	maxHistory int

	bus      *Bus
	measurer TextMeasurer
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger injects a logger. Nil falls back to canvas.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxHistory bounds the per-container undo stack.
func WithMaxHistory(n int) Option {
	return func(s *Store) { s.maxHistory = n }
}

// WithTextMeasurer installs a measurer used to size new text layers.
func WithTextMeasurer(m TextMeasurer) Option {
	return func(s *Store) { s.measurer = m }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		containers: make(map[uuid.UUID]*Container),
		histories:  make(map[uuid.UUID]*History),
		maxHistory: DefaultMaxHistorySize,
		logger:     canvas.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.bus = NewBus(s.logger)
	return s
}

// Events returns the store's event bus for subscription.
func (s *Store) Events() *Bus { return s.bus }

// Close shuts down the event bus.
func (s *Store) Close() { s.bus.Close() }

// CreateContainer allocates an empty container with default canvas and
// viewport. It becomes the active container if none is active.
// conversationID may be uuid.Nil for containers outside a conversation.
func (s *Store) CreateContainer(artifactID, conversationID uuid.UUID) uuid.UUID {
	now := time.Now()
	c := &Container{
		ID:             uuid.New(),
		ArtifactID:     artifactID,
		ConversationID: conversationID,
		Layers:         make(map[uuid.UUID]*layer.Layer),
		Canvas:         DefaultCanvas(),
		View:           Viewport{Zoom: 1},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	s.containers[c.ID] = c
	s.histories[c.ID] = NewHistory(s.maxHistory)
	if s.active == uuid.Nil {
		s.active = c.ID
	}
	s.mu.Unlock()

	s.logger.Debug("container created", "container_id", c.ID, "artifact_id", artifactID)
	return c.ID
}

// ActiveContainer returns the id of the active container, or uuid.Nil.
func (s *Store) ActiveContainer() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActiveContainer switches the active container.
func (s *Store) SetActiveContainer(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.containers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, id)
	}
	s.active = id
	return nil
}

// Container returns a deep-copied snapshot of the container with the
// given id. The snapshot is detached: concurrent store mutations never
// show through it, and mutating it has no effect on store state.
func (s *Store) Container(id uuid.UUID) (*Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, id)
	}
	return c.clone(), nil
}

// ContainerByConversation returns a deep-copied snapshot of the first
// container bound to the conversation, or ErrContainerNotFound.
func (s *Store) ContainerByConversation(conversationID uuid.UUID) (*Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.containers {
		if c.ConversationID == conversationID {
			return c.clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: conversation %s", ErrContainerNotFound, conversationID)
}

// RemoveContainer tears down a container. Pending sync work and cached
// textures referencing it are the respective owners' responsibility;
// they key off the events and ids, not off this map entry.
func (s *Store) RemoveContainer(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.containers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, id)
	}
	delete(s.containers, id)
	delete(s.histories, id)
	if s.active == id {
		s.active = uuid.Nil
	}
	return nil
}

// AddOption configures AddLayer.
type AddOption func(*addOptions)

type addOptions struct {
	name       string
	parent     uuid.UUID
	position   *[2]float64
	provenance layer.Provenance
	sessionID  uuid.UUID
}

// WithName sets the display name of the new layer.
func WithName(name string) AddOption {
	return func(o *addOptions) { o.name = name }
}

// WithParent links the new layer under an existing layer.
func WithParent(id uuid.UUID) AddOption {
	return func(o *addOptions) { o.parent = id }
}

// WithPosition places the new layer's transform and bounds origin.
func WithPosition(x, y float64) AddOption {
	return func(o *addOptions) { o.position = &[2]float64{x, y} }
}

// WithProvenance tags where the layer came from (default: user).
func WithProvenance(p layer.Provenance) AddOption {
	return func(o *addOptions) { o.provenance = p }
}

// WithSessionID links the layer to an external image session.
func WithSessionID(id uuid.UUID) AddOption {
	return func(o *addOptions) { o.sessionID = id }
}

// AddLayer validates the kind against the variant union, builds a
// default transform and bounding box from the position option, appends
// to the paint order, and links into the parent's children if given.
// Returns ErrContainerNotFound or ErrNotFound (unknown parent).
func (s *Store) AddLayer(containerID uuid.UUID, kind layer.Kind, content layer.Content, opts ...AddOption) (uuid.UUID, error) {
	if !kind.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %q", layer.ErrUnknownKind, kind)
	}

	var o addOptions
	o.provenance = layer.ProvenanceUser
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	c, ok := s.containers[containerID]
	if !ok {
		s.mu.Unlock()
		return uuid.Nil, fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
	}
	if o.parent != uuid.Nil {
		if _, ok := c.Layers[o.parent]; !ok {
			s.mu.Unlock()
			return uuid.Nil, fmt.Errorf("%w: parent %s", ErrNotFound, o.parent)
		}
	}

	l := layer.New(kind, o.name)
	l.Meta.Provenance = o.provenance
	l.Meta.SessionID = o.sessionID
	l.Parent = o.parent
	switch v := content.(type) {
	case *layer.ImageContent:
		l.Image = v
	case *layer.TextContent:
		l.Text = v
	case nil:
		// Structural kinds carry no content.
	}
	if o.position != nil {
		l.Transform.X = o.position[0]
		l.Transform.Y = o.position[1]
	}
	l.Bounds = s.defaultBounds(l)

	orderBefore := c.snapshotOrder()
	c.Layers[l.ID] = l
	c.Order = append(c.Order, l.ID)
	if o.parent != uuid.Nil {
		p := c.Layers[o.parent]
		p.Children = append(p.Children, l.ID)
	}
	c.renumber()
	c.touch(l.Bounds)

	s.histories[containerID].Record(Operation{
		Name:        "addLayer",
		Before:      map[uuid.UUID]*layer.Layer{l.ID: nil},
		After:       map[uuid.UUID]*layer.Layer{l.ID: l.Clone()},
		OrderBefore: orderBefore,
		OrderAfter:  c.snapshotOrder(),
	})
	ev := LayerCreated{ContainerID: containerID, Layer: l.Clone()}
	s.mu.Unlock()

	s.bus.Publish(ev)
	s.logger.Debug("layer added", "container_id", containerID, "layer_id", l.ID, "kind", kind)
	return l.ID, nil
}

// defaultBounds derives an initial bounding box from the variant content
// and position.
func (s *Store) defaultBounds(l *layer.Layer) layer.BoundingBox {
	b := layer.BoundingBox{X: l.Transform.X, Y: l.Transform.Y, Width: 100, Height: 100}
	switch {
	case l.Image != nil:
		if l.Image.NaturalWidth > 0 && l.Image.NaturalHeight > 0 {
			b.Width = float64(l.Image.NaturalWidth)
			b.Height = float64(l.Image.NaturalHeight)
		}
	case l.Text != nil:
		if s.measurer != nil {
			if w, h, err := s.measurer.Measure(*l.Text); err == nil && w > 0 {
				b.Width, b.Height = w, h
				break
			}
		}
		// Advance estimate when no measurer or shaping failed.
		size := l.Text.FontSize
		if size <= 0 {
			size = 16
		}
		b.Width = float64(len([]rune(l.Text.Text))) * size * 0.6
		b.Height = size * 1.25
	}
	return b
}

// Patch is a partial layer update: nil fields are left untouched. The
// same value is carried on the LayerUpdated event so subscribers see
// exactly what changed. The zero Patch on an event means "treat the
// whole layer as changed" (used by undo/redo restoration).
type Patch struct {
	Name      *string
	Transform *layer.Transform
	Bounds    *layer.BoundingBox
	Visible   *bool
	Locked    *bool
	Opacity   *float64
	BlendMode *layer.BlendMode
	Style     *layer.Style
	Mask      *uuid.UUID
	Image     *layer.ImageContent
	Text      *layer.TextContent
}

// IsZero returns true if the patch changes nothing.
func (p Patch) IsZero() bool { return p == Patch{} }

// UpdateLayer merges the patch into the layer, bumps the layer and
// container timestamps and version, and emits layer:updated carrying
// only the changed fields. Transform updates are validated first.
func (s *Store) UpdateLayer(containerID, layerID uuid.UUID, patch Patch) error {
	if patch.Transform != nil {
		if err := patch.Transform.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	c, ok := s.containers[containerID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
	}
	l, ok := c.Layers[layerID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, layerID)
	}

	before := l.Clone()
	dirty := l.Bounds

	if patch.Name != nil {
		l.Name = *patch.Name
	}
	if patch.Transform != nil {
		l.Transform = *patch.Transform
	}
	if patch.Bounds != nil {
		l.Bounds = *patch.Bounds
	}
	if patch.Visible != nil {
		l.Visible = *patch.Visible
	}
	if patch.Locked != nil {
		l.Locked = *patch.Locked
	}
	if patch.Opacity != nil {
		op := *patch.Opacity
		if op < 0 {
			op = 0
		}
		if op > 1 {
			op = 1
		}
		l.Opacity = op
	}
	if patch.BlendMode != nil {
		l.BlendMode = *patch.BlendMode
	}
	if patch.Style != nil {
		l.Style = patch.Style
	}
	if patch.Mask != nil {
		l.Mask = *patch.Mask
	}
	if patch.Image != nil {
		l.Image = patch.Image
	}
	if patch.Text != nil {
		l.Text = patch.Text
	}
	l.Meta.UpdatedAt = time.Now()
	c.touch(dirty, l.Bounds)

	s.histories[containerID].Record(Operation{
		Name:        "updateLayer",
		Before:      map[uuid.UUID]*layer.Layer{layerID: before},
		After:       map[uuid.UUID]*layer.Layer{layerID: l.Clone()},
		OrderBefore: c.snapshotOrder(),
		OrderAfter:  c.snapshotOrder(),
	})
	ev := LayerUpdated{ContainerID: containerID, LayerID: layerID, Patch: patch}
	s.mu.Unlock()

	s.bus.Publish(ev)
	return nil
}

// DeleteLayer detaches the layer from its parent, reparents its children
// to the deleted layer's parent (never silently orphaned), removes it
// from the paint order and selection, and emits layer:deleted.
func (s *Store) DeleteLayer(containerID, layerID uuid.UUID) error {
	s.mu.Lock()
	c, ok := s.containers[containerID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
	}
	l, ok := c.Layers[layerID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, layerID)
	}

	orderBefore := c.snapshotOrder()
	before := map[uuid.UUID]*layer.Layer{layerID: l.Clone()}
	after := map[uuid.UUID]*layer.Layer{layerID: nil}

	// Detach from parent.
	if l.Parent != uuid.Nil {
		if p := c.Layers[l.Parent]; p != nil {
			before[p.ID] = p.Clone()
			for i, cid := range p.Children {
				if cid == layerID {
					p.Children = append(p.Children[:i], p.Children[i+1:]...)
					break
				}
			}
			after[p.ID] = p.Clone()
		}
	}

	// Explicitly reparent children to the deleted layer's parent.
	reparented := append([]uuid.UUID(nil), l.Children...)
	for _, cid := range l.Children {
		child := c.Layers[cid]
		if child == nil {
			continue
		}
		if _, seen := before[cid]; !seen {
			before[cid] = child.Clone()
		}
		child.Parent = l.Parent
		if l.Parent != uuid.Nil {
			if p := c.Layers[l.Parent]; p != nil {
				p.Children = append(p.Children, cid)
			}
		}
		after[cid] = child.Clone()
	}
	if l.Parent != uuid.Nil {
		if p := c.Layers[l.Parent]; p != nil {
			after[p.ID] = p.Clone()
		}
	}

	delete(c.Layers, layerID)
	c.removeFromOrder(layerID)
	c.removeFromSelection(layerID)
	c.renumber()
	c.touch(l.Bounds)

	s.histories[containerID].Record(Operation{
		Name:        "deleteLayer",
		Before:      before,
		After:       after,
		OrderBefore: orderBefore,
		OrderAfter:  c.snapshotOrder(),
	})
	ev := LayerDeleted{ContainerID: containerID, LayerID: layerID, Reparented: reparented}
	s.mu.Unlock()

	s.bus.Publish(ev)
	s.logger.Debug("layer deleted", "container_id", containerID, "layer_id", layerID,
		"reparented", len(reparented))
	return nil
}

// ReorderLayer moves the id within the paint order and re-derives every
// layer's ZIndex from its new list position in one pass. newIndex is
// clamped to the valid range.
func (s *Store) ReorderLayer(containerID, layerID uuid.UUID, newIndex int) error {
	s.mu.Lock()
	c, ok := s.containers[containerID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
	}
	oldIndex := c.IndexOf(layerID)
	if oldIndex < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, layerID)
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(c.Order)-1 {
		newIndex = len(c.Order) - 1
	}

	orderBefore := c.snapshotOrder()
	if newIndex != oldIndex {
		c.Order = append(c.Order[:oldIndex], c.Order[oldIndex+1:]...)
		c.Order = append(c.Order[:newIndex], append([]uuid.UUID{layerID}, c.Order[newIndex:]...)...)
	}
	c.renumber()
	c.touch()

	l := c.Layers[layerID]
	s.histories[containerID].Record(Operation{
		Name:        "reorderLayer",
		Before:      map[uuid.UUID]*layer.Layer{layerID: l.Clone()},
		After:       map[uuid.UUID]*layer.Layer{layerID: l.Clone()},
		OrderBefore: orderBefore,
		OrderAfter:  c.snapshotOrder(),
	})
	ev := LayerReordered{ContainerID: containerID, LayerID: layerID, OldIndex: oldIndex, NewIndex: newIndex}
	s.mu.Unlock()

	s.bus.Publish(ev)
	return nil
}

// ReparentLayer moves the layer under a new parent (uuid.Nil for top
// level). The move is validated for acyclicity before committing and
// fails with ErrCycleDetected if the new parent is the layer itself or
// any of its descendants.
func (s *Store) ReparentLayer(containerID, layerID, newParent uuid.UUID) error {
	s.mu.Lock()
	c, ok := s.containers[containerID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
	}
	l, ok := c.Layers[layerID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, layerID)
	}
	if newParent != uuid.Nil {
		if _, ok := c.Layers[newParent]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: parent %s", ErrNotFound, newParent)
		}
		if c.isAncestor(layerID, newParent) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s under %s", ErrCycleDetected, layerID, newParent)
		}
	}

	before := map[uuid.UUID]*layer.Layer{layerID: l.Clone()}
	if l.Parent != uuid.Nil {
		if p := c.Layers[l.Parent]; p != nil {
			before[p.ID] = p.Clone()
			for i, cid := range p.Children {
				if cid == layerID {
					p.Children = append(p.Children[:i], p.Children[i+1:]...)
					break
				}
			}
		}
	}
	if newParent != uuid.Nil {
		p := c.Layers[newParent]
		if _, seen := before[newParent]; !seen {
			before[newParent] = p.Clone()
		}
		p.Children = append(p.Children, layerID)
	}
	l.Parent = newParent
	l.Meta.UpdatedAt = time.Now()
	c.touch(l.Bounds)

	after := make(map[uuid.UUID]*layer.Layer, len(before))
	for id := range before {
		after[id] = c.Layers[id].Clone()
	}
	s.histories[containerID].Record(Operation{
		Name:        "reparentLayer",
		Before:      before,
		After:       after,
		OrderBefore: c.snapshotOrder(),
		OrderAfter:  c.snapshotOrder(),
	})
	ev := LayerUpdated{ContainerID: containerID, LayerID: layerID}
	s.mu.Unlock()

	s.bus.Publish(ev)
	return nil
}

// SelectLayers replaces the selection set, or extends it when additive
// is true. Unknown ids are rejected with ErrNotFound. The selection is
// mirrored into the container's own field for serialization.
func (s *Store) SelectLayers(containerID uuid.UUID, ids []uuid.UUID, additive bool) error {
	s.mu.Lock()
	c, ok := s.containers[containerID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
	}
	for _, id := range ids {
		if _, ok := c.Layers[id]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}

	if !additive {
		c.Selection = c.Selection[:0]
	}
	for _, id := range ids {
		if !c.IsSelected(id) {
			c.Selection = append(c.Selection, id)
		}
	}
	c.touch()
	ev := SelectionChanged{ContainerID: containerID, Selected: append([]uuid.UUID(nil), c.Selection...)}
	s.mu.Unlock()

	s.bus.Publish(ev)
	return nil
}

// RecordOperation pushes a caller-built operation onto the container's
// undo stack. Store mutations record their own operations; this is for
// callers that batch several mutations into one undoable unit.
func (s *Store) RecordOperation(containerID uuid.UUID, op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[containerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
	}
	h.Record(op)
	return nil
}

// Undo reverts the most recent operation on the container by restoring
// the Before snapshots and paint order. Returns ErrNothingToUndo on an
// empty stack.
func (s *Store) Undo(containerID uuid.UUID) error {
	return s.applyHistory(containerID, true)
}

// Redo re-applies the most recently undone operation.
func (s *Store) Redo(containerID uuid.UUID) error {
	return s.applyHistory(containerID, false)
}

func (s *Store) applyHistory(containerID uuid.UUID, undo bool) error {
	s.mu.Lock()
	c, ok := s.containers[containerID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
	}
	h := s.histories[containerID]

	var (
		op    Operation
		found bool
	)
	if undo {
		op, found = h.PopUndo()
		if !found {
			s.mu.Unlock()
			return ErrNothingToUndo
		}
	} else {
		op, found = h.PopRedo()
		if !found {
			s.mu.Unlock()
			return ErrNothingToRedo
		}
	}

	snapshots := op.Before
	order := op.OrderBefore
	if !undo {
		snapshots = op.After
		order = op.OrderAfter
	}

	events := make([]Event, 0, len(snapshots))
	for id, snap := range snapshots {
		switch {
		case snap == nil:
			if old := c.Layers[id]; old != nil {
				delete(c.Layers, id)
				c.removeFromSelection(id)
				events = append(events, LayerDeleted{ContainerID: containerID, LayerID: id})
			}
		case c.Layers[id] == nil:
			c.Layers[id] = snap.Clone()
			events = append(events, LayerCreated{ContainerID: containerID, Layer: snap.Clone()})
		default:
			c.Layers[id] = snap.Clone()
			// Zero patch signals full invalidation to subscribers.
			events = append(events, LayerUpdated{ContainerID: containerID, LayerID: id})
		}
	}
	c.Order = append([]uuid.UUID(nil), order...)
	c.renumber()
	c.touch()
	s.mu.Unlock()

	for _, ev := range events {
		s.bus.Publish(ev)
	}
	return nil
}

// NotifyLoaded emits container:loaded. Called by the artifact importer
// after materializing a container at the store boundary.
func (s *Store) NotifyLoaded(containerID uuid.UUID) {
	s.bus.Publish(ContainerLoaded{ContainerID: containerID})
}

// NotifySaved emits container:saved after an export.
func (s *Store) NotifySaved(containerID uuid.UUID) {
	s.bus.Publish(ContainerSaved{ContainerID: containerID})
}
