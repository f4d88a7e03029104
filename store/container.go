package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/canvas/layer"
)

// CanvasSpec holds the drawing surface configuration of a container.
type CanvasSpec struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Background string  `json:"background"`
	DPI        float64 `json:"dpi"`
}

// Viewport is the user's view into the canvas.
type Viewport struct {
	Zoom     float64 `json:"zoom"`
	PanX     float64 `json:"panX"`
	PanY     float64 `json:"panY"`
	Rotation float64 `json:"rotation"`
}

// DefaultCanvas returns the canvas configuration used for new containers.
func DefaultCanvas() CanvasSpec {
	return CanvasSpec{Width: 1024, Height: 768, Background: "#ffffff", DPI: 96}
}

// Container is the ordered collection of layers that forms one artifact.
//
// Layers is the arena that owns every layer; Order is the single source
// of truth for paint order. The invariant maintained by every mutation
// is layer.ZIndex == index of the layer's id in Order.
//
// Containers are only mutated through Store methods, which bump Version
// and UpdatedAt on every change. Version is monotonically increasing and
// is used for optimistic concurrency and cache invalidation.
type Container struct {
	ID             uuid.UUID                  `json:"id"`
	ArtifactID     uuid.UUID                  `json:"artifactId"`
	ConversationID uuid.UUID                  `json:"conversationId,omitempty"`
	Layers         map[uuid.UUID]*layer.Layer `json:"layers"`
	Order          []uuid.UUID                `json:"layerOrder"`
	Selection      []uuid.UUID                `json:"selection,omitempty"`
	Canvas         CanvasSpec                 `json:"canvas"`
	View           Viewport                   `json:"viewport"`
	Version        uint64                     `json:"version"`
	CreatedAt      time.Time                  `json:"createdAt"`
	UpdatedAt      time.Time                  `json:"updatedAt"`

	// Dirty is the union of bounds touched since the last render; the
	// compositor reads and resets it for diagnostics only.
	Dirty layer.BoundingBox `json:"-"`
}

// clone returns a deep copy of the container: fresh maps and slices
// with every layer cloned. Store read methods hand out clones so a
// caller never aliases state a concurrent mutation can touch.
func (c *Container) clone() *Container {
	out := *c
	out.Layers = make(map[uuid.UUID]*layer.Layer, len(c.Layers))
	for id, l := range c.Layers {
		out.Layers[id] = l.Clone()
	}
	out.Order = append([]uuid.UUID(nil), c.Order...)
	out.Selection = append([]uuid.UUID(nil), c.Selection...)
	return &out
}

// Layer returns the layer with the given id, or nil.
func (c *Container) Layer(id uuid.UUID) *layer.Layer {
	return c.Layers[id]
}

// IndexOf returns the paint-order index of the layer id, or -1.
func (c *Container) IndexOf(id uuid.UUID) int {
	for i, lid := range c.Order {
		if lid == id {
			return i
		}
	}
	return -1
}

// IsSelected returns true if the layer id is in the selection set.
func (c *Container) IsSelected(id uuid.UUID) bool {
	for _, sid := range c.Selection {
		if sid == id {
			return true
		}
	}
	return false
}

// VisibleInOrder returns the visible layers in paint order. A layer is
// visible only if it and every ancestor group are visible.
func (c *Container) VisibleInOrder() []*layer.Layer {
	out := make([]*layer.Layer, 0, len(c.Order))
	for _, id := range c.Order {
		l := c.Layers[id]
		if l == nil || !c.effectivelyVisible(l) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// EffectiveOpacity returns the layer's opacity multiplied along its
// parent chain, clamped to [0, 1].
func (c *Container) EffectiveOpacity(l *layer.Layer) float64 {
	op := l.Opacity
	for p := l.Parent; p != uuid.Nil; {
		pl := c.Layers[p]
		if pl == nil {
			break
		}
		op *= pl.Opacity
		p = pl.Parent
	}
	if op < 0 {
		return 0
	}
	if op > 1 {
		return 1
	}
	return op
}

func (c *Container) effectivelyVisible(l *layer.Layer) bool {
	if !l.Visible {
		return false
	}
	for p := l.Parent; p != uuid.Nil; {
		pl := c.Layers[p]
		if pl == nil {
			break
		}
		if !pl.Visible {
			return false
		}
		p = pl.Parent
	}
	return true
}

// isAncestor reports whether candidate is an ancestor of id (or equal to
// it). Used to validate acyclicity before committing a reparent.
func (c *Container) isAncestor(candidate, id uuid.UUID) bool {
	for cur := id; cur != uuid.Nil; {
		if cur == candidate {
			return true
		}
		l := c.Layers[cur]
		if l == nil {
			return false
		}
		cur = l.Parent
	}
	return false
}

// touch bumps the container version and timestamps after a mutation and
// folds the changed bounds into the dirty region.
func (c *Container) touch(bounds ...layer.BoundingBox) {
	c.Version++
	c.UpdatedAt = time.Now()
	for _, b := range bounds {
		c.Dirty = c.Dirty.Union(b)
	}
}

// snapshotOrder returns a copy of the paint order list.
func (c *Container) snapshotOrder() []uuid.UUID {
	return append([]uuid.UUID(nil), c.Order...)
}

// renumber re-derives every layer's ZIndex from its position in Order in
// one pass. ZIndex is never set anywhere else.
func (c *Container) renumber() {
	for i, id := range c.Order {
		if l := c.Layers[id]; l != nil {
			l.ZIndex = i
		}
	}
}

// removeFromOrder deletes id from Order if present.
func (c *Container) removeFromOrder(id uuid.UUID) {
	if i := c.IndexOf(id); i >= 0 {
		c.Order = append(c.Order[:i], c.Order[i+1:]...)
	}
}

// removeFromSelection deletes id from the selection set if present.
func (c *Container) removeFromSelection(id uuid.UUID) {
	for i, sid := range c.Selection {
		if sid == id {
			c.Selection = append(c.Selection[:i], c.Selection[i+1:]...)
			return
		}
	}
}
