// Package artifact is the interchange format between layer containers
// and the rest of the application: persistence, network transfer, and
// the chat portal all speak Item, never raw layers.
package artifact

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/canvas/layer"
	"github.com/gogpu/canvas/store"
)

// ErrUnsupportedType is returned for items whose type is not a layer
// kind.
var ErrUnsupportedType = errors.New("artifact: unsupported item type")

// Position is the item placement in canvas space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the item extent in canvas space.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Content carries the variant-specific payload. Image fields and text
// fields are mutually exclusive; which set applies follows from the
// item type.
type Content struct {
	URL             string   `json:"url,omitempty"`
	Format          string   `json:"format,omitempty"`
	NaturalWidth    int      `json:"naturalWidth,omitempty"`
	NaturalHeight   int      `json:"naturalHeight,omitempty"`
	VersionURLs     []string `json:"versionUrls,omitempty"`
	SelectedVersion int      `json:"selectedVersion,omitempty"`
	Prompt          string   `json:"prompt,omitempty"`
	Model           string   `json:"model,omitempty"`
	Seed            int64    `json:"seed,omitempty"`

	Text       string  `json:"text,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	Bold       bool    `json:"bold,omitempty"`
	Italic     bool    `json:"italic,omitempty"`
	Color      string  `json:"color,omitempty"`
	Language   string  `json:"language,omitempty"`
}

// Metadata carries the layer state that is not content or geometry.
type Metadata struct {
	Name       string           `json:"name,omitempty"`
	Provenance layer.Provenance `json:"provenance,omitempty"`
	SessionID  uuid.UUID        `json:"sessionId,omitempty"`
	Opacity    float64          `json:"opacity"`
	BlendMode  string           `json:"blendMode"`
	Visible    bool             `json:"visible"`
}

// Item is one serialized layer.
type Item struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Content   Content   `json:"content"`
	Position  Position  `json:"position"`
	Size      Size      `json:"size"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromLayer serializes one layer.
func FromLayer(l *layer.Layer) Item {
	it := Item{
		ID:       l.ID,
		Type:     string(l.Kind),
		Position: Position{X: l.Bounds.X, Y: l.Bounds.Y},
		Size:     Size{Width: l.Bounds.Width, Height: l.Bounds.Height},
		Metadata: Metadata{
			Name:       l.Name,
			Provenance: l.Meta.Provenance,
			SessionID:  l.Meta.SessionID,
			Opacity:    l.Opacity,
			BlendMode:  l.BlendMode.String(),
			Visible:    l.Visible,
		},
		CreatedAt: l.Meta.CreatedAt,
		UpdatedAt: l.Meta.UpdatedAt,
	}

	switch {
	case l.Image != nil:
		it.Content = Content{
			URL:             l.Image.SourceURL,
			Format:          l.Image.Format,
			NaturalWidth:    l.Image.NaturalWidth,
			NaturalHeight:   l.Image.NaturalHeight,
			VersionURLs:     l.Image.VersionURLs,
			SelectedVersion: l.Image.SelectedVersion,
		}
		if g := l.Image.Generation; g != nil {
			it.Content.Prompt = g.Prompt
			it.Content.Model = g.Model
			it.Content.Seed = g.Seed
		}
	case l.Text != nil:
		it.Content = Content{
			Text:       l.Text.Text,
			FontFamily: l.Text.FontFamily,
			FontSize:   l.Text.FontSize,
			Bold:       l.Text.Bold,
			Italic:     l.Text.Italic,
			Color:      l.Text.Color,
			Language:   l.Text.Language,
		}
	}
	return it
}

// FromContainer serializes every layer in paint order.
func FromContainer(cont *store.Container) []Item {
	items := make([]Item, 0, len(cont.Order))
	for _, id := range cont.Order {
		if l := cont.Layers[id]; l != nil {
			items = append(items, FromLayer(l))
		}
	}
	return items
}

// ToContent deserializes an item into a layer kind and variant content.
// Structural kinds return nil content.
func ToContent(it Item) (layer.Kind, layer.Content, error) {
	kind := layer.Kind(it.Type)
	if !kind.Valid() {
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedType, it.Type)
	}

	switch kind {
	case layer.KindImage:
		ic := &layer.ImageContent{
			SourceURL:       it.Content.URL,
			Format:          it.Content.Format,
			NaturalWidth:    it.Content.NaturalWidth,
			NaturalHeight:   it.Content.NaturalHeight,
			VersionURLs:     it.Content.VersionURLs,
			SelectedVersion: it.Content.SelectedVersion,
		}
		if it.Content.Prompt != "" || it.Content.Model != "" || it.Content.Seed != 0 {
			ic.Generation = &layer.GenerationInfo{
				Prompt: it.Content.Prompt,
				Model:  it.Content.Model,
				Seed:   it.Content.Seed,
			}
		}
		return kind, ic, nil
	case layer.KindText:
		return kind, &layer.TextContent{
			Text:       it.Content.Text,
			FontFamily: it.Content.FontFamily,
			FontSize:   it.Content.FontSize,
			Bold:       it.Content.Bold,
			Italic:     it.Content.Italic,
			Color:      it.Content.Color,
			Language:   it.Content.Language,
		}, nil
	default:
		return kind, nil, nil
	}
}

// Import materializes items into the container in item order and fires
// the container loaded notification. Item geometry and state override
// the store defaults.
func Import(st *store.Store, containerID uuid.UUID, items []Item) error {
	for _, it := range items {
		kind, content, err := ToContent(it)
		if err != nil {
			return err
		}

		prov := it.Metadata.Provenance
		if prov == "" {
			prov = layer.ProvenanceImport
		}
		opts := []store.AddOption{
			store.WithName(it.Metadata.Name),
			store.WithPosition(it.Position.X, it.Position.Y),
			store.WithProvenance(prov),
		}
		if it.Metadata.SessionID != uuid.Nil {
			opts = append(opts, store.WithSessionID(it.Metadata.SessionID))
		}

		id, err := st.AddLayer(containerID, kind, content, opts...)
		if err != nil {
			return fmt.Errorf("artifact: import %s: %w", it.ID, err)
		}

		bounds := layer.BoundingBox{
			X: it.Position.X, Y: it.Position.Y,
			Width: it.Size.Width, Height: it.Size.Height,
		}
		visible := it.Metadata.Visible
		opacity := clamp01(it.Metadata.Opacity)
		blend := layer.ParseBlendMode(it.Metadata.BlendMode)
		patch := store.Patch{
			Visible:   &visible,
			Opacity:   &opacity,
			BlendMode: &blend,
		}
		if it.Size.Width > 0 && it.Size.Height > 0 {
			patch.Bounds = &bounds
		}
		if err := st.UpdateLayer(containerID, id, patch); err != nil {
			return fmt.Errorf("artifact: import %s: %w", it.ID, err)
		}
	}

	st.NotifyLoaded(containerID)
	return nil
}

// Export serializes the container and fires the container saved
// notification.
func Export(st *store.Store, containerID uuid.UUID) ([]Item, error) {
	cont, err := st.Container(containerID)
	if err != nil {
		return nil, err
	}
	items := FromContainer(cont)
	st.NotifySaved(containerID)
	return items, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
