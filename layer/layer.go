package layer

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the layer variant tag.
type Kind string

// Layer kind constants (the variant union).
const (
	KindImage      Kind = "image"
	KindText       Kind = "text"
	KindGroup      Kind = "group"
	KindBackground Kind = "background"
	KindEffect     Kind = "effect"
	KindMask       Kind = "mask"
)

// Valid reports whether k is a member of the variant union.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindText, KindGroup, KindBackground, KindEffect, KindMask:
		return true
	}
	return false
}

// Provenance records where a layer came from.
type Provenance string

// Provenance constants.
const (
	ProvenanceUser   Provenance = "user"
	ProvenanceAI     Provenance = "ai"
	ProvenanceImport Provenance = "import"
)

// Metadata holds bookkeeping fields common to all layers.
type Metadata struct {
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Provenance Provenance `json:"provenance"`

	// SessionID links an image layer to the external image session it
	// was materialized from. uuid.Nil means no linkage. The sync engine
	// matches on this field to update rather than duplicate layers.
	SessionID uuid.UUID `json:"sessionId,omitempty"`
}

// GenerationInfo is the optional AI-generation provenance of an image.
type GenerationInfo struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	Seed   int64  `json:"seed"`
}

// Content is the sealed union of variant-specific layer contents.
// Structural kinds (group, background, effect, mask) carry nil content.
type Content interface{ isContent() }

func (*ImageContent) isContent() {}
func (*TextContent) isContent()  {}

// ImageContent is the variant-specific content of an image layer.
type ImageContent struct {
	// SourceURL locates the pixel data (file path, http URL, or data URL).
	SourceURL string `json:"sourceUrl"`

	// NaturalWidth and NaturalHeight are the source pixel dimensions.
	NaturalWidth  int `json:"naturalWidth"`
	NaturalHeight int `json:"naturalHeight"`

	// Format is the encoded image format ("png", "jpeg", "webp").
	Format string `json:"format"`

	// Generation is set for AI-generated images.
	Generation *GenerationInfo `json:"generation,omitempty"`

	// VersionURLs holds every generated version of the image, and
	// SelectedVersion indexes the one currently displayed. Empty for
	// images without version history.
	VersionURLs     []string `json:"versionUrls,omitempty"`
	SelectedVersion int      `json:"selectedVersion,omitempty"`
}

// TextContent is the variant-specific content of a text layer.
type TextContent struct {
	Text       string  `json:"text"`
	FontFamily string  `json:"fontFamily"`
	FontSize   float64 `json:"fontSize"`
	Bold       bool    `json:"bold"`
	Italic     bool    `json:"italic"`
	Color      string  `json:"color"`

	// Language is a BCP-47 tag used for shaping and measurement.
	Language string `json:"language,omitempty"`
}

// Layer is one paintable unit in a canvas container. The variant is
// tagged by Kind; exactly one of Image/Text is non-nil for those kinds,
// both are nil for structural kinds (group, background, effect, mask).
//
// Parent and Children are relations, not ownership: the container's
// arena map owns every layer, and the relations form a forest (validated
// against cycles at the mutation boundary). ZIndex always equals the
// layer's index in the container's order list; it is never written
// independently.
type Layer struct {
	ID       uuid.UUID   `json:"id"`
	Name     string      `json:"name"`
	Kind     Kind        `json:"type"`
	Parent   uuid.UUID   `json:"parentId,omitempty"` // uuid.Nil = top level
	Children []uuid.UUID `json:"childrenIds,omitempty"`
	ZIndex   int         `json:"zIndex"`

	Transform Transform   `json:"transform"`
	Bounds    BoundingBox `json:"boundingBox"`

	Visible   bool      `json:"visible"`
	Locked    bool      `json:"locked"`
	Opacity   float64   `json:"opacity"` // [0, 1]
	BlendMode BlendMode `json:"blendMode"`

	Style *Style    `json:"style,omitempty"`
	Mask  uuid.UUID `json:"maskId,omitempty"` // uuid.Nil = no mask

	Image *ImageContent `json:"image,omitempty"`
	Text  *TextContent  `json:"text,omitempty"`

	Meta Metadata `json:"metadata"`
}

// New creates a layer of the given kind with default placement and full
// opacity. The caller fills in variant content and bounds.
func New(kind Kind, name string) *Layer {
	now := time.Now()
	return &Layer{
		ID:        uuid.New(),
		Name:      name,
		Kind:      kind,
		Transform: DefaultTransform(),
		Visible:   true,
		Opacity:   1,
		BlendMode: BlendNormal,
		Meta: Metadata{
			CreatedAt:  now,
			UpdatedAt:  now,
			Provenance: ProvenanceUser,
		},
	}
}

// Clone returns a deep copy of the layer. Used for undo snapshots and
// event payloads so subscribers never alias store-owned state.
func (l *Layer) Clone() *Layer {
	if l == nil {
		return nil
	}
	c := *l
	c.Children = append([]uuid.UUID(nil), l.Children...)
	if l.Style != nil {
		st := *l.Style
		st.Filters = append([]Filter(nil), l.Style.Filters...)
		if l.Style.Shadow != nil {
			sh := *l.Style.Shadow
			st.Shadow = &sh
		}
		if l.Style.Border != nil {
			b := *l.Style.Border
			st.Border = &b
		}
		c.Style = &st
	}
	if l.Image != nil {
		img := *l.Image
		img.VersionURLs = append([]string(nil), l.Image.VersionURLs...)
		if l.Image.Generation != nil {
			g := *l.Image.Generation
			img.Generation = &g
		}
		c.Image = &img
	}
	if l.Text != nil {
		t := *l.Text
		c.Text = &t
	}
	return &c
}

// HasMask returns true if a mask layer is attached.
func (l *Layer) HasMask() bool { return l.Mask != uuid.Nil }

// EffectiveKind helpers.

// IsStructural returns true for kinds that never issue draw calls
// themselves (groups gate visibility of descendants).
func (l *Layer) IsStructural() bool {
	return l.Kind == KindGroup || l.Kind == KindEffect || l.Kind == KindMask
}
