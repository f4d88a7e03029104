package artifact

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/gogpu/canvas/layer"
	"github.com/gogpu/canvas/store"
)

func imageItem() Item {
	return Item{
		ID:   uuid.New(),
		Type: "image",
		Content: Content{
			URL:             "https://example.com/cat.png",
			Format:          "png",
			NaturalWidth:    640,
			NaturalHeight:   480,
			VersionURLs:     []string{"v0.png", "v1.png"},
			SelectedVersion: 1,
			Prompt:          "a cat",
			Model:           "gen-2",
			Seed:            42,
		},
		Position: Position{X: 10, Y: 10},
		Size:     Size{Width: 100, Height: 100},
		Metadata: Metadata{
			Name:      "Cat",
			Opacity:   0.8,
			BlendMode: "multiply",
			Visible:   true,
		},
	}
}

func textItem() Item {
	return Item{
		ID:   uuid.New(),
		Type: "text",
		Content: Content{
			Text:       "Hello",
			FontFamily: "Go",
			FontSize:   24,
			Bold:       true,
			Color:      "#222222",
			Language:   "en-US",
		},
		Position: Position{X: 5, Y: 7},
		Size:     Size{Width: 80, Height: 30},
		Metadata: Metadata{Name: "Title", Opacity: 1, BlendMode: "normal", Visible: true},
	}
}

// Importing an item and exporting it back must preserve type, position,
// and primary content for every supported variant.
func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		item Item
	}{
		{"image", imageItem()},
		{"text", textItem()},
		{"group", Item{
			ID: uuid.New(), Type: "group",
			Position: Position{X: 1, Y: 2},
			Metadata: Metadata{Name: "G", Opacity: 1, BlendMode: "normal", Visible: true},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.New()
			cid := st.CreateContainer(uuid.New(), uuid.Nil)

			if err := Import(st, cid, []Item{tt.item}); err != nil {
				t.Fatalf("Import: %v", err)
			}
			items, err := Export(st, cid)
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			if len(items) != 1 {
				t.Fatalf("exported %d items, want 1", len(items))
			}
			got := items[0]

			if got.Type != tt.item.Type {
				t.Errorf("type = %q, want %q", got.Type, tt.item.Type)
			}
			if diff := cmp.Diff(tt.item.Position, got.Position); diff != "" {
				t.Errorf("position mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.item.Content, got.Content); diff != "" {
				t.Errorf("content mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.item.Size, got.Size); diff != "" {
				t.Errorf("size mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestImportPreservesOrder(t *testing.T) {
	st := store.New()
	cid := st.CreateContainer(uuid.New(), uuid.Nil)

	a, b := imageItem(), textItem()
	if err := Import(st, cid, []Item{a, b}); err != nil {
		t.Fatalf("Import: %v", err)
	}

	items, err := Export(st, cid)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(items) != 2 || items[0].Type != "image" || items[1].Type != "text" {
		t.Errorf("paint order not preserved: %v, %v", items[0].Type, items[1].Type)
	}
}

func TestImportRejectsUnknownType(t *testing.T) {
	st := store.New()
	cid := st.CreateContainer(uuid.New(), uuid.Nil)

	err := Import(st, cid, []Item{{ID: uuid.New(), Type: "hologram"}})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("Import = %v, want ErrUnsupportedType", err)
	}
}

func TestImportDefaultsProvenance(t *testing.T) {
	st := store.New()
	cid := st.CreateContainer(uuid.New(), uuid.Nil)

	if err := Import(st, cid, []Item{imageItem()}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	cont, err := st.Container(cid)
	if err != nil {
		t.Fatalf("Container: %v", err)
	}
	l := cont.Layers[cont.Order[0]]
	if l.Meta.Provenance != layer.ProvenanceImport {
		t.Errorf("provenance = %q, want import", l.Meta.Provenance)
	}
	if l.BlendMode != layer.BlendMultiply {
		t.Errorf("blend mode = %v, want multiply", l.BlendMode)
	}
	if l.Opacity != 0.8 {
		t.Errorf("opacity = %g, want 0.8", l.Opacity)
	}
}

func TestExportNotifies(t *testing.T) {
	st := store.New()
	cid := st.CreateContainer(uuid.New(), uuid.Nil)
	sub, cancel := st.Events().Subscribe(4)
	defer cancel()

	if _, err := Export(st, cid); err != nil {
		t.Fatalf("Export: %v", err)
	}

	ev := <-sub
	saved, ok := ev.(store.ContainerSaved)
	if !ok || saved.ContainerID != cid {
		t.Errorf("event = %#v, want ContainerSaved for %s", ev, cid)
	}
}

func TestFromLayerSessionLink(t *testing.T) {
	sid := uuid.New()
	l := layer.New(layer.KindImage, "gen")
	l.Meta.SessionID = sid
	l.Image = &layer.ImageContent{SourceURL: "x.png"}

	it := FromLayer(l)
	if it.Metadata.SessionID != sid {
		t.Errorf("session id = %s, want %s", it.Metadata.SessionID, sid)
	}
}
