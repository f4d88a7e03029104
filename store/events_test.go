package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/canvas/layer"
)

func TestBusPublishSubscribe(t *testing.T) {
	b := NewBus(nil)
	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Publish(ContainerLoaded{ContainerID: uuid.New()})
	ev := <-ch
	_, ok := ev.(ContainerLoaded)
	assert.True(t, ok, "got %T", ev)
}

func TestBusSlowSubscriberDrops(t *testing.T) {
	b := NewBus(nil)
	ch, cancel := b.Subscribe(1)
	defer cancel()

	// Fill the buffer, then publish again; the second publish must not
	// block and the extra event is dropped.
	b.Publish(ContainerSaved{})
	done := make(chan struct{})
	go func() {
		b.Publish(ContainerSaved{})
		close(done)
	}()
	<-done

	<-ch
	select {
	case <-ch:
		t.Fatal("dropped event unexpectedly delivered")
	default:
	}
}

func TestBusCancelIdempotent(t *testing.T) {
	b := NewBus(nil)
	_, cancel := b.Subscribe(1)
	cancel()
	cancel() // must not panic
	b.Publish(ContainerSaved{})
}

func TestBusCancelAfterClose(t *testing.T) {
	b := NewBus(nil)
	ch, cancel := b.Subscribe(1)
	b.Close()
	cancel() // channel already closed by Close; must not panic

	_, open := <-ch
	assert.False(t, open, "channel should be closed")
}

func TestStoreEmitsMinimalDeltas(t *testing.T) {
	s, cid := newTestStore(t)
	events, cancel := s.Events().Subscribe(16)
	defer cancel()

	id, err := s.AddLayer(cid, layer.KindImage, &layer.ImageContent{SourceURL: "u"})
	require.NoError(t, err)

	created := (<-events).(LayerCreated)
	assert.Equal(t, id, created.Layer.ID)

	// The update event carries only the changed fields.
	op := 0.7
	require.NoError(t, s.UpdateLayer(cid, id, Patch{Opacity: &op}))
	updated := (<-events).(LayerUpdated)
	require.NotNil(t, updated.Patch.Opacity)
	assert.Equal(t, 0.7, *updated.Patch.Opacity)
	assert.Nil(t, updated.Patch.Transform)
	assert.Nil(t, updated.Patch.Image)

	require.NoError(t, s.DeleteLayer(cid, id))
	deleted := (<-events).(LayerDeleted)
	assert.Equal(t, id, deleted.LayerID)
}

func TestEventLayerCopyIsIsolated(t *testing.T) {
	s, cid := newTestStore(t)
	events, cancel := s.Events().Subscribe(4)
	defer cancel()

	id, err := s.AddLayer(cid, layer.KindText, &layer.TextContent{Text: "before"})
	require.NoError(t, err)
	created := (<-events).(LayerCreated)

	// Mutating the event payload must not touch store state.
	created.Layer.Text.Text = "mutated"
	c, _ := s.Container(cid)
	assert.Equal(t, "before", c.Layer(id).Text.Text)
}
