package compositor

import (
	"testing"

	"github.com/google/uuid"
)

func TestTextureCacheGetMissAndHit(t *testing.T) {
	c := NewTextureCache(1, nil)
	id := uuid.New()

	if _, ok := c.Get(id, 1); ok {
		t.Fatal("empty cache should miss")
	}

	c.Put(id, TextureID(7), 1, 1024, false)
	tex, ok := c.Get(id, 1)
	if !ok || tex != 7 {
		t.Fatalf("Get = (%d, %v), want (7, true)", tex, ok)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestTextureCacheHashMismatchDropsEntry(t *testing.T) {
	released := make(map[TextureID]bool)
	c := NewTextureCache(1, func(id TextureID) { released[id] = true })
	id := uuid.New()

	c.Put(id, TextureID(1), 100, 512, false)
	if _, ok := c.Get(id, 200); ok {
		t.Fatal("hash mismatch must miss")
	}
	if !released[1] {
		t.Error("stale texture was not released")
	}
	// The stale entry is gone entirely.
	if _, ok := c.Get(id, 100); ok {
		t.Error("stale entry should have been dropped")
	}
}

func TestTextureCacheMarkDirty(t *testing.T) {
	c := NewTextureCache(1, nil)
	id := uuid.New()

	c.Put(id, TextureID(1), 5, 512, false)
	c.MarkDirty(id)
	if _, ok := c.Get(id, 5); ok {
		t.Error("dirty entry must miss even with a matching hash")
	}
}

func TestTextureCacheEvictsLRUBySize(t *testing.T) {
	var released []TextureID
	c := NewTextureCache(1, func(id TextureID) { released = append(released, id) })

	a, b, d := uuid.New(), uuid.New(), uuid.New()
	half := int64(bytesPerMB / 2)

	c.Put(a, TextureID(1), 1, half, false)
	c.Put(b, TextureID(2), 2, half, false)
	c.Get(a, 1) // promote a

	c.Put(d, TextureID(3), 3, half, false)

	if _, ok := c.Get(b, 2); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if _, ok := c.Get(a, 1); !ok {
		t.Error("promoted entry should survive")
	}
	if len(released) == 0 || released[0] != 2 {
		t.Errorf("released = %v, want [2 ...]", released)
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestTextureCacheOversizedEntryReleasedImmediately(t *testing.T) {
	released := false
	c := NewTextureCache(1, func(TextureID) { released = true })

	c.Put(uuid.New(), TextureID(1), 1, 2*bytesPerMB, false)
	if !released {
		t.Error("oversized texture must be released, not cached")
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d, want 0", c.Size())
	}
}

func TestTextureCacheInvalidateAndClear(t *testing.T) {
	count := 0
	c := NewTextureCache(1, func(TextureID) { count++ })

	a, b := uuid.New(), uuid.New()
	c.Put(a, TextureID(1), 1, 256, false)
	c.Put(b, TextureID(2), 2, 256, false)

	c.Invalidate(a)
	if count != 1 {
		t.Errorf("released %d textures after Invalidate, want 1", count)
	}

	c.Clear()
	if count != 2 {
		t.Errorf("released %d textures after Clear, want 2", count)
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d, want 0", c.Size())
	}
}

func TestTextureCachePutReplacesExisting(t *testing.T) {
	var released []TextureID
	c := NewTextureCache(1, func(id TextureID) { released = append(released, id) })
	id := uuid.New()

	c.Put(id, TextureID(1), 1, 256, false)
	c.Put(id, TextureID(2), 2, 256, false)

	if len(released) != 1 || released[0] != 1 {
		t.Errorf("released = %v, want [1]", released)
	}
	if tex, ok := c.Get(id, 2); !ok || tex != 2 {
		t.Errorf("Get = (%d, %v), want (2, true)", tex, ok)
	}
}
