package compositor

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const bytesPerMB = 1024 * 1024

// TextureCache is an LRU cache of uploaded layer textures, keyed by
// layer id and bounded by total byte size. Entries are invalidated
// explicitly by the store's layer:updated/layer:deleted events (the
// compositor never polls for staleness) and evicted under size pressure,
// least recently used first. Evicting or invalidating an entry destroys
// its device texture through the release callback.
type TextureCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*textureEntry
	lru     *list.List
	size    int64
	maxSize int64
	release func(TextureID)

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// textureEntry is one cached texture with its bookkeeping.
type textureEntry struct {
	layerID  uuid.UUID
	texture  TextureID
	hash     uint64 // content hash at upload time
	size     int64  // bytes
	mipmaps  bool
	dirty    bool
	element  *list.Element
	lastUsed time.Time
}

// TextureCacheStats is a point-in-time view of cache counters.
type TextureCacheStats struct {
	Size      int64
	MaxSize   int64
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// NewTextureCache creates a cache with the given budget in megabytes.
// release is called for every texture dropped from the cache; it must
// not call back into the cache.
func NewTextureCache(maxSizeMB int, release func(TextureID)) *TextureCache {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultCacheSizeMB
	}
	if release == nil {
		release = func(TextureID) {}
	}
	return &TextureCache{
		entries: make(map[uuid.UUID]*textureEntry),
		lru:     list.New(),
		maxSize: int64(maxSizeMB) * bytesPerMB,
		release: release,
	}
}

// Get returns the cached texture for a layer if present, not dirty, and
// matching the given content hash. A hash mismatch counts as a miss and
// drops the stale entry.
func (c *TextureCache) Get(layerID uuid.UUID, hash uint64) (TextureID, bool) {
	c.mu.Lock()
	e, ok := c.entries[layerID]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return 0, false
	}
	if e.dirty || e.hash != hash {
		c.dropLocked(e)
		c.mu.Unlock()
		c.misses.Add(1)
		return 0, false
	}
	c.lru.MoveToFront(e.element)
	e.lastUsed = time.Now()
	tex := e.texture
	c.mu.Unlock()

	c.hits.Add(1)
	return tex, true
}

// Put stores an uploaded texture, evicting least recently used entries
// until the new entry fits. An oversized entry (larger than the whole
// budget) is released immediately and not cached.
func (c *TextureCache) Put(layerID uuid.UUID, tex TextureID, hash uint64, sizeBytes int64, mipmaps bool) {
	if sizeBytes <= 0 || sizeBytes > c.maxSize {
		c.release(tex)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[layerID]; ok {
		c.dropLocked(old)
	}
	for c.size+sizeBytes > c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.dropLocked(oldest.Value.(*textureEntry))
		c.evictions.Add(1)
	}

	e := &textureEntry{
		layerID:  layerID,
		texture:  tex,
		hash:     hash,
		size:     sizeBytes,
		mipmaps:  mipmaps,
		lastUsed: time.Now(),
	}
	e.element = c.lru.PushFront(e)
	c.entries[layerID] = e
	c.size += sizeBytes
}

// MarkDirty flags a layer's entry so the next Get misses. Used when an
// update event arrives but the new content hash is not yet known.
func (c *TextureCache) MarkDirty(layerID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[layerID]; ok {
		e.dirty = true
	}
}

// Invalidate removes a layer's entry and releases its texture.
func (c *TextureCache) Invalidate(layerID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[layerID]; ok {
		c.dropLocked(e)
	}
}

// Clear releases every cached texture.
func (c *TextureCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		c.release(e.texture)
	}
	c.entries = make(map[uuid.UUID]*textureEntry)
	c.lru.Init()
	c.size = 0
}

// Size returns current usage in bytes.
func (c *TextureCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns a snapshot of the cache counters.
func (c *TextureCache) Stats() TextureCacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	size := c.size
	c.mu.Unlock()
	return TextureCacheStats{
		Size:      size,
		MaxSize:   c.maxSize,
		Entries:   entries,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// dropLocked removes an entry and releases its texture. Caller holds mu.
func (c *TextureCache) dropLocked(e *textureEntry) {
	c.lru.Remove(e.element)
	delete(c.entries, e.layerID)
	c.size -= e.size
	c.release(e.texture)
}
