package generators

import (
	"sync"
	"time"

	"brand-studio/server/internal/models"
)

// imageEntry is the image state of one world
type imageEntry struct {
	image     models.WorldImage
	updatedAt time.Time
}

// ImageCache holds per-world image state for one workspace
type ImageCache struct {
	entries    map[string]*imageEntry
	maxEntries int
	mu         sync.RWMutex
}

// NewImageCache creates a cache; maxEntries <= 0 means unbounded.
func NewImageCache(maxEntries int) *ImageCache {
	return &ImageCache{
		entries:    make(map[string]*imageEntry),
		maxEntries: maxEntries,
	}
}

// MarkLoading flags a world's image as in flight. It reports false when a
// generation for that world is already running.
func (c *ImageCache) MarkLoading(worldID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[worldID]; ok && e.image.Loading {
		return false
	}
	prev := c.entries[worldID]
	img := models.WorldImage{Loading: true}
	if prev != nil {
		img.URL = prev.image.URL
	}
	c.put(worldID, img)
	return true
}

// Put stores a finished image
func (c *ImageCache) Put(worldID, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(worldID, models.WorldImage{URL: url})
}

// Fail records a failed generation and keeps any earlier image.
func (c *ImageCache) Fail(worldID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	img := models.WorldImage{Error: err.Error()}
	if prev, ok := c.entries[worldID]; ok {
		img.URL = prev.image.URL
	}
	c.put(worldID, img)
}

func (c *ImageCache) put(worldID string, img models.WorldImage) {
	c.entries[worldID] = &imageEntry{image: img, updatedAt: time.Now()}
	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictOldest()
	}
}

// Get returns the image state of a world
func (c *ImageCache) Get(worldID string) (models.WorldImage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[worldID]
	if !ok {
		return models.WorldImage{}, false
	}
	return e.image, true
}

// Snapshot copies every entry
func (c *ImageCache) Snapshot() map[string]models.WorldImage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]models.WorldImage, len(c.entries))
	for id, e := range c.entries {
		out[id] = e.image
	}
	return out
}

// Invalidate removes one world's entry unless a generation is running.
func (c *ImageCache) Invalidate(worldID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[worldID]; ok && !e.image.Loading {
		delete(c.entries, worldID)
	}
}

// Clear removes all entries
func (c *ImageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*imageEntry)
}

// evictOldest drops the least recently updated entry that is not loading
func (c *ImageCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, e := range c.entries {
		if e.image.Loading {
			continue
		}
		if oldestTime.IsZero() || e.updatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.updatedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
