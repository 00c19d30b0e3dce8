package preview

import (
	"container/list"
	"sync"
)

// DefaultMemoryLimit is the default byte limit of the memory cache.
const DefaultMemoryLimit = 10 * 1024 * 1024

// MemoryStats describe the usage of a memory cache.
type MemoryStats struct {
	Entries   int
	Bytes     int
	MaxBytes  int
	Hits      int
	Misses    int
	Evictions int
}

// MemoryCache is a least recently used cache of previews that is bounded by
// the total size of its entries. It is safe for concurrent use.
type MemoryCache struct {
	mu       sync.Mutex
	maxBytes int
	bytes    int
	order    *list.List // front is most recently used
	entries  map[string]*list.Element

	hits      int
	misses    int
	evictions int
}

type memoryEntry struct {
	key  string
	data *Data
	size int
}

// NewMemoryCache returns a cache limited to maxBytes, 0 uses
// DefaultMemoryLimit.
func NewMemoryCache(maxBytes int) *MemoryCache {
	if maxBytes <= 0 {
		maxBytes = DefaultMemoryLimit
	}
	return &MemoryCache{
		maxBytes: maxBytes,
		order:    list.New(),
		entries:  map[string]*list.Element{},
	}
}

// Get returns the cached preview and marks it as recently used.
func (c *MemoryCache) Get(key string) (*Data, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return elem.Value.(*memoryEntry).data, true
}

// Put stores a preview, evicting the least recently used entries until it
// fits. Previews larger than the limit are not stored and false is returned.
func (c *MemoryCache) Put(key string, data *Data) bool {
	size := data.SizeBytes()

	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.maxBytes {
		return false
	}
	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}

	for c.bytes+size > c.maxBytes {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.evictions++
	}

	c.entries[key] = c.order.PushFront(&memoryEntry{key: key, data: data, size: size})
	c.bytes += size
	return true
}

// Remove deletes the preview of the key.
func (c *MemoryCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
}

// Clear removes all previews.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = map[string]*list.Element{}
	c.bytes = 0
}

// Stats returns the usage counters.
func (c *MemoryCache) Stats() MemoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return MemoryStats{
		Entries:   len(c.entries),
		Bytes:     c.bytes,
		MaxBytes:  c.maxBytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *MemoryCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.key)
	c.bytes -= entry.size
}
