package dataset

import (
	"container/list"
	"fmt"
	"sync"
)

// Cache is an LRU cache of preprocessed images keyed by file path.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List
	maxSize int

	hits   int64
	misses int64
}

type cacheEntry struct {
	key  string
	data []float32
}

// NewCache creates a cache holding at most maxSize images. A non-positive
// maxSize disables caching.
func NewCache(maxSize int) *Cache {
	return &Cache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

// Get returns the cached image for key and marks it most recently used.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		c.hits++
		return elem.Value.(*cacheEntry).data, true
	}
	c.misses++
	return nil, false
}

// Put stores data under key, evicting the least recently used entries
// beyond capacity.
func (c *Cache) Put(key string, data []float32) {
	if c.maxSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).data = data
		c.lru.MoveToFront(elem)
		return
	}
	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, data: data})
	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Clear drops every entry. Hit statistics are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CacheStats{Size: c.lru.Len(), MaxSize: c.maxSize, Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total) * 100
	}
	return s
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
	HitRate float64
}

func (cs CacheStats) String() string {
	return fmt.Sprintf("Cache: %d/%d items, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		cs.Size, cs.MaxSize, cs.Hits, cs.Misses, cs.HitRate)
}
