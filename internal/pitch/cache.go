package pitch

import (
	"container/list"
	"fmt"
)

// Cache is an LRU of preprocessed pitch-shifted buffers keyed by slot and
// quantized ratio. Capped by entry count and by total payload bytes. Host
// thread only.
type Cache struct {
	maxEntries int
	maxBytes   int64
	bytes      int64
	order      *list.List
	entries    map[string]*list.Element
}

type cacheEntry struct {
	key    string
	frames []float32
}

// NewCache creates a cache holding at most maxEntries buffers and maxBytes
// of decoded audio.
func NewCache(maxEntries int, maxBytes int64) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// cacheKey folds ratios that round to the same thousandth onto one key.
func cacheKey(slot int, ratio float64) string {
	return fmt.Sprintf("%d:%.3f", slot, ratio)
}

// Get returns the cached buffer for (slot, ratio) and marks it recently used.
func (c *Cache) Get(slot int, ratio float64) ([]float32, bool) {
	el, ok := c.entries[cacheKey(slot, ratio)]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).frames, true
}

// Put stores a buffer, evicting least-recently-used entries as needed.
func (c *Cache) Put(slot int, ratio float64, frames []float32) {
	key := cacheKey(slot, ratio)
	if el, ok := c.entries[key]; ok {
		old := el.Value.(*cacheEntry)
		c.bytes += int64(len(frames)-len(old.frames)) * 4
		old.frames = frames
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&cacheEntry{key: key, frames: frames})
		c.entries[key] = el
		c.bytes += int64(len(frames)) * 4
	}
	for (c.order.Len() > c.maxEntries || c.bytes > c.maxBytes) && c.order.Len() > 1 {
		c.evictOldest()
	}
}

// DropSlot removes every entry for a slot. Called on unload and when the
// slot's sample changes.
func (c *Cache) DropSlot(slot int) {
	prefix := fmt.Sprintf("%d:", slot)
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*cacheEntry)
		if len(e.key) > len(prefix) && e.key[:len(prefix)] == prefix {
			c.bytes -= int64(len(e.frames)) * 4
			c.order.Remove(el)
			delete(c.entries, e.key)
		}
		el = next
	}
}

// Len returns the number of cached buffers.
func (c *Cache) Len() int { return c.order.Len() }

// Bytes returns the total payload size.
func (c *Cache) Bytes() int64 { return c.bytes }

func (c *Cache) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	e := el.Value.(*cacheEntry)
	c.bytes -= int64(len(e.frames)) * 4
	c.order.Remove(el)
	delete(c.entries, e.key)
}
