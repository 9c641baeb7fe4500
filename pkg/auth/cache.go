package auth

import (
	"container/list"
	"sync"
	"time"
)

// DefaultCacheSize and DefaultCacheTTL bound the key cache.
const (
	DefaultCacheSize = 10_000
	DefaultCacheTTL  = 5 * time.Minute
)

type cacheEntry struct {
	hash      string
	identity  Identity
	expiresAt time.Time
}

// Cache holds validated identities keyed by token hash. When full it evicts
// the entry inserted first; reads do not change eviction order.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	capacity int
	now      func() time.Time
}

// NewCache creates a cache holding at most capacity entries.
func NewCache(capacity int, now func() time.Time) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		now:      now,
	}
}

// Get returns the identity cached for hash if it has not expired.
func (c *Cache) Get(hash string) (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[hash]
	if !ok {
		return Identity{}, false
	}
	e := el.Value.(*cacheEntry)
	if !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		return Identity{}, false
	}
	return e.identity, true
}

// Put inserts an identity valid until expiresAt. Expired entries are purged
// first; if the cache is still full the oldest insertion is evicted.
func (c *Cache) Put(hash string, identity Identity, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[hash]; ok {
		c.removeElement(el)
	}
	c.purgeLocked()
	if c.order.Len() >= c.capacity {
		c.removeElement(c.order.Front())
	}

	el := c.order.PushBack(&cacheEntry{hash: hash, identity: identity, expiresAt: expiresAt})
	c.entries[hash] = el
}

// Delete drops the entry for hash.
func (c *Cache) Delete(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[hash]; ok {
		c.removeElement(el)
	}
}

// Purge removes every expired entry and returns how many were dropped.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked()
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) purgeLocked() int {
	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*cacheEntry).expiresAt) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *Cache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).hash)
}
