package cache

import (
	"sync"
	"time"
)

// Item represents a cached item with expiration
type Item[V any] struct {
	Value      V
	Expiration int64
}

// Expired checks if the cache item has expired
func (item Item[V]) Expired(now int64) bool {
	if item.Expiration == 0 {
		return false
	}
	return now > item.Expiration
}

// Options configures a Cache.
type Options struct {
	DefaultExpiration time.Duration
	CleanupInterval   time.Duration
	MaxItems          int
}

// Cache is a thread-safe in-memory cache with expiration
type Cache[V any] struct {
	items             map[string]Item[V]
	mu                sync.RWMutex
	defaultExpiration time.Duration
	maxItems          int
	onEvicted         func(string, V)
	now               func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new cache. A cleanup goroutine runs while CleanupInterval > 0
// and is stopped by Close.
func New[V any](opts Options) *Cache[V] {
	c := &Cache[V]{
		items:             make(map[string]Item[V]),
		defaultExpiration: opts.DefaultExpiration,
		maxItems:          opts.MaxItems,
		now:               time.Now,
		stop:              make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.startCleanupTimer(opts.CleanupInterval)
	}

	return c
}

// Set adds an item to the cache with the default expiration
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithExpiration(key, value, c.defaultExpiration)
}

// SetWithExpiration adds an item to the cache with a specific expiration time
func (c *Cache[V]) SetWithExpiration(key string, value V, d time.Duration) {
	var exp int64
	if d > 0 {
		exp = c.now().Add(d).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if we need to evict an item first
	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	c.items[key] = Item[V]{
		Value:      value,
		Expiration: exp,
	}
}

// Get retrieves an item from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	item, found := c.items[key]
	if !found || item.Expired(c.now().UnixNano()) {
		return zero, false
	}

	return item.Value, true
}

// Delete removes an item from the cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, found := c.items[key]; found && c.onEvicted != nil {
		c.onEvicted(key, item.Value)
	}

	delete(c.items, key)
}

// Flush removes all items from the cache
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvicted != nil {
		for k, v := range c.items {
			c.onEvicted(k, v.Value)
		}
	}

	c.items = make(map[string]Item[V])
}

// Count returns the number of items in the cache (including expired items)
func (c *Cache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// SetOnEvicted sets the callback to be called when an item is evicted
func (c *Cache[V]) SetOnEvicted(f func(string, V)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onEvicted = f
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
}

func (c *Cache[V]) startCleanupTimer(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

// deleteExpired deletes all expired items from the cache
func (c *Cache[V]) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for k, v := range c.items {
		if v.Expired(now) {
			if c.onEvicted != nil {
				c.onEvicted(k, v.Value)
			}
			delete(c.items, k)
		}
	}
}

// evictOldest removes the item closest to expiring. Items without
// expiration are evicted last.
func (c *Cache[V]) evictOldest() {
	var oldestKey string
	var oldestTime int64
	found := false

	for k, v := range c.items {
		exp := v.Expiration
		if exp == 0 {
			exp = int64(^uint64(0) >> 1)
		}
		if !found || exp < oldestTime {
			oldestKey = k
			oldestTime = exp
			found = true
		}
	}

	if !found {
		return
	}
	if c.onEvicted != nil {
		c.onEvicted(oldestKey, c.items[oldestKey].Value)
	}
	delete(c.items, oldestKey)
}
