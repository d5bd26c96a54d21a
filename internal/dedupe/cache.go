// ABOUTME: Thread-safe TTL cache for deduplicating Telegram update ids.
// ABOUTME: Prevents reprocessing updates redelivered across polling retries.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores the timestamp and list element for a cached update id.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited record of update ids the
// bot has already processed. Telegram redelivers updates until they are
// acknowledged by the next getUpdates offset, so a crash-restart or a failed
// poll can hand the same update out twice. A doubly-linked list maintains
// insertion order for O(1) eviction.
type Cache struct {
	mu      sync.RWMutex
	seen    map[int64]*cacheEntry
	order   *list.List // update ids in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedupe cache with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[int64]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Check returns true if the update id has been seen and is not expired.
func (c *Cache) Check(updateID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.seen[updateID]
	if !ok {
		return false
	}
	return time.Since(entry.timestamp) < c.ttl
}

// CheckAndMark atomically checks whether an update id has been seen and
// marks it if not. Returns true for a duplicate, false if the id is new and
// now marked. The single locked operation avoids the TOCTOU race of separate
// Check/Mark calls.
func (c *Cache) CheckAndMark(updateID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[updateID]
	if ok && time.Since(entry.timestamp) < c.ttl {
		return true
	}

	c.markLocked(updateID)
	return false
}

// Mark records that an update id has been seen. If the cache is at capacity,
// the oldest entry is evicted to make room.
func (c *Cache) Mark(updateID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(updateID)
}

// markLocked is the internal mark implementation. Must be called with mu held.
func (c *Cache) markLocked(updateID int64) {
	now := time.Now()

	if entry, exists := c.seen[updateID]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(updateID)
	c.seen[updateID] = &cacheEntry{
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	id, _ := front.Value.(int64)
	c.order.Remove(front)
	delete(c.seen, id)
}

// cleanup runs in a background goroutine, periodically removing expired
// entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, id)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
