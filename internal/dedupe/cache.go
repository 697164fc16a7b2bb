// ABOUTME: TTL cache of seen gateway message IDs used to drop replayed responses.
// ABOUTME: Size-bounded with O(1) insertion-order eviction.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry pairs a key's mark time with its position in the eviction order.
type entry struct {
	markedAt time.Time
	element  *list.Element
}

// Cache remembers message IDs for a TTL window so a replayed gateway
// response can be recognized and dropped instead of resolving a fresh
// request. Safe for concurrent use. A zero-size or zero-TTL cache is not
// valid; use New.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // keys oldest-first
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache that remembers keys for ttl, holding at most
// maxSize entries. A background goroutine sweeps expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// CheckAndMark atomically reports whether key was already seen within the
// TTL, marking it either way. True means duplicate.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	if ok && time.Since(e.markedAt) < c.ttl {
		return true
	}
	c.markLocked(key)
	return false
}

// Check reports whether key was seen within the TTL, without marking.
func (c *Cache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	return ok && time.Since(e.markedAt) < c.ttl
}

// markLocked records key, evicting the oldest entry at capacity.
// Must be called with mu held.
func (c *Cache) markLocked(key string) {
	now := time.Now()

	if e, ok := c.seen[key]; ok {
		e.markedAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			old, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, old)
		}
	}

	c.seen[key] = &entry{
		markedAt: now,
		element:  c.order.PushBack(key),
	}
}

// sweep periodically drops expired entries until Close.
func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.seen {
				if now.Sub(e.markedAt) > c.ttl {
					c.order.Remove(e.element)
					delete(c.seen, key)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
