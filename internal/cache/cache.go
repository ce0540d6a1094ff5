// Package cache memoizes upstream lookups in process memory.
//
// Entries expire lazily: Get reports an entry older than the TTL as Expired
// but leaves it in place, and the next Put for that key overwrites it. There
// is no background sweep. When maxEntries is positive the cache also evicts
// the least recently used entry on overflow; zero means unbounded.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTTL is how long an upstream answer stays fresh.
const DefaultTTL = 24 * time.Hour

// Status describes the outcome of a Get.
type Status int

const (
	Miss Status = iota
	Hit
	Expired
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case Expired:
		return "expired"
	default:
		return "miss"
	}
}

// Entry is a memoized lookup. Values are never mutated after Put.
type Entry struct {
	Key      string
	Value    any
	StoredAt time.Time
}

// Cache is a thread-safe TTL cache with optional LRU bounding.
type Cache struct {
	ttl        time.Duration
	maxEntries int
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*node
	head    *node // most recently used
	tail    *node // least recently used
}

type node struct {
	entry Entry
	prev  *node
	next  *node
}

// New creates a cache. A nil clock uses real time.
func New(ttl time.Duration, maxEntries int, clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
		entries:    make(map[string]*node),
	}
}

// Get returns the entry for key if it is younger than the TTL.
func (c *Cache) Get(key string) (Entry, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		return Entry{}, Miss
	}
	if c.clock.Since(n.entry.StoredAt) >= c.ttl {
		return Entry{}, Expired
	}
	c.moveToFront(n)
	return n.entry, Hit
}

// Put stores value under key, replacing any previous entry.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{Key: key, Value: value, StoredAt: c.clock.Now()}

	if n, ok := c.entries[key]; ok {
		n.entry = e
		c.moveToFront(n)
		return
	}

	n := &node{entry: e}
	c.entries[key] = n
	c.addToFront(n)

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) moveToFront(n *node) {
	if n == c.head {
		return
	}
	c.remove(n)
	c.addToFront(n)
}

func (c *Cache) addToFront(n *node) {
	n.next = c.head
	n.prev = nil
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache) remove(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
}

func (c *Cache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.entry.Key)
	c.remove(c.tail)
}
