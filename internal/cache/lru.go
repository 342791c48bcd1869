// Package cache holds decoded raster buffers in memory, keyed by source
// identifier and bounded by their total byte size.
package cache

import (
	"container/list"
	"math"
	"runtime/debug"
	"sync"

	"github.com/ironsheep/image-decode/internal/imaging"
)

// assumedHeapBudget is used for DefaultCapacity when no GOMEMLIMIT is set.
const assumedHeapBudget int64 = 512 << 20

// DefaultCapacity returns one eighth of the process heap budget: the soft
// memory limit if one is set, otherwise 512 MiB.
func DefaultCapacity() int64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		limit = assumedHeapBudget
	}
	return limit / 8
}

// EvictFunc is called, without the cache lock held, for every entry
// dropped to make room.
type EvictFunc func(key string, buf *imaging.RasterBuffer)

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int    `json:"entries"`
	Size      int64  `json:"size_bytes"`
	Capacity  int64  `json:"capacity_bytes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type entry struct {
	key    string
	buf    *imaging.RasterBuffer
	weight int64
}

// LRU is a least-recently-used cache weighted by RasterBuffer.ByteCount.
//
// It is safe for concurrent use. Its lock is independent of the decode
// throttle and is never held while decoding.
//
// Buffers returned by Get are shared with the cache and with other callers;
// they must be treated as read-only. Eviction drops the cache's reference
// and leaves reclaiming the memory to the garbage collector, so a buffer a
// caller still holds stays valid.
type LRU struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	ll        *list.List
	items     map[string]*list.Element
	onEvict   EvictFunc
	hits      uint64
	misses    uint64
	evictions uint64
}

// Option configures an LRU.
type Option func(*LRU)

// WithEvictFunc registers a callback for evicted entries.
func WithEvictFunc(fn EvictFunc) Option {
	return func(c *LRU) { c.onEvict = fn }
}

// New returns an empty cache holding at most capacity bytes. A capacity of
// zero or less means DefaultCapacity.
func New(capacity int64, opts ...Option) *LRU {
	if capacity <= 0 {
		capacity = DefaultCapacity()
	}
	c := &LRU{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the buffer stored under key and marks it most recently used.
func (c *LRU) Get(key string) (*imaging.RasterBuffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.ll.MoveToFront(el)
	return el.Value.(*entry).buf, true
}

// Put stores buf under key, replacing any previous entry, then evicts least
// recently used entries until the cache fits its capacity. An entry larger
// than the whole capacity is evicted straight away.
func (c *LRU) Put(key string, buf *imaging.RasterBuffer) {
	if buf == nil {
		return
	}
	weight := int64(buf.ByteCount())

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		c.size += weight - e.weight
		e.buf = buf
		e.weight = weight
		c.ll.MoveToFront(el)
	} else {
		c.items[key] = c.ll.PushFront(&entry{key: key, buf: buf, weight: weight})
		c.size += weight
	}
	evicted := c.trimLocked()
	c.mu.Unlock()

	c.notify(evicted)
}

// Remove drops the entry for key. It reports whether one existed.
func (c *LRU) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// Clear drops every entry. Counters are kept.
func (c *LRU) Clear() {
	c.mu.Lock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.size = 0
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Size returns the total weight of all entries in bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Capacity returns the maximum total weight in bytes.
func (c *LRU) Capacity() int64 {
	return c.capacity
}

// Stats returns a snapshot of the counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.ll.Len(),
		Size:      c.size,
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Keys returns the keys from most to least recently used.
func (c *LRU) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

func (c *LRU) trimLocked() []*entry {
	var evicted []*entry
	for c.size > c.capacity {
		el := c.ll.Back()
		if el == nil {
			break
		}
		evicted = append(evicted, c.removeLocked(el))
		c.evictions++
	}
	return evicted
}

func (c *LRU) removeLocked(el *list.Element) *entry {
	e := c.ll.Remove(el).(*entry)
	delete(c.items, e.key)
	c.size -= e.weight
	return e
}

func (c *LRU) notify(evicted []*entry) {
	if c.onEvict == nil {
		return
	}
	for _, e := range evicted {
		c.onEvict(e.key, e.buf)
	}
}
