// Package cache is the in-memory response cache. Entries are keyed by
// command, payload fingerprint, and workspace version, so a version bump
// invalidates every derived response without any sweeping.
package cache

import (
	"container/list"
	"fmt"
	"time"

	"sync"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"
)

// compressThreshold is the value size above which bodies are stored
// zstd-compressed. Small responses are not worth the frame.
const compressThreshold = 4096

// Options configures a Cache.
type Options struct {
	Capacity int           // max entries; <=0 means 512
	TTL      time.Duration // per-entry lifetime; <=0 means 5 minutes
}

// Stats are the cache's running counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

type entry struct {
	key        string
	value      []byte
	compressed bool
	createdAt  time.Time
}

// Cache is a bounded LRU with TTL expiry and request coalescing.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	lru      *list.List // front = most recent

	group singleflight.Group
	enc   *zstd.Encoder
	dec   *zstd.Decoder

	hits, misses, evictions uint64

	now func() time.Time
}

// New creates a Cache.
func New(opts Options) *Cache {
	if opts.Capacity <= 0 {
		opts.Capacity = 512
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)
	return &Cache{
		capacity: opts.Capacity,
		ttl:      opts.TTL,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		enc:      enc,
		dec:      dec,
		now:      time.Now,
	}
}

func cacheKey(command, fingerprint string, version uint64) string {
	return fmt.Sprintf("%s:%s:%d", command, fingerprint, version)
}

// Get returns the cached value, or a miss on absence or TTL expiry.
// Expired entries are deleted on the way out.
func (c *Cache) Get(command, fingerprint string, version uint64) ([]byte, bool) {
	key := cacheKey(command, fingerprint, version)

	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.createdAt) > c.ttl {
		c.lru.Remove(el)
		delete(c.entries, key)
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.hits++
	value, compressed := e.value, e.compressed
	c.mu.Unlock()

	if !compressed {
		return value, true
	}
	decoded, err := c.dec.DecodeAll(value, nil)
	if err != nil {
		// A corrupt entry is treated as a miss and dropped.
		c.Invalidate(command, fingerprint, version)
		return nil, false
	}
	return decoded, true
}

// Put stores value under the key, evicting the LRU tail at capacity.
func (c *Cache) Put(command, fingerprint string, version uint64, value []byte) {
	key := cacheKey(command, fingerprint, version)

	stored := value
	compressed := false
	if len(value) > compressThreshold {
		stored = c.enc.EncodeAll(value, nil)
		compressed = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.value = stored
		e.compressed = compressed
		e.createdAt = c.now()
		c.lru.MoveToFront(el)
		return
	}

	c.entries[key] = c.lru.PushFront(&entry{
		key:        key,
		value:      stored,
		compressed: compressed,
		createdAt:  c.now(),
	})

	for c.lru.Len() > c.capacity {
		tail := c.lru.Back()
		c.lru.Remove(tail)
		delete(c.entries, tail.Value.(*entry).key)
		c.evictions++
	}
}

// Do returns the cached value or computes it exactly once, however many
// identical requests arrive concurrently. The bool reports whether the
// value was served without a fresh computation for this caller, either
// from the cache or from a coalesced in-flight call.
func (c *Cache) Do(command, fingerprint string, version uint64, fn func() ([]byte, error)) ([]byte, bool, error) {
	if value, ok := c.Get(command, fingerprint, version); ok {
		return value, true, nil
	}

	key := cacheKey(command, fingerprint, version)
	v, err, shared := c.group.Do(key, func() (any, error) {
		value, err := fn()
		if err != nil {
			return nil, err
		}
		c.Put(command, fingerprint, version, value)
		return value, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), shared, nil
}

// Invalidate removes one entry.
func (c *Cache) Invalidate(command, fingerprint string, version uint64) {
	key := cacheKey(command, fingerprint, version)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.lru.Remove(el)
		delete(c.entries, key)
	}
}

// Purge drops every entry. Counters survive.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}

// Stats returns the running counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
	}
}
