package instrument

// scalarIndex keys cache entries for attributes that have no repeated
// capability dimension.
const scalarIndex = -1

// Key identifies one cache entry. Index is the resolved 0-based position for
// indexed attributes and scalarIndex otherwise.
type Key struct {
	Path  Path
	Index int
}

// ScalarKey returns the cache key for a non-indexed attribute.
func ScalarKey(path Path) Key {
	return Key{Path: path, Index: scalarIndex}
}

type cacheEntry struct {
	value any
	valid bool

	// local entries hold driver-side state with no hardware backing. They
	// are seeded valid at registration and survive InvalidateAll.
	local bool
}

// Cache stores the last-known value of each attribute together with a
// validity flag. Values are never deleted; invalidation only clears the
// flag so stale values stay visible for debugging.
//
// Cache is not safe for concurrent use. Callers serialize access to one
// driver instance.
type Cache struct {
	entries map[Key]cacheEntry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]cacheEntry)}
}

// Read returns the stored value and whether it is still valid. A key that
// was never written reads as invalid.
func (c *Cache) Read(k Key) (any, bool) {
	e, ok := c.entries[k]
	if !ok || !e.valid {
		return e.value, false
	}
	return e.value, true
}

// Value returns the stored value regardless of validity. Used for
// diagnostics and for local state that tracks the last write.
func (c *Cache) Value(k Key) (any, bool) {
	e, ok := c.entries[k]
	return e.value, ok
}

// Write stores a value and marks it valid.
func (c *Cache) Write(k Key, v any) {
	e := c.entries[k]
	e.value = v
	e.valid = true
	c.entries[k] = e
}

// Seed stores a driver-chosen default for a local attribute. The entry is
// valid from construction and is skipped by InvalidateAll.
func (c *Cache) Seed(k Key, v any) {
	c.entries[k] = cacheEntry{value: v, valid: true, local: true}
}

// Invalidate clears the validity flag for one key. The stored value is
// retained.
func (c *Cache) Invalidate(k Key) {
	if e, ok := c.entries[k]; ok {
		e.valid = false
		c.entries[k] = e
	}
}

// InvalidatePath clears the validity flag for every index of the given
// attribute path.
func (c *Cache) InvalidatePath(path Path) {
	for k, e := range c.entries {
		if k.Path == path {
			e.valid = false
			c.entries[k] = e
		}
	}
}

// InvalidateAll marks every hardware-backed entry invalid. Local entries
// keep their values and validity; stale hardware values remain readable via
// Value but must be re-fetched before they can be trusted.
func (c *Cache) InvalidateAll() {
	for k, e := range c.entries {
		if e.local {
			continue
		}
		e.valid = false
		c.entries[k] = e
	}
}

// Len reports the number of known keys.
func (c *Cache) Len() int {
	return len(c.entries)
}
