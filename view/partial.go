package view

import (
	"sort"
	"sync"
)

// PartialCache memoizes partial template text by lookup key. Entries are
// never invalidated. It is safe for concurrent use.
type PartialCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewPartialCache returns an empty cache.
func NewPartialCache() *PartialCache {
	return &PartialCache{entries: make(map[string]string)}
}

// Load returns the text cached at key.
func (c *PartialCache) Load(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	text, ok := c.entries[key]

	return text, ok
}

// Store caches text at key. Empty text is not cached.
func (c *PartialCache) Store(key, text string) {
	if text == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		c.entries = make(map[string]string)
	}

	c.entries[key] = text
}

// Len returns the number of cached entries.
func (c *PartialCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Keys returns the cached lookup keys in sorted order.
func (c *PartialCache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))

	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Strings(keys)

	return keys
}

// partialKey derives the external lookup key from a partial's dictionary
// entry. It returns ok=false when the entry cannot name a template.
func partialKey(v Value) (key string, ok bool) {
	switch v := v.(type) {
	case List:
		if len(v) == 0 {
			return "", false
		}

		key = Stringify(v[0])

	case Map:
		name, found := v.Lookup("filename")
		if !found {
			return "", false
		}

		key = Stringify(name)
		if ext, found := v.Lookup("ext"); found && Stringify(ext) != "" {
			key += "." + Stringify(ext)
		}
	}

	return key, key != ""
}
