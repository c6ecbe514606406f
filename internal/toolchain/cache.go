package toolchain

import (
	"sync"

	"ledgerdev/internal/types"
)

// Cache maps a tool to its last resolved absolute path.
// One Cache is shared by every caller of a Resolver; an eviction by one caller
// is seen by all later ones.
type Cache struct {
	mu    sync.RWMutex
	paths map[types.Tool]string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{paths: make(map[types.Tool]string)}
}

// Get returns the cached path for tool.
func (c *Cache) Get(tool types.Tool) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.paths[tool]
	return p, ok
}

// Put records path for tool.
func (c *Cache) Put(tool types.Tool, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[tool] = path
}

// Invalidate evicts tool. It reports whether an entry existed.
func (c *Cache) Invalidate(tool types.Tool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.paths[tool]
	delete(c.paths, tool)
	return ok
}

// InvalidatePath evicts every tool cached at path and returns them.
func (c *Cache) InvalidatePath(path string) []types.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	var evicted []types.Tool
	for tool, p := range c.paths {
		if p == path {
			evicted = append(evicted, tool)
			delete(c.paths, tool)
		}
	}
	return evicted
}

// Snapshot returns a copy of the cache contents.
func (c *Cache) Snapshot() map[types.Tool]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[types.Tool]string, len(c.paths))
	for k, v := range c.paths {
		out[k] = v
	}
	return out
}
