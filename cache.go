package main

import (
	"sync"
	"time"
)

// cachedPage remembers the file version a page was last indexed from
type cachedPage struct {
	ModTime time.Time
	Tasks   int
}

// IndexCache provides thread-safe tracking of already indexed page versions
type IndexCache struct {
	mu    sync.RWMutex
	pages map[string]cachedPage
}

// NewIndexCache creates a new empty cache
func NewIndexCache() *IndexCache {
	return &IndexCache{pages: make(map[string]cachedPage)}
}

// Get returns the task count of the last pass if the page hasn't been modified since
func (c *IndexCache) Get(page string, modTime time.Time) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.pages[page]
	if !exists || modTime.After(cached.ModTime) {
		return 0, false
	}

	return cached.Tasks, true
}

// Set records the file version a page was indexed from
func (c *IndexCache) Set(page string, modTime time.Time, tasks int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pages[page] = cachedPage{ModTime: modTime, Tasks: tasks}
}

// Invalidate removes a page from the cache
func (c *IndexCache) Invalidate(page string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pages, page)
}
