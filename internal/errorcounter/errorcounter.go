package errorcounter

import (
	"sync"
)

// New creates and returns a Counter with an initialised internal store ready for use.
func New() *Counter {
	return &Counter{
		store: make(map[string]int),
	}
}

// Counter tracks consecutive failures per key, typically an execution id.
type Counter struct {
	mu    sync.Mutex
	store map[string]int
}

// Add records another consecutive failure for key and returns the new count.
func (c *Counter) Add(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store[key]++
	return c.store[key]
}

func (c *Counter) Count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store[key]
}

// Clear resets key after a success.
func (c *Counter) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.store, key)
}
