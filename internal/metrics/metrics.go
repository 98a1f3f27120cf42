// Package metrics provides a tiny fire-and-forget counter sink used by
// the packet dispatcher. Counters never block and never fail.
package metrics

import "sync"

// Collector accumulates named counters.
type Collector struct {
	mu       sync.Mutex
	counters map[string]uint64
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{counters: make(map[string]uint64)}
}

// Inc increments a counter by one.
func (c *Collector) Inc(name string) {
	c.mu.Lock()
	c.counters[name]++
	c.mu.Unlock()
}

// Get returns the current value of one counter.
func (c *Collector) Get(name string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}

// Snapshot copies all counters.
func (c *Collector) Snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.counters))
	for k, v := range c.counters {
		out[k] = v
	}
	return out
}
