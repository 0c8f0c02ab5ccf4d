// Package admission caps the number of concurrently active (Pending or
// Processing) jobs per owner. Counters are a derived view over the job
// store: Recount rebuilds them from store truth, so a restarted instance
// converges instead of trusting stale process-local state.
package admission

import (
	"sync"
)

// DefaultMaxActiveJobs is the per-owner cap on non-terminal jobs
const DefaultMaxActiveJobs = 5

// Controller tracks per-owner active job counts under a single lock
type Controller struct {
	limit  int
	counts map[string]int
	mu     sync.Mutex
}

// NewController creates an admission controller with the given per-owner
// limit; zero or negative falls back to the default.
func NewController(limit int) *Controller {
	if limit <= 0 {
		limit = DefaultMaxActiveJobs
	}
	return &Controller{
		limit:  limit,
		counts: make(map[string]int),
	}
}

// TryAdmit atomically checks and increments the owner's counter. Returns
// false if the owner is already at the limit; the caller must then reject
// the submission without creating a job record.
func (c *Controller) TryAdmit(ownerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counts[ownerID] >= c.limit {
		return false
	}
	c.counts[ownerID]++
	return true
}

// Release decrements the owner's counter. Safe to call for an owner with no
// tracked count; the counter never goes negative.
func (c *Controller) Release(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counts[ownerID] <= 0 {
		delete(c.counts, ownerID)
		return
	}
	c.counts[ownerID]--
	if c.counts[ownerID] == 0 {
		delete(c.counts, ownerID)
	}
}

// Count returns the tracked active count for an owner
func (c *Controller) Count(ownerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[ownerID]
}

// Limit returns the per-owner cap
func (c *Controller) Limit() int {
	return c.limit
}

// ActiveCounter supplies store-derived active job counts
type ActiveCounter interface {
	CountActiveByOwner() (map[string]int, error)
}

// Recount replaces all counters with the store's view. Called at startup so
// counters survive restarts and horizontal scale-out.
func (c *Controller) Recount(src ActiveCounter) error {
	counts, err := src.CountActiveByOwner()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]int, len(counts))
	for owner, n := range counts {
		if n > 0 {
			c.counts[owner] = n
		}
	}
	return nil
}
