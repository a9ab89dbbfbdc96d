// Package repocache implements the orchestrator-lifetime, in-memory
// memoization of repository-scope frame results. It deliberately has
// no TTL or background eviction: the cache lives exactly as long as
// one orchestrator instance and is discarded with it, trading reuse
// for freshness on every run.
package repocache

import (
	"sync"

	"github.com/oriys/wardencore/domain"
)

// Cache memoizes FrameResult by frame_id for one orchestrator's
// lifetime. The zero value is not usable; construct with New.
//
// Get, Set and Len each hold the mutex for their own step. GetOrCompute
// is not atomic as a whole: compute runs with the lock released, so two
// concurrent GetOrCompute calls for the same frame_id can both run
// compute. Phase 3 runs repository-scope frames one after another.
type Cache struct {
	mu      sync.Mutex
	results map[string]domain.FrameResult
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{results: make(map[string]domain.FrameResult)}
}

// Get returns the cached result for frameID, if present.
func (c *Cache) Get(frameID string) (domain.FrameResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[frameID]
	return r, ok
}

// Set stores result under frameID, overwriting any previous entry.
// Only called by the frame runner on successful execution; a failed
// or errored invocation is never cached.
func (c *Cache) Set(frameID string, result domain.FrameResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[frameID] = result
}

// GetOrCompute returns the cached result for frameID if present;
// otherwise it calls compute, caches the result when compute returns no
// error and a passed or warning status, and returns it. The whole check-compute-store sequence holds the
// mutex for its own steps only: compute is called with the lock
// released so a slow repository-scope frame never blocks unrelated
// cache lookups for other frame ids.
func (c *Cache) GetOrCompute(frameID string, compute func() (domain.FrameResult, error)) (domain.FrameResult, bool, error) {
	if cached, ok := c.Get(frameID); ok {
		cached.DurationMS = 0
		return cached, true, nil
	}

	result, err := compute()
	if err != nil {
		return domain.FrameResult{}, false, err
	}
	if result.Status == domain.StatusPassed || result.Status == domain.StatusWarning {
		c.Set(frameID, result)
	}
	return result, false, nil
}

// Len reports how many frame results are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}
