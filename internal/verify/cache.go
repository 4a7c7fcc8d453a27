package verify

import (
	"sync"
	"time"

	"github.com/plotbeam/renderauth/pkg/verifier"
)

// entry is a cached verification decision
type entry struct {
	result   verifier.Result
	cachedAt time.Time
}

// decisionCache maps credential values to successful verification results.
// Only valid results are ever stored; a rejected credential always goes back
// to the store, so a credential created or reactivated moments after a
// failed check is picked up immediately.
//
// Eviction is lazy: an entry is removed when its own key is next accessed
// and found stale, either because the TTL elapsed or because the cached
// record's own expiry passed. There is no background sweep.
type decisionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]entry
}

func newDecisionCache(ttl time.Duration, max int) *decisionCache {
	return &decisionCache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]entry),
	}
}

// Lookup returns the cached decision for credential if it is still
// servable at now. Stale entries are evicted on the way out.
func (c *decisionCache) Lookup(credential string, now time.Time) (verifier.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[credential]
	if !ok {
		return verifier.Result{}, false
	}

	if now.Sub(e.cachedAt) >= c.ttl {
		delete(c.entries, credential)
		recordEviction("ttl")
		return verifier.Result{}, false
	}

	// The cached record may expire before the cache entry does.
	if e.result.ExpiresAt != nil && !now.Before(*e.result.ExpiresAt) {
		delete(c.entries, credential)
		recordEviction("credential_expired")
		return verifier.Result{}, false
	}

	return e.result, true
}

// Store caches a decision. Negative results are dropped; at the size bound,
// TTL-expired entries are swept first and then the oldest entry goes.
func (c *decisionCache) Store(credential string, result verifier.Result, now time.Time) {
	if !result.Valid {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[credential]; !exists && len(c.entries) >= c.max {
		c.sweepExpired(now)
		if len(c.entries) >= c.max {
			c.evictOldest()
		}
	}

	c.entries[credential] = entry{result: result, cachedAt: now}
}

// Len reports the number of cached decisions
func (c *decisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweepExpired removes all TTL-stale entries. Caller holds mu.
func (c *decisionCache) sweepExpired(now time.Time) {
	for credential, e := range c.entries {
		if now.Sub(e.cachedAt) >= c.ttl {
			delete(c.entries, credential)
			recordEviction("ttl")
		}
	}
}

// evictOldest removes the entry with the oldest cachedAt. Caller holds mu.
func (c *decisionCache) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for credential, e := range c.entries {
		if !found || e.cachedAt.Before(oldestAt) {
			oldestKey = credential
			oldestAt = e.cachedAt
			found = true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		recordEviction("capacity")
	}
}
