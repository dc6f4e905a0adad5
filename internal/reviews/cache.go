package reviews

import (
	"sync/atomic"
	"time"
)

// catalogCache is a TTL cache for the tool catalog with
// stale-while-revalidate semantics: expired entries are still served,
// and exactly one caller per expiry is told to refresh in the background.
// The catalog is a single value, so one atomic slot suffices.
type catalogCache struct {
	entry atomic.Pointer[catalogEntry]
	ttl   time.Duration
}

type catalogEntry struct {
	tools      []ToolCount
	expiresAt  time.Time
	refreshing atomic.Bool
}

// catalogResult is the outcome of a cache lookup.
type catalogResult struct {
	Tools []ToolCount
	Hit   bool
	// NeedsRefresh is set on at most one stale hit per expiry; that
	// caller should refresh the catalog in the background.
	NeedsRefresh bool
}

func newCatalogCache(ttl time.Duration) *catalogCache {
	return &catalogCache{ttl: ttl}
}

// Get performs a non-blocking lookup.
func (c *catalogCache) Get() catalogResult {
	entry := c.entry.Load()
	if entry == nil {
		return catalogResult{}
	}
	if time.Now().Before(entry.expiresAt) {
		return catalogResult{Tools: entry.tools, Hit: true}
	}

	// Stale. Claim the refresh slot; losers still get the stale value.
	claimed := entry.refreshing.CompareAndSwap(false, true)
	return catalogResult{Tools: entry.tools, Hit: true, NeedsRefresh: claimed}
}

// Set stores a fresh catalog and restarts the TTL.
func (c *catalogCache) Set(tools []ToolCount) {
	c.entry.Store(&catalogEntry{
		tools:     tools,
		expiresAt: time.Now().Add(c.ttl),
	})
}
