// Package health derives zone health from the statuses of a zone's member
// servers and memoizes the result per zone.
package health

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dreamware/statusboard/internal/inventory"
)

// DefaultCacheSize bounds the number of memoized zones.
const DefaultCacheSize = 4096

// Aggregate computes the health of a zone from its member server statuses.
//
// The worst status wins: Compromised if any server is Compromised, otherwise
// Unknown if any server is Unknown, otherwise Secure. A zone with no servers
// is Secure (vacuous health).
//
// Example:
//
//	Aggregate(inventory.ServerSecure, inventory.ServerUnknown) // Unknown
//	Aggregate()                                               // Secure
func Aggregate(statuses ...inventory.ServerStatus) inventory.ServerStatus {
	health := inventory.ServerSecure
	for _, st := range statuses {
		switch st {
		case inventory.ServerCompromised:
			return inventory.ServerCompromised
		case inventory.ServerUnknown:
			health = inventory.ServerUnknown
		}
	}
	return health
}

// Cache memoizes zone health by zone id.
//
// Entries are dropped one zone at a time by Invalidate when a member server
// changes status, and all at once by Purge when zone membership may have
// changed. Get is read-through: a miss recomputes and stores the value before
// returning, so callers only ever observe absent-then-fresh or current values.
// LRU eviction only forces a recomputation.
//
// Thread-safe: the underlying LRU is internally locked. The owner still has
// to serialize Invalidate/Purge against the reads that feed compute.
type Cache struct {
	entries *lru.Cache[string, inventory.ServerStatus] // zoneID -> health
}

// NewCache creates a cache holding at most size zones.
//
// Parameters:
//   - size: maximum number of memoized zones; DefaultCacheSize when <= 0
//
// Returns:
//   - *Cache: empty cache ready for use
//   - error: if the LRU could not be created
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, inventory.ServerStatus](size)
	if err != nil {
		return nil, fmt.Errorf("create health cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Get returns the memoized health of zoneID, calling compute on a miss.
func (c *Cache) Get(zoneID string, compute func() inventory.ServerStatus) inventory.ServerStatus {
	if health, ok := c.entries.Get(zoneID); ok {
		return health
	}
	health := compute()
	c.entries.Add(zoneID, health)
	return health
}

// Peek returns the memoized health without computing or touching recency.
func (c *Cache) Peek(zoneID string) (inventory.ServerStatus, bool) {
	return c.entries.Peek(zoneID)
}

// Invalidate drops the entry of a single zone and reports whether one existed.
func (c *Cache) Invalidate(zoneID string) bool {
	return c.entries.Remove(zoneID)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of memoized zones.
func (c *Cache) Len() int {
	return c.entries.Len()
}
