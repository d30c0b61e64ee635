// Package storage holds the authoritative copy of the inventory: the
// canonical capability, zone and server collections, the capability/zone
// relation set, the secondary indexes derived from them and the zone health
// cache.
//
// # Architecture
//
//	┌───────────────────────────────────────────┐
//	│                  Store                    │
//	├───────────────────────────────────────────┤
//	│  canonical (insertion ordered)            │
//	│    capabilities  id → Capability          │
//	│    zones         id → Zone                │
//	│    servers       id → Server              │
//	│    relations     "cap::zone" → Relation   │
//	├───────────────────────────────────────────┤
//	│  derived                                  │
//	│    index.Set     four key → id-set maps   │
//	│    health.Cache  zoneID → health (LRU)    │
//	└───────────────────────────────────────────┘
//
// # Operations
//
// Lookup:
//   - Capability(id), Zone(id), Server(id), Exists(kind, id)
//   - Capabilities(), Zones(), Servers(), Relations()
//
// Relation queries (index backed, never a full scan):
//   - ZonesOfCapability, ServersOfZone, ServersOfCapability, CapabilitiesOfZone
//
// Status queries:
//   - IDsByStatus(kind, status), CapabilitiesByStatus, ServersByStatus
//   - ZoneHealth(zoneID), ZoneHealthAll()
//
// Mutation:
//   - ApplyStatusUpdate / Apply: status + timestamp of one entity
//   - ReplaceState: bulk replace of every collection, then a full rebuild
//   - RebuildIndexes: recompute indexes from the canonical maps
//
// Snapshot:
//   - Snapshot(): deep copy suitable for sending to a new observer
//
// # Concurrency and Thread Safety
//
// A single sync.RWMutex guards the whole unit:
//   - Mutations take the write lock for the canonical change, the index
//     update and the cache invalidation together
//   - Reads take the read lock, so nobody sees a half-rebuilt index
//   - No network I/O ever happens while the lock is held
//
// # Error Handling
//
// Bad input never panics. ApplyStatusUpdate returns false; Apply returns an
// error wrapping one of:
//
// ErrUnknownKind: the update targets neither a Capability nor a Server
//
// ErrNotFound: no entity of the requested kind has that id, which also
// covers an id that exists under the other kind
//
// ErrInvalidStatus: the status belongs to the other status family or to none
//
// # Usage Examples
//
//	store, _ := storage.NewStore(storage.Config{})
//	store.ReplaceState(state)
//
//	ok := store.ApplyStatusUpdate(inventory.StatusUpdate{
//	    ID:     "server-use-web-01",
//	    Type:   inventory.KindServer,
//	    Status: "Compromised",
//	})
//
//	health := store.ZoneHealth("zone-us-east") // Compromised
//	snap := store.Snapshot()
package storage
