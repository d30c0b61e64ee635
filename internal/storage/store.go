package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/jonboulle/clockwork"

	"github.com/dreamware/statusboard/internal/health"
	"github.com/dreamware/statusboard/internal/index"
	"github.com/dreamware/statusboard/internal/inventory"
)

var (
	// ErrUnknownKind is returned for updates whose type is neither
	// Capability nor Server.
	ErrUnknownKind = errors.New("unknown entity kind")

	// ErrNotFound is returned when no entity of the requested kind has the id.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidStatus is returned when the status does not belong to the
	// target's status family.
	ErrInvalidStatus = errors.New("invalid status")
)

// Config configures a Store.
type Config struct {
	Logger *slog.Logger

	// Optional configuration.
	Clock           clockwork.Clock
	HealthCacheSize int
}

// Validate fills in defaults for optional fields.
func (c *Config) Validate() error {
	if c.HealthCacheSize < 0 {
		return errors.New("health cache size must not be negative")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.HealthCacheSize == 0 {
		c.HealthCacheSize = health.DefaultCacheSize
	}
	return nil
}

// Store is the authoritative copy of the inventory.
//
// It owns the canonical collections (kept in insertion order so a snapshot
// reproduces the payload it was loaded from), the relation set, the four
// secondary indexes and the zone health cache. One RWMutex covers all of
// them: every mutation of a canonical map, its index update and its cache
// invalidation happen inside a single write section, and every index-backed
// read holds the read lock.
//
// The Store never re-validates foreign keys. Payloads handed to ReplaceState
// are expected to come from the ingest package, which checks them.
type Store struct {
	mu sync.RWMutex // Protects everything below

	capabilities *orderedmap.OrderedMap[string, inventory.Capability]
	zones        *orderedmap.OrderedMap[string, inventory.Zone]
	servers      *orderedmap.OrderedMap[string, inventory.Server]
	relations    *orderedmap.OrderedMap[string, inventory.Relation] // Relation.Key() -> edge

	idx    *index.Set
	health *health.Cache

	clock clockwork.Clock
	log   *slog.Logger
}

// NewStore creates an empty store.
//
// Example:
//
//	store, err := storage.NewStore(storage.Config{Logger: log})
//	if err != nil {
//	    return err
//	}
//	store.ReplaceState(seed)
func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cache, err := health.NewCache(cfg.HealthCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		capabilities: orderedmap.NewOrderedMap[string, inventory.Capability](),
		zones:        orderedmap.NewOrderedMap[string, inventory.Zone](),
		servers:      orderedmap.NewOrderedMap[string, inventory.Server](),
		relations:    orderedmap.NewOrderedMap[string, inventory.Relation](),
		idx:          index.NewSet(),
		health:       cache,
		clock:        cfg.Clock,
		log:          cfg.Logger,
	}, nil
}

// Capability returns the capability with the given id.
func (s *Store) Capability(id string) (inventory.Capability, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilities.Get(id)
}

// Zone returns the zone with the given id.
func (s *Store) Zone(id string) (inventory.Zone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zones.Get(id)
}

// Server returns a copy of the server with the given id.
func (s *Store) Server(id string) (inventory.Server, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	srv, ok := s.servers.Get(id)
	return srv.Clone(), ok
}

// Exists reports whether an entity of kind has the given id.
func (s *Store) Exists(kind inventory.EntityKind, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case inventory.KindCapability:
		_, ok := s.capabilities.Get(id)
		return ok
	case inventory.KindZone:
		_, ok := s.zones.Get(id)
		return ok
	case inventory.KindServer:
		_, ok := s.servers.Get(id)
		return ok
	}
	return false
}

// Capabilities returns every capability. Order follows insertion and is not
// stable across ReplaceState.
func (s *Store) Capabilities() []inventory.Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilityList()
}

// Zones returns every zone.
func (s *Store) Zones() []inventory.Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoneList()
}

// Servers returns every server.
func (s *Store) Servers() []inventory.Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverList()
}

// Relations returns every capability/zone edge.
func (s *Store) Relations() []inventory.Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relationList()
}

// ZonesOfCapability returns the zones serving a capability.
func (s *Store) ZonesOfCapability(capabilityID string) []inventory.Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Zone
	for _, id := range s.idx.ZonesByCapability.Members(capabilityID) {
		if z, ok := s.zones.Get(id); ok {
			out = append(out, z)
		}
	}
	return out
}

// ServersOfZone returns the servers owned by a zone.
func (s *Store) ServersOfZone(zoneID string) []inventory.Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serversOfZone(zoneID, nil)
}

// ServersOfCapability returns the servers of every zone serving a
// capability. A server belongs to exactly one zone, so no server repeats.
func (s *Store) ServersOfCapability(capabilityID string) []inventory.Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Server
	for _, zoneID := range s.idx.ZonesByCapability.Members(capabilityID) {
		out = s.serversOfZone(zoneID, out)
	}
	return out
}

// CapabilitiesOfZone returns the capabilities a zone serves.
func (s *Store) CapabilitiesOfZone(zoneID string) []inventory.Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Capability
	for _, id := range s.idx.CapabilitiesByZone.Members(zoneID) {
		if c, ok := s.capabilities.Get(id); ok {
			out = append(out, c)
		}
	}
	return out
}

// IDsByStatus returns the sorted ids of kind currently at status.
func (s *Store) IDsByStatus(kind inventory.EntityKind, status string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.StatusMembers(kind, status)
}

// CapabilitiesByStatus returns the capabilities currently at status.
func (s *Store) CapabilitiesByStatus(status inventory.CapabilityStatus) []inventory.Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Capability
	for _, id := range s.idx.StatusMembers(inventory.KindCapability, string(status)) {
		if c, ok := s.capabilities.Get(id); ok {
			out = append(out, c)
		}
	}
	return out
}

// ServersByStatus returns the servers currently at status.
func (s *Store) ServersByStatus(status inventory.ServerStatus) []inventory.Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Server
	for _, id := range s.idx.StatusMembers(inventory.KindServer, string(status)) {
		if srv, ok := s.servers.Get(id); ok {
			out = append(out, srv.Clone())
		}
	}
	return out
}

// ZoneHealth returns the derived health of a zone. A zone without servers,
// including an unknown zone, is Secure.
func (s *Store) ZoneHealth(zoneID string) inventory.ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoneHealth(zoneID)
}

// ZoneHealthAll returns the derived health of every zone keyed by zone id.
func (s *Store) ZoneHealthAll() map[string]inventory.ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]inventory.ServerStatus, s.zones.Len())
	for el := s.zones.Front(); el != nil; el = el.Next() {
		out[el.Key] = s.zoneHealth(el.Key)
	}
	return out
}

// ApplyStatusUpdate applies u and reports whether state changed. It returns
// false when the target kind/id does not resolve to an existing entity or
// the status is not valid for that kind.
func (s *Store) ApplyStatusUpdate(u inventory.StatusUpdate) bool {
	return s.Apply(u) == nil
}

// Apply is ApplyStatusUpdate with a descriptive error instead of a boolean.
// The error wraps ErrUnknownKind, ErrNotFound or ErrInvalidStatus.
//
// On success the entity's status and timestamp are replaced (a zero
// timestamp takes the store clock's time), its status-index membership is
// moved, and for a server only the owning zone's health entry is dropped.
func (s *Store) Apply(u inventory.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := u.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now()
	}

	switch u.Type {
	case inventory.KindCapability:
		c, ok := s.capabilities.Get(u.ID)
		if !ok {
			return fmt.Errorf("%w: no capability with id %q", ErrNotFound, u.ID)
		}
		status, err := inventory.ParseCapabilityStatus(u.Status)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidStatus, err)
		}
		old := c.Status
		c.Status = status
		c.LastUpdated = ts
		s.capabilities.Set(c.ID, c)
		s.idx.MoveStatus(inventory.KindCapability, c.ID, string(old), string(status))

	case inventory.KindServer:
		srv, ok := s.servers.Get(u.ID)
		if !ok {
			return fmt.Errorf("%w: no server with id %q", ErrNotFound, u.ID)
		}
		status, err := inventory.ParseServerStatus(u.Status)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidStatus, err)
		}
		old := srv.Status
		srv.Status = status
		srv.LastUpdated = ts
		s.servers.Set(srv.ID, srv)
		s.idx.MoveStatus(inventory.KindServer, srv.ID, string(old), string(status))
		s.health.Invalidate(srv.ZoneID)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, u.Type)
	}
	return nil
}

// ReplaceState discards every canonical collection and relation, loads the
// supplied payload and rebuilds the indexes. Readers never observe the
// intermediate state. This is the only operation that changes membership.
func (s *Store) ReplaceState(state inventory.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.capabilities = orderedmap.NewOrderedMap[string, inventory.Capability]()
	s.zones = orderedmap.NewOrderedMap[string, inventory.Zone]()
	s.servers = orderedmap.NewOrderedMap[string, inventory.Server]()
	s.relations = orderedmap.NewOrderedMap[string, inventory.Relation]()

	for _, c := range state.Capabilities {
		s.capabilities.Set(c.ID, c)
	}
	for _, z := range state.Zones {
		s.zones.Set(z.ID, z)
	}
	for _, srv := range state.Servers {
		s.servers.Set(srv.ID, srv.Clone())
	}
	for _, rel := range state.CapabilityZoneRelations {
		s.relations.Set(rel.Key(), rel)
	}

	s.rebuildLocked()

	s.log.Info("inventory replaced",
		"capabilities", s.capabilities.Len(),
		"zones", s.zones.Len(),
		"servers", s.servers.Len(),
		"relations", s.relations.Len(),
	)
}

// RebuildIndexes recomputes every index from the canonical collections and
// clears the health cache.
func (s *Store) RebuildIndexes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuildLocked()
}

// Snapshot returns a deep copy of the canonical collections and relations.
func (s *Store) Snapshot() inventory.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return inventory.State{
		Capabilities:            s.capabilityList(),
		Zones:                   s.zoneList(),
		Servers:                 s.serverList(),
		CapabilityZoneRelations: s.relationList(),
	}
}

// Stats returns the size of each collection.
func (s *Store) Stats() inventory.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return inventory.Summary{
		Capabilities:  s.capabilities.Len(),
		Zones:         s.zones.Len(),
		Servers:       s.servers.Len(),
		Relationships: s.relations.Len(),
	}
}

func (s *Store) rebuildLocked() {
	s.idx.Rebuild(s.serverList(), s.capabilityList(), s.relationList())
	s.health.Purge()
}

func (s *Store) zoneHealth(zoneID string) inventory.ServerStatus {
	compute := func() inventory.ServerStatus {
		statuses := make([]inventory.ServerStatus, 0, s.idx.ServersByZone.Count(zoneID))
		s.idx.ServersByZone.Each(zoneID, func(id string) bool {
			if srv, ok := s.servers.Get(id); ok {
				statuses = append(statuses, srv.Status)
			}
			return true
		})
		return health.Aggregate(statuses...)
	}
	if _, ok := s.zones.Get(zoneID); !ok {
		return compute()
	}
	return s.health.Get(zoneID, compute)
}

func (s *Store) serversOfZone(zoneID string, out []inventory.Server) []inventory.Server {
	for _, id := range s.idx.ServersByZone.Members(zoneID) {
		if srv, ok := s.servers.Get(id); ok {
			out = append(out, srv.Clone())
		}
	}
	return out
}

func (s *Store) capabilityList() []inventory.Capability {
	out := make([]inventory.Capability, 0, s.capabilities.Len())
	for el := s.capabilities.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

func (s *Store) zoneList() []inventory.Zone {
	out := make([]inventory.Zone, 0, s.zones.Len())
	for el := s.zones.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

func (s *Store) serverList() []inventory.Server {
	out := make([]inventory.Server, 0, s.servers.Len())
	for el := s.servers.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.Clone())
	}
	return out
}

func (s *Store) relationList() []inventory.Relation {
	out := make([]inventory.Relation, 0, s.relations.Len())
	for el := s.relations.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}
