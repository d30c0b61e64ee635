package index

import "github.com/dreamware/statusboard/internal/inventory"

// StatusKey keys the shared status index. Capability and server statuses
// never collide because the kind is part of the key.
type StatusKey struct {
	Kind   inventory.EntityKind
	Status string
}

// Set bundles the four inventory indexes.
type Set struct {
	ServersByZone      *Index[string, string]
	ZonesByCapability  *Index[string, string]
	CapabilitiesByZone *Index[string, string]
	ByStatus           *Index[StatusKey, string]
}

// NewSet returns a Set of empty indexes.
func NewSet() *Set {
	return &Set{
		ServersByZone:      New[string, string](),
		ZonesByCapability:  New[string, string](),
		CapabilitiesByZone: New[string, string](),
		ByStatus:           New[StatusKey, string](),
	}
}

// Clear empties all four indexes.
func (s *Set) Clear() {
	s.ServersByZone.Clear()
	s.ZonesByCapability.Clear()
	s.CapabilitiesByZone.Clear()
	s.ByStatus.Clear()
}

// Rebuild clears the indexes and repopulates them in one pass over the
// canonical collections. Calling it twice yields the same indexes.
func (s *Set) Rebuild(servers []inventory.Server, capabilities []inventory.Capability, relations []inventory.Relation) {
	s.Clear()
	for _, srv := range servers {
		s.AddServer(srv)
	}
	for _, rel := range relations {
		s.AddRelation(rel)
	}
	for _, c := range capabilities {
		s.AddCapability(c)
	}
}

// AddServer indexes srv by zone and by status.
func (s *Set) AddServer(srv inventory.Server) {
	s.ServersByZone.Add(srv.ZoneID, srv.ID)
	s.ByStatus.Add(StatusKey{Kind: inventory.KindServer, Status: string(srv.Status)}, srv.ID)
}

// AddCapability indexes c by status.
func (s *Set) AddCapability(c inventory.Capability) {
	s.ByStatus.Add(StatusKey{Kind: inventory.KindCapability, Status: string(c.Status)}, c.ID)
}

// AddRelation indexes both directions of one edge.
func (s *Set) AddRelation(rel inventory.Relation) {
	s.ZonesByCapability.Add(rel.CapabilityID, rel.ZoneID)
	s.CapabilitiesByZone.Add(rel.ZoneID, rel.CapabilityID)
}

// MoveStatus moves id from its old status set to the new one.
func (s *Set) MoveStatus(kind inventory.EntityKind, id, from, to string) {
	s.ByStatus.Remove(StatusKey{Kind: kind, Status: from}, id)
	s.ByStatus.Add(StatusKey{Kind: kind, Status: to}, id)
}

// StatusMembers returns the sorted ids of kind currently at status.
func (s *Set) StatusMembers(kind inventory.EntityKind, status string) []string {
	return s.ByStatus.Members(StatusKey{Kind: kind, Status: status})
}

// Clone returns an independent copy of every index.
func (s *Set) Clone() *Set {
	return &Set{
		ServersByZone:      s.ServersByZone.Clone(),
		ZonesByCapability:  s.ZonesByCapability.Clone(),
		CapabilitiesByZone: s.CapabilitiesByZone.Clone(),
		ByStatus:           s.ByStatus.Clone(),
	}
}

// Equal reports whether every index of s matches other.
func (s *Set) Equal(other *Set) bool {
	return s.ServersByZone.Equal(other.ServersByZone) &&
		s.ZonesByCapability.Equal(other.ZonesByCapability) &&
		s.CapabilitiesByZone.Equal(other.CapabilitiesByZone) &&
		s.ByStatus.Equal(other.ByStatus)
}
