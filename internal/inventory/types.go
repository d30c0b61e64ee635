package inventory

import (
	"strings"
	"time"
)

// RelationKeySeparator joins the two endpoints of a relation key.
const RelationKeySeparator = "::"

// Capability is a logical service offering.
type Capability struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Status      CapabilityStatus `json:"status"`
	LastUpdated time.Time        `json:"lastUpdated"`
}

// Zone is a deployment or geographic grouping of servers.
type Zone struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Description holds the descriptive block of a server.
type Description struct {
	OS   string   `json:"os"`
	IPv4 []string `json:"ipv4"`
	IPv6 []string `json:"ipv6"`
}

// Server is a monitored machine owned by exactly one zone.
type Server struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Status      ServerStatus `json:"status"`
	ZoneID      string       `json:"zoneId"`
	LastUpdated time.Time    `json:"lastUpdated"`
	Description Description  `json:"description"`
}

// Clone returns a copy of s that shares no slices with it.
func (s Server) Clone() Server {
	s.Description.IPv4 = cloneStrings(s.Description.IPv4)
	s.Description.IPv6 = cloneStrings(s.Description.IPv6)
	return s
}

// Relation is a many-to-many edge between a capability and a zone.
type Relation struct {
	CapabilityID string `json:"capabilityId"`
	ZoneID       string `json:"zoneId"`
}

// Key returns the composite set key of the relation.
func (r Relation) Key() string {
	return r.CapabilityID + RelationKeySeparator + r.ZoneID
}

// ParseRelationKey splits a key produced by Relation.Key.
func ParseRelationKey(key string) (Relation, bool) {
	capID, zoneID, ok := strings.Cut(key, RelationKeySeparator)
	if !ok {
		return Relation{}, false
	}
	return Relation{CapabilityID: capID, ZoneID: zoneID}, true
}

// StatusUpdate is a transient command mutating the status of exactly one
// capability or server. Status is kept as a raw string until it is applied
// against the target's status family.
type StatusUpdate struct {
	ID        string     `json:"id"`
	Type      EntityKind `json:"type"`
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
}

// State is a full point-in-time copy of every canonical collection. It is
// both the bulk-replace payload and the snapshot sent to new observers.
type State struct {
	Capabilities            []Capability `json:"capabilities"`
	Zones                   []Zone       `json:"zones"`
	Servers                 []Server     `json:"servers"`
	CapabilityZoneRelations []Relation   `json:"capabilityZoneRelations"`
}

// Summary counts the entities of a State.
type Summary struct {
	Capabilities  int `json:"capabilities"`
	Zones         int `json:"zones"`
	Servers       int `json:"servers"`
	Relationships int `json:"relationships"`
}

// Summary returns the entity counts of s.
func (s State) Summary() Summary {
	return Summary{
		Capabilities:  len(s.Capabilities),
		Zones:         len(s.Zones),
		Servers:       len(s.Servers),
		Relationships: len(s.CapabilityZoneRelations),
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		Capabilities:            make([]Capability, len(s.Capabilities)),
		Zones:                   make([]Zone, len(s.Zones)),
		Servers:                 make([]Server, 0, len(s.Servers)),
		CapabilityZoneRelations: make([]Relation, len(s.CapabilityZoneRelations)),
	}
	copy(out.Capabilities, s.Capabilities)
	copy(out.Zones, s.Zones)
	copy(out.CapabilityZoneRelations, s.CapabilityZoneRelations)
	for _, srv := range s.Servers {
		out.Servers = append(out.Servers, srv.Clone())
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
