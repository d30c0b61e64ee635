// Package inventory defines the shared vocabulary of statusboard: the entity
// records tracked by the authoritative store, the two status enumerations,
// the transient StatusUpdate command and the JSON envelope exchanged with
// connected viewers.
//
// # Entities
//
//	Capability ──┐            ┌── Zone ──< Server
//	             └─< Relation >┘
//
// Capability: a named logical service with its own status (Operational,
// Degraded, Offline).
//
// Zone: a grouping of servers. A zone has no stored status; its health is
// derived from the statuses of its member servers.
//
// Server: a monitored machine owned by exactly one zone, with a status
// (Secure, Unknown, Compromised) and a descriptive block.
//
// Relation: an unordered many-to-many edge between a capability and a zone,
// keyed by "capabilityId::zoneId" so membership stays idempotent.
//
// # Status families
//
// CapabilityStatus and ServerStatus are distinct types sharing no
// representation. A StatusUpdate carries its status as a plain string and is
// parsed into the family matching its target kind when it is applied, so a
// server status can never land on a capability.
//
// # Wire format
//
// Every WebSocket frame is a Message envelope:
//
//	{"type": "status_update", "payload": {"id": "...", "type": "Server", "status": "Compromised", "timestamp": "..."}}
//
// See MessageCurrentState, MessageStatusUpdate and MessageError for the
// recognized types.
package inventory
