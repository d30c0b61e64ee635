package inventory

import (
	"errors"
	"fmt"
)

// ErrUnknownStatus is returned when a status string belongs to neither
// family or to the wrong family for its target.
var ErrUnknownStatus = errors.New("unknown status")

// EntityKind names one of the three entity collections.
type EntityKind string

const (
	KindCapability EntityKind = "Capability"
	KindZone       EntityKind = "Zone"
	KindServer     EntityKind = "Server"
)

// Valid reports whether k is one of the known kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindCapability, KindZone, KindServer:
		return true
	}
	return false
}

// CapabilityStatus is the status of a logical service.
type CapabilityStatus string

const (
	CapabilityOperational CapabilityStatus = "Operational"
	CapabilityDegraded    CapabilityStatus = "Degraded"
	CapabilityOffline     CapabilityStatus = "Offline"
)

// CapabilityStatuses lists every capability status in severity order.
var CapabilityStatuses = []CapabilityStatus{CapabilityOperational, CapabilityDegraded, CapabilityOffline}

// ParseCapabilityStatus converts s into a CapabilityStatus.
func ParseCapabilityStatus(s string) (CapabilityStatus, error) {
	switch st := CapabilityStatus(s); st {
	case CapabilityOperational, CapabilityDegraded, CapabilityOffline:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q is not a capability status", ErrUnknownStatus, s)
}

// ServerStatus is the status of a machine. Zone health uses the same values.
type ServerStatus string

const (
	ServerSecure      ServerStatus = "Secure"
	ServerUnknown     ServerStatus = "Unknown"
	ServerCompromised ServerStatus = "Compromised"
)

// ServerStatuses lists every server status in severity order.
var ServerStatuses = []ServerStatus{ServerSecure, ServerUnknown, ServerCompromised}

// ParseServerStatus converts s into a ServerStatus.
func ParseServerStatus(s string) (ServerStatus, error) {
	switch st := ServerStatus(s); st {
	case ServerSecure, ServerUnknown, ServerCompromised:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q is not a server status", ErrUnknownStatus, s)
}
