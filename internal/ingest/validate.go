package ingest

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// ValidationError carries every problem Validate found in a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "configuration validation failed: " + strings.Join(e.Problems, ", ")
}

// Validate checks a document for structural problems and returns all of
// them. Map keys are visited in sorted order so the result is stable.
func Validate(doc *Document) []string {
	if doc == nil {
		return []string{"Missing metadata name", "No zones defined", "No capabilities defined"}
	}

	var problems []string
	if doc.Metadata.Name == "" {
		problems = append(problems, "Missing metadata name")
	}
	problems = append(problems, validateZones(doc.Zones)...)
	problems = append(problems, validateCapabilities(doc.Capabilities, doc.Zones)...)
	return problems
}

func validateZones(zones map[string]ZoneSpec) []string {
	if len(zones) == 0 {
		return []string{"No zones defined"}
	}

	var problems []string
	for _, key := range sortedKeys(zones) {
		zone := zones[key]
		if zone.Name == "" {
			problems = append(problems, fmt.Sprintf("Zone %q missing name", key))
		}
		if len(zone.Servers) == 0 {
			problems = append(problems, fmt.Sprintf("Zone %q has no servers", key))
			continue
		}
		for _, srv := range zone.Servers {
			if srv.Name == "" {
				problems = append(problems, fmt.Sprintf("Server in zone %q missing name", key))
			}
			if srv.OS == "" {
				problems = append(problems, fmt.Sprintf("Server %q in zone %q missing OS", srv.Name, key))
			}
			if srv.IPv4 == nil {
				problems = append(problems, fmt.Sprintf("Server %q in zone %q missing IPv4 address array", srv.Name, key))
			}
			if srv.IPv6 == nil {
				problems = append(problems, fmt.Sprintf("Server %q in zone %q missing IPv6 address array", srv.Name, key))
			}
		}
	}
	return problems
}

func validateCapabilities(capabilities map[string]CapabilitySpec, zones map[string]ZoneSpec) []string {
	if len(capabilities) == 0 {
		return []string{"No capabilities defined"}
	}

	var problems []string
	for _, key := range sortedKeys(capabilities) {
		capability := capabilities[key]
		if capability.Name == "" {
			problems = append(problems, fmt.Sprintf("Capability %q missing name", key))
		}
		if len(capability.Zones) == 0 {
			problems = append(problems, fmt.Sprintf("Capability %q has no zones assigned", key))
			continue
		}
		for _, zoneKey := range capability.Zones {
			if _, ok := zones[zoneKey]; !ok {
				problems = append(problems, fmt.Sprintf("Capability %q references unknown zone %q", key, zoneKey))
			}
		}
	}
	return problems
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
