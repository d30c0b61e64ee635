// Package ingest turns a declarative YAML inventory document into the
// payload the store loads with ReplaceState.
//
// The pipeline has three stages, each usable on its own:
//
//	Parse     bytes -> *Document        (syntax)
//	Validate  *Document -> []string     (structure, every problem at once)
//	Transform *Document -> State        (ids, default statuses, edges)
//
// Ids are derived from document keys, so re-uploading the same document
// yields the same ids.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/dreamware/statusboard/internal/inventory"
)

// ErrNilDocument is returned by Transform when given no document.
var ErrNilDocument = errors.New("no document to transform")

// Config configures an Ingestor.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
}

// Validate fills in defaults.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Ingestor validates and transforms inventory documents.
type Ingestor struct {
	log   *slog.Logger
	clock clockwork.Clock
}

// New returns an Ingestor.
func New(cfg Config) (*Ingestor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ingestor{
		log:   cfg.Logger.With("component", "ingest"),
		clock: cfg.Clock,
	}, nil
}

// Ingest runs the whole pipeline. Validation failures are returned as a
// *ValidationError.
func (i *Ingestor) Ingest(data []byte) (inventory.State, error) {
	doc, err := Parse(data)
	if err != nil {
		return inventory.State{}, err
	}
	if problems := Validate(doc); len(problems) > 0 {
		return inventory.State{}, &ValidationError{Problems: problems}
	}
	return i.Transform(doc)
}

// Transform builds a State from a validated document.
//
// Zones and capabilities are emitted in sorted key order, servers in
// document order within their zone. Every entity starts Secure or
// Operational and all share one timestamp. Capability edges to unknown zone
// keys are skipped with a warning rather than failing the load.
func (i *Ingestor) Transform(doc *Document) (inventory.State, error) {
	if doc == nil {
		return inventory.State{}, ErrNilDocument
	}

	now := i.clock.Now()
	state := inventory.State{
		Capabilities:            make([]inventory.Capability, 0, len(doc.Capabilities)),
		Zones:                   make([]inventory.Zone, 0, len(doc.Zones)),
		Servers:                 []inventory.Server{},
		CapabilityZoneRelations: []inventory.Relation{},
	}

	zoneIDs := make(map[string]struct{}, len(doc.Zones))
	serverIDs := make(map[string]struct{})
	for _, key := range sortedKeys(doc.Zones) {
		spec := doc.Zones[key]
		zoneID := ZoneID(key)
		if _, dup := zoneIDs[zoneID]; dup {
			return inventory.State{}, fmt.Errorf("zone keys collide on id %q", zoneID)
		}
		zoneIDs[zoneID] = struct{}{}
		state.Zones = append(state.Zones, inventory.Zone{
			ID:          zoneID,
			Name:        spec.Name,
			LastUpdated: now,
		})

		if len(spec.Servers) == 0 {
			i.log.Warn("zone has no servers", "zone", key)
			continue
		}
		for _, srv := range spec.Servers {
			id := ServerID(key, srv.Name)
			if _, dup := serverIDs[id]; dup {
				i.log.Warn("duplicate server id, skipping", "zone", key, "server", srv.Name, "id", id)
				continue
			}
			serverIDs[id] = struct{}{}
			state.Servers = append(state.Servers, inventory.Server{
				ID:          id,
				Name:        srv.Name,
				Status:      inventory.ServerSecure,
				ZoneID:      zoneID,
				LastUpdated: now,
				Description: inventory.Description{
					OS:   srv.OS,
					IPv4: srv.IPv4,
					IPv6: srv.IPv6,
				},
			})
		}
	}

	for _, key := range sortedKeys(doc.Capabilities) {
		spec := doc.Capabilities[key]
		capID := CapabilityID(key)
		state.Capabilities = append(state.Capabilities, inventory.Capability{
			ID:          capID,
			Name:        spec.Name,
			Status:      inventory.CapabilityOperational,
			LastUpdated: now,
		})

		if len(spec.Zones) == 0 {
			i.log.Warn("capability has no zones assigned", "capability", key)
			continue
		}
		seen := make(map[string]struct{}, len(spec.Zones))
		for _, zoneKey := range spec.Zones {
			zoneID := ZoneID(zoneKey)
			if _, ok := zoneIDs[zoneID]; !ok {
				i.log.Warn("capability references unknown zone", "capability", key, "zone", zoneKey)
				continue
			}
			if _, dup := seen[zoneID]; dup {
				continue
			}
			seen[zoneID] = struct{}{}
			state.CapabilityZoneRelations = append(state.CapabilityZoneRelations, inventory.Relation{
				CapabilityID: capID,
				ZoneID:       zoneID,
			})
		}
	}

	i.log.Debug("document transformed",
		"name", doc.Metadata.Name,
		"version", doc.Metadata.Version,
		"zones", len(state.Zones),
		"servers", len(state.Servers),
	)
	return state, nil
}

const zonePrefixLen = 3

var (
	whitespace = regexp.MustCompile(`\s+`)
	nonSlug    = regexp.MustCompile(`[^a-z0-9-]`)
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]`)
)

// Slug lowercases name, turns whitespace runs into '-' and drops anything
// outside [a-z0-9-].
func Slug(name string) string {
	s := strings.ToLower(name)
	s = whitespace.ReplaceAllString(s, "-")
	return nonSlug.ReplaceAllString(s, "")
}

// ZoneID returns the id of the zone with document key key.
func ZoneID(key string) string { return "zone-" + Slug(key) }

// CapabilityID returns the id of the capability with document key key.
func CapabilityID(key string) string { return "cap-" + Slug(key) }

// ServerID returns the id of a server: the first three alphanumerics of its
// zone key followed by the slug of its name, e.g. "us-east" + "Web 01" is
// "server-use-web-01".
func ServerID(zoneKey, serverName string) string {
	prefix := strings.ToLower(zoneKey)
	prefix = whitespace.ReplaceAllString(prefix, "")
	prefix = nonAlnum.ReplaceAllString(prefix, "")
	if len(prefix) > zonePrefixLen {
		prefix = prefix[:zonePrefixLen]
	}
	return "server-" + prefix + "-" + Slug(serverName)
}
