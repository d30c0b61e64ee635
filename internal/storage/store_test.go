package storage

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/statusboard/internal/inventory"
)

var testTime = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func testState() inventory.State {
	server := func(id, zoneID, os string) inventory.Server {
		return inventory.Server{
			ID:          id,
			Name:        id,
			Status:      inventory.ServerSecure,
			ZoneID:      zoneID,
			LastUpdated: testTime,
			Description: inventory.Description{OS: os, IPv4: []string{"10.0.0.1"}, IPv6: []string{}},
		}
	}
	return inventory.State{
		Capabilities: []inventory.Capability{
			{ID: "cap-web-services", Name: "Web Services", Status: inventory.CapabilityOperational, LastUpdated: testTime},
			{ID: "cap-data-storage", Name: "Data Storage", Status: inventory.CapabilityDegraded, LastUpdated: testTime},
			{ID: "cap-api-gateway", Name: "API Gateway", Status: inventory.CapabilityOperational, LastUpdated: testTime},
		},
		Zones: []inventory.Zone{
			{ID: "zone-us-east", Name: "US East", LastUpdated: testTime},
			{ID: "zone-us-west", Name: "US West", LastUpdated: testTime},
			{ID: "zone-eu-central", Name: "EU Central", LastUpdated: testTime},
			{ID: "zone-asia-pacific", Name: "Asia Pacific", LastUpdated: testTime},
			{ID: "zone-empty", Name: "Empty", LastUpdated: testTime},
		},
		Servers: []inventory.Server{
			server("server-use-web-01", "zone-us-east", "Debian 12"),
			server("server-use-web-02", "zone-us-east", "Debian 12"),
			server("server-usw-web-01", "zone-us-west", "Windows Server 2025"),
			server("server-usw-web-02", "zone-us-west", "Windows Server 2025"),
			server("server-eu-db-01", "zone-eu-central", "FreeBSD 14.1"),
			server("server-eu-cache-01", "zone-eu-central", "CentOS Stream 9"),
			server("server-ap-api-01", "zone-asia-pacific", "RHEL 10"),
			server("server-ap-lb-01", "zone-asia-pacific", "Arch Linux"),
		},
		CapabilityZoneRelations: []inventory.Relation{
			{CapabilityID: "cap-web-services", ZoneID: "zone-us-east"},
			{CapabilityID: "cap-web-services", ZoneID: "zone-us-west"},
			{CapabilityID: "cap-data-storage", ZoneID: "zone-us-east"},
			{CapabilityID: "cap-data-storage", ZoneID: "zone-us-west"},
			{CapabilityID: "cap-data-storage", ZoneID: "zone-eu-central"},
			{CapabilityID: "cap-api-gateway", ZoneID: "zone-asia-pacific"},
		},
	}
}

func newTestStore(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testTime)
	store, err := NewStore(Config{Clock: clock})
	require.NoError(t, err)
	store.ReplaceState(testState())
	return store, clock
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

func serverIDs(servers []inventory.Server) []string {
	return ids(servers, func(s inventory.Server) string { return s.ID })
}

// TestNewStore verifies defaults and validation.
func TestNewStore(t *testing.T) {
	store, err := NewStore(Config{})
	require.NoError(t, err)
	assert.Empty(t, store.Capabilities())
	assert.Equal(t, inventory.Summary{}, store.Stats())

	_, err = NewStore(Config{HealthCacheSize: -1})
	assert.Error(t, err)
}

// TestStoreLookup tests direct lookups and listing.
func TestStoreLookup(t *testing.T) {
	store, _ := newTestStore(t)

	c, ok := store.Capability("cap-web-services")
	require.True(t, ok)
	assert.Equal(t, "Web Services", c.Name)

	_, ok = store.Capability("cap-missing")
	assert.False(t, ok)

	z, ok := store.Zone("zone-eu-central")
	require.True(t, ok)
	assert.Equal(t, "EU Central", z.Name)

	srv, ok := store.Server("server-eu-db-01")
	require.True(t, ok)
	assert.Equal(t, "zone-eu-central", srv.ZoneID)
	assert.Equal(t, "FreeBSD 14.1", srv.Description.OS)

	assert.True(t, store.Exists(inventory.KindServer, "server-eu-db-01"))
	assert.False(t, store.Exists(inventory.KindCapability, "server-eu-db-01"))
	assert.True(t, store.Exists(inventory.KindZone, "zone-empty"))
	assert.False(t, store.Exists(inventory.EntityKind("Rack"), "zone-empty"))

	assert.Len(t, store.Capabilities(), 3)
	assert.Len(t, store.Zones(), 5)
	assert.Len(t, store.Servers(), 8)
	assert.Len(t, store.Relations(), 6)
	assert.Equal(t, inventory.Summary{Capabilities: 3, Zones: 5, Servers: 8, Relationships: 6}, store.Stats())
}

// TestServerIsCopy ensures callers cannot mutate stored address slices.
func TestServerIsCopy(t *testing.T) {
	store, _ := newTestStore(t)

	srv, _ := store.Server("server-eu-db-01")
	srv.Description.IPv4[0] = "192.168.0.1"

	again, _ := store.Server("server-eu-db-01")
	assert.Equal(t, "10.0.0.1", again.Description.IPv4[0])
}

// TestRelationQueries covers the four index-backed relation lookups.
func TestRelationQueries(t *testing.T) {
	store, _ := newTestStore(t)

	zones := store.ZonesOfCapability("cap-data-storage")
	assert.Equal(t, []string{"zone-eu-central", "zone-us-east", "zone-us-west"},
		ids(zones, func(z inventory.Zone) string { return z.ID }))

	assert.Equal(t, []string{"server-use-web-01", "server-use-web-02"}, serverIDs(store.ServersOfZone("zone-us-east")))
	assert.Empty(t, store.ServersOfZone("zone-empty"))
	assert.Empty(t, store.ServersOfZone("zone-missing"))

	assert.Equal(t, []string{
		"server-use-web-01", "server-use-web-02",
		"server-usw-web-01", "server-usw-web-02",
	}, serverIDs(store.ServersOfCapability("cap-web-services")))
	assert.Len(t, store.ServersOfCapability("cap-data-storage"), 6)
	assert.Empty(t, store.ServersOfCapability("cap-missing"))

	caps := store.CapabilitiesOfZone("zone-us-east")
	assert.Equal(t, []string{"cap-data-storage", "cap-web-services"},
		ids(caps, func(c inventory.Capability) string { return c.ID }))
	assert.Empty(t, store.CapabilitiesOfZone("zone-empty"))
}

// TestApplyStatusUpdate exercises accepted and rejected updates.
func TestApplyStatusUpdate(t *testing.T) {
	tests := []struct {
		name    string
		update  inventory.StatusUpdate
		wantOK  bool
		wantErr error
	}{
		{
			name:   "server status change",
			update: inventory.StatusUpdate{ID: "server-eu-db-01", Type: inventory.KindServer, Status: "Compromised", Timestamp: testTime.Add(time.Minute)},
			wantOK: true,
		},
		{
			name:   "capability status change",
			update: inventory.StatusUpdate{ID: "cap-api-gateway", Type: inventory.KindCapability, Status: "Offline", Timestamp: testTime.Add(time.Minute)},
			wantOK: true,
		},
		{
			name:    "unknown server id",
			update:  inventory.StatusUpdate{ID: "server-missing", Type: inventory.KindServer, Status: "Secure"},
			wantErr: ErrNotFound,
		},
		{
			name:    "kind mismatch",
			update:  inventory.StatusUpdate{ID: "cap-api-gateway", Type: inventory.KindServer, Status: "Secure"},
			wantErr: ErrNotFound,
		},
		{
			name:    "server status on capability",
			update:  inventory.StatusUpdate{ID: "cap-api-gateway", Type: inventory.KindCapability, Status: "Compromised"},
			wantErr: ErrInvalidStatus,
		},
		{
			name:    "capability status on server",
			update:  inventory.StatusUpdate{ID: "server-eu-db-01", Type: inventory.KindServer, Status: "Degraded"},
			wantErr: ErrInvalidStatus,
		},
		{
			name:    "zones have no status",
			update:  inventory.StatusUpdate{ID: "zone-us-east", Type: inventory.KindZone, Status: "Secure"},
			wantErr: ErrUnknownKind,
		},
		{
			name:    "empty kind",
			update:  inventory.StatusUpdate{ID: "server-eu-db-01", Status: "Secure"},
			wantErr: ErrUnknownKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			before := store.Snapshot()

			err := store.Apply(tt.update)
			if tt.wantOK {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				if diff := cmp.Diff(before, store.Snapshot()); diff != "" {
					t.Errorf("rejected update changed state (-before +after):\n%s", diff)
				}
				return
			}

			switch tt.update.Type {
			case inventory.KindServer:
				srv, _ := store.Server(tt.update.ID)
				assert.Equal(t, tt.update.Status, string(srv.Status))
				assert.Equal(t, tt.update.Timestamp, srv.LastUpdated)
			case inventory.KindCapability:
				c, _ := store.Capability(tt.update.ID)
				assert.Equal(t, tt.update.Status, string(c.Status))
				assert.Equal(t, tt.update.Timestamp, c.LastUpdated)
			}
			assert.Contains(t, store.IDsByStatus(tt.update.Type, tt.update.Status), tt.update.ID)
		})
	}
}

// TestApplyStatusUpdateBool checks the boolean form and the zero timestamp default.
func TestApplyStatusUpdateBool(t *testing.T) {
	store, clock := newTestStore(t)
	clock.Advance(time.Hour)

	assert.True(t, store.ApplyStatusUpdate(inventory.StatusUpdate{ID: "server-ap-lb-01", Type: inventory.KindServer, Status: "Unknown"}))
	assert.False(t, store.ApplyStatusUpdate(inventory.StatusUpdate{ID: "server-ap-lb-01", Type: inventory.KindCapability, Status: "Offline"}))

	srv, _ := store.Server("server-ap-lb-01")
	assert.Equal(t, inventory.ServerUnknown, srv.Status)
	assert.Equal(t, testTime.Add(time.Hour), srv.LastUpdated)
}

// TestStatusIndexMatchesCanonical applies a random sequence of updates and
// checks after every step that the status index equals a scan of the
// canonical collections.
func TestStatusIndexMatchesCanonical(t *testing.T) {
	store, _ := newTestStore(t)
	rng := rand.New(rand.NewSource(42))

	srvIDs := serverIDs(store.Servers())
	capIDs := ids(store.Capabilities(), func(c inventory.Capability) string { return c.ID })

	for i := 0; i < 500; i++ {
		var u inventory.StatusUpdate
		switch rng.Intn(3) {
		case 0:
			u = inventory.StatusUpdate{
				ID:     srvIDs[rng.Intn(len(srvIDs))],
				Type:   inventory.KindServer,
				Status: string(inventory.ServerStatuses[rng.Intn(len(inventory.ServerStatuses))]),
			}
		case 1:
			u = inventory.StatusUpdate{
				ID:     capIDs[rng.Intn(len(capIDs))],
				Type:   inventory.KindCapability,
				Status: string(inventory.CapabilityStatuses[rng.Intn(len(inventory.CapabilityStatuses))]),
			}
		default:
			// Rejected noise: wrong kind for the id.
			u = inventory.StatusUpdate{ID: capIDs[rng.Intn(len(capIDs))], Type: inventory.KindServer, Status: "Secure"}
		}
		store.ApplyStatusUpdate(u)

		for _, st := range inventory.ServerStatuses {
			var want []string
			for _, srv := range store.Servers() {
				if srv.Status == st {
					want = append(want, srv.ID)
				}
			}
			assert.ElementsMatch(t, want, store.IDsByStatus(inventory.KindServer, string(st)), "step %d status %s", i, st)
		}
		for _, st := range inventory.CapabilityStatuses {
			var want []string
			for _, c := range store.Capabilities() {
				if c.Status == st {
					want = append(want, c.ID)
				}
			}
			assert.ElementsMatch(t, want, store.IDsByStatus(inventory.KindCapability, string(st)), "step %d status %s", i, st)
		}
	}
}

// TestRebuildMatchesIncremental verifies that a full rebuild reproduces the
// incrementally maintained indexes exactly.
func TestRebuildMatchesIncremental(t *testing.T) {
	store, _ := newTestStore(t)

	updates := []inventory.StatusUpdate{
		{ID: "server-use-web-01", Type: inventory.KindServer, Status: "Compromised"},
		{ID: "server-eu-cache-01", Type: inventory.KindServer, Status: "Unknown"},
		{ID: "cap-data-storage", Type: inventory.KindCapability, Status: "Operational"},
		{ID: "server-use-web-01", Type: inventory.KindServer, Status: "Secure"},
		{ID: "cap-web-services", Type: inventory.KindCapability, Status: "Offline"},
	}
	for _, u := range updates {
		require.True(t, store.ApplyStatusUpdate(u))
	}

	incremental := store.idx.Clone()
	store.RebuildIndexes()
	assert.True(t, incremental.Equal(store.idx), "rebuilt indexes differ from incremental ones")

	// The status that emptied must not leave a key behind.
	assert.Empty(t, store.IDsByStatus(inventory.KindCapability, "Degraded"))
}

// TestZoneHealth covers aggregation through the store and precise invalidation.
func TestZoneHealth(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Equal(t, inventory.ServerSecure, store.ZoneHealth("zone-us-east"))
	assert.Equal(t, inventory.ServerSecure, store.ZoneHealth("zone-eu-central"))
	assert.Equal(t, inventory.ServerSecure, store.ZoneHealth("zone-empty"), "zone without servers is vacuously secure")
	assert.Equal(t, inventory.ServerSecure, store.ZoneHealth("zone-missing"))

	// Warm the cache for every zone.
	all := store.ZoneHealthAll()
	require.Len(t, all, 5)
	westBefore, ok := store.health.Peek("zone-us-west")
	require.True(t, ok)

	require.True(t, store.ApplyStatusUpdate(inventory.StatusUpdate{ID: "server-use-web-02", Type: inventory.KindServer, Status: "Compromised"}))

	_, ok = store.health.Peek("zone-us-east")
	assert.False(t, ok, "owning zone must be invalidated")
	for _, zoneID := range []string{"zone-us-west", "zone-eu-central", "zone-asia-pacific", "zone-empty"} {
		_, ok := store.health.Peek(zoneID)
		assert.True(t, ok, "zone %s must keep its cached entry", zoneID)
	}
	westAfter, _ := store.health.Peek("zone-us-west")
	assert.Equal(t, westBefore, westAfter)

	assert.Equal(t, inventory.ServerCompromised, store.ZoneHealth("zone-us-east"))

	require.True(t, store.ApplyStatusUpdate(inventory.StatusUpdate{ID: "server-use-web-01", Type: inventory.KindServer, Status: "Unknown"}))
	assert.Equal(t, inventory.ServerCompromised, store.ZoneHealth("zone-us-east"))

	require.True(t, store.ApplyStatusUpdate(inventory.StatusUpdate{ID: "server-use-web-02", Type: inventory.KindServer, Status: "Secure"}))
	assert.Equal(t, inventory.ServerUnknown, store.ZoneHealth("zone-us-east"))

	require.True(t, store.ApplyStatusUpdate(inventory.StatusUpdate{ID: "server-use-web-01", Type: inventory.KindServer, Status: "Secure"}))
	assert.Equal(t, inventory.ServerSecure, store.ZoneHealth("zone-us-east"))

	// Capability updates never touch zone health.
	require.True(t, store.ApplyStatusUpdate(inventory.StatusUpdate{ID: "cap-web-services", Type: inventory.KindCapability, Status: "Offline"}))
	_, ok = store.health.Peek("zone-us-east")
	assert.True(t, ok)
}

// TestReplaceStateRoundTrip verifies that Snapshot returns exactly what
// ReplaceState loaded and that a rebuild changes nothing observable.
func TestReplaceStateRoundTrip(t *testing.T) {
	store, err := NewStore(Config{})
	require.NoError(t, err)

	state := testState()
	store.ReplaceState(state)

	if diff := cmp.Diff(state, store.Snapshot()); diff != "" {
		t.Fatalf("snapshot differs from payload (-want +got):\n%s", diff)
	}

	indexes := store.idx.Clone()
	health := store.ZoneHealthAll()
	store.RebuildIndexes()

	assert.True(t, indexes.Equal(store.idx))
	assert.Equal(t, health, store.ZoneHealthAll())
	if diff := cmp.Diff(state, store.Snapshot()); diff != "" {
		t.Errorf("rebuild changed the snapshot (-want +got):\n%s", diff)
	}
}

// TestReplaceStateDiscardsOldMembership checks that a reload fully replaces
// entities, relations, indexes and cached health.
func TestReplaceStateDiscardsOldMembership(t *testing.T) {
	store, _ := newTestStore(t)
	require.True(t, store.ApplyStatusUpdate(inventory.StatusUpdate{ID: "server-use-web-01", Type: inventory.KindServer, Status: "Compromised"}))
	require.Equal(t, inventory.ServerCompromised, store.ZoneHealth("zone-us-east"))

	next := inventory.State{
		Capabilities: []inventory.Capability{{ID: "cap-web", Name: "Web", Status: inventory.CapabilityOperational}},
		Zones:        []inventory.Zone{{ID: "zone-us-east", Name: "US East"}},
		Servers: []inventory.Server{
			{ID: "server-use-new", Name: "New", Status: inventory.ServerSecure, ZoneID: "zone-us-east"},
		},
		CapabilityZoneRelations: []inventory.Relation{
			{CapabilityID: "cap-web", ZoneID: "zone-us-east"},
			{CapabilityID: "cap-web", ZoneID: "zone-us-east"}, // duplicate edge collapses
		},
	}
	store.ReplaceState(next)

	assert.Equal(t, inventory.Summary{Capabilities: 1, Zones: 1, Servers: 1, Relationships: 1}, store.Stats())
	assert.False(t, store.Exists(inventory.KindServer, "server-use-web-01"))
	assert.Equal(t, inventory.ServerSecure, store.ZoneHealth("zone-us-east"))
	assert.Equal(t, []string{"server-use-new"}, serverIDs(store.ServersOfCapability("cap-web")))
	assert.Empty(t, store.IDsByStatus(inventory.KindServer, "Compromised"))
}

// TestSnapshotIsCopy ensures snapshots are detached from the store.
func TestSnapshotIsCopy(t *testing.T) {
	store, _ := newTestStore(t)

	snap := store.Snapshot()
	snap.Servers[0].Status = inventory.ServerCompromised
	snap.Servers[0].Description.IPv4[0] = "1.1.1.1"
	snap.Zones = snap.Zones[:1]

	again := store.Snapshot()
	assert.Equal(t, inventory.ServerSecure, again.Servers[0].Status)
	assert.Equal(t, "10.0.0.1", again.Servers[0].Description.IPv4[0])
	assert.Len(t, again.Zones, 5)
}

// TestConcurrentAccess runs readers against writers; meaningful under -race.
func TestConcurrentAccess(t *testing.T) {
	store, _ := newTestStore(t)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				status := inventory.ServerStatuses[(w+i)%len(inventory.ServerStatuses)]
				store.ApplyStatusUpdate(inventory.StatusUpdate{
					ID:     fmt.Sprintf("server-use-web-0%d", 1+(i%2)),
					Type:   inventory.KindServer,
					Status: string(status),
				})
				if i%50 == 0 {
					store.RebuildIndexes()
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = store.ZoneHealth("zone-us-east")
				_ = store.ServersOfCapability("cap-web-services")
				_ = store.Snapshot()
				_ = store.IDsByStatus(inventory.KindServer, "Secure")
			}
		}()
	}
	wg.Wait()

	// Whatever the interleaving, index and canonical state agree.
	var secure []string
	for _, srv := range store.Servers() {
		if srv.Status == inventory.ServerSecure {
			secure = append(secure, srv.ID)
		}
	}
	assert.ElementsMatch(t, secure, store.IDsByStatus(inventory.KindServer, "Secure"))
}
