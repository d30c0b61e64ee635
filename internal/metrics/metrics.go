// Package metrics holds the Prometheus collectors of the statusboard server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statusboard_build_info",
		Help: "Build information of the statusboard server",
	},
		[]string{"version", "commit", "date"},
	)

	PeersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "statusboard_hub_peers_connected",
		Help: "Number of WebSocket peers currently registered with the hub",
	})

	PeerJoinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statusboard_hub_peer_joins_total",
		Help: "Total number of peers that joined the hub",
	})

	PeerDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statusboard_hub_peer_drops_total",
		Help: "Total number of peers removed from the hub",
	},
		[]string{"reason"},
	)

	MessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statusboard_hub_messages_received_total",
		Help: "Total number of envelopes received from peers",
	},
		[]string{"type"},
	)

	StatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statusboard_status_updates_total",
		Help: "Total number of status updates applied to the store",
	},
		[]string{"kind", "result"},
	)

	FanoutDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statusboard_hub_fanout_deliveries_total",
		Help: "Total number of messages delivered to peers",
	},
		[]string{"type", "result"},
	)

	UploadRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statusboard_upload_requests_total",
		Help: "Total number of configuration upload requests",
	},
		[]string{"result"},
	)

	InventorySize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statusboard_inventory_entities",
		Help: "Number of entities in the authoritative store",
	},
		[]string{"collection"},
	)
)

// Result labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// SetInventory publishes the store's collection sizes.
func SetInventory(capabilities, zones, servers, relations int) {
	InventorySize.WithLabelValues("capabilities").Set(float64(capabilities))
	InventorySize.WithLabelValues("zones").Set(float64(zones))
	InventorySize.WithLabelValues("servers").Set(float64(servers))
	InventorySize.WithLabelValues("relations").Set(float64(relations))
}
