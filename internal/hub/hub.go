package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/dreamware/statusboard/internal/inventory"
	"github.com/dreamware/statusboard/internal/metrics"
	"github.com/dreamware/statusboard/internal/storage"
)

// Config configures a Hub.
type Config struct {
	Store  *storage.Store
	Logger *slog.Logger

	// Optional configuration.
	Clock clockwork.Clock
}

// Validate checks required fields and fills in defaults.
func (c *Config) Validate() error {
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Hub relays status changes between connected observers and the store.
//
// Every accepted status_update is applied to the store first and only then
// relayed to the other peers, so a peer never sees a change the store
// rejected. A rejected update is answered with an error message to its
// sender alone.
//
// A joining peer receives exactly one current_state message before anything
// else: Join holds the peer's send lock from registration until the
// snapshot is written, and any fan-out that picked up the peer in between
// waits on that lock.
//
// Thread Safety:
// All methods are safe for concurrent use. No network write happens while
// the store lock or the registry lock is held.
type Hub struct {
	store *storage.Store
	peers *Registry
	clock clockwork.Clock
	log   *slog.Logger
}

// New returns a Hub relaying for cfg.Store.
func New(cfg Config) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hub{
		store: cfg.Store,
		peers: NewRegistry(),
		clock: cfg.Clock,
		log:   cfg.Logger.With("component", "hub"),
	}, nil
}

// Peers returns the hub's registry.
func (h *Hub) Peers() *Registry { return h.peers }

// Join registers conn and sends it the current snapshot. If the snapshot
// cannot be delivered the peer is dropped and an error returned.
func (h *Hub) Join(conn Conn) error {
	p := &peer{conn: conn}
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if err := h.peers.add(p); err != nil {
		return fmt.Errorf("failed to join %s: %w", conn.ID(), err)
	}
	metrics.PeerJoinsTotal.Inc()
	metrics.PeersConnected.Set(float64(h.peers.Len()))

	msg, err := inventory.NewMessage(inventory.MessageCurrentState, h.store.Snapshot())
	if err == nil {
		err = conn.Send(msg)
	}
	if err != nil {
		metrics.FanoutDeliveriesTotal.WithLabelValues(inventory.MessageCurrentState, metrics.ResultError).Inc()
		h.drop(p, "snapshot_failed")
		return fmt.Errorf("failed to send snapshot to %s: %w", conn.ID(), err)
	}
	metrics.FanoutDeliveriesTotal.WithLabelValues(inventory.MessageCurrentState, metrics.ResultOK).Inc()

	h.log.Info("peer joined", "peer", conn.ID(), "peers", h.peers.Len())
	return nil
}

// Leave deregisters conn. It does not close it.
func (h *Hub) Leave(conn Conn) {
	if _, ok := h.peers.remove(conn.ID(), nil); !ok {
		return
	}
	metrics.PeerDropsTotal.WithLabelValues("left").Inc()
	metrics.PeersConnected.Set(float64(h.peers.Len()))
	h.log.Info("peer left", "peer", conn.ID(), "peers", h.peers.Len())
}

// Handle processes one raw message received from conn.
//
// Malformed envelopes, envelopes without a payload and unrecognized types
// are logged and dropped; the connection stays open.
func (h *Hub) Handle(conn Conn, raw []byte) {
	var msg inventory.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.MessagesReceivedTotal.WithLabelValues("invalid").Inc()
		h.log.Warn("dropping malformed message", "peer", conn.ID(), "error", err)
		return
	}
	if len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		metrics.MessagesReceivedTotal.WithLabelValues("invalid").Inc()
		h.log.Warn("dropping message without payload", "peer", conn.ID(), "type", msg.Type)
		return
	}

	switch msg.Type {
	case inventory.MessageStatusUpdate:
		metrics.MessagesReceivedTotal.WithLabelValues(msg.Type).Inc()
		h.handleStatusUpdate(conn, msg.Payload)
	default:
		metrics.MessagesReceivedTotal.WithLabelValues("unknown").Inc()
		h.log.Debug("ignoring message", "peer", conn.ID(), "type", msg.Type)
	}
}

func (h *Hub) handleStatusUpdate(conn Conn, payload json.RawMessage) {
	var u inventory.StatusUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		h.log.Warn("dropping undecodable status update", "peer", conn.ID(), "error", err)
		return
	}

	applied, err := h.apply(u)
	if err != nil {
		h.log.Warn("status update rejected", "peer", conn.ID(), "id", u.ID, "type", u.Type, "error", err)
		h.reject(conn, payload, err)
		return
	}
	h.fanout(applied, conn.ID())
}

// Publish applies u on behalf of a caller that is not a peer and relays it
// to every peer.
func (h *Hub) Publish(u inventory.StatusUpdate) error {
	applied, err := h.apply(u)
	if err != nil {
		return err
	}
	h.fanout(applied, "")
	return nil
}

// BroadcastSnapshot sends a fresh current_state to every peer. It is called
// after the store has been replaced.
func (h *Hub) BroadcastSnapshot() {
	msg, err := inventory.NewMessage(inventory.MessageCurrentState, h.store.Snapshot())
	if err != nil {
		h.log.Error("failed to encode snapshot", "error", err)
		return
	}
	sent := h.send(inventory.MessageCurrentState, msg, "")
	h.log.Info("snapshot broadcast", "peers", sent)
}

// apply stamps u with the hub clock when it carries no timestamp, so every
// peer records the same instant, and applies it to the store.
func (h *Hub) apply(u inventory.StatusUpdate) (inventory.StatusUpdate, error) {
	if u.Timestamp.IsZero() {
		u.Timestamp = h.clock.Now()
	}
	if err := h.store.Apply(u); err != nil {
		metrics.StatusUpdatesTotal.WithLabelValues(string(u.Type), metrics.ResultRejected).Inc()
		return u, err
	}
	metrics.StatusUpdatesTotal.WithLabelValues(string(u.Type), metrics.ResultOK).Inc()
	return u, nil
}

func (h *Hub) fanout(u inventory.StatusUpdate, exclude string) {
	msg, err := inventory.NewMessage(inventory.MessageStatusUpdate, u)
	if err != nil {
		h.log.Error("failed to encode status update", "error", err)
		return
	}
	sent := h.send(inventory.MessageStatusUpdate, msg, exclude)
	h.log.Debug("status update relayed", "id", u.ID, "status", u.Status, "peers", sent)
}

func (h *Hub) reject(conn Conn, original json.RawMessage, cause error) {
	p, ok := h.peers.get(conn.ID())
	if !ok {
		return
	}
	msg, err := inventory.NewMessage(inventory.MessageError, inventory.ErrorPayload{
		Message:        "Failed to apply status update: " + cause.Error(),
		OriginalUpdate: original,
	})
	if err != nil {
		h.log.Error("failed to encode error message", "error", err)
		return
	}
	if err := p.send(msg); err != nil {
		metrics.FanoutDeliveriesTotal.WithLabelValues(inventory.MessageError, metrics.ResultError).Inc()
		h.log.Warn("failed to deliver error to peer", "peer", conn.ID(), "error", err)
		h.drop(p, "send_failed")
		return
	}
	metrics.FanoutDeliveriesTotal.WithLabelValues(inventory.MessageError, metrics.ResultOK).Inc()
}

// send writes msg to every peer except exclude and returns how many
// deliveries succeeded. Peers whose send fails are dropped; the rest still
// receive the message.
func (h *Hub) send(msgType string, msg []byte, exclude string) int {
	sent := 0
	for _, p := range h.peers.list() {
		if p.conn.ID() == exclude {
			continue
		}
		if err := p.send(msg); err != nil {
			metrics.FanoutDeliveriesTotal.WithLabelValues(msgType, metrics.ResultError).Inc()
			h.log.Warn("failed to deliver message, dropping peer", "peer", p.conn.ID(), "type", msgType, "error", err)
			h.drop(p, "send_failed")
			continue
		}
		metrics.FanoutDeliveriesTotal.WithLabelValues(msgType, metrics.ResultOK).Inc()
		sent++
	}
	return sent
}

// CloseAll drops and closes every peer.
func (h *Hub) CloseAll() {
	for _, p := range h.peers.list() {
		h.drop(p, "shutdown")
	}
}

// drop deregisters p and closes its connection.
func (h *Hub) drop(p *peer, reason string) {
	if _, ok := h.peers.remove(p.conn.ID(), p); !ok {
		return
	}
	metrics.PeerDropsTotal.WithLabelValues(reason).Inc()
	metrics.PeersConnected.Set(float64(h.peers.Len()))
	if err := p.conn.Close(); err != nil {
		h.log.Debug("error closing dropped peer", "peer", p.conn.ID(), "error", err)
	}
}
