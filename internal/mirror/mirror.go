// Package mirror keeps a read-mostly replica of the authoritative store on
// the client side of a WebSocket link.
//
// A Mirror is a private storage.Store driven by the envelopes the hub sends:
// current_state replaces it wholesale, status_update applies one change.
// Because the replica is a Store it answers the same relation, status and
// zone health queries as the server.
package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/dreamware/statusboard/internal/inventory"
	"github.com/dreamware/statusboard/internal/storage"
)

var (
	// ErrMalformedMessage is returned for frames that are not a usable
	// envelope.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownMessage is returned for envelope types the mirror does not
	// handle.
	ErrUnknownMessage = errors.New("unknown message type")
)

// Config configures a Mirror.
type Config struct {
	Logger *slog.Logger

	// Optional configuration.
	Clock           clockwork.Clock
	HealthCacheSize int
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

// Mirror is a client-side replica of the inventory.
type Mirror struct {
	*storage.Store

	clock     clockwork.Clock
	log       *slog.Logger
	connected atomic.Bool

	mu        sync.Mutex
	lastError *inventory.ErrorPayload
	synced    bool
}

// New returns an empty, disconnected mirror.
func New(cfg Config) (*Mirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger.With("component", "mirror")
	store, err := storage.NewStore(storage.Config{
		Logger:          log,
		Clock:           cfg.Clock,
		HealthCacheSize: cfg.HealthCacheSize,
	})
	if err != nil {
		return nil, err
	}
	return &Mirror{Store: store, clock: cfg.Clock, log: log}, nil
}

// Apply handles one frame received from the hub and returns the envelope
// type it carried. Errors are never fatal to the link; the caller logs them
// and keeps reading.
func (m *Mirror) Apply(raw []byte) (string, error) {
	var msg inventory.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		return msg.Type, fmt.Errorf("%w: %s without payload", ErrMalformedMessage, msg.Type)
	}

	switch msg.Type {
	case inventory.MessageCurrentState:
		var state inventory.State
		if err := json.Unmarshal(msg.Payload, &state); err != nil {
			return msg.Type, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		m.ReplaceState(state)
		m.mu.Lock()
		m.synced = true
		m.mu.Unlock()

	case inventory.MessageStatusUpdate:
		var u inventory.StatusUpdate
		if err := json.Unmarshal(msg.Payload, &u); err != nil {
			return msg.Type, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if err := m.Store.Apply(u); err != nil {
			return msg.Type, err
		}

	case inventory.MessageError:
		var ep inventory.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &ep); err != nil {
			return msg.Type, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		m.log.Error("server rejected update", "message", ep.Message, "update", string(ep.OriginalUpdate))
		m.mu.Lock()
		m.lastError = &ep
		m.mu.Unlock()

	default:
		return msg.Type, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	return msg.Type, nil
}

// Connected reports whether the link to the hub is up.
func (m *Mirror) Connected() bool { return m.connected.Load() }

func (m *Mirror) setConnected(up bool) {
	if m.connected.Swap(up) != up {
		m.log.Info("link state changed", "connected", up)
	}
}

// Synced reports whether a current_state has been received.
func (m *Mirror) Synced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.synced
}

// LastError returns the most recent error envelope from the hub.
func (m *Mirror) LastError() (inventory.ErrorPayload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastError == nil {
		return inventory.ErrorPayload{}, false
	}
	return *m.lastError, true
}
