package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Pinger is implemented by connections that can probe their remote end
// without sending an application message.
type Pinger interface {
	Ping() error
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Hub    *Hub
	Logger *slog.Logger

	// Optional configuration.
	Clock       clockwork.Clock
	Interval    time.Duration
	MaxFailures int
}

// Validate checks required fields and fills in defaults.
func (c *MonitorConfig) Validate() error {
	if c.Hub == nil {
		return errors.New("hub is required")
	}
	if c.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	if c.MaxFailures < 0 {
		return errors.New("max failures must not be negative")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	return nil
}

// Monitor pings every peer on an interval and drops peers that fail
// MaxFailures consecutive pings. Fan-out only notices a dead peer when it
// next has something to say; the monitor finds idle dead peers too.
//
// Peers whose Conn does not implement Pinger are never probed.
type Monitor struct {
	hub         *Hub
	clock       clockwork.Clock
	log         *slog.Logger
	interval    time.Duration
	maxFailures int

	mu       sync.Mutex
	failures map[string]int // connID -> consecutive failed pings
}

// NewMonitor returns a Monitor for cfg.Hub.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Monitor{
		hub:         cfg.Hub,
		clock:       cfg.Clock,
		log:         cfg.Logger.With("component", "monitor"),
		interval:    cfg.Interval,
		maxFailures: cfg.MaxFailures,
		failures:    make(map[string]int),
	}, nil
}

// Run probes peers until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info("peer monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("peer monitor stopped")
			return
		case <-ticker.Chan():
			m.Check()
		}
	}
}

// Check runs one probe round.
func (m *Monitor) Check() {
	peers := m.hub.peers.list()
	live := make(map[string]struct{}, len(peers))

	for _, p := range peers {
		id := p.conn.ID()
		live[id] = struct{}{}

		pinger, ok := p.conn.(Pinger)
		if !ok {
			continue
		}
		err := pinger.Ping()

		m.mu.Lock()
		if err == nil {
			delete(m.failures, id)
			m.mu.Unlock()
			continue
		}
		m.failures[id]++
		fails := m.failures[id]
		m.mu.Unlock()

		m.log.Warn("peer ping failed", "peer", id, "attempt", fails, "max", m.maxFailures, "error", err)
		if fails >= m.maxFailures {
			m.log.Warn("dropping unresponsive peer", "peer", id)
			m.hub.drop(p, "unresponsive")
		}
	}

	m.mu.Lock()
	for id := range m.failures {
		if _, ok := live[id]; !ok {
			delete(m.failures, id)
		}
	}
	m.mu.Unlock()
}

// Failures returns the consecutive failed pings recorded for a peer.
func (m *Monitor) Failures(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[id]
}
