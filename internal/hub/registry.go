package hub

import (
	"errors"
	"sync"

	"golang.org/x/exp/slices"
)

// ErrDuplicatePeer is returned when a connection id is already registered.
var ErrDuplicatePeer = errors.New("peer already registered")

// Conn is one observer connection as the hub sees it. The transport layer
// adapts a WebSocket (or anything else message-oriented) to it.
//
// Send must deliver one complete message or return an error. The hub never
// calls Send concurrently for the same Conn.
type Conn interface {
	ID() string
	Send(msg []byte) error
	Close() error
}

// peer is a registered connection plus the lock that serializes writes
// to it.
type peer struct {
	conn   Conn
	sendMu sync.Mutex
}

func (p *peer) send(msg []byte) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	return p.conn.Send(msg)
}

// Registry tracks the live peers of a hub.
//
// Architecture:
//
//	┌───────────────────────────────────────┐
//	│              Registry                 │
//	├───────────────────────────────────────┤
//	│  peers: map[connID]→*peer             │
//	│  mu: RWMutex (membership only)        │
//	├───────────────────────────────────────┤
//	│  peer.sendMu serializes writes to     │
//	│  one connection                       │
//	└───────────────────────────────────────┘
//
// Concurrency Model:
//   - add/remove take the write lock
//   - list copies the peers under the read lock so fan-out never holds it
//     while writing to the network
//   - a peer removed after list was taken may still receive one message;
//     its Send fails or is harmless
type Registry struct {
	peers map[string]*peer // connID -> peer
	mu    sync.RWMutex     // Protects peers
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*peer)}
}

func (r *Registry) add(p *peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.conn.ID()
	if _, ok := r.peers[id]; ok {
		return ErrDuplicatePeer
	}
	r.peers[id] = p
	return nil
}

// remove deletes the peer with id and returns it. It only removes p when
// given, so a stale handle cannot evict a newer registration.
func (r *Registry) remove(id string, p *peer) (*peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.peers[id]
	if !ok || (p != nil && cur != p) {
		return nil, false
	}
	delete(r.peers, id)
	return cur, true
}

func (r *Registry) get(id string) (*peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

func (r *Registry) list() []*peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// IDs returns the sorted ids of the registered peers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
