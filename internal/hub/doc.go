// Package hub keeps every connected observer synchronized with the
// authoritative store.
//
// # Protocol
//
// Messages in both directions are JSON envelopes:
//
//	{"type": "current_state", "payload": <State>}        server -> peer
//	{"type": "status_update", "payload": <StatusUpdate>} both directions
//	{"type": "error", "payload": {"message", "originalUpdate"}} server -> sender
//
// A peer receives one current_state when it joins and again after every
// configuration reload. A status_update sent by a peer is applied to the
// store; when accepted it is relayed to every other peer, when rejected the
// sender alone gets an error envelope.
//
// # Components
//
//   - Registry: the live peers, each with its own send lock
//   - Hub: envelope handling, apply-then-relay and snapshot delivery
//   - Monitor: periodic ping of idle peers, dropping unresponsive ones
//
// # Failure Handling
//
// A malformed message is logged and dropped and the connection stays open.
// A peer whose send fails is removed from the registry and closed; delivery
// to the remaining peers continues.
//
// # Usage
//
//	h, err := hub.New(hub.Config{Store: store, Logger: log})
//	if err != nil {
//	    return err
//	}
//	if err := h.Join(conn); err != nil {
//	    return err
//	}
//	defer h.Leave(conn)
//	for msg := range incoming {
//	    h.Handle(conn, msg)
//	}
package hub
