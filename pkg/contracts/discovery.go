package contracts

import (
	"github.com/libp2p/go-libp2p/core/peer"
)

// Discovery is the lifecycle contract every peer discovery strategy
// implements. A strategy is startable, stoppable, and emits discovered
// peers to registered notifees.
type Discovery interface {
	// Start arms the strategy. Calling Start on an already started
	// strategy is a no-op; the first activation wins.
	Start() error

	// Stop disarms the strategy and cancels pending work. Peers already
	// discovered are kept. Stop is idempotent.
	Stop() error

	// IsStarted reports whether the strategy is currently armed.
	IsStarted() bool

	// RegisterNotifee subscribes a receiver to discovered-peer events.
	// Events are delivered synchronously in discovery order.
	RegisterNotifee(Notifee)

	// UnregisterNotifee removes a previously registered receiver.
	// Unknown receivers are ignored.
	UnregisterNotifee(Notifee)
}

// Notifee receives peers found by a discovery strategy.
type Notifee interface {
	// HandlePeerFound is invoked once per discovered peer, on the
	// strategy's goroutine. Implementations must not block for long.
	HandlePeerFound(peer.AddrInfo)
}
