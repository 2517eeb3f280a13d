package contracts

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Tag describes the priority a discovery strategy assigns to a peer it
// registers. Value feeds connection-manager scoring; TTL bounds how long
// the peer's addresses stay in the address book. A zero TTL means the
// registry's long-lived default.
type Tag struct {
	Name  string
	Value int
	TTL   time.Duration
}

// PeerRegistry is the node's address book for discovered peers.
// Merge upserts: registering the same peer again refreshes its addresses
// and tag rather than duplicating them.
type PeerRegistry interface {
	// Merge records the peer's addresses and applies the tag.
	Merge(ctx context.Context, info peer.AddrInfo, tag Tag) error
}

// Dialer establishes outbound connections to discovered peers.
// host.Host satisfies it.
type Dialer interface {
	// Connect opens a connection to the peer, reusing an existing one
	// when present.
	Connect(ctx context.Context, info peer.AddrInfo) error
}
