package discovery

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/contracts"
)

// HostRegistry implements contracts.PeerRegistry on top of a libp2p host:
// addresses go to the peerstore, the tag becomes a connection-manager tag
// so protected bootstrap peers survive connection pruning.
type HostRegistry struct {
	host host.Host
}

func NewHostRegistry(h host.Host) *HostRegistry {
	return &HostRegistry{host: h}
}

// Merge upserts the peer's addresses and tag. A zero TTL keeps bootstrap
// addresses permanently; connection-manager tags carry no TTL of their own.
func (r *HostRegistry) Merge(ctx context.Context, info peer.AddrInfo, tag contracts.Tag) error {
	ttl := tag.TTL
	if ttl == 0 {
		ttl = peerstore.PermanentAddrTTL
	}
	r.host.Peerstore().AddAddrs(info.ID, info.Addrs, ttl)

	if cm := r.host.ConnManager(); cm != nil {
		cm.TagPeer(info.ID, tag.Name, tag.Value)
	}
	return nil
}

var _ contracts.PeerRegistry = (*HostRegistry)(nil)
