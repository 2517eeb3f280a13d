package node

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"
)

// peerstoreRouting resolves peers the node has already heard about.
// Checking the local address book before the DHT keeps resolution
// instant for peers seeded out of band (mDNS, gossip, peer cache).
type peerstoreRouting struct {
	node *Node
}

var _ routing.PeerRouting = (*peerstoreRouting)(nil)

func (r *peerstoreRouting) FindPeer(ctx context.Context, pid peer.ID) (peer.AddrInfo, error) {
	addrs := r.node.host.Peerstore().Addrs(pid)
	if len(addrs) > 0 {
		return peer.AddrInfo{ID: pid, Addrs: addrs}, nil
	}
	if r.node.dht != nil {
		return r.node.dht.FindPeer(ctx, pid)
	}
	return peer.AddrInfo{}, routing.ErrNotFound
}

// routing returns the peer router discovery strategies resolve through.
func (n *Node) routing() routing.PeerRouting {
	return &peerstoreRouting{node: n}
}
