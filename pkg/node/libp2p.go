package node

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	libp2ppubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	noise "github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2pquic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/anyoneproxy"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/encryption"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/logging"
)

// startLibP2P creates the host, gossipsub and the DHT.
func (n *Node) startLibP2P(ctx context.Context) error {
	n.logger.ComponentInfo(logging.ComponentLibP2P, "Starting LibP2P host")

	listenAddrs, err := n.config.ParseMultiaddrs()
	if err != nil {
		return fmt.Errorf("failed to parse listen addresses: %w", err)
	}

	identity, err := n.loadOrCreateIdentity()
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}

	// Keep the connection manager's high water at the configured maximum;
	// bootstrap peers carry tags heavy enough to survive pruning.
	high := n.config.Node.MaxConnections
	if high <= 0 {
		high = 50
	}
	low := high / 2
	if low < 1 {
		low = 1
	}
	cm, err := connmgr.NewConnManager(low, high)
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(identity),
		libp2p.ListenAddrs(listenAddrs...),
		libp2p.Security(noise.ID, noise.New),
		libp2p.ConnectionManager(cm),
		libp2p.DefaultMuxers,
	}
	if anyoneproxy.Enabled() {
		opts = append(opts, libp2p.Transport(tcp.NewTCPTransport, tcp.WithDialerForAddr(anyoneproxy.DialerForAddr())))
	} else {
		opts = append(opts, libp2p.Transport(tcp.NewTCPTransport))
	}
	// QUIC cannot ride the SOCKS5 proxy; enable it only when dialing direct.
	if !anyoneproxy.Enabled() {
		opts = append(opts, libp2p.Transport(libp2pquic.NewTransport))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return err
	}
	n.host = h

	ps, err := libp2ppubsub.NewGossipSub(ctx, h,
		libp2ppubsub.WithPeerExchange(true),
		libp2ppubsub.WithFloodPublish(true),
	)
	if err != nil {
		return fmt.Errorf("failed to create pubsub: %w", err)
	}
	n.pubsub = ps

	kademliaDHT, err := dht.New(ctx, h, dht.Mode(dht.ModeServer))
	if err != nil {
		return fmt.Errorf("failed to create DHT: %w", err)
	}
	n.dht = kademliaDHT

	if err := kademliaDHT.Bootstrap(ctx); err != nil {
		n.logger.ComponentWarn(logging.ComponentLibP2P, "Failed to bootstrap DHT", zap.Error(err))
		// Continue; peerstore-backed resolution still works.
	}

	n.logger.ComponentInfo(logging.ComponentLibP2P, "LibP2P host started",
		zap.String("peer_id", h.ID().String()))
	return nil
}

// loadOrCreateIdentity loads the persistent node identity from the data
// directory, creating one on first start.
func (n *Node) loadOrCreateIdentity() (crypto.PrivKey, error) {
	identityFile := filepath.Join(n.config.Node.DataDir, "identity.key")

	info, created, err := encryption.LoadOrCreateIdentity(identityFile)
	if err != nil {
		return nil, err
	}
	if created {
		n.logger.ComponentInfo(logging.ComponentNode, "Created new identity",
			zap.String("peer_id", info.PeerID.String()), zap.String("file", identityFile))
	} else {
		n.logger.ComponentInfo(logging.ComponentNode, "Loaded existing identity",
			zap.String("peer_id", info.PeerID.String()))
	}
	return info.PrivateKey, nil
}
