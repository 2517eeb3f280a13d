package node

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	libp2ppubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/announce"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/config"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/contracts"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/discovery"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/evm"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/logging"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/peercache"
)

// Node wires the libp2p host, the on-chain bootstrap discovery strategy
// and its supporting services (gossip announcer, mDNS, peer cache)
// together.
type Node struct {
	config *config.Config
	logger *logging.ColoredLogger

	host      host.Host
	dht       *dht.IpfsDHT
	pubsub    *libp2ppubsub.PubSub
	bootstrap *discovery.BootstrapDiscoverer
	mdns      *discovery.MDNSDiscovery
	announcer *announce.Announcer
	cache     *peercache.Cache
	provider  io.Closer // chain client or wallet bridge, closed on Stop

	monitorCancel context.CancelFunc
}

// NewNode creates a new node from validated configuration. The logging
// config section governs level, format and output destination.
func NewNode(cfg *config.Config) (*Node, error) {
	logger, err := logging.NewLogger(logging.ComponentNode, logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputFile: cfg.Logging.OutputFile,
		Colors:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &Node{
		config: cfg,
		logger: logger,
	}, nil
}

// Start brings up the host and arms bootstrap discovery.
func (n *Node) Start(ctx context.Context) error {
	n.logger.ComponentInfo(logging.ComponentNode, "Starting node",
		zap.String("data_dir", n.config.Node.DataDir))

	if err := os.MkdirAll(n.config.Node.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := n.startLibP2P(ctx); err != nil {
		return fmt.Errorf("failed to start libp2p: %w", err)
	}

	if err := n.startDiscovery(ctx); err != nil {
		n.Stop()
		return fmt.Errorf("failed to start discovery: %w", err)
	}

	n.startConnectionMonitoring()

	var listenAddrs []string
	for _, addr := range n.host.Addrs() {
		listenAddrs = append(listenAddrs, addr.String())
	}
	n.logger.ComponentInfo(logging.ComponentNode, "Node started",
		zap.String("peer_id", n.host.ID().String()),
		zap.Strings("listen_addrs", listenAddrs))

	return nil
}

// startDiscovery builds the chain provider and the discovery strategies
// on top of the running host.
func (n *Node) startDiscovery(ctx context.Context) error {
	provider, walletSupported, err := n.dialProvider(ctx)
	if err != nil {
		return err
	}

	registry := discovery.NewHostRegistry(n.host)

	if n.config.Discovery.CachePath != "" {
		cachePath := n.config.Discovery.CachePath
		if !filepath.IsAbs(cachePath) && filepath.Dir(cachePath) == "." {
			cachePath = filepath.Join(n.config.Node.DataDir, cachePath)
		}
		cache, err := peercache.Open(cachePath, n.logger)
		if err != nil {
			return fmt.Errorf("failed to open peer cache: %w", err)
		}
		n.cache = cache
	}

	n.announcer = announce.NewAnnouncer(n.host, n.pubsub, n.config.Discovery.AnnounceTopic, registry, n.logger)
	if err := n.announcer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start announcer: %w", err)
	}

	bootstrap, err := discovery.NewBootstrapDiscoverer(discovery.Config{
		ContractAddress: n.config.Chain.ContractAddress,
		ContractIndex:   n.config.Chain.ContractIndex,
		ChainID:         big.NewInt(n.config.Chain.ChainID),
		Provider:        provider,
		WalletSupported: walletSupported,
		DiscoveryDelay:  n.config.Discovery.DiscoveryDelay,
		TagName:         n.config.Discovery.TagName,
		TagValue:        n.config.Discovery.TagValue,
		TagTTL:          n.config.Discovery.TagTTL,
	}, discovery.Components{
		Registry: registry,
		Routing:  n.routing(),
		Dialer:   n.host,
		Logger:   n.logger,
	})
	if err != nil {
		return err
	}
	n.bootstrap = bootstrap

	n.bootstrap.RegisterNotifee(n.announcer)
	if n.cache != nil {
		n.bootstrap.RegisterNotifee(n.cache.Sink("evm"))
	}

	if n.config.Discovery.EnableMDNS {
		n.mdns = discovery.NewMDNSDiscovery(n.host, n.config.Discovery.MDNSService, n.host, n.logger)
		n.mdns.RegisterNotifee(mergeNotifee{registry: registry})
		if n.cache != nil {
			n.mdns.RegisterNotifee(n.cache.Sink("mdns"))
		}
		if err := n.mdns.Start(); err != nil {
			n.logger.ComponentWarn(logging.ComponentDiscovery, "Failed to start mDNS discovery", zap.Error(err))
			n.mdns = nil
		}
	}

	return n.bootstrap.Start()
}

// dialProvider opens the configured chain provider. A wallet websocket
// endpoint takes precedence over the native RPC endpoint.
func (n *Node) dialProvider(ctx context.Context) (any, bool, error) {
	if n.config.Chain.WalletWSEndpoint != "" {
		n.logger.ComponentInfo(logging.ComponentChain, "Connecting to wallet bridge",
			zap.String("endpoint", n.config.Chain.WalletWSEndpoint))
		bridge, err := evm.NewWalletBridge(ctx, n.config.Chain.WalletWSEndpoint)
		if err != nil {
			return nil, false, err
		}
		n.provider = bridge
		return bridge, true, nil
	}

	n.logger.ComponentInfo(logging.ComponentChain, "Connecting to chain",
		zap.String("endpoint", n.config.Chain.RPCEndpoint),
		zap.Int64("chain_id", n.config.Chain.ChainID))
	client, err := evm.Dial(ctx, n.config.Chain.RPCEndpoint)
	if err != nil {
		return nil, false, err
	}
	n.provider = closerFunc(func() error { client.Close(); return nil })
	return client, false, nil
}

// Stop shuts everything down in reverse start order. Safe to call on a
// partially started node.
func (n *Node) Stop() error {
	n.logger.ComponentInfo(logging.ComponentNode, "Stopping node")

	if n.monitorCancel != nil {
		n.monitorCancel()
		n.monitorCancel = nil
	}
	if n.bootstrap != nil {
		n.bootstrap.Stop()
	}
	if n.mdns != nil {
		n.mdns.Stop()
	}
	if n.announcer != nil {
		n.announcer.Stop()
	}
	if n.cache != nil {
		n.cache.Close()
	}
	if n.provider != nil {
		n.provider.Close()
	}
	if n.dht != nil {
		n.dht.Close()
	}
	if n.host != nil {
		n.host.Close()
	}

	n.logger.ComponentInfo(logging.ComponentNode, "Node stopped")
	return nil
}

// Host returns the underlying libp2p host.
func (n *Node) Host() host.Host {
	return n.host
}

// Bootstrap returns the on-chain bootstrap discovery strategy.
func (n *Node) Bootstrap() contracts.Discovery {
	return n.bootstrap
}

// Cache returns the peer cache, or nil when caching is disabled.
func (n *Node) Cache() *peercache.Cache {
	return n.cache
}

// GetPeerID returns the peer id of this node.
func (n *Node) GetPeerID() string {
	if n.host == nil {
		return ""
	}
	return n.host.ID().String()
}

// mergeNotifee records mDNS peers in the registry at low priority; mDNS
// addresses are lan-local and churn with the network.
type mergeNotifee struct {
	registry contracts.PeerRegistry
}

func (m mergeNotifee) HandlePeerFound(info peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.registry.Merge(ctx, info, contracts.Tag{Name: "mdns", Value: 5, TTL: time.Hour})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
