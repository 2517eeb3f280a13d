package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/contracts"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/evm"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/logging"
)

// Construction errors. Each missing required field fails with its own
// sentinel so callers and operators can tell them apart.
var (
	ErrNoContractAddress = errors.New("requires a contract address")
	ErrNoContractIndex   = errors.New("requires a contract index")
	ErrNoChainID         = errors.New("requires a chain id")
	ErrNoProvider        = errors.New("requires an ethereum provider")

	// ErrWrongNetwork is returned when the provider's network id does not
	// match the configured chain id. It is the only error the discovery
	// pipeline lets escape to a direct caller.
	ErrWrongNetwork = errors.New("wrong network")
)

const (
	defaultDiscoveryDelay = 1000 * time.Millisecond
	defaultTagName        = "evmbootstrap"
	defaultTagValue       = 50

	dialTimeout = 15 * time.Second
)

// Config for a BootstrapDiscoverer. Immutable after construction.
type Config struct {
	ContractAddress string        // peer registry contract, 0x-hex
	ContractIndex   string        // address-shaped list selector inside the contract
	ChainID         *big.Int      // expected network id
	Provider        any           // native evm.ChainClient or evm.Requester
	WalletSupported bool          // allow wrapping a wallet-style Provider
	DiscoveryDelay  time.Duration // delay before the one-shot discovery run; <=0 means default
	TagName         string
	TagValue        int
	TagTTL          time.Duration // zero means registry-default expiry
}

// Components are the injected collaborators the discoverer drives.
type Components struct {
	Registry contracts.PeerRegistry
	Routing  routing.PeerRouting
	Dialer   contracts.Dialer
	Logger   *logging.ColoredLogger
}

// BootstrapDiscoverer reads bootstrap peer ids from an on-chain registry,
// resolves them, tags them in the peer registry, announces them to notifees
// and asks the dialer to connect. It implements contracts.Discovery.
//
// Start arms a one-shot timer; the pipeline runs once when it fires. There
// is no internal retry: discovery runs again only on a fresh Start after a
// Stop.
type BootstrapDiscoverer struct {
	cfg      Config
	client   evm.ChainClient
	registry contracts.PeerRegistry
	routing  routing.PeerRouting
	dialer   contracts.Dialer
	log      *logging.ComponentLogger

	mu         sync.Mutex
	timer      *time.Timer
	discovered []peer.AddrInfo
	notifees   []contracts.Notifee
}

var _ contracts.Discovery = (*BootstrapDiscoverer)(nil)

// NewBootstrapDiscoverer validates the config, normalizes the provider and
// returns an idle discoverer. Validation happens before any network access.
func NewBootstrapDiscoverer(cfg Config, comps Components) (*BootstrapDiscoverer, error) {
	if cfg.ContractAddress == "" {
		return nil, ErrNoContractAddress
	}
	if cfg.ContractIndex == "" {
		return nil, ErrNoContractIndex
	}
	if cfg.ChainID == nil {
		return nil, ErrNoChainID
	}
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}

	client, err := evm.NormalizeProvider(cfg.Provider, cfg.WalletSupported)
	if err != nil {
		return nil, err
	}

	if cfg.DiscoveryDelay <= 0 {
		cfg.DiscoveryDelay = defaultDiscoveryDelay
	}
	if cfg.TagName == "" {
		cfg.TagName = defaultTagName
	}
	if cfg.TagValue == 0 {
		cfg.TagValue = defaultTagValue
	}

	return &BootstrapDiscoverer{
		cfg:      cfg,
		client:   client,
		registry: comps.Registry,
		routing:  comps.Routing,
		dialer:   comps.Dialer,
		log:      comps.Logger.ForComponent(logging.ComponentDiscovery),
	}, nil
}

// IsStarted reports whether the discovery timer is armed.
func (d *BootstrapDiscoverer) IsStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Start arms the one-shot discovery timer. Calling Start while already
// armed is a no-op: the pending timer keeps its original delay.
func (d *BootstrapDiscoverer) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		return nil
	}

	d.timer = time.AfterFunc(d.cfg.DiscoveryDelay, func() {
		// The timer callback has no caller to report to; pipeline errors
		// end here.
		if err := d.discoverBootstrapPeers(context.Background()); err != nil {
			d.log.Error("bootstrap discovery failed", zap.Error(err))
		}
	})

	d.log.Debug("bootstrap discovery armed", zap.Duration("delay", d.cfg.DiscoveryDelay))
	return nil
}

// Stop cancels the pending timer and returns the discoverer to idle.
// Peers already discovered stay in the buffer and keep their registry
// tags; dials already dispatched are not cancelled. Idempotent.
func (d *BootstrapDiscoverer) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return nil
}

// RegisterNotifee subscribes a receiver to discovered-peer events.
func (d *BootstrapDiscoverer) RegisterNotifee(n contracts.Notifee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifees = append(d.notifees, n)
}

// UnregisterNotifee removes a previously registered receiver.
func (d *BootstrapDiscoverer) UnregisterNotifee(n contracts.Notifee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.notifees {
		if existing == n {
			d.notifees = append(d.notifees[:i], d.notifees[i+1:]...)
			return
		}
	}
}

// DiscoveredPeers returns a snapshot of every peer resolved so far.
func (d *BootstrapDiscoverer) DiscoveredPeers() []peer.AddrInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]peer.AddrInfo, len(d.discovered))
	copy(out, d.discovered)
	return out
}

// discoverBootstrapPeers is the discovery pipeline. The chain identity
// check runs first and its failure propagates to the caller; everything
// from contract construction onward sits behind a single failure boundary
// that logs and swallows, so a flaky RPC or a malformed address never
// takes the subsystem down.
func (d *BootstrapDiscoverer) discoverBootstrapPeers(ctx context.Context) error {
	// Stop may have raced ahead of the timer callback.
	if !d.IsStarted() {
		return nil
	}

	observed, err := d.client.NetworkID(ctx)
	if err != nil {
		d.log.Error("chain identity check failed", zap.Error(err))
		return fmt.Errorf("network id: %w", err)
	}
	if observed.Cmp(d.cfg.ChainID) != 0 {
		d.log.Error("connected to the wrong network",
			zap.String("observed_chain_id", observed.String()),
			zap.String("expected_chain_id", d.cfg.ChainID.String()))
		return fmt.Errorf("%w: observed chain id %s, expected %s", ErrWrongNetwork, observed, d.cfg.ChainID)
	}

	if err := d.runDiscovery(ctx); err != nil {
		d.log.Error("Could not discover bootstrap peers", zap.Error(err))
	}
	return nil
}

func (d *BootstrapDiscoverer) runDiscovery(ctx context.Context) error {
	if !common.IsHexAddress(d.cfg.ContractAddress) {
		return fmt.Errorf("invalid contract address %q", d.cfg.ContractAddress)
	}
	if !common.IsHexAddress(d.cfg.ContractIndex) {
		return fmt.Errorf("invalid contract index %q", d.cfg.ContractIndex)
	}

	registry := evm.NewRegistry(common.HexToAddress(d.cfg.ContractAddress), d.client)
	ids, err := registry.GetAllPeerIDs(ctx, common.HexToAddress(d.cfg.ContractIndex))
	if err != nil {
		return err
	}
	d.log.Info("fetched bootstrap peer ids from registry", zap.Int("count", len(ids)))

	// Resolve each id independently: one bad entry must not starve the
	// rest of the batch.
	for _, raw := range ids {
		info, err := d.resolvePeer(ctx, raw)
		if err != nil {
			d.log.Warn("skipping bootstrap peer id", zap.String("peer_id", raw), zap.Error(err))
			continue
		}
		d.mu.Lock()
		d.discovered = append(d.discovered, info)
		d.mu.Unlock()
	}

	// Tag, announce and connect every peer discovered so far, earlier
	// runs included; the registry merge is an idempotent upsert so
	// re-tagging a known peer is harmless.
	for _, info := range d.DiscoveredPeers() {
		if err := d.registry.Merge(ctx, info, contracts.Tag{
			Name:  d.cfg.TagName,
			Value: d.cfg.TagValue,
			TTL:   d.cfg.TagTTL,
		}); err != nil {
			return fmt.Errorf("merge peer %s: %w", info.ID, err)
		}

		// Stop may have landed mid-loop; bail before announcing.
		if !d.IsStarted() {
			return nil
		}

		d.broadcast(info)
		d.dial(info)
	}
	return nil
}

func (d *BootstrapDiscoverer) resolvePeer(ctx context.Context, raw string) (peer.AddrInfo, error) {
	pid, err := peer.Decode(raw)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("decode peer id: %w", err)
	}
	info, err := d.routing.FindPeer(ctx, pid)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("find peer: %w", err)
	}
	return info, nil
}

// broadcast delivers the peer to every notifee, synchronously and in
// registration order. Notifees are copied out first so handlers never run
// under the lock.
func (d *BootstrapDiscoverer) broadcast(info peer.AddrInfo) {
	d.mu.Lock()
	notifees := make([]contracts.Notifee, len(d.notifees))
	copy(notifees, d.notifees)
	d.mu.Unlock()

	for _, n := range notifees {
		n.HandlePeerFound(info)
	}
}

// dial asks the dialer for a connection without waiting for the outcome.
// The loop's latency is bounded by resolution and registry writes, not by
// connection establishment.
func (d *BootstrapDiscoverer) dial(info peer.AddrInfo) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		if err := d.dialer.Connect(ctx, info); err != nil {
			d.log.Error("could not dial bootstrap peer",
				zap.String("peer_id", info.ID.String()),
				zap.Error(err))
			return
		}
		d.log.Trace("connected to bootstrap peer", zap.String("peer_id", info.ID.String()))
	}()
}
