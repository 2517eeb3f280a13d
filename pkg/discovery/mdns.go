package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/contracts"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/logging"
)

// MDNSDiscovery finds peers on the local network via mDNS. It implements
// the same contracts.Discovery lifecycle as the bootstrap strategy so the
// host can run both side by side.
type MDNSDiscovery struct {
	host        host.Host
	serviceName string
	dialer      contracts.Dialer
	log         *logging.ComponentLogger

	mu       sync.Mutex
	service  mdns.Service
	notifees []contracts.Notifee
}

var _ contracts.Discovery = (*MDNSDiscovery)(nil)

func NewMDNSDiscovery(h host.Host, serviceName string, dialer contracts.Dialer, logger *logging.ColoredLogger) *MDNSDiscovery {
	if serviceName == "" {
		serviceName = defaultTagName
	}
	return &MDNSDiscovery{
		host:        h,
		serviceName: serviceName,
		dialer:      dialer,
		log:         logger.ForComponent(logging.ComponentDiscovery),
	}
}

// Start registers the mDNS service. No-op while already running.
func (m *MDNSDiscovery) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.service != nil {
		return nil
	}

	service := mdns.NewMdnsService(m.host, m.serviceName, m)
	if err := service.Start(); err != nil {
		return err
	}
	m.service = service
	m.log.Info("mDNS discovery started", zap.String("service", m.serviceName))
	return nil
}

// Stop shuts the mDNS service down. Idempotent.
func (m *MDNSDiscovery) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.service == nil {
		return nil
	}
	err := m.service.Close()
	m.service = nil
	return err
}

func (m *MDNSDiscovery) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.service != nil
}

func (m *MDNSDiscovery) RegisterNotifee(n contracts.Notifee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifees = append(m.notifees, n)
}

func (m *MDNSDiscovery) UnregisterNotifee(n contracts.Notifee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.notifees {
		if existing == n {
			m.notifees = append(m.notifees[:i], m.notifees[i+1:]...)
			return
		}
	}
}

// HandlePeerFound is invoked by the mDNS service for every peer seen on
// the local network. It fans out to notifees and fires a dial.
func (m *MDNSDiscovery) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == m.host.ID() {
		return
	}
	m.log.Debug("mDNS discovered peer",
		zap.String("peer_id", info.ID.String()),
		zap.Int("addrs", len(info.Addrs)))

	m.mu.Lock()
	notifees := make([]contracts.Notifee, len(m.notifees))
	copy(notifees, m.notifees)
	m.mu.Unlock()

	for _, n := range notifees {
		n.HandlePeerFound(info)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.dialer.Connect(ctx, info); err != nil {
			m.log.Debug("could not dial mDNS peer",
				zap.String("peer_id", info.ID.String()),
				zap.Error(err))
		}
	}()
}
