package announce

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/contracts"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/logging"
)

// staleAfter drops announcements older than this; nodes with skewed
// clocks or replayed messages should not repopulate dead peers.
const staleAfter = 5 * time.Minute

// announceTag marks registry entries learned via gossip rather than the
// on-chain registry, at lower priority.
var announceTag = contracts.Tag{Name: "announce", Value: 10, TTL: 24 * time.Hour}

// PeerAnnouncement is the wire format published on the announce topic.
type PeerAnnouncement struct {
	AnnounceID string   `json:"announce_id"`
	PeerID     string   `json:"peer_id"`
	Addresses  []string `json:"addresses"`
	Source     string   `json:"source"`
	Timestamp  int64    `json:"timestamp"`
}

// Announcer re-broadcasts peers found by a discovery strategy on a gossip
// topic and merges announcements heard from other nodes into the local
// peer registry. It implements contracts.Notifee so it can be registered
// directly on a strategy.
type Announcer struct {
	host      host.Host
	ps        *pubsub.PubSub
	topicName string
	registry  contracts.PeerRegistry
	log       *logging.ComponentLogger

	mu     sync.Mutex
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	cancel context.CancelFunc
}

var _ contracts.Notifee = (*Announcer)(nil)

func NewAnnouncer(h host.Host, ps *pubsub.PubSub, topicName string, registry contracts.PeerRegistry, logger *logging.ColoredLogger) *Announcer {
	return &Announcer{
		host:      h,
		ps:        ps,
		topicName: topicName,
		registry:  registry,
		log:       logger.ForComponent(logging.ComponentAnnounce),
	}
}

// Start joins the announce topic and begins handling inbound
// announcements. No-op while already running.
func (a *Announcer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.topic != nil {
		return nil
	}

	topic, err := a.ps.Join(a.topicName)
	if err != nil {
		return err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.topic = topic
	a.sub = sub
	a.cancel = cancel

	go a.readLoop(loopCtx, sub)

	a.log.Info("announcer started", zap.String("topic", a.topicName))
	return nil
}

// Stop leaves the topic. Idempotent.
func (a *Announcer) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.topic == nil {
		return nil
	}
	a.cancel()
	a.sub.Cancel()
	err := a.topic.Close()
	a.topic = nil
	a.sub = nil
	a.cancel = nil
	return err
}

// HandlePeerFound publishes the discovered peer on the announce topic.
func (a *Announcer) HandlePeerFound(info peer.AddrInfo) {
	a.mu.Lock()
	topic := a.topic
	a.mu.Unlock()
	if topic == nil {
		return
	}

	addrs := make([]string, 0, len(info.Addrs))
	for _, addr := range info.Addrs {
		addrs = append(addrs, addr.String())
	}

	announcement := PeerAnnouncement{
		AnnounceID: uuid.New().String(),
		PeerID:     info.ID.String(),
		Addresses:  addrs,
		Source:     "evmbootstrap",
		Timestamp:  time.Now().Unix(),
	}

	data, err := json.Marshal(announcement)
	if err != nil {
		a.log.Debug("failed to marshal announcement", zap.Error(err))
		return
	}

	if err := topic.Publish(context.Background(), data); err != nil {
		a.log.Debug("failed to publish announcement", zap.Error(err))
		return
	}
	a.log.Debug("announced bootstrap peer",
		zap.String("announce_id", announcement.AnnounceID),
		zap.String("peer_id", announcement.PeerID))
}

func (a *Announcer) readLoop(ctx context.Context, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			// Subscription cancelled or context done.
			return
		}
		if msg.ReceivedFrom == a.host.ID() {
			continue
		}
		a.handleAnnouncement(ctx, msg.Data)
	}
}

// handleAnnouncement merges one inbound announcement into the registry
// and dials the peer when not already connected. Malformed or stale
// payloads are skipped silently; gossip is best-effort.
func (a *Announcer) handleAnnouncement(ctx context.Context, data []byte) {
	var announcement PeerAnnouncement
	if err := json.Unmarshal(data, &announcement); err != nil {
		a.log.Debug("dropping malformed announcement", zap.Error(err))
		return
	}

	if announcement.PeerID == a.host.ID().String() {
		return
	}
	if time.Now().Unix()-announcement.Timestamp > int64(staleAfter.Seconds()) {
		return
	}

	pid, err := peer.Decode(announcement.PeerID)
	if err != nil {
		a.log.Debug("dropping announcement with invalid peer id",
			zap.String("peer_id", announcement.PeerID), zap.Error(err))
		return
	}

	var addrs []multiaddr.Multiaddr
	for _, raw := range announcement.Addresses {
		addr, err := multiaddr.NewMultiaddr(raw)
		if err != nil {
			continue
		}
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return
	}

	info := peer.AddrInfo{ID: pid, Addrs: addrs}
	if err := a.registry.Merge(ctx, info, announceTag); err != nil {
		a.log.Debug("failed to merge announced peer",
			zap.String("peer_id", pid.String()), zap.Error(err))
		return
	}

	a.log.Debug("merged announced peer",
		zap.String("announce_id", announcement.AnnounceID),
		zap.String("peer_id", pid.String()),
		zap.Int("addresses", len(addrs)))

	if a.host.Network().Connectedness(pid) != network.Connected {
		go func() {
			dialCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := a.host.Connect(dialCtx, info); err != nil {
				a.log.Debug("failed to connect to announced peer",
					zap.String("peer_id", pid.String()), zap.Error(err))
			}
		}()
	}
}
