package node

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mackerelio/go-osstat/cpu"
	"github.com/mackerelio/go-osstat/memory"
	"go.uber.org/zap"
)

const monitoringTopic = "/evmbootstrap/monitoring/v1"

// Usage is a point-in-time snapshot of node health, served by the
// gateway and gossiped on the monitoring topic.
type Usage struct {
	PeerID      string   `json:"peer_id"`
	PeerCount   int      `json:"peer_count"`
	PeerIDs     []string `json:"peer_ids,omitempty"`
	CPUPercent  uint64   `json:"cpu_usage"`
	MemoryUsed  uint64   `json:"memory_used"`
	MemoryTotal uint64   `json:"memory_total"`
	Timestamp   int64    `json:"timestamp"`
}

// GetCPUUsagePercent samples CPU usage over the interval.
func GetCPUUsagePercent(interval time.Duration) (uint64, error) {
	before, err := cpu.Get()
	if err != nil {
		return 0, err
	}
	time.Sleep(interval)
	after, err := cpu.Get()
	if err != nil {
		return 0, err
	}
	idle := float64(after.Idle - before.Idle)
	total := float64(after.Total - before.Total)
	if total == 0 {
		return 0, errors.New("failed to get CPU usage")
	}
	return uint64((1.0 - idle/total) * 100.0), nil
}

// Usage samples current peer and system state. The CPU sample blocks for
// one second.
func (n *Node) Usage() Usage {
	u := Usage{Timestamp: time.Now().Unix()}
	if n.host != nil {
		u.PeerID = n.host.ID().String()
		peers := n.host.Network().Peers()
		u.PeerCount = len(peers)
		for _, p := range peers {
			u.PeerIDs = append(u.PeerIDs, p.String())
		}
	}
	if mem, err := memory.Get(); err == nil {
		u.MemoryUsed = mem.Used
		u.MemoryTotal = mem.Total
	}
	if pct, err := GetCPUUsagePercent(time.Second); err == nil {
		u.CPUPercent = pct
	}
	return u
}

func (n *Node) logPeerStatus(current, last int, first bool) (int, bool) {
	if first || current != last {
		switch {
		case current == 0:
			n.logger.Warn("Node has no connected peers",
				zap.String("node_id", n.host.ID().String()))
		case current < last:
			n.logger.Info("Node lost peers",
				zap.Int("current_peers", current),
				zap.Int("previous_peers", last))
		case current > last && !first:
			n.logger.Debug("Node gained peers",
				zap.Int("current_peers", current),
				zap.Int("previous_peers", last))
		}
		last = current
		first = false
	}
	return last, first
}

// startConnectionMonitoring logs peer count changes and gossips a usage
// snapshot once a minute.
func (n *Node) startConnectionMonitoring() {
	ctx, cancel := context.WithCancel(context.Background())
	n.monitorCancel = cancel

	topic, err := n.pubsub.Join(monitoringTopic)
	if err != nil {
		n.logger.Warn("Failed to join monitoring topic", zap.Error(err))
		topic = nil
	}

	go func() {
		statusTicker := time.NewTicker(30 * time.Second)
		usageTicker := time.NewTicker(60 * time.Second)
		defer statusTicker.Stop()
		defer usageTicker.Stop()
		if topic != nil {
			defer topic.Close()
		}

		var lastPeerCount int
		firstCheck := true

		for {
			select {
			case <-ctx.Done():
				return
			case <-statusTicker.C:
				current := len(n.host.Network().Peers())
				lastPeerCount, firstCheck = n.logPeerStatus(current, lastPeerCount, firstCheck)
			case <-usageTicker.C:
				usage := n.Usage()
				n.logger.Debug("Node usage",
					zap.Uint64("cpu_usage", usage.CPUPercent),
					zap.Uint64("memory_used", usage.MemoryUsed),
					zap.Int("peer_count", usage.PeerCount))
				if topic != nil {
					if data, err := json.Marshal(usage); err == nil {
						_ = topic.Publish(ctx, data)
					}
				}
			}
		}
	}()
}
