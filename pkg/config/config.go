package config

import (
	"time"

	"github.com/multiformats/go-multiaddr"
)

// Config represents the main configuration for a network node
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Chain     ChainConfig     `yaml:"chain"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ParseMultiaddrs converts string addresses to multiaddr objects
func (c *Config) ParseMultiaddrs() ([]multiaddr.Multiaddr, error) {
	var addrs []multiaddr.Multiaddr
	for _, addr := range c.Node.ListenAddresses {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, ma)
	}
	return addrs, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ListenAddresses: []string{
				"/ip4/0.0.0.0/tcp/4001", // TCP only - compatible with Anyone proxy/SOCKS5
			},
			DataDir:        "./data",
			MaxConnections: 50,
		},
		Chain: ChainConfig{
			RPCEndpoint:      "http://127.0.0.1:8545",
			WalletWSEndpoint: "", // Empty = native RPC provider
			ChainID:          31337,
			ContractAddress:  "", // Must be configured per deployment
			ContractIndex:    "",
		},
		Discovery: DiscoveryConfig{
			DiscoveryDelay: 1000 * time.Millisecond,
			TagName:        "evmbootstrap",
			TagValue:       50,
			TagTTL:         0, // 0 = registry default (permanent)
			AnnounceTopic:  "/evmbootstrap/peers/v1",
			EnableMDNS:     false,
			MDNSService:    "evmbootstrap",
			CachePath:      "./data/peers.db",
		},
		Gateway: GatewayConfig{
			Enabled:    true,
			ListenAddr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
