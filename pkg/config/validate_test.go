package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a config that passes validation.
func validConfig() *Config {
	cfg := &Config{
		Node: NodeConfig{
			ListenAddresses: []string{"/ip4/0.0.0.0/tcp/4001"},
			DataDir:         ".",
			MaxConnections:  50,
		},
		Chain: ChainConfig{
			RPCEndpoint:     "http://127.0.0.1:8545",
			ChainID:         31337,
			ContractAddress: "0x00000000000000000000000000000000000000aa",
			ContractIndex:   "0x00000000000000000000000000000000000000bb",
		},
		Discovery: DiscoveryConfig{
			DiscoveryDelay: time.Second,
			TagName:        "evmbootstrap",
			TagValue:       50,
			AnnounceTopic:  "/evmbootstrap/peers/v1",
			MDNSService:    "evmbootstrap",
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
	return cfg
}

func TestValidateListenAddresses(t *testing.T) {
	tests := []struct {
		name        string
		addresses   []string
		shouldError bool
	}{
		{"valid single", []string{"/ip4/0.0.0.0/tcp/4001"}, false},
		{"valid ipv6", []string{"/ip6/::/tcp/4001"}, false},
		{"invalid port", []string{"/ip4/0.0.0.0/tcp/99999"}, true},
		{"invalid multiaddr", []string{"invalid"}, true},
		{"empty", []string{}, true},
		{"duplicate", []string{"/ip4/0.0.0.0/tcp/4001", "/ip4/0.0.0.0/tcp/4001"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Node.ListenAddresses = tt.addresses
			errs := cfg.Validate()
			if tt.shouldError && len(errs) == 0 {
				t.Errorf("expected error, got none")
			}
			if !tt.shouldError && len(errs) > 0 {
				t.Errorf("unexpected errors: %v", errs)
			}
		})
	}
}

func TestValidateChain(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*ChainConfig)
		shouldError bool
	}{
		{"valid", func(c *ChainConfig) {}, false},
		{"wallet endpoint only", func(c *ChainConfig) {
			c.RPCEndpoint = ""
			c.WalletWSEndpoint = "ws://127.0.0.1:8546"
		}, false},
		{"no endpoint at all", func(c *ChainConfig) { c.RPCEndpoint = "" }, true},
		{"bad wallet scheme", func(c *ChainConfig) { c.WalletWSEndpoint = "http://127.0.0.1:8546" }, true},
		{"zero chain id", func(c *ChainConfig) { c.ChainID = 0 }, true},
		{"negative chain id", func(c *ChainConfig) { c.ChainID = -1 }, true},
		{"missing contract address", func(c *ChainConfig) { c.ContractAddress = "" }, true},
		{"malformed contract address", func(c *ChainConfig) { c.ContractAddress = "0x1234" }, true},
		{"missing contract index", func(c *ChainConfig) { c.ContractIndex = "" }, true},
		{"malformed contract index", func(c *ChainConfig) { c.ContractIndex = "not-hex" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Chain)
			errs := cfg.Validate()
			if tt.shouldError && len(errs) == 0 {
				t.Errorf("expected error, got none")
			}
			if !tt.shouldError && len(errs) > 0 {
				t.Errorf("unexpected errors: %v", errs)
			}
		})
	}
}

func TestValidateDiscovery(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*DiscoveryConfig)
		shouldError bool
	}{
		{"valid", func(d *DiscoveryConfig) {}, false},
		{"zero delay means default", func(d *DiscoveryConfig) { d.DiscoveryDelay = 0 }, false},
		{"negative delay", func(d *DiscoveryConfig) { d.DiscoveryDelay = -time.Second }, true},
		{"negative tag value", func(d *DiscoveryConfig) { d.TagValue = -1 }, true},
		{"negative ttl", func(d *DiscoveryConfig) { d.TagTTL = -time.Minute }, true},
		{"bad topic", func(d *DiscoveryConfig) { d.AnnounceTopic = "no-leading-slash" }, true},
		{"mdns without service name", func(d *DiscoveryConfig) {
			d.EnableMDNS = true
			d.MDNSService = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Discovery)
			errs := cfg.Validate()
			if tt.shouldError && len(errs) == 0 {
				t.Errorf("expected error, got none")
			}
			if !tt.shouldError && len(errs) > 0 {
				t.Errorf("unexpected errors: %v", errs)
			}
		})
	}
}

func TestValidateGateway(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.ListenAddr = "no-port"
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Error("expected error for malformed listen addr")
	}

	// A disabled gateway is never validated.
	cfg = validConfig()
	cfg.Gateway.Enabled = false
	cfg.Gateway.ListenAddr = ""
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("unexpected errors for disabled gateway: %v", errs)
	}
}

func TestValidateLogging(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	cfg.Logging.Format = "xml"
	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Path: "chain.chain_id", Message: "must be > 0", Hint: "got 0"}
	if !strings.Contains(err.Error(), "chain.chain_id") || !strings.Contains(err.Error(), "got 0") {
		t.Errorf("unexpected format: %q", err.Error())
	}
}

func TestValidateAggregatesAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Node.MaxConnections = 0
	cfg.Chain.ChainID = 0
	cfg.Logging.Level = "nope"
	errs := cfg.Validate()
	if len(errs) < 3 {
		t.Fatalf("expected at least 3 aggregated errors, got %d: %v", len(errs), errs)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	// The default config ships without a deployed contract; fill it in.
	cfg.Chain.ContractAddress = "0x00000000000000000000000000000000000000aa"
	cfg.Chain.ContractIndex = "0x00000000000000000000000000000000000000bb"
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("default config invalid: %v", errs)
	}
}
