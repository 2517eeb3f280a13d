package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromFile(t *testing.T) {
	cfg, err := LoadFromFile("testdata/node.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Node.MaxConnections != 25 {
		t.Errorf("max_connections = %d, want 25", cfg.Node.MaxConnections)
	}
	if !cfg.Node.DisableAnonRC {
		t.Error("disable_anonrc should be true")
	}
	if cfg.Chain.ChainID != 11155111 {
		t.Errorf("chain_id = %d, want 11155111", cfg.Chain.ChainID)
	}
	if cfg.Discovery.DiscoveryDelay != 2*time.Second {
		t.Errorf("discovery_delay = %v, want 2s", cfg.Discovery.DiscoveryDelay)
	}
	if cfg.Discovery.TagValue != 75 {
		t.Errorf("tag_value = %d, want 75", cfg.Discovery.TagValue)
	}

	// Omitted keys keep their defaults.
	if cfg.Discovery.TagName != "evmbootstrap" {
		t.Errorf("tag_name = %q, want default", cfg.Discovery.TagName)
	}
	if cfg.Discovery.AnnounceTopic != "/evmbootstrap/peers/v1" {
		t.Errorf("announce_topic = %q, want default", cfg.Discovery.AnnounceTopic)
	}
}

func TestDecodeStrictRejectsUnknownKeys(t *testing.T) {
	yaml := "node:\n  listen_addresses: []\n  no_such_key: true\n"
	var cfg Config
	err := DecodeStrict(strings.NewReader(yaml), &cfg)
	if err == nil {
		t.Fatal("expected unknown-field error")
	}
}
