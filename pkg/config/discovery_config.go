package config

import "time"

// DiscoveryConfig contains peer discovery configuration
type DiscoveryConfig struct {
	DiscoveryDelay time.Duration `yaml:"discovery_delay"` // Delay before the one-shot bootstrap run
	TagName        string        `yaml:"tag_name"`        // Registry tag for discovered peers
	TagValue       int           `yaml:"tag_value"`       // Connection-manager tag weight
	TagTTL         time.Duration `yaml:"tag_ttl"`         // Address TTL; 0 = registry default
	AnnounceTopic  string        `yaml:"announce_topic"`  // Gossip topic for re-announcements
	EnableMDNS     bool          `yaml:"enable_mdns"`     // Run the mDNS strategy alongside
	MDNSService    string        `yaml:"mdns_service"`    // mDNS service name
	CachePath      string        `yaml:"cache_path"`      // SQLite peer cache; empty disables it
}
