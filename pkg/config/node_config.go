package config

// NodeConfig contains node-specific configuration
type NodeConfig struct {
	ListenAddresses []string `yaml:"listen_addresses"` // LibP2P listen addresses
	DataDir         string   `yaml:"data_dir"`         // Data directory (identity key, peer cache)
	MaxConnections  int      `yaml:"max_connections"`  // Maximum peer connections
	DisableAnonRC   bool     `yaml:"disable_anonrc"`   // Disable Anyone SOCKS5 routing
}
