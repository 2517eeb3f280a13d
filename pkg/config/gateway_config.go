package config

// GatewayConfig contains the HTTP status gateway configuration
type GatewayConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Enable the status gateway
	ListenAddr string `yaml:"listen_addr"` // Address to listen on (e.g., ":8080")
}
