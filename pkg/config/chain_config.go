package config

// ChainConfig contains EVM chain access configuration
type ChainConfig struct {
	RPCEndpoint      string `yaml:"rpc_endpoint"`       // Native JSON-RPC endpoint
	WalletWSEndpoint string `yaml:"wallet_ws_endpoint"` // Wallet bridge websocket; empty = native provider
	ChainID          int64  `yaml:"chain_id"`           // Expected network id
	ContractAddress  string `yaml:"contract_address"`   // Peer registry contract (0x-hex)
	ContractIndex    string `yaml:"contract_index"`     // List selector inside the contract (0x-hex)
}
