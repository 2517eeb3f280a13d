package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "chain.contract_address"
	Message string // e.g., "invalid hex address"
	Hint    string // e.g., "expected 0x followed by 40 hex characters"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate performs comprehensive validation of the entire config.
// It aggregates all errors and returns them, allowing the caller to print all issues at once.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNode()...)
	errs = append(errs, c.validateChain()...)
	errs = append(errs, c.validateDiscovery()...)
	errs = append(errs, c.validateGateway()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateNode() []error {
	var errs []error
	nc := c.Node

	if len(nc.ListenAddresses) == 0 {
		errs = append(errs, ValidationError{
			Path:    "node.listen_addresses",
			Message: "must not be empty",
		})
	}

	seen := make(map[string]bool)
	for i, addr := range nc.ListenAddresses {
		path := fmt.Sprintf("node.listen_addresses[%d]", i)

		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("invalid multiaddr: %v", err),
				Hint:    "expected /ip{4,6}/.../tcp/<port>",
			})
			continue
		}

		netAddr, err := manet.ToNetAddr(ma)
		if err != nil {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("cannot convert multiaddr to network address: %v", err),
				Hint:    "ensure multiaddr contains /tcp/<port> or /udp/<port>",
			})
			continue
		}

		if tcpAddr, ok := netAddr.(*net.TCPAddr); ok {
			if tcpAddr.Port < 1 || tcpAddr.Port > 65535 {
				errs = append(errs, ValidationError{
					Path:    path,
					Message: fmt.Sprintf("invalid TCP port %d", tcpAddr.Port),
					Hint:    "port must be between 1 and 65535",
				})
			}
		}

		if seen[addr] {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: "duplicate listen address",
			})
		}
		seen[addr] = true
	}

	if nc.DataDir == "" {
		errs = append(errs, ValidationError{
			Path:    "node.data_dir",
			Message: "must not be empty",
		})
	} else {
		if err := validateDataDir(nc.DataDir); err != nil {
			errs = append(errs, ValidationError{
				Path:    "node.data_dir",
				Message: err.Error(),
			})
		}
	}

	if nc.MaxConnections <= 0 {
		errs = append(errs, ValidationError{
			Path:    "node.max_connections",
			Message: fmt.Sprintf("must be > 0; got %d", nc.MaxConnections),
		})
	}

	return errs
}

func (c *Config) validateChain() []error {
	var errs []error
	cc := c.Chain

	if cc.RPCEndpoint == "" && cc.WalletWSEndpoint == "" {
		errs = append(errs, ValidationError{
			Path:    "chain.rpc_endpoint",
			Message: "must not be empty unless a wallet endpoint is configured",
			Hint:    "set chain.rpc_endpoint or chain.wallet_ws_endpoint",
		})
	}

	if cc.WalletWSEndpoint != "" &&
		!strings.HasPrefix(cc.WalletWSEndpoint, "ws://") &&
		!strings.HasPrefix(cc.WalletWSEndpoint, "wss://") {
		errs = append(errs, ValidationError{
			Path:    "chain.wallet_ws_endpoint",
			Message: fmt.Sprintf("invalid websocket endpoint %q", cc.WalletWSEndpoint),
			Hint:    "expected ws:// or wss:// URL",
		})
	}

	if cc.ChainID <= 0 {
		errs = append(errs, ValidationError{
			Path:    "chain.chain_id",
			Message: fmt.Sprintf("must be > 0; got %d", cc.ChainID),
		})
	}

	if cc.ContractAddress == "" {
		errs = append(errs, ValidationError{
			Path:    "chain.contract_address",
			Message: "must not be empty",
			Hint:    "address of the deployed peer registry contract",
		})
	} else if !common.IsHexAddress(cc.ContractAddress) {
		errs = append(errs, ValidationError{
			Path:    "chain.contract_address",
			Message: fmt.Sprintf("invalid hex address %q", cc.ContractAddress),
			Hint:    "expected 0x followed by 40 hex characters",
		})
	}

	if cc.ContractIndex == "" {
		errs = append(errs, ValidationError{
			Path:    "chain.contract_index",
			Message: "must not be empty",
			Hint:    "address-shaped selector of the peer list inside the contract",
		})
	} else if !common.IsHexAddress(cc.ContractIndex) {
		errs = append(errs, ValidationError{
			Path:    "chain.contract_index",
			Message: fmt.Sprintf("invalid hex address %q", cc.ContractIndex),
			Hint:    "expected 0x followed by 40 hex characters",
		})
	}

	return errs
}

func (c *Config) validateDiscovery() []error {
	var errs []error
	disc := c.Discovery

	if disc.DiscoveryDelay < 0 {
		errs = append(errs, ValidationError{
			Path:    "discovery.discovery_delay",
			Message: fmt.Sprintf("must be >= 0; got %v", disc.DiscoveryDelay),
			Hint:    "0 means the 1s default",
		})
	}

	if disc.TagValue < 0 {
		errs = append(errs, ValidationError{
			Path:    "discovery.tag_value",
			Message: fmt.Sprintf("must be >= 0; got %d", disc.TagValue),
		})
	}

	if disc.TagTTL < 0 {
		errs = append(errs, ValidationError{
			Path:    "discovery.tag_ttl",
			Message: fmt.Sprintf("must be >= 0; got %v", disc.TagTTL),
			Hint:    "0 means the registry default",
		})
	}

	if disc.AnnounceTopic != "" && !strings.HasPrefix(disc.AnnounceTopic, "/") {
		errs = append(errs, ValidationError{
			Path:    "discovery.announce_topic",
			Message: fmt.Sprintf("invalid topic %q", disc.AnnounceTopic),
			Hint:    "expected a path-style topic, e.g. /evmbootstrap/peers/v1",
		})
	}

	if disc.EnableMDNS && disc.MDNSService == "" {
		errs = append(errs, ValidationError{
			Path:    "discovery.mdns_service",
			Message: "must not be empty when enable_mdns is true",
		})
	}

	if disc.CachePath != "" {
		dir := filepath.Dir(disc.CachePath)
		if dir != "" && dir != "." {
			if err := validateDataDir(dir); err != nil {
				errs = append(errs, ValidationError{
					Path:    "discovery.cache_path",
					Message: fmt.Sprintf("parent directory: %v", err),
				})
			}
		}
	}

	return errs
}

func (c *Config) validateGateway() []error {
	var errs []error
	gw := c.Gateway

	if !gw.Enabled {
		return errs
	}

	if gw.ListenAddr == "" {
		errs = append(errs, ValidationError{
			Path:    "gateway.listen_addr",
			Message: "must not be empty when gateway is enabled",
			Hint:    "expected format: [host]:port",
		})
	} else if err := validateListenAddr(gw.ListenAddr); err != nil {
		errs = append(errs, ValidationError{
			Path:    "gateway.listen_addr",
			Message: err.Error(),
			Hint:    "expected format: [host]:port",
		})
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	log := c.Logging

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[log.Level] {
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("invalid value %q", log.Level),
			Hint:    "allowed values: debug, info, warn, error",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[log.Format] {
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("invalid value %q", log.Format),
			Hint:    "allowed values: json, console",
		})
	}

	if log.OutputFile != "" {
		dir := filepath.Dir(log.OutputFile)
		if dir != "" && dir != "." {
			if err := validateDirWritable(dir); err != nil {
				errs = append(errs, ValidationError{
					Path:    "logging.output_file",
					Message: fmt.Sprintf("parent directory not writable: %v", err),
				})
			}
		}
	}

	return errs
}

// Helper validation functions

func validateDataDir(path string) error {
	if path == "" {
		return fmt.Errorf("must not be empty")
	}

	// Expand ~ to home directory
	expandedPath := os.ExpandEnv(path)
	if strings.HasPrefix(expandedPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %v", err)
		}
		expandedPath = filepath.Join(home, expandedPath[1:])
	}

	if info, err := os.Stat(expandedPath); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory")
		}
		testFile := filepath.Join(expandedPath, ".write_test")
		if err := os.WriteFile(testFile, []byte(""), 0644); err != nil {
			return fmt.Errorf("directory not writable: %v", err)
		}
		os.Remove(testFile)
	} else if os.IsNotExist(err) {
		// Directory doesn't exist yet; it will be created at runtime, so
		// only the nearest existing parent has to be usable.
		parent := filepath.Dir(expandedPath)
		if parent == "" || parent == "." {
			parent = "."
		}
		if info, err := os.Stat(parent); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("parent directory not accessible: %v", err)
			}
		} else if !info.IsDir() {
			return fmt.Errorf("parent path is not a directory")
		} else {
			if err := validateDirWritable(parent); err != nil {
				return fmt.Errorf("parent directory not writable: %v", err)
			}
		}
	} else {
		return fmt.Errorf("cannot access path: %v", err)
	}

	return nil
}

func validateDirWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access directory: %v", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory")
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte(""), 0644); err != nil {
		return fmt.Errorf("directory not writable: %v", err)
	}
	os.Remove(testFile)

	return nil
}

func validateListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address: %v", err)
	}
	// Empty host means all interfaces, which is fine.
	_ = host

	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535; got %q", port)
	}

	return nil
}
