package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/anyoneproxy"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/config"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/gateway"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/logging"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/node"
)

// setup_logger initializes a logger for the given component.
func setup_logger(component logging.Component) (logger *logging.ColoredLogger) {
	var err error

	logger, err = logging.NewColoredLogger(component, true)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	return logger
}

type nodeFlags struct {
	configPath  string
	dataDir     string
	p2pPort     int
	rpcEndpoint string
	walletWS    string
	contract    string
	index       string
	chainID     int64
	disableAnon bool
	gatewayAddr string
	enableMDNS  bool
	help        bool
}

// parse_node_flags parses the command line into a nodeFlags bundle.
func parse_node_flags() *nodeFlags {
	f := &nodeFlags{}

	flag.StringVar(&f.configPath, "config", "", "Path to config YAML file (overrides defaults)")
	flag.StringVar(&f.dataDir, "data", "", "Data directory (identity key, peer cache)")
	flag.IntVar(&f.p2pPort, "p2p-port", 4001, "LibP2P listen port")
	flag.StringVar(&f.rpcEndpoint, "rpc-endpoint", "", "EVM JSON-RPC endpoint")
	flag.StringVar(&f.walletWS, "wallet-ws", "", "Wallet bridge websocket endpoint (used instead of the RPC endpoint)")
	flag.StringVar(&f.contract, "contract", "", "Peer registry contract address (0x-hex)")
	flag.StringVar(&f.index, "index", "", "Contract index address (0x-hex)")
	flag.Int64Var(&f.chainID, "chain-id", 0, "Expected chain id")
	flag.BoolVar(&f.disableAnon, "disable-anonrc", false, "Disable Anyone proxy routing (defaults to enabled on 127.0.0.1:9050)")
	flag.StringVar(&f.gatewayAddr, "gateway-addr", "", "HTTP gateway listen address (e.g. :8080)")
	flag.BoolVar(&f.enableMDNS, "enable-mdns", false, "Enable mDNS discovery on the local network")
	flag.BoolVar(&f.help, "help", false, "Show help")
	flag.Parse()

	return f
}

// disable_anon_proxy applies the merged proxy setting; the YAML
// disable_anonrc key and the --disable-anonrc flag both land in the
// config, so this must run after the config is loaded.
func disable_anon_proxy(cfg *config.Config) {
	anyoneproxy.SetDisabled(cfg.Node.DisableAnonRC)
	logger := setup_logger(logging.ComponentAnyone)

	if cfg.Node.DisableAnonRC {
		logger.Info("Anyone proxy routing is disabled. This means the node will not use the default SOCKS5 proxy for anonymous routing.")
	}
}

// load_node_config loads the YAML config (or the defaults) and applies
// command line overrides on top.
func load_node_config(f *nodeFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFromFile(f.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if f.dataDir != "" {
		cfg.Node.DataDir = f.dataDir
	}
	if f.p2pPort != 4001 {
		cfg.Node.ListenAddresses = []string{
			fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", f.p2pPort),
		}
	}
	if f.rpcEndpoint != "" {
		cfg.Chain.RPCEndpoint = f.rpcEndpoint
	}
	if f.walletWS != "" {
		cfg.Chain.WalletWSEndpoint = f.walletWS
	}
	if f.contract != "" {
		cfg.Chain.ContractAddress = f.contract
	}
	if f.index != "" {
		cfg.Chain.ContractIndex = f.index
	}
	if f.chainID != 0 {
		cfg.Chain.ChainID = f.chainID
	}
	if f.disableAnon {
		cfg.Node.DisableAnonRC = true
	}
	if f.gatewayAddr != "" {
		cfg.Gateway.Enabled = true
		cfg.Gateway.ListenAddr = f.gatewayAddr
	}
	if f.enableMDNS {
		cfg.Discovery.EnableMDNS = true
	}

	return cfg, nil
}

// save_peer_info writes the node's multiaddr to the data directory so
// operators can register it on chain.
func save_peer_info(logger *logging.ColoredLogger, cfg *config.Config, n *node.Node, port int) {
	peerID := n.GetPeerID()
	peerInfoFile := filepath.Join(cfg.Node.DataDir, "peer.info")
	peerMultiaddr := fmt.Sprintf("/ip4/0.0.0.0/tcp/%d/p2p/%s", port, peerID)

	if err := os.WriteFile(peerInfoFile, []byte(peerMultiaddr), 0644); err != nil {
		logger.Error("Failed to save peer info", zap.Error(err))
		return
	}
	logger.Info("Peer info saved", zap.String("path", peerInfoFile))
	logger.Info("Registry multiaddr", zap.String("addr", peerMultiaddr))
}

// startNode runs the node and (when enabled) the gateway until the
// context is cancelled.
func startNode(ctx context.Context, cfg *config.Config, port int) error {
	logger, err := logging.NewLogger(logging.ComponentNode, logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputFile: cfg.Logging.OutputFile,
		Colors:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	n, err := node.NewNode(cfg)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	save_peer_info(logger, cfg, n, port)

	gw, err := gateway.NewGateway(logger, &cfg.Gateway, gateway.Deps{
		Host:      n.Host(),
		Discovery: n.Bootstrap(),
		Cache:     n.Cache(),
		Usage:     n.Usage,
	})
	if err != nil {
		n.Stop()
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	if gw != nil {
		go func() {
			if err := gw.Start(ctx); err != nil {
				logger.ComponentError(logging.ComponentGateway, "Gateway stopped with error", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()

	if gw != nil {
		gw.Stop()
	}
	return n.Stop()
}

func main() {
	logger := setup_logger(logging.ComponentNode)

	f := parse_node_flags()
	if f.help {
		flag.Usage()
		return
	}

	cfg, err := load_node_config(f)
	if err != nil {
		logger.ComponentError(logging.ComponentNode, "Failed to load configuration", zap.Error(err))
		os.Exit(1)
	}

	disable_anon_proxy(cfg)

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			logger.ComponentError(logging.ComponentNode, "Invalid configuration", zap.String("error", e.Error()))
		}
		os.Exit(1)
	}

	logger.ComponentInfo(logging.ComponentNode, "Node configuration summary",
		zap.Strings("listen_addresses", cfg.Node.ListenAddresses),
		zap.String("rpc_endpoint", cfg.Chain.RPCEndpoint),
		zap.Int64("chain_id", cfg.Chain.ChainID),
		zap.String("contract", cfg.Chain.ContractAddress),
		zap.String("data_directory", cfg.Node.DataDir),
		zap.Bool("gateway_enabled", cfg.Gateway.Enabled))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	doneChan := make(chan struct{})
	go func() {
		if err := startNode(ctx, cfg, f.p2pPort); err != nil {
			errChan <- err
		}
		close(doneChan)
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		logger.ComponentError(logging.ComponentNode, "Failed to start node", zap.Error(err))
		os.Exit(1)
	case <-c:
		logger.ComponentInfo(logging.ComponentNode, "Shutting down node...")
		cancel()
		<-doneChan
		logger.ComponentInfo(logging.ComponentNode, "Node shutdown complete")
	}
}
