package evm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/anyoneproxy"
)

// Dial opens a native chain client against the given RPC endpoint.
// HTTP endpoints are routed through the Anyone SOCKS5 proxy when it is
// enabled; websocket and IPC endpoints dial directly.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	var (
		rc  *rpc.Client
		err error
	)
	if isHTTP(rpcURL) && anyoneproxy.Enabled() {
		rc, err = rpc.DialOptions(ctx, rpcURL, rpc.WithHTTPClient(anyoneproxy.NewHTTPClient()))
	} else {
		rc, err = rpc.DialContext(ctx, rpcURL)
	}
	if err != nil {
		return nil, fmt.Errorf("dial rpc endpoint %s: %w", rpcURL, err)
	}
	return ethclient.NewClient(rc), nil
}

func isHTTP(rpcURL string) bool {
	return strings.HasPrefix(rpcURL, "http://") || strings.HasPrefix(rpcURL, "https://")
}
