package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrInvalidProvider is returned when a provider value has neither the
// native chain client shape nor the injected wallet shape.
var ErrInvalidProvider = errors.New("Invalid provider: must be a native chain client or an injected wallet provider")

// ChainClient is the capability the discovery pipeline needs from a chain
// provider: the connected network's id plus read-only contract access.
// *ethclient.Client satisfies it.
type ChainClient interface {
	NetworkID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Requester is the injected-wallet provider shape: a generic JSON-RPC
// request method. WalletBridge implements it over a websocket.
type Requester interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// NormalizeProvider canonicalizes a provider value into a ChainClient.
// Native chain clients pass through unchanged. Wallet-style Requesters are
// wrapped in an adapter, but only when the host declared wallet support
// (walletSupported); a Requester without that capability flag is rejected,
// as is anything else.
func NormalizeProvider(provider any, walletSupported bool) (ChainClient, error) {
	switch p := provider.(type) {
	case ChainClient:
		return p, nil
	case Requester:
		if !walletSupported {
			return nil, ErrInvalidProvider
		}
		return &walletClient{req: p}, nil
	default:
		return nil, ErrInvalidProvider
	}
}

// walletClient adapts a wallet-style Requester to the ChainClient surface.
type walletClient struct {
	req Requester
}

func (w *walletClient) NetworkID(ctx context.Context) (*big.Int, error) {
	raw, err := w.req.Request(ctx, "net_version")
	if err != nil {
		return nil, err
	}
	var version string
	if err := json.Unmarshal(raw, &version); err != nil {
		return nil, fmt.Errorf("decode net_version: %w", err)
	}
	id, ok := new(big.Int).SetString(version, 10)
	if !ok {
		return nil, fmt.Errorf("invalid network id %q", version)
	}
	return id, nil
}

func (w *walletClient) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	raw, err := w.req.Request(ctx, "eth_getCode", contract.Hex(), blockArg(blockNumber))
	if err != nil {
		return nil, err
	}
	return decodeHexResult(raw)
}

func (w *walletClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	arg := map[string]any{
		"to":   call.To.Hex(),
		"data": hexutil.Encode(call.Data),
	}
	if call.From != (common.Address{}) {
		arg["from"] = call.From.Hex()
	}
	raw, err := w.req.Request(ctx, "eth_call", arg, blockArg(blockNumber))
	if err != nil {
		return nil, err
	}
	return decodeHexResult(raw)
}

func blockArg(blockNumber *big.Int) string {
	if blockNumber == nil {
		return "latest"
	}
	return hexutil.EncodeBig(blockNumber)
}

func decodeHexResult(raw json.RawMessage) ([]byte, error) {
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err != nil {
		return nil, fmt.Errorf("decode rpc result: %w", err)
	}
	return hexutil.Decode(hexStr)
}
