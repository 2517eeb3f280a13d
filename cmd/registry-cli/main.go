package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/anyoneproxy"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/evm"
)

const usage = `registry-cli manages peer ids in the on-chain peer registry.

Usage:
  registry-cli [flags] <command> [args]

Commands:
  list                     List all peer ids under the index
  count                    Number of peer ids under the index
  max                      Contract-wide peer list size limit
  add <peer-id>            Append a peer id (requires --key)
  set <position> <peer-id> Replace the peer id at position (requires --key)
  remove <position>        Delete the peer id at position (requires --key)

Flags:
`

func main() {
	var (
		rpcEndpoint = flag.String("rpc-endpoint", "http://127.0.0.1:8545", "EVM JSON-RPC endpoint")
		contract    = flag.String("contract", "", "Peer registry contract address (0x-hex)")
		index       = flag.String("index", "", "Contract index address (0x-hex)")
		chainID     = flag.Int64("chain-id", 31337, "Chain id for transaction signing")
		key         = flag.String("key", "", "Signer private key hex (or REGISTRY_PRIVATE_KEY)")
		disableAnon = flag.Bool("disable-anonrc", false, "Disable Anyone proxy routing")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	anyoneproxy.SetDisabled(*disableAnon)

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	if !common.IsHexAddress(*contract) {
		fatalf("a valid --contract address is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := evm.Dial(ctx, *rpcEndpoint)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer client.Close()

	registry := evm.NewTransactableRegistry(common.HexToAddress(*contract), client)

	switch cmd := flag.Arg(0); cmd {
	case "list":
		ids, err := registry.GetAllPeerIDs(ctx, indexAddr(*index))
		if err != nil {
			fatalf("list: %v", err)
		}
		for i, id := range ids {
			fmt.Printf("%d\t%s\n", i, id)
		}

	case "count":
		n, err := registry.PeerIDsCount(ctx, indexAddr(*index))
		if err != nil {
			fatalf("count: %v", err)
		}
		fmt.Println(n)

	case "max":
		n, err := registry.MaxPeers(ctx)
		if err != nil {
			fatalf("max: %v", err)
		}
		fmt.Println(n)

	case "add":
		requireArgs(1, "add <peer-id>")
		opts := signer(ctx, *key, *chainID)
		tx, err := registry.AddPeerID(opts, indexAddr(*index), flag.Arg(1))
		if err != nil {
			fatalf("add: %v", err)
		}
		fmt.Printf("tx: %s\n", tx.Hash())

	case "set":
		requireArgs(2, "set <position> <peer-id>")
		opts := signer(ctx, *key, *chainID)
		tx, err := registry.SetPeerID(opts, indexAddr(*index), position(flag.Arg(1)), flag.Arg(2))
		if err != nil {
			fatalf("set: %v", err)
		}
		fmt.Printf("tx: %s\n", tx.Hash())

	case "remove":
		requireArgs(1, "remove <position>")
		opts := signer(ctx, *key, *chainID)
		tx, err := registry.RemovePeerID(opts, indexAddr(*index), position(flag.Arg(1)))
		if err != nil {
			fatalf("remove: %v", err)
		}
		fmt.Printf("tx: %s\n", tx.Hash())

	default:
		fatalf("unknown command %q", cmd)
	}
}

func indexAddr(index string) common.Address {
	if !common.IsHexAddress(index) {
		fatalf("a valid --index address is required")
	}
	return common.HexToAddress(index)
}

func position(arg string) *big.Int {
	n, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		fatalf("invalid position %q", arg)
	}
	return new(big.Int).SetUint64(n)
}

func requireArgs(n int, form string) {
	if flag.NArg() != n+1 {
		fatalf("usage: registry-cli %s", form)
	}
}

// signer builds transact opts from the --key flag or the
// REGISTRY_PRIVATE_KEY environment variable.
func signer(ctx context.Context, key string, chainID int64) *bind.TransactOpts {
	if key == "" {
		key = os.Getenv("REGISTRY_PRIVATE_KEY")
	}
	if key == "" {
		fatalf("writes require --key or REGISTRY_PRIVATE_KEY")
	}
	priv, err := ethcrypto.HexToECDSA(key)
	if err != nil {
		fatalf("invalid private key: %v", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(priv, big.NewInt(chainID))
	if err != nil {
		fatalf("transactor: %v", err)
	}
	opts.Context = ctx
	return opts
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
