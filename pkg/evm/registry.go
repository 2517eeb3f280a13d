package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// peerRegistryABI is the on-chain peer registry surface. The discovery
// pipeline only ever calls getAllPeerIds; the remaining entries are the
// management surface used by the registry CLI.
const peerRegistryABI = `[
  {"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"getAllPeerIds","outputs":[{"internalType":"string[]","name":"","type":"string[]"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"getPeerIdsCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getMaxPeers","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"account","type":"address"},{"internalType":"string","name":"peerId","type":"string"}],"name":"addPeerId","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"address","name":"account","type":"address"},{"internalType":"uint256","name":"index","type":"uint256"},{"internalType":"string","name":"peerId","type":"string"}],"name":"setPeerId","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"address","name":"account","type":"address"},{"internalType":"uint256","name":"index","type":"uint256"}],"name":"removePeerId","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// RegistryABI returns the parsed peer registry ABI.
func RegistryABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(peerRegistryABI))
	if err != nil {
		// The ABI is a compile-time constant; a parse failure is a bug.
		panic(fmt.Sprintf("evm: parse registry abi: %v", err))
	}
	return parsed
}

// Registry is a bound peer registry contract.
type Registry struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewRegistry binds the registry at address for read-only access.
func NewRegistry(address common.Address, caller bind.ContractCaller) *Registry {
	return &Registry{
		address:  address,
		contract: bind.NewBoundContract(address, RegistryABI(), caller, nil, nil),
	}
}

// NewTransactableRegistry binds the registry for reads and writes.
// backend must be able to both call and transact; *ethclient.Client is.
func NewTransactableRegistry(address common.Address, backend bind.ContractBackend) *Registry {
	return &Registry{
		address:  address,
		contract: bind.NewBoundContract(address, RegistryABI(), backend, backend, nil),
	}
}

// Address returns the contract address the registry is bound to.
func (r *Registry) Address() common.Address { return r.address }

// GetAllPeerIDs returns every peer id registered under the given index.
func (r *Registry) GetAllPeerIDs(ctx context.Context, index common.Address) ([]string, error) {
	var out []any
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAllPeerIds", index); err != nil {
		return nil, fmt.Errorf("getAllPeerIds: %w", err)
	}
	ids, ok := out[0].([]string)
	if !ok {
		return nil, fmt.Errorf("getAllPeerIds: unexpected output type %T", out[0])
	}
	return ids, nil
}

// PeerIDsCount returns the number of peer ids registered under index.
func (r *Registry) PeerIDsCount(ctx context.Context, index common.Address) (*big.Int, error) {
	var out []any
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPeerIdsCount", index); err != nil {
		return nil, fmt.Errorf("getPeerIdsCount: %w", err)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// MaxPeers returns the contract-wide peer list size limit.
func (r *Registry) MaxPeers(ctx context.Context) (*big.Int, error) {
	var out []any
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getMaxPeers"); err != nil {
		return nil, fmt.Errorf("getMaxPeers: %w", err)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// AddPeerID appends a peer id to the list under index.
func (r *Registry) AddPeerID(opts *bind.TransactOpts, index common.Address, peerID string) (*types.Transaction, error) {
	return r.contract.Transact(opts, "addPeerId", index, peerID)
}

// SetPeerID replaces the peer id at position in the list under index.
func (r *Registry) SetPeerID(opts *bind.TransactOpts, index common.Address, position *big.Int, peerID string) (*types.Transaction, error) {
	return r.contract.Transact(opts, "setPeerId", index, position, peerID)
}

// RemovePeerID deletes the peer id at position in the list under index.
func (r *Registry) RemovePeerID(opts *bind.TransactOpts, index common.Address, position *big.Int) (*types.Transaction, error) {
	return r.contract.Transact(opts, "removePeerId", index, position)
}
