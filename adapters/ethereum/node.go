// Package ethereum implements the bridge contract ports against deployed
// EVM bridge contracts: signed calls through a node client, transfer reads
// from contract storage and event monitors over websocket log subscriptions.
package ethereum

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ThorbenD/atomic-bridge-go/bridge"
	"github.com/ThorbenD/atomic-bridge-go/domain"
)

// NodeClient is the slice of clients/evm.Client the adapters consume.
type NodeClient interface {
	Address() common.Address
	SendContractCall(ctx context.Context, to common.Address, value *big.Int, calldata []byte) (*types.Receipt, error)
	StorageAt(ctx context.Context, contract common.Address, slot common.Hash) ([]byte, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SubscribeLogs(ctx context.Context, query ethereum.FilterQuery) (<-chan types.Log, <-chan error, error)
}

// recipientWord left-pads an address into the bytes32 word the contracts use
// for recipients, so the same field can carry non-EVM addresses.
func recipientWord(addr common.Address) [32]byte {
	var word [32]byte
	copy(word[12:], addr.Bytes())
	return word
}

func recipientAddress(word [32]byte) common.Address {
	return common.BytesToAddress(word[12:])
}

// preimageWord validates the fixed secret length the contracts expect.
func preimageWord(p domain.Preimage) ([32]byte, error) {
	if len(p) != common.HashLength {
		return [32]byte{}, fmt.Errorf("%w: expected %d bytes, got %d", bridge.ErrInvalidPreimage, common.HashLength, len(p))
	}
	var word [32]byte
	copy(word[:], p)
	return word, nil
}
