package ethereum

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ThorbenD/atomic-bridge-go/bridge"
	"github.com/ThorbenD/atomic-bridge-go/domain"
)

// Both bridge contracts keep their transfer records in the mapping at slot
// zero, keyed by transfer id.
const transferMappingSlot = 0

// transferStorageWords is how many consecutive words hold one RLP-encoded
// transfer record.
const transferStorageWords = 6

// storedTransfer mirrors the record layout the contracts persist. The
// counterparty contract leaves Originator zero.
type storedTransfer struct {
	Amount     *big.Int
	Originator common.Address
	Recipient  [32]byte
	HashLock   [32]byte
	TimeLock   *big.Int
	State      uint8
}

func (s *storedTransfer) timeLock() (domain.TimeLock, error) {
	if !s.TimeLock.IsUint64() {
		return 0, fmt.Errorf("%w: time lock %s out of range", bridge.ErrStorageDecode, s.TimeLock)
	}
	return domain.TimeLock(s.TimeLock.Uint64()), nil
}

func (s *storedTransfer) amount() (domain.Amount, error) {
	amount, err := AmountFromWei(s.Amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", bridge.ErrStorageDecode, err)
	}
	return amount, nil
}

// transferStorageSlot derives the mapping slot for a transfer id as
// keccak256(rlp([id, mappingSlot])).
func transferStorageSlot(id domain.TransferID) (common.Hash, error) {
	type slotKey struct {
		Key         [32]byte
		MappingSlot *big.Int
	}
	enc, err := rlp.EncodeToBytes(slotKey{Key: id, MappingSlot: big.NewInt(transferMappingSlot)})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// readStoredTransfer fetches the record words for id from contract storage
// and decodes them. A zeroed first word means no record exists.
func readStoredTransfer(ctx context.Context, node NodeClient, contract common.Address, id domain.TransferID) (*storedTransfer, error) {
	slot, err := transferStorageSlot(id)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving storage slot: %v", bridge.ErrStorageRead, err)
	}

	buf := make([]byte, 0, transferStorageWords*common.HashLength)
	cursor := new(big.Int).SetBytes(slot[:])
	for i := 0; i < transferStorageWords; i++ {
		word, err := node.StorageAt(ctx, contract, common.BigToHash(cursor))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", bridge.ErrStorageRead, err)
		}
		buf = append(buf, word...)
		cursor.Add(cursor, big.NewInt(1))
	}

	if allZero(buf[:common.HashLength]) {
		return nil, bridge.ErrTransferNotFound
	}

	var stored storedTransfer
	if err := rlp.Decode(bytes.NewReader(buf), &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", bridge.ErrStorageDecode, err)
	}
	return &stored, nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
