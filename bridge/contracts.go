// Package bridge defines the chain-agnostic ports of the atomic bridge
// protocol. The relayer talks only to these interfaces, never to an RPC
// client or a chain directly. Implementations include the in-memory
// reference chains (adapters/memory) and the EVM-backed clients
// (adapters/ethereum).
package bridge

import (
	"context"

	"github.com/ThorbenD/atomic-bridge-go/domain"
)

// InitiatorContract is the capability set of the chain where a bridge
// transfer starts: the sender locks funds behind a hash lock and a time
// lock, and the lock is later completed with the revealed secret or
// refunded after expiry.
//
// A is the chain-native address type.
type InitiatorContract[A comparable] interface {
	// InitiateBridgeTransfer locks amount on the initiator chain under a
	// freshly generated transfer id and returns that id. It fails with
	// ErrInitiateTransfer when the underlying chain call cannot be placed
	// (for example insufficient funds after retry exhaustion).
	InitiateBridgeTransfer(ctx context.Context, initiator, recipient A, hashLock domain.HashLock, timeLock domain.TimeLock, amount domain.Amount) (domain.TransferID, error)

	// CompleteBridgeTransfer releases an initiated transfer to the
	// recipient. The pre-image must hash to the transfer's hash lock;
	// a mismatch fails with ErrInvalidPreimage and mutates nothing.
	CompleteBridgeTransfer(ctx context.Context, id domain.TransferID, preimage domain.Preimage) error

	// RefundBridgeTransfer returns the locked amount to the initiator.
	// Only valid once the transfer's time lock has elapsed without a
	// completion; it succeeds exactly once.
	RefundBridgeTransfer(ctx context.Context, id domain.TransferID) error

	// GetBridgeTransferDetails looks up a transfer record. Absence is
	// ErrTransferNotFound; a present but unreadable record is
	// ErrStorageRead/ErrStorageDecode so callers can tell the two apart.
	GetBridgeTransferDetails(ctx context.Context, id domain.TransferID) (*domain.TransferDetails[A], error)
}

// CounterpartyContract is the capability set of the chain that locks assets
// for the recipient in response to an initiated transfer.
type CounterpartyContract[A comparable] interface {
	// LockBridgeTransferAssets places the counterparty-side lock for an
	// already-initiated transfer. Locking an id that is already present
	// fails with ErrTransferExists; locks are never silently replaced.
	LockBridgeTransferAssets(ctx context.Context, id domain.TransferID, hashLock domain.HashLock, timeLock domain.TimeLock, recipient A, amount domain.Amount) error

	// CompleteBridgeTransfer releases the locked assets to the recipient.
	// Same pre-image contract as the initiator side. The resulting
	// Completed event carries the revealed secret, which is the relayer's
	// proof for completing the initiator side.
	CompleteBridgeTransfer(ctx context.Context, id domain.TransferID, preimage domain.Preimage) error

	// AbortBridgeTransfer releases the lock without transferring funds.
	// Only valid once the counterparty-side time lock has elapsed. An
	// aborted transfer is permanently void: a later completion attempt
	// fails even with the correct pre-image.
	AbortBridgeTransfer(ctx context.Context, id domain.TransferID) error

	// GetBridgeTransferDetails mirrors the initiator-side lookup for lock
	// records.
	GetBridgeTransferDetails(ctx context.Context, id domain.TransferID) (*domain.LockDetails[A], error)
}
