package domain

// TransferDetails is the initiator-side record of a bridge transfer, created
// by InitiateBridgeTransfer and read-only afterwards. Completion and refund
// act on state derived from it, never on the record itself.
//
// A is the chain-native address type, opaque to the protocol beyond
// equality and display.
type TransferDetails[A comparable] struct {
	ID               TransferID
	InitiatorAddress A
	RecipientAddress A
	HashLock         HashLock
	TimeLock         TimeLock
	Amount           Amount
}

// LockDetails is the counterparty-side record created by
// LockBridgeTransferAssets in response to an initiated transfer.
type LockDetails[A comparable] struct {
	ID               TransferID
	RecipientAddress A
	HashLock         HashLock
	TimeLock         TimeLock
	Amount           Amount
}

// CompletedDetails is the terminal counterparty-side record. It carries the
// revealed secret, which is what lets a relayer mirror the completion on the
// initiator chain.
type CompletedDetails[A comparable] struct {
	ID               TransferID
	RecipientAddress A
	HashLock         HashLock
	Preimage         Preimage
	Amount           Amount
}

// CompleteLock pairs a lock record with the secret that released it.
func CompleteLock[A comparable](lock LockDetails[A], secret Preimage) CompletedDetails[A] {
	return CompletedDetails[A]{
		ID:               lock.ID,
		RecipientAddress: lock.RecipientAddress,
		HashLock:         lock.HashLock,
		Preimage:         secret,
		Amount:           lock.Amount,
	}
}
