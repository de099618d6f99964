package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TransferID is the 32-byte identifier of a bridge transfer. It is generated
// once at initiation and used as the primary key for every lookup on both
// chains afterwards.
type TransferID [32]byte

// GenerateTransferID draws a fresh identifier from crypto/rand. Identifiers
// are distinct from every other identifier generated during the lifetime of
// the process.
func GenerateTransferID() (TransferID, error) {
	var id TransferID
	if _, err := rand.Read(id[:]); err != nil {
		return TransferID{}, fmt.Errorf("generate transfer id: %w", err)
	}
	return id, nil
}

// ParseTransferID decodes a hex-encoded transfer id.
func ParseTransferID(s string) (TransferID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return TransferID{}, fmt.Errorf("invalid transfer id %q: %w", s, err)
	}
	if len(b) != len(TransferID{}) {
		return TransferID{}, fmt.Errorf("invalid transfer id %q: want %d bytes, got %d", s, len(TransferID{}), len(b))
	}
	var id TransferID
	copy(id[:], b)
	return id, nil
}

func (id TransferID) String() string {
	return hex.EncodeToString(id[:])
}

// HashLock is the 32-byte commitment an initiator supplies at transfer
// creation. It is write-once: completion requires a pre-image whose hash
// equals it.
type HashLock [32]byte

func (l HashLock) String() string {
	return hex.EncodeToString(l[:])
}

// Preimage is the secret behind a HashLock. Possession of it is proof of
// authorization to complete a transfer.
type Preimage []byte

// HashFunc maps a pre-image to its commitment. Chains differ here (the EVM
// contracts use keccak256), so contract implementations take the function as
// a parameter instead of assuming one.
type HashFunc func(Preimage) HashLock

// SHA256Hash is the reference hash function used by the in-memory chains.
func SHA256Hash(p Preimage) HashLock {
	return sha256.Sum256(p)
}

// TimeLock is the expiry of a lock, in seconds from its creation. The
// initiator-side and counterparty-side clocks are independent; a TimeLock
// only ever refers to the chain that holds the record.
type TimeLock uint64

// Duration converts the time lock to a time.Duration.
func (t TimeLock) Duration() time.Duration {
	return time.Duration(t) * time.Second
}

// Amount is a quantity of bridged assets in the smallest unit. The protocol
// conserves it: what the initiator locks is exactly what the counterparty
// credits on completion.
type Amount uint64

// TransferStatus tracks the lifecycle of a transfer record on one side.
// Records start PENDING and move to exactly one terminal status.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusRefunded  TransferStatus = "REFUNDED"
	TransferStatusAborted   TransferStatus = "ABORTED"
)

// Terminal reports whether the status permits no further transitions.
func (s TransferStatus) Terminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusRefunded || s == TransferStatusAborted
}
