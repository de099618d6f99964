package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raulk/clock"

	"github.com/ThorbenD/atomic-bridge-go/bridge"
	"github.com/ThorbenD/atomic-bridge-go/domain"
)

// SmartContractCounterparty implements bridge.CounterpartyContract on an
// in-memory chain. It shares the expiry model of SmartContractInitiator: the
// injected clock is the only notion of time.
type SmartContractCounterparty[A comparable] struct {
	mu     sync.Mutex
	ledger *Ledger[A]
	clk    clock.Clock
	hash   domain.HashFunc
	locks  map[domain.TransferID]*lockRecord[A]
	events chan bridge.CounterpartyEvent[A]
	closed bool
}

type lockRecord[A comparable] struct {
	lock      domain.LockDetails[A]
	status    domain.TransferStatus
	expiresAt time.Time
}

// NewSmartContractCounterparty creates a counterparty chain over the given
// ledger. A nil hash selects domain.SHA256Hash.
func NewSmartContractCounterparty[A comparable](ledger *Ledger[A], clk clock.Clock, hash domain.HashFunc) *SmartContractCounterparty[A] {
	if hash == nil {
		hash = domain.SHA256Hash
	}
	return &SmartContractCounterparty[A]{
		ledger: ledger,
		clk:    clk,
		hash:   hash,
		locks:  make(map[domain.TransferID]*lockRecord[A]),
		events: make(chan bridge.CounterpartyEvent[A], eventBuffer),
	}
}

// Monitor returns the stream of state changes this contract emits.
func (c *SmartContractCounterparty[A]) Monitor() bridge.CounterpartyMonitor[A] {
	return counterpartyMonitor[A]{events: c.events}
}

// Close terminates the event stream. The contract keeps serving calls
// afterwards, but transitions are no longer observable.
func (c *SmartContractCounterparty[A]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// LockBridgeTransferAssets records the counterparty-side lock for an
// initiated transfer and emits LOCKED. The id comes from the initiator
// chain; locking an id twice is an error, never a replacement.
func (c *SmartContractCounterparty[A]) LockBridgeTransferAssets(ctx context.Context, id domain.TransferID, hashLock domain.HashLock, timeLock domain.TimeLock, recipient A, amount domain.Amount) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.locks[id]; exists {
		return fmt.Errorf("%w: transfer %s", bridge.ErrTransferExists, id)
	}

	lock := domain.LockDetails[A]{
		ID:               id,
		RecipientAddress: recipient,
		HashLock:         hashLock,
		TimeLock:         timeLock,
		Amount:           amount,
	}
	c.locks[id] = &lockRecord[A]{
		lock:      lock,
		status:    domain.TransferStatusPending,
		expiresAt: c.clk.Now().Add(timeLock.Duration()),
	}

	slog.Info("🧪 [MemoryCounterparty] Assets locked", "transfer_id", id, "amount", amount, "time_lock", timeLock)
	c.emit(bridge.CounterpartyEvent[A]{Kind: bridge.CounterpartyLocked, Lock: &lock})
	return nil
}

// CompleteBridgeTransfer releases a pending lock to its recipient and emits
// COMPLETED carrying the revealed secret.
func (c *SmartContractCounterparty[A]) CompleteBridgeTransfer(ctx context.Context, id domain.TransferID, preimage domain.Preimage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.locks[id]
	if !ok {
		return fmt.Errorf("%w: transfer %s", bridge.ErrTransferNotFound, id)
	}
	if rec.status != domain.TransferStatusPending {
		return fmt.Errorf("%w: transfer %s is %s", bridge.ErrTransferNotPending, id, rec.status)
	}
	if c.hash(preimage) != rec.lock.HashLock {
		return fmt.Errorf("%w: transfer %s", bridge.ErrInvalidPreimage, id)
	}

	c.ledger.Credit(rec.lock.RecipientAddress, rec.lock.Amount)
	rec.status = domain.TransferStatusCompleted
	completed := domain.CompleteLock(rec.lock, preimage)

	slog.Info("🧪 [MemoryCounterparty] Transfer completed", "transfer_id", id, "amount", rec.lock.Amount)
	c.emit(bridge.CounterpartyEvent[A]{Kind: bridge.CounterpartyCompleted, Completed: &completed})
	return nil
}

// AbortBridgeTransfer voids a pending lock once its time lock has elapsed.
// No funds move, and the transfer can never complete afterwards.
func (c *SmartContractCounterparty[A]) AbortBridgeTransfer(ctx context.Context, id domain.TransferID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.locks[id]
	if !ok {
		return fmt.Errorf("%w: transfer %s", bridge.ErrTransferNotFound, id)
	}
	if rec.status != domain.TransferStatusPending {
		return fmt.Errorf("%w: transfer %s is %s", bridge.ErrTransferNotPending, id, rec.status)
	}
	if c.clk.Now().Before(rec.expiresAt) {
		return fmt.Errorf("%w: transfer %s expires at %s", bridge.ErrTimeLockNotExpired, id, rec.expiresAt)
	}

	rec.status = domain.TransferStatusAborted

	slog.Info("🧪 [MemoryCounterparty] Transfer aborted", "transfer_id", id)
	return nil
}

// GetBridgeTransferDetails returns a copy of the stored lock record.
func (c *SmartContractCounterparty[A]) GetBridgeTransferDetails(ctx context.Context, id domain.TransferID) (*domain.LockDetails[A], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.locks[id]
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", bridge.ErrTransferNotFound, id)
	}
	lock := rec.lock
	return &lock, nil
}

// Status reports the lifecycle state of a lock.
func (c *SmartContractCounterparty[A]) Status(id domain.TransferID) (domain.TransferStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.locks[id]
	if !ok {
		return "", fmt.Errorf("%w: transfer %s", bridge.ErrTransferNotFound, id)
	}
	return rec.status, nil
}

func (c *SmartContractCounterparty[A]) emit(ev bridge.CounterpartyEvent[A]) {
	if c.closed {
		return
	}
	c.events <- ev
}
