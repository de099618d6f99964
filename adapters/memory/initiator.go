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

// eventBuffer bounds every monitor stream. A full buffer blocks the emitting
// contract call until the consumer catches up, so a slow consumer slows the
// chain down instead of growing memory without limit.
const eventBuffer = 64

// SmartContractInitiator implements bridge.InitiatorContract on an in-memory
// chain. Time does not pass on its own: expiry is judged against the
// injected clock, which tests drive with clock.NewMock.
type SmartContractInitiator[A comparable] struct {
	mu        sync.Mutex
	ledger    *Ledger[A]
	clk       clock.Clock
	hash      domain.HashFunc
	transfers map[domain.TransferID]*transferRecord[A]
	events    chan bridge.InitiatorEvent[A]
	closed    bool
}

type transferRecord[A comparable] struct {
	details   domain.TransferDetails[A]
	status    domain.TransferStatus
	expiresAt time.Time
}

// NewSmartContractInitiator creates an initiator chain over the given
// ledger. A nil hash selects domain.SHA256Hash.
func NewSmartContractInitiator[A comparable](ledger *Ledger[A], clk clock.Clock, hash domain.HashFunc) *SmartContractInitiator[A] {
	if hash == nil {
		hash = domain.SHA256Hash
	}
	return &SmartContractInitiator[A]{
		ledger:    ledger,
		clk:       clk,
		hash:      hash,
		transfers: make(map[domain.TransferID]*transferRecord[A]),
		events:    make(chan bridge.InitiatorEvent[A], eventBuffer),
	}
}

// Monitor returns the stream of state changes this contract emits. Events
// for one transfer id arrive in the order the transitions happened.
func (c *SmartContractInitiator[A]) Monitor() bridge.InitiatorMonitor[A] {
	return initiatorMonitor[A]{events: c.events}
}

// Close terminates the event stream. The contract keeps serving calls
// afterwards, but transitions are no longer observable.
func (c *SmartContractInitiator[A]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// InitiateBridgeTransfer records a new pending transfer under a fresh id and
// emits INITIATED. The locked amount stays with the contract until the
// transfer completes or is refunded.
func (c *SmartContractInitiator[A]) InitiateBridgeTransfer(ctx context.Context, initiator, recipient A, hashLock domain.HashLock, timeLock domain.TimeLock, amount domain.Amount) (domain.TransferID, error) {
	id, err := domain.GenerateTransferID()
	if err != nil {
		return domain.TransferID{}, fmt.Errorf("%w: %w", bridge.ErrInitiateTransfer, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.transfers[id]; exists {
		return domain.TransferID{}, fmt.Errorf("%w: transfer %s", bridge.ErrTransferExists, id)
	}

	details := domain.TransferDetails[A]{
		ID:               id,
		InitiatorAddress: initiator,
		RecipientAddress: recipient,
		HashLock:         hashLock,
		TimeLock:         timeLock,
		Amount:           amount,
	}
	c.transfers[id] = &transferRecord[A]{
		details:   details,
		status:    domain.TransferStatusPending,
		expiresAt: c.clk.Now().Add(timeLock.Duration()),
	}

	slog.Info("🧪 [MemoryInitiator] Transfer initiated", "transfer_id", id, "amount", amount, "time_lock", timeLock)
	c.emit(bridge.InitiatorEvent[A]{Kind: bridge.InitiatorInitiated, ID: id, Details: &details})
	return id, nil
}

// CompleteBridgeTransfer releases a pending transfer to its recipient. The
// pre-image is checked against the stored hash lock before anything changes.
func (c *SmartContractInitiator[A]) CompleteBridgeTransfer(ctx context.Context, id domain.TransferID, preimage domain.Preimage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.transfers[id]
	if !ok {
		return fmt.Errorf("%w: transfer %s", bridge.ErrTransferNotFound, id)
	}
	if rec.status != domain.TransferStatusPending {
		return fmt.Errorf("%w: transfer %s is %s", bridge.ErrTransferNotPending, id, rec.status)
	}
	if c.hash(preimage) != rec.details.HashLock {
		return fmt.Errorf("%w: transfer %s", bridge.ErrInvalidPreimage, id)
	}

	c.ledger.Credit(rec.details.RecipientAddress, rec.details.Amount)
	rec.status = domain.TransferStatusCompleted

	slog.Info("🧪 [MemoryInitiator] Transfer completed", "transfer_id", id, "amount", rec.details.Amount)
	c.emit(bridge.InitiatorEvent[A]{Kind: bridge.InitiatorCompleted, ID: id, Preimage: preimage})
	return nil
}

// RefundBridgeTransfer returns a pending transfer's amount to its initiator
// once the time lock has elapsed. It succeeds at most once per transfer.
func (c *SmartContractInitiator[A]) RefundBridgeTransfer(ctx context.Context, id domain.TransferID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.transfers[id]
	if !ok {
		return fmt.Errorf("%w: transfer %s", bridge.ErrTransferNotFound, id)
	}
	if rec.status != domain.TransferStatusPending {
		return fmt.Errorf("%w: transfer %s is %s", bridge.ErrTransferNotPending, id, rec.status)
	}
	if c.clk.Now().Before(rec.expiresAt) {
		return fmt.Errorf("%w: transfer %s expires at %s", bridge.ErrTimeLockNotExpired, id, rec.expiresAt)
	}

	c.ledger.Credit(rec.details.InitiatorAddress, rec.details.Amount)
	rec.status = domain.TransferStatusRefunded

	slog.Info("🧪 [MemoryInitiator] Transfer refunded", "transfer_id", id, "amount", rec.details.Amount)
	c.emit(bridge.InitiatorEvent[A]{Kind: bridge.InitiatorRefunded, ID: id})
	return nil
}

// GetBridgeTransferDetails returns a copy of the stored transfer record.
func (c *SmartContractInitiator[A]) GetBridgeTransferDetails(ctx context.Context, id domain.TransferID) (*domain.TransferDetails[A], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.transfers[id]
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", bridge.ErrTransferNotFound, id)
	}
	details := rec.details
	return &details, nil
}

// Status reports the lifecycle state of a transfer.
func (c *SmartContractInitiator[A]) Status(id domain.TransferID) (domain.TransferStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.transfers[id]
	if !ok {
		return "", fmt.Errorf("%w: transfer %s", bridge.ErrTransferNotFound, id)
	}
	return rec.status, nil
}

// emit is called with mu held, which keeps the per-id event order equal to
// the transition order.
func (c *SmartContractInitiator[A]) emit(ev bridge.InitiatorEvent[A]) {
	if c.closed {
		return
	}
	c.events <- ev
}
