package memory

import (
	"context"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/ThorbenD/atomic-bridge-go/bridge"
	"github.com/ThorbenD/atomic-bridge-go/domain"
)

func newCounterpartyChain(t *testing.T) (*SmartContractCounterparty[string], *Ledger[string], *clock.Mock) {
	t.Helper()
	ledger := NewLedger[string]()
	clk := clock.NewMock()
	clk.Set(time.Now())
	return NewSmartContractCounterparty(ledger, clk, nil), ledger, clk
}

func mustTransferID(t *testing.T) domain.TransferID {
	t.Helper()
	id, err := domain.GenerateTransferID()
	require.NoError(t, err)
	return id
}

func TestCounterpartyLockAndComplete(t *testing.T) {
	c, ledger, _ := newCounterpartyChain(t)
	ctx := context.Background()
	events := c.Monitor().Events()

	secret := domain.Preimage("secret1")
	id := mustTransferID(t)
	require.NoError(t, c.LockBridgeTransferAssets(ctx, id, domain.SHA256Hash(secret), 100, "bob", 1_000_000))

	lock, err := c.GetBridgeTransferDetails(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "bob", lock.RecipientAddress)
	require.Equal(t, domain.Amount(1_000_000), lock.Amount)

	require.NoError(t, c.CompleteBridgeTransfer(ctx, id, secret))
	require.Equal(t, domain.Amount(1_000_000), ledger.Balance("bob"))
	require.Len(t, ledger.Snapshot(), 1)

	ev := <-events
	require.Equal(t, bridge.CounterpartyLocked, ev.Kind)
	require.Equal(t, id, ev.TransferID())
	require.NotNil(t, ev.Lock)

	ev = <-events
	require.Equal(t, bridge.CounterpartyCompleted, ev.Kind)
	require.Equal(t, id, ev.TransferID())
	require.NotNil(t, ev.Completed)
	require.Equal(t, secret, ev.Completed.Preimage, "completion must reveal the secret to observers")
	require.Equal(t, domain.Amount(1_000_000), ev.Completed.Amount)
}

func TestCounterpartyRejectsWrongPreimage(t *testing.T) {
	c, ledger, _ := newCounterpartyChain(t)
	ctx := context.Background()

	id := mustTransferID(t)
	require.NoError(t, c.LockBridgeTransferAssets(ctx, id, domain.SHA256Hash(domain.Preimage("secret1")), 100, "bob", 1_000_000))

	err := c.CompleteBridgeTransfer(ctx, id, domain.Preimage("secret2"))
	require.ErrorIs(t, err, bridge.ErrInvalidPreimage)
	require.Equal(t, domain.Amount(0), ledger.Balance("bob"))

	status, err := c.Status(id)
	require.NoError(t, err)
	require.Equal(t, domain.TransferStatusPending, status)
}

func TestCounterpartyRejectsDuplicateLock(t *testing.T) {
	c, _, _ := newCounterpartyChain(t)
	ctx := context.Background()

	id := mustTransferID(t)
	require.NoError(t, c.LockBridgeTransferAssets(ctx, id, domain.SHA256Hash(domain.Preimage("secret1")), 100, "bob", 1_000_000))

	err := c.LockBridgeTransferAssets(ctx, id, domain.SHA256Hash(domain.Preimage("other")), 50, "mallory", 5)
	require.ErrorIs(t, err, bridge.ErrTransferExists)

	lock, err := c.GetBridgeTransferDetails(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "bob", lock.RecipientAddress, "existing lock must be untouched")
	require.Equal(t, domain.Amount(1_000_000), lock.Amount)
	require.Equal(t, domain.TimeLock(100), lock.TimeLock)
}

func TestCounterpartyAbortRespectsTimeLock(t *testing.T) {
	c, ledger, clk := newCounterpartyChain(t)
	ctx := context.Background()

	secret := domain.Preimage("secret1")
	id := mustTransferID(t)
	require.NoError(t, c.LockBridgeTransferAssets(ctx, id, domain.SHA256Hash(secret), 10, "bob", 1_000_000))

	require.ErrorIs(t, c.AbortBridgeTransfer(ctx, id), bridge.ErrTimeLockNotExpired)

	clk.Add(10 * time.Second)
	require.NoError(t, c.AbortBridgeTransfer(ctx, id))
	require.Equal(t, domain.Amount(0), ledger.Balance("bob"), "abort must not move funds")

	status, err := c.Status(id)
	require.NoError(t, err)
	require.Equal(t, domain.TransferStatusAborted, status)

	err = c.CompleteBridgeTransfer(ctx, id, secret)
	require.ErrorIs(t, err, bridge.ErrTransferNotPending, "an aborted transfer is permanently void")
	require.Equal(t, domain.Amount(0), ledger.Balance("bob"))

	require.ErrorIs(t, c.AbortBridgeTransfer(ctx, id), bridge.ErrTransferNotPending)
}

func TestCounterpartyUnknownTransfer(t *testing.T) {
	c, _, _ := newCounterpartyChain(t)
	ctx := context.Background()
	id := domain.TransferID{0x02}

	_, err := c.GetBridgeTransferDetails(ctx, id)
	require.ErrorIs(t, err, bridge.ErrTransferNotFound)
	require.ErrorIs(t, c.CompleteBridgeTransfer(ctx, id, domain.Preimage("secret1")), bridge.ErrTransferNotFound)
	require.ErrorIs(t, c.AbortBridgeTransfer(ctx, id), bridge.ErrTransferNotFound)
}

func TestSharedLedgerAcrossContracts(t *testing.T) {
	ledger := NewLedger[string]()
	clk := clock.NewMock()
	clk.Set(time.Now())
	initiator := NewSmartContractInitiator(ledger, clk, nil)
	counterparty := NewSmartContractCounterparty(ledger, clk, nil)
	ctx := context.Background()

	secret := domain.Preimage("secret1")
	id, err := initiator.InitiateBridgeTransfer(ctx, "alice", "bob", domain.SHA256Hash(secret), 100, 300)
	require.NoError(t, err)
	require.NoError(t, counterparty.LockBridgeTransferAssets(ctx, id, domain.SHA256Hash(secret), 50, "bob", 300))

	require.NoError(t, counterparty.CompleteBridgeTransfer(ctx, id, secret))
	require.NoError(t, initiator.CompleteBridgeTransfer(ctx, id, secret))

	require.Equal(t, domain.Amount(600), ledger.Balance("bob"), "both sides credit the same book when they share a ledger")
}
