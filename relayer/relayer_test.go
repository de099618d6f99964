package relayer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/ThorbenD/atomic-bridge-go/adapters/memory"
	"github.com/ThorbenD/atomic-bridge-go/bridge"
	"github.com/ThorbenD/atomic-bridge-go/domain"
)

// harness wires a coordinator to two in-memory chains sharing one mock
// clock.
type harness struct {
	clk          *clock.Mock
	initiator    *memory.SmartContractInitiator[string]
	counterparty *memory.SmartContractCounterparty[string]
	initLedger   *memory.Ledger[string]
	cpLedger     *memory.Ledger[string]
	relayer      *Relayer[string, string]

	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T, cfg Config[string, string]) *harness {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Now())

	h := &harness{
		clk:        clk,
		initLedger: memory.NewLedger[string](),
		cpLedger:   memory.NewLedger[string](),
	}
	h.initiator = memory.NewSmartContractInitiator(h.initLedger, clk, nil)
	h.counterparty = memory.NewSmartContractCounterparty(h.cpLedger, clk, nil)

	if cfg.MapRecipient == nil {
		cfg.MapRecipient = func(a string) (string, error) { return a, nil }
	}
	cfg.Clock = clk
	if cfg.ExpiryPollInterval == 0 {
		cfg.ExpiryPollInterval = time.Second
	}

	r, err := New[string, string](h.initiator, h.counterparty, h.initiator.Monitor(), h.counterparty.Monitor(), cfg)
	require.NoError(t, err)
	h.relayer = r

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- r.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-h.done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("relayer did not shut down")
		}
	})
	return h
}

// awaitState waits for an event-driven transition without touching the
// clock.
func (h *harness) awaitState(t *testing.T, id domain.TransferID, want TransferState) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, ok := h.relayer.Status(id)
		return ok && got == want
	}, 2*time.Second, time.Millisecond, "want state %s", want)
}

// awaitStateTicking waits for an expiry-driven transition, nudging the mock
// clock in small steps so poll ticks keep firing without racing past the
// state under observation.
func (h *harness) awaitStateTicking(t *testing.T, id domain.TransferID, want TransferState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := h.relayer.Status(id); ok && got == want {
			return
		}
		h.clk.Add(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	got, _ := h.relayer.Status(id)
	t.Fatalf("transfer never reached %s, still %s", want, got)
}

func TestRelayerHappyPath(t *testing.T) {
	h := newHarness(t, Config[string, string]{})
	ctx := context.Background()

	secret := domain.Preimage("secret1")
	id, err := h.initiator.InitiateBridgeTransfer(ctx, "alice", "bob", domain.SHA256Hash(secret), 100, 1_000_000)
	require.NoError(t, err)

	h.awaitState(t, id, StateLocked)

	lock, err := h.counterparty.GetBridgeTransferDetails(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.Amount(1_000_000), lock.Amount, "locked amount must equal the initiated amount")
	require.Equal(t, domain.TimeLock(50), lock.TimeLock, "counterparty lock must expire well before the initiator's")
	require.Equal(t, "bob", lock.RecipientAddress)

	// The secret holder claims on the counterparty side; the coordinator
	// mirrors the completion to the initiator side on its own.
	require.NoError(t, h.counterparty.CompleteBridgeTransfer(ctx, id, secret))

	h.awaitState(t, id, StateCompleted)
	require.Equal(t, domain.Amount(1_000_000), h.cpLedger.Balance("bob"))
	require.Equal(t, domain.Amount(1_000_000), h.initLedger.Balance("bob"))
	require.Equal(t, domain.Amount(0), h.initLedger.Balance("alice"))

	status, err := h.initiator.Status(id)
	require.NoError(t, err)
	require.Equal(t, domain.TransferStatusCompleted, status)
}

func TestRelayerCapsCounterpartyTimeLock(t *testing.T) {
	h := newHarness(t, Config[string, string]{CounterpartyTimeLock: 30})
	ctx := context.Background()

	id, err := h.initiator.InitiateBridgeTransfer(ctx, "alice", "bob", domain.SHA256Hash(domain.Preimage("secret1")), 100, 500)
	require.NoError(t, err)
	h.awaitState(t, id, StateLocked)

	lock, err := h.counterparty.GetBridgeTransferDetails(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.TimeLock(30), lock.TimeLock)
}

func TestRelayerRollsBackOnExpiry(t *testing.T) {
	h := newHarness(t, Config[string, string]{})
	ctx := context.Background()

	id, err := h.initiator.InitiateBridgeTransfer(ctx, "alice", "bob", domain.SHA256Hash(domain.Preimage("secret1")), 10, 1_000_000)
	require.NoError(t, err)
	h.awaitState(t, id, StateLocked)

	// Nobody reveals the secret. The counterparty lock (5s) dies first,
	// then the initiator lock (10s).
	h.clk.Add(5 * time.Second)
	h.awaitStateTicking(t, id, StateAbortedCounterparty)
	require.Equal(t, domain.Amount(0), h.cpLedger.Balance("bob"), "abort must not move funds")

	cpStatus, err := h.counterparty.Status(id)
	require.NoError(t, err)
	require.Equal(t, domain.TransferStatusAborted, cpStatus)

	h.awaitStateTicking(t, id, StateRefundedInitiated)
	require.Equal(t, domain.Amount(1_000_000), h.initLedger.Balance("alice"), "expired transfer must return to the initiator")
	require.Equal(t, domain.Amount(0), h.initLedger.Balance("bob"))
}

func TestRelayerStallsWhenLockFails(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Now())
	initLedger := memory.NewLedger[string]()
	initiator := memory.NewSmartContractInitiator(initLedger, clk, nil)
	cp := memory.NewSmartContractCounterparty(memory.NewLedger[string](), clk, nil)
	broken := &failingCounterparty{CounterpartyContract: cp, err: errors.New("rpc: connection refused")}

	r, err := New[string, string](initiator, broken, initiator.Monitor(), cp.Monitor(), Config[string, string]{
		MapRecipient: func(a string) (string, error) { return a, nil },
		Clock:        clk,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	id, err := initiator.InitiateBridgeTransfer(ctx, "alice", "bob", domain.SHA256Hash(domain.Preimage("secret1")), 100, 42)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := r.Status(id)
		return ok && got == StateStalled
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	// The record survives for reconciliation.
	got, ok := r.Status(id)
	require.True(t, ok)
	require.Equal(t, StateStalled, got)
}

func TestRelayerRefusesUnsafeTimeLock(t *testing.T) {
	h := newHarness(t, Config[string, string]{})
	ctx := context.Background()

	// A one-second initiator lock leaves no counterparty margin at all.
	id, err := h.initiator.InitiateBridgeTransfer(ctx, "alice", "bob", domain.SHA256Hash(domain.Preimage("secret1")), 1, 42)
	require.NoError(t, err)

	h.awaitState(t, id, StateStalled)
	_, err = h.counterparty.GetBridgeTransferDetails(ctx, id)
	require.ErrorIs(t, err, bridge.ErrTransferNotFound, "no lock may be placed without a safety margin")
}

func TestRelayerStopsWhenStreamDies(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Now())
	initiator := memory.NewSmartContractInitiator(memory.NewLedger[string](), clk, nil)
	cp := memory.NewSmartContractCounterparty(memory.NewLedger[string](), clk, nil)

	r, err := New[string, string](initiator, cp, initiator.Monitor(), cp.Monitor(), Config[string, string]{
		MapRecipient: func(a string) (string, error) { return a, nil },
		Clock:        clk,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	initiator.Close()
	select {
	case err := <-done:
		require.Error(t, err, "a terminated monitoring stream must stop the coordinator")
	case <-time.After(2 * time.Second):
		t.Fatal("relayer kept running after its stream died")
	}
}

func TestNewRequiresMapRecipient(t *testing.T) {
	clk := clock.NewMock()
	initiator := memory.NewSmartContractInitiator(memory.NewLedger[string](), clk, nil)
	cp := memory.NewSmartContractCounterparty(memory.NewLedger[string](), clk, nil)

	_, err := New[string, string](initiator, cp, initiator.Monitor(), cp.Monitor(), Config[string, string]{})
	require.Error(t, err)
}

func TestCounterpartyTimeLockDerivation(t *testing.T) {
	lock, ok := counterpartyTimeLock(0, 100)
	require.True(t, ok)
	require.Equal(t, domain.TimeLock(50), lock)

	lock, ok = counterpartyTimeLock(30, 100)
	require.True(t, ok)
	require.Equal(t, domain.TimeLock(30), lock)

	lock, ok = counterpartyTimeLock(200, 100)
	require.True(t, ok)
	require.Equal(t, domain.TimeLock(50), lock, "the cap never loosens the half rule")

	_, ok = counterpartyTimeLock(0, 1)
	require.False(t, ok)

	_, ok = counterpartyTimeLock(10, 0)
	require.False(t, ok)
}

type failingCounterparty struct {
	bridge.CounterpartyContract[string]
	err error
}

func (f *failingCounterparty) LockBridgeTransferAssets(ctx context.Context, id domain.TransferID, hashLock domain.HashLock, timeLock domain.TimeLock, recipient string, amount domain.Amount) error {
	return f.err
}
