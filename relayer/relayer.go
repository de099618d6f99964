// Package relayer coordinates bridge transfers across the two chains. It
// consumes both monitoring streams, drives the contract ports so that a
// completion on one side is mirrored on the other with the same revealed
// secret, and rolls both sides back when a time lock expires first.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raulk/clock"
	"golang.org/x/sync/errgroup"

	"github.com/ThorbenD/atomic-bridge-go/bridge"
	"github.com/ThorbenD/atomic-bridge-go/domain"
)

const (
	defaultExpiryPollInterval = time.Second

	inboxBuffer     = 64
	resultBuffer    = 64
	actionQueueSize = 16
)

// Config carries the coordinator's knobs. MapRecipient is required;
// everything else has a usable default.
type Config[AI, AC comparable] struct {
	// MapRecipient translates a recipient address observed on the
	// initiator chain into the counterparty chain's address space.
	MapRecipient func(AI) (AC, error)

	// CounterpartyTimeLock caps the time lock placed on counterparty
	// locks. Zero applies only the half-of-initiator rule.
	CounterpartyTimeLock domain.TimeLock

	// ExpiryPollInterval is how often time locks are checked. Defaults to
	// one second.
	ExpiryPollInterval time.Duration

	// Clock is the only source of time for expiry decisions. Defaults to
	// the wall clock; tests inject clock.NewMock().
	Clock clock.Clock
}

type operation string

const (
	opLock                 operation = "lock_counterparty"
	opCompleteInitiator    operation = "complete_initiator"
	opCompleteCounterparty operation = "complete_counterparty"
	opAbort                operation = "abort_counterparty"
	opRefund               operation = "refund_initiator"
)

type action struct {
	op  operation
	run func(context.Context) error
}

type actionResult struct {
	id  domain.TransferID
	op  operation
	err error
}

type message[AI, AC comparable] struct {
	initiator    *bridge.InitiatorEvent[AI]
	counterparty *bridge.CounterpartyEvent[AC]
}

// transfer is the per-id coordination record. Every field is owned by the
// event loop; state is additionally guarded by the relayer mutex because
// Status reads it from outside.
type transfer[AI comparable] struct {
	details            domain.TransferDetails[AI]
	state              TransferState
	initiatorExpiry    time.Time
	counterpartyExpiry time.Time

	preimage         domain.Preimage
	locked           bool
	aborted          bool
	initiatorDone    bool
	counterpartyDone bool
	abortPending     bool
	refundPending    bool

	actions     chan action
	queueClosed bool
}

// Relayer is the coordination state machine. One goroutine consumes each
// monitoring stream, one event loop owns the transfer map, and outbound
// contract calls run on per-transfer workers: operations on one id apply in
// order while distinct ids proceed in parallel.
type Relayer[AI, AC comparable] struct {
	cfg          Config[AI, AC]
	initiator    bridge.InitiatorContract[AI]
	counterparty bridge.CounterpartyContract[AC]

	initiatorEvents    <-chan bridge.InitiatorEvent[AI]
	counterpartyEvents <-chan bridge.CounterpartyEvent[AC]

	clk  clock.Clock
	poll time.Duration

	mu        sync.RWMutex
	transfers map[domain.TransferID]*transfer[AI]

	inbox   chan message[AI, AC]
	results chan actionResult
	wg      sync.WaitGroup
}

// New wires a coordinator to its two contracts and two monitoring streams.
func New[AI, AC comparable](
	initiator bridge.InitiatorContract[AI],
	counterparty bridge.CounterpartyContract[AC],
	initiatorMon bridge.InitiatorMonitor[AI],
	counterpartyMon bridge.CounterpartyMonitor[AC],
	cfg Config[AI, AC],
) (*Relayer[AI, AC], error) {
	if cfg.MapRecipient == nil {
		return nil, errors.New("relayer: Config.MapRecipient is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	poll := cfg.ExpiryPollInterval
	if poll <= 0 {
		poll = defaultExpiryPollInterval
	}
	return &Relayer[AI, AC]{
		cfg:                cfg,
		initiator:          initiator,
		counterparty:       counterparty,
		initiatorEvents:    initiatorMon.Events(),
		counterpartyEvents: counterpartyMon.Events(),
		clk:                clk,
		poll:               poll,
		transfers:          make(map[domain.TransferID]*transfer[AI]),
		inbox:              make(chan message[AI, AC], inboxBuffer),
		results:            make(chan actionResult, resultBuffer),
	}, nil
}

// Run drives the coordinator until ctx is canceled or a monitoring stream
// terminates. Cancellation is cooperative and returns nil; a dead stream is
// an error because transfers can no longer be observed.
func (r *Relayer[AI, AC]) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.pumpInitiator(ctx) })
	g.Go(func() error { return r.pumpCounterparty(ctx) })
	g.Go(func() error { return r.loop(ctx) })
	err := g.Wait()
	r.wg.Wait()
	return err
}

// Status returns the coordinator's current view of a transfer.
func (r *Relayer[AI, AC]) Status(id domain.TransferID) (TransferState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.transfers[id]
	if !ok {
		return "", false
	}
	return ts.state, true
}

func (r *Relayer[AI, AC]) pumpInitiator(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-r.initiatorEvents:
			if !ok {
				return errors.New("initiator monitoring stream terminated")
			}
			select {
			case r.inbox <- message[AI, AC]{initiator: &ev}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (r *Relayer[AI, AC]) pumpCounterparty(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-r.counterpartyEvents:
			if !ok {
				return errors.New("counterparty monitoring stream terminated")
			}
			select {
			case r.inbox <- message[AI, AC]{counterparty: &ev}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (r *Relayer[AI, AC]) loop(ctx context.Context) error {
	ticker := r.clk.Ticker(r.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-r.inbox:
			switch {
			case msg.initiator != nil:
				r.onInitiatorEvent(ctx, *msg.initiator)
			case msg.counterparty != nil:
				r.onCounterpartyEvent(*msg.counterparty)
			}
		case res := <-r.results:
			r.onActionResult(res)
		case <-ticker.C:
			r.checkExpiries()
		}
	}
}

func (r *Relayer[AI, AC]) onInitiatorEvent(ctx context.Context, ev bridge.InitiatorEvent[AI]) {
	id := ev.TransferID()
	switch ev.Kind {
	case bridge.InitiatorInitiated:
		if ev.Details == nil {
			slog.Warn("🔁 [Relayer] INITIATED event without details", "transfer_id", id)
			return
		}
		r.onInitiated(ctx, id, *ev.Details)

	case bridge.InitiatorCompleted:
		ts := r.transfers[id]
		if ts == nil || ts.state == StateStalled {
			return
		}
		ts.initiatorDone = true
		if len(ev.Preimage) > 0 {
			ts.preimage = ev.Preimage
		}
		r.settleCompletion(id, ts)
		if !ts.counterpartyDone && ts.locked && len(ts.preimage) > 0 {
			r.mirrorCounterparty(id, ts)
		}

	case bridge.InitiatorRefunded:
		ts := r.transfers[id]
		if ts == nil || ts.state == StateStalled {
			return
		}
		ts.initiatorDone = true
		r.setState(id, ts, StateRefundedInitiated)
	}
}

func (r *Relayer[AI, AC]) onInitiated(ctx context.Context, id domain.TransferID, details domain.TransferDetails[AI]) {
	if _, exists := r.transfers[id]; exists {
		slog.Warn("🔁 [Relayer] Duplicate INITIATED event", "transfer_id", id)
		return
	}
	ts := &transfer[AI]{
		details:         details,
		state:           StateInitiated,
		initiatorExpiry: r.clk.Now().Add(details.TimeLock.Duration()),
		actions:         make(chan action, actionQueueSize),
	}
	r.mu.Lock()
	r.transfers[id] = ts
	r.mu.Unlock()
	slog.Info("🔁 [Relayer] Tracking new transfer", "transfer_id", id, "amount", details.Amount, "time_lock", details.TimeLock)

	r.wg.Add(1)
	go r.worker(ctx, id, ts.actions)

	lockTime, ok := counterpartyTimeLock(r.cfg.CounterpartyTimeLock, details.TimeLock)
	if !ok {
		r.stall(id, ts, fmt.Errorf("initiator time lock %d leaves no mirroring margin", details.TimeLock))
		return
	}
	recipient, err := r.cfg.MapRecipient(details.RecipientAddress)
	if err != nil {
		r.stall(id, ts, fmt.Errorf("map recipient: %w", err))
		return
	}
	ts.counterpartyExpiry = r.clk.Now().Add(lockTime.Duration())

	hashLock, amount := details.HashLock, details.Amount
	r.enqueue(id, ts, action{op: opLock, run: func(ctx context.Context) error {
		return r.counterparty.LockBridgeTransferAssets(ctx, id, hashLock, lockTime, recipient, amount)
	}})
}

func (r *Relayer[AI, AC]) onCounterpartyEvent(ev bridge.CounterpartyEvent[AC]) {
	id := ev.TransferID()
	ts := r.transfers[id]
	if ts == nil {
		slog.Warn("🔁 [Relayer] Event for unknown transfer", "transfer_id", id, "kind", ev.Kind)
		return
	}
	if ts.state == StateStalled {
		return
	}
	switch ev.Kind {
	case bridge.CounterpartyLocked:
		if ev.Lock == nil {
			return
		}
		ts.locked = true
		ts.counterpartyExpiry = r.clk.Now().Add(ev.Lock.TimeLock.Duration())
		if ts.state == StateInitiated {
			r.setState(id, ts, StateLocked)
		}
		if len(ts.preimage) > 0 && !ts.counterpartyDone {
			r.mirrorCounterparty(id, ts)
		}

	case bridge.CounterpartyCompleted:
		if ev.Completed == nil {
			return
		}
		ts.counterpartyDone = true
		ts.preimage = ev.Completed.Preimage
		r.settleCompletion(id, ts)
		if !ts.initiatorDone {
			r.mirrorInitiator(id, ts)
		}
	}
}

func (r *Relayer[AI, AC]) onActionResult(res actionResult) {
	ts := r.transfers[res.id]
	if ts == nil || ts.state == StateStalled {
		return
	}
	if res.err == nil {
		switch res.op {
		case opAbort:
			ts.aborted = true
			ts.counterpartyDone = true
			r.setState(res.id, ts, StateAbortedCounterparty)
		case opRefund:
			ts.initiatorDone = true
			r.setState(res.id, ts, StateRefundedInitiated)
		}
		return
	}

	switch {
	case errors.Is(res.err, bridge.ErrTransferNotPending):
		// The other actor got there first; the authoritative outcome
		// arrives through the monitoring stream.
		slog.Debug("🔁 [Relayer] Action lost a benign race", "transfer_id", res.id, "op", res.op, "err", res.err)
	case errors.Is(res.err, bridge.ErrTimeLockNotExpired):
		// Our clock ran ahead of the chain's; rearm so a later tick
		// retries.
		if res.op == opAbort {
			ts.abortPending = false
		}
		if res.op == opRefund {
			ts.refundPending = false
		}
	case errors.Is(res.err, bridge.ErrTransferExists) && res.op == opLock:
		slog.Warn("🔁 [Relayer] Counterparty lock already present", "transfer_id", res.id)
	default:
		r.stall(res.id, ts, fmt.Errorf("%s: %w", res.op, res.err))
	}
}

// checkExpiries is the polled time-lock sweep. The counterparty lock always
// expires before the initiator's, so the rollback order is abort first,
// refund second, both through the per-transfer queue.
func (r *Relayer[AI, AC]) checkExpiries() {
	now := r.clk.Now()
	for id, ts := range r.transfers {
		if ts.state.Terminal() {
			continue
		}
		if ts.locked && !ts.counterpartyDone && !ts.abortPending && !now.Before(ts.counterpartyExpiry) {
			ts.abortPending = true
			slog.Warn("⏰ [Relayer] Counterparty time lock expired, aborting", "transfer_id", id)
			r.setState(id, ts, StateExpired)
			r.enqueue(id, ts, action{op: opAbort, run: func(ctx context.Context) error {
				return r.counterparty.AbortBridgeTransfer(ctx, id)
			}})
		}
		if !ts.initiatorDone && !ts.refundPending && !now.Before(ts.initiatorExpiry) {
			ts.refundPending = true
			slog.Warn("⏰ [Relayer] Initiator time lock expired, refunding", "transfer_id", id)
			if ts.state != StateExpired && ts.state != StateAbortedCounterparty {
				r.setState(id, ts, StateExpired)
			}
			r.enqueue(id, ts, action{op: opRefund, run: func(ctx context.Context) error {
				return r.initiator.RefundBridgeTransfer(ctx, id)
			}})
		}
	}
}

// settleCompletion marks a transfer COMPLETED once both sides have released
// funds. A completion landing after a counterparty abort is the anomaly the
// time-lock margin exists to prevent; it is surfaced loudly, not relabeled.
func (r *Relayer[AI, AC]) settleCompletion(id domain.TransferID, ts *transfer[AI]) {
	if !ts.initiatorDone || !ts.counterpartyDone {
		return
	}
	if ts.aborted {
		slog.Error("🔁 [Relayer] Initiator completed after counterparty abort", "transfer_id", id)
		r.closeQueue(ts)
		return
	}
	r.setState(id, ts, StateCompleted)
}

func (r *Relayer[AI, AC]) mirrorInitiator(id domain.TransferID, ts *transfer[AI]) {
	preimage := ts.preimage
	r.enqueue(id, ts, action{op: opCompleteInitiator, run: func(ctx context.Context) error {
		return r.initiator.CompleteBridgeTransfer(ctx, id, preimage)
	}})
}

func (r *Relayer[AI, AC]) mirrorCounterparty(id domain.TransferID, ts *transfer[AI]) {
	preimage := ts.preimage
	r.enqueue(id, ts, action{op: opCompleteCounterparty, run: func(ctx context.Context) error {
		return r.counterparty.CompleteBridgeTransfer(ctx, id, preimage)
	}})
}

func (r *Relayer[AI, AC]) worker(ctx context.Context, id domain.TransferID, actions <-chan action) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case act, ok := <-actions:
			if !ok {
				return
			}
			err := act.run(ctx)
			select {
			case r.results <- actionResult{id: id, op: act.op, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *Relayer[AI, AC]) enqueue(id domain.TransferID, ts *transfer[AI], act action) {
	if ts.queueClosed {
		return
	}
	select {
	case ts.actions <- act:
	default:
		r.stall(id, ts, fmt.Errorf("action queue overflow on %s", act.op))
	}
}

func (r *Relayer[AI, AC]) closeQueue(ts *transfer[AI]) {
	if !ts.queueClosed {
		ts.queueClosed = true
		close(ts.actions)
	}
}

// stall parks a transfer for operator reconciliation. The record is kept;
// dropping it would hide funds still locked on a chain.
func (r *Relayer[AI, AC]) stall(id domain.TransferID, ts *transfer[AI], err error) {
	slog.Error("🔁 [Relayer] Transfer stalled, keeping record for reconciliation", "transfer_id", id, "err", err)
	r.setState(id, ts, StateStalled)
}

func (r *Relayer[AI, AC]) setState(id domain.TransferID, ts *transfer[AI], next TransferState) {
	r.mu.Lock()
	prev := ts.state
	ts.state = next
	r.mu.Unlock()
	if prev == next {
		return
	}
	slog.Info("🔁 [Relayer] Transfer state changed", "transfer_id", id, "from", prev, "to", next)
	if next.Terminal() {
		r.closeQueue(ts)
	}
}

// counterpartyTimeLock derives the duration for a counterparty lock: half
// the observed initiator lock, tightened by the configured cap. The strict
// ordering gives the relayer a margin to mirror a completion before the
// initiator side can be refunded. Reports false when no margin exists.
func counterpartyTimeLock(configured, initiator domain.TimeLock) (domain.TimeLock, bool) {
	half := initiator / 2
	if half == 0 {
		return 0, false
	}
	if configured > 0 && configured < half {
		return configured, true
	}
	return half, true
}
