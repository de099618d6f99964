package ethereum

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jpillora/backoff"

	"github.com/ThorbenD/atomic-bridge-go/bridge"
	"github.com/ThorbenD/atomic-bridge-go/domain"
)

const monitorBuffer = 64

// InitiatorMonitor streams initiator contract events from websocket log
// subscriptions, reconnecting with backoff and replaying blocks mined while
// disconnected.
type InitiatorMonitor struct {
	events chan bridge.InitiatorEvent[common.Address]
}

var _ bridge.InitiatorMonitor[common.Address] = (*InitiatorMonitor)(nil)

// NewInitiatorMonitor starts streaming immediately. The stream ends, and the
// event channel closes, when ctx is cancelled.
func NewInitiatorMonitor(ctx context.Context, node NodeClient, contract common.Address) *InitiatorMonitor {
	m := &InitiatorMonitor{events: make(chan bridge.InitiatorEvent[common.Address], monitorBuffer)}
	go runLogStream(ctx, node, contract, "EthInitiatorMonitor", decodeInitiatorLog, m.events)
	return m
}

func (m *InitiatorMonitor) Events() <-chan bridge.InitiatorEvent[common.Address] {
	return m.events
}

// CounterpartyMonitor is the counterparty-side twin. It folds locked events
// into later completions so a Completed event carries the lock's recipient
// and amount alongside the revealed secret.
type CounterpartyMonitor struct {
	events chan bridge.CounterpartyEvent[common.Address]
}

var _ bridge.CounterpartyMonitor[common.Address] = (*CounterpartyMonitor)(nil)

func NewCounterpartyMonitor(ctx context.Context, node NodeClient, contract common.Address) *CounterpartyMonitor {
	m := &CounterpartyMonitor{events: make(chan bridge.CounterpartyEvent[common.Address], monitorBuffer)}
	dec := &counterpartyDecoder{locks: make(map[domain.TransferID]domain.LockDetails[common.Address])}
	go runLogStream(ctx, node, contract, "EthCounterpartyMonitor", dec.decode, m.events)
	return m
}

func (m *CounterpartyMonitor) Events() <-chan bridge.CounterpartyEvent[common.Address] {
	return m.events
}

// logCursor orders logs by (block, index within block) so reconnect replays
// never double-deliver.
type logCursor struct {
	block uint64
	index uint
}

func (c logCursor) covers(entry types.Log) bool {
	if entry.BlockNumber != c.block {
		return entry.BlockNumber < c.block
	}
	return entry.Index <= c.index
}

func runLogStream[E any](ctx context.Context, node NodeClient, contract common.Address, name string, decode func(types.Log) (E, bool), events chan<- E) {
	defer close(events)

	retry := &backoff.Backoff{Min: time.Second, Max: time.Minute, Factor: 2, Jitter: true}
	query := ethereum.FilterQuery{Addresses: []common.Address{contract}}
	var cursor logCursor
	connected := false

	for ctx.Err() == nil {
		logs, errs, err := node.SubscribeLogs(ctx, query)
		if err != nil {
			wait := retry.Duration()
			slog.Warn("🔌 ["+name+"] Subscription failed, retrying", "contract", contract, "wait", wait, "err", err)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}
		retry.Reset()
		slog.Info("✅ ["+name+"] Subscribed to contract logs", "contract", contract)

		// After a drop, replay whatever was mined while we were away. The
		// fresh subscription is already open, so the windows overlap and the
		// cursor removes the duplicates.
		if connected {
			if !replayMissed(ctx, node, name, query, &cursor, decode, events) {
				return
			}
		}
		connected = true

		if !consume(ctx, name, logs, errs, &cursor, decode, events) {
			return
		}
		if !sleep(ctx, retry.Duration()) {
			return
		}
	}
}

func replayMissed[E any](ctx context.Context, node NodeClient, name string, query ethereum.FilterQuery, cursor *logCursor, decode func(types.Log) (E, bool), events chan<- E) bool {
	query.FromBlock = new(big.Int).SetUint64(cursor.block)
	missed, err := node.FilterLogs(ctx, query)
	if err != nil {
		slog.Warn("⚠️ ["+name+"] Replay query failed, continuing from live stream", "err", err)
		return true
	}

	for _, entry := range missed {
		if !deliver(ctx, entry, cursor, decode, events) {
			return false
		}
	}
	return true
}

func consume[E any](ctx context.Context, name string, logs <-chan types.Log, errs <-chan error, cursor *logCursor, decode func(types.Log) (E, bool), events chan<- E) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case err, ok := <-errs:
			if ctx.Err() != nil {
				return false
			}
			if !ok {
				err = fmt.Errorf("subscription closed")
			}
			slog.Warn("⚠️ ["+name+"] Log subscription dropped, reconnecting", "err", err)
			return true
		case entry := <-logs:
			if !deliver(ctx, entry, cursor, decode, events) {
				return false
			}
		}
	}
}

func deliver[E any](ctx context.Context, entry types.Log, cursor *logCursor, decode func(types.Log) (E, bool), events chan<- E) bool {
	if entry.Removed || cursor.covers(entry) {
		return true
	}
	*cursor = logCursor{block: entry.BlockNumber, index: entry.Index}

	ev, ok := decode(entry)
	if !ok {
		return true
	}

	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func decodeInitiatorLog(entry types.Log) (bridge.InitiatorEvent[common.Address], bool) {
	var none bridge.InitiatorEvent[common.Address]
	if len(entry.Topics) < 2 {
		return none, false
	}
	id := domain.TransferID(entry.Topics[1])

	switch entry.Topics[0] {
	case topicInitiated:
		if len(entry.Topics) < 4 {
			return none, false
		}
		vals, err := initiatorABI.Unpack("BridgeTransferInitiated", entry.Data)
		if err != nil || len(vals) != 3 {
			slog.Error("❌ [EthInitiatorMonitor] Undecodable initiated event", "transfer_id", id, "err", err)
			return none, false
		}
		amount, err := AmountFromWei(vals[0].(*big.Int))
		if err != nil {
			slog.Error("❌ [EthInitiatorMonitor] Initiated amount out of range", "transfer_id", id, "err", err)
			return none, false
		}
		timeLock := vals[2].(*big.Int)
		if !timeLock.IsUint64() {
			slog.Error("❌ [EthInitiatorMonitor] Initiated time lock out of range", "transfer_id", id)
			return none, false
		}

		details := &domain.TransferDetails[common.Address]{
			ID:               id,
			InitiatorAddress: common.BytesToAddress(entry.Topics[2].Bytes()),
			RecipientAddress: recipientAddress([32]byte(entry.Topics[3])),
			HashLock:         domain.HashLock(vals[1].([32]byte)),
			TimeLock:         domain.TimeLock(timeLock.Uint64()),
			Amount:           amount,
		}
		return bridge.InitiatorEvent[common.Address]{Kind: bridge.InitiatorInitiated, ID: id, Details: details}, true

	case topicInitiatorCompleted:
		vals, err := initiatorABI.Unpack("BridgeTransferCompleted", entry.Data)
		if err != nil || len(vals) != 1 {
			slog.Error("❌ [EthInitiatorMonitor] Undecodable completed event", "transfer_id", id, "err", err)
			return none, false
		}
		secret := vals[0].([32]byte)
		return bridge.InitiatorEvent[common.Address]{Kind: bridge.InitiatorCompleted, ID: id, Preimage: domain.Preimage(secret[:])}, true

	case topicRefunded:
		return bridge.InitiatorEvent[common.Address]{Kind: bridge.InitiatorRefunded, ID: id}, true
	}
	return none, false
}

type counterpartyDecoder struct {
	locks map[domain.TransferID]domain.LockDetails[common.Address]
}

func (d *counterpartyDecoder) decode(entry types.Log) (bridge.CounterpartyEvent[common.Address], bool) {
	var none bridge.CounterpartyEvent[common.Address]
	if len(entry.Topics) < 2 {
		return none, false
	}
	id := domain.TransferID(entry.Topics[1])

	switch entry.Topics[0] {
	case topicLocked:
		if len(entry.Topics) < 3 {
			return none, false
		}
		vals, err := counterpartyABI.Unpack("BridgeTransferAssetsLocked", entry.Data)
		if err != nil || len(vals) != 3 {
			slog.Error("❌ [EthCounterpartyMonitor] Undecodable locked event", "transfer_id", id, "err", err)
			return none, false
		}
		amount, err := AmountFromWei(vals[0].(*big.Int))
		if err != nil {
			slog.Error("❌ [EthCounterpartyMonitor] Locked amount out of range", "transfer_id", id, "err", err)
			return none, false
		}
		timeLock := vals[2].(*big.Int)
		if !timeLock.IsUint64() {
			slog.Error("❌ [EthCounterpartyMonitor] Locked time lock out of range", "transfer_id", id)
			return none, false
		}

		lock := domain.LockDetails[common.Address]{
			ID:               id,
			RecipientAddress: common.BytesToAddress(entry.Topics[2].Bytes()),
			HashLock:         domain.HashLock(vals[1].([32]byte)),
			TimeLock:         domain.TimeLock(timeLock.Uint64()),
			Amount:           amount,
		}
		d.locks[id] = lock
		return bridge.CounterpartyEvent[common.Address]{Kind: bridge.CounterpartyLocked, Lock: &lock}, true

	case topicCounterpartyComplete:
		vals, err := counterpartyABI.Unpack("BridgeTransferCompleted", entry.Data)
		if err != nil || len(vals) != 1 {
			slog.Error("❌ [EthCounterpartyMonitor] Undecodable completed event", "transfer_id", id, "err", err)
			return none, false
		}
		secret := vals[0].([32]byte)

		// Locks observed on this stream let the completion carry the full
		// record; otherwise the id and secret still suffice for relaying.
		lock, seen := d.locks[id]
		if !seen {
			lock = domain.LockDetails[common.Address]{ID: id}
		}
		delete(d.locks, id)

		completed := domain.CompleteLock(lock, domain.Preimage(secret[:]))
		return bridge.CounterpartyEvent[common.Address]{Kind: bridge.CounterpartyCompleted, Completed: &completed}, true

	case topicAborted:
		delete(d.locks, id)
	}
	return none, false
}
