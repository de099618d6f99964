package memory

import "github.com/ThorbenD/atomic-bridge-go/bridge"

// The memory monitors are thin read-only views over a contract's event
// channel. Multiple calls to Monitor return views of the same stream, so a
// given event is delivered to exactly one receiver.

type initiatorMonitor[A comparable] struct {
	events chan bridge.InitiatorEvent[A]
}

func (m initiatorMonitor[A]) Events() <-chan bridge.InitiatorEvent[A] { return m.events }

type counterpartyMonitor[A comparable] struct {
	events chan bridge.CounterpartyEvent[A]
}

func (m counterpartyMonitor[A]) Events() <-chan bridge.CounterpartyEvent[A] { return m.events }
