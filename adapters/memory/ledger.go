// Package memory implements the bridge contracts as in-memory chains. It is
// the authoritative reference for protocol semantics: every state rule the
// EVM adapters enforce through a deployed contract is enforced here in plain
// Go, so tests and demos can run a full transfer lifecycle without a node.
package memory

import (
	"sync"

	"github.com/ThorbenD/atomic-bridge-go/domain"
)

// Ledger is the balance book of one simulated chain. It is created
// explicitly and handed to the contracts that share it, so tests can run
// several independent chains side by side.
type Ledger[A comparable] struct {
	mu       sync.RWMutex
	balances map[A]domain.Amount
}

// NewLedger creates an empty ledger.
func NewLedger[A comparable]() *Ledger[A] {
	return &Ledger[A]{balances: make(map[A]domain.Amount)}
}

// Credit adds amount to the balance of addr.
func (l *Ledger[A]) Credit(addr A, amount domain.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] += amount
}

// Balance returns the current balance of addr. Unknown addresses hold zero.
func (l *Ledger[A]) Balance(addr A) domain.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr]
}

// Snapshot returns a copy of every balance at one instant. Readers that need
// a consistent view across addresses use this instead of repeated Balance
// calls.
func (l *Ledger[A]) Snapshot() map[A]domain.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[A]domain.Amount, len(l.balances))
	for addr, amt := range l.balances {
		out[addr] = amt
	}
	return out
}
