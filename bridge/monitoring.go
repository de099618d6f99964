package bridge

import "github.com/ThorbenD/atomic-bridge-go/domain"

// InitiatorEventKind enumerates the state changes observable on the
// initiator chain.
type InitiatorEventKind string

const (
	InitiatorInitiated InitiatorEventKind = "INITIATED"
	InitiatorCompleted InitiatorEventKind = "COMPLETED"
	InitiatorRefunded  InitiatorEventKind = "REFUNDED"
)

// InitiatorEvent is one observed state change of an initiator-side
// transfer. Details is set for INITIATED; Preimage carries the revealed
// secret for COMPLETED.
type InitiatorEvent[A comparable] struct {
	Kind     InitiatorEventKind
	ID       domain.TransferID
	Details  *domain.TransferDetails[A]
	Preimage domain.Preimage
}

// TransferID returns the id of the transfer the event belongs to.
func (e InitiatorEvent[A]) TransferID() domain.TransferID { return e.ID }

// CounterpartyEventKind enumerates the state changes observable on the
// counterparty chain.
type CounterpartyEventKind string

const (
	CounterpartyLocked    CounterpartyEventKind = "LOCKED"
	CounterpartyCompleted CounterpartyEventKind = "COMPLETED"
)

// CounterpartyEvent is one observed state change of a counterparty-side
// lock. Lock is set for LOCKED, Completed for COMPLETED.
type CounterpartyEvent[A comparable] struct {
	Kind      CounterpartyEventKind
	Lock      *domain.LockDetails[A]
	Completed *domain.CompletedDetails[A]
}

// TransferID returns the id of the transfer the event belongs to.
func (e CounterpartyEvent[A]) TransferID() domain.TransferID {
	switch {
	case e.Lock != nil:
		return e.Lock.ID
	case e.Completed != nil:
		return e.Completed.ID
	}
	return domain.TransferID{}
}

// InitiatorMonitor streams state changes observed on the initiator chain.
type InitiatorMonitor[A comparable] interface {
	// Events returns the monitor's event stream. The stream is bound to
	// one chain connection, runs for the life of that connection and is
	// not restartable; the channel is closed when the connection
	// terminates. Events for the same transfer id arrive in causal order.
	Events() <-chan InitiatorEvent[A]
}

// CounterpartyMonitor streams state changes observed on the counterparty
// chain.
type CounterpartyMonitor[A comparable] interface {
	// Events returns the monitor's event stream, with the same lifecycle
	// and ordering contract as InitiatorMonitor.Events.
	Events() <-chan CounterpartyEvent[A]
}
