package relayer

// TransferState is the coordinator's view of one bridge transfer. It is
// derived from observed chain events and action results, never from
// assumptions about calls in flight.
//
// Forward path:   INITIATED -> LOCKED -> COMPLETED
// Rollback path:  ... -> EXPIRED -> ABORTED_COUNTERPARTY -> REFUNDED_INITIATED
// STALLED is the parking state after retry exhaustion: the record is kept
// for operator reconciliation and the coordinator stops driving it.
type TransferState string

const (
	StateInitiated           TransferState = "INITIATED"
	StateLocked              TransferState = "LOCKED"
	StateCompleted           TransferState = "COMPLETED"
	StateExpired             TransferState = "EXPIRED"
	StateAbortedCounterparty TransferState = "ABORTED_COUNTERPARTY"
	StateRefundedInitiated   TransferState = "REFUNDED_INITIATED"
	StateStalled             TransferState = "STALLED"
)

// Terminal reports whether the coordinator is done with a transfer in this
// state. ABORTED_COUNTERPARTY is not terminal on its own: the initiator-side
// refund is still owed.
func (s TransferState) Terminal() bool {
	return s == StateCompleted || s == StateRefundedInitiated || s == StateStalled
}
