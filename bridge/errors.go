package bridge

import "errors"

// Sentinel errors returned by contract implementations. Callers classify
// with errors.Is; implementations wrap them with call-site context via
// fmt.Errorf and %w.
var (
	// ErrInitiateTransfer reports that a bridge transfer could not be
	// placed on the initiator chain.
	ErrInitiateTransfer = errors.New("failed to initiate bridge transfer")

	// ErrTransferNotFound reports a lookup or mutation of a transfer id
	// that was never initiated or locked.
	ErrTransferNotFound = errors.New("bridge transfer not found")

	// ErrInvalidPreimage reports a completion whose pre-image does not
	// hash to the transfer's hash lock. The transfer is left untouched.
	ErrInvalidPreimage = errors.New("invalid hash lock pre-image")

	// ErrTimeLockNotExpired reports a refund or abort attempted before
	// the transfer's time lock has elapsed.
	ErrTimeLockNotExpired = errors.New("time lock has not expired")

	// ErrTransferExists reports an initiate or lock under a transfer id
	// that is already present. Records are never silently replaced.
	ErrTransferExists = errors.New("bridge transfer already exists")

	// ErrTransferNotPending reports a mutation of a transfer that has
	// already reached a terminal status (completed, refunded or aborted).
	ErrTransferNotPending = errors.New("bridge transfer is not pending")

	// ErrStorageRead reports that on-chain transfer storage could not be
	// fetched. Distinct from ErrStorageDecode so operators can tell a
	// connectivity problem from a corrupt or unexpected layout.
	ErrStorageRead = errors.New("failed to read bridge transfer storage")

	// ErrStorageDecode reports that fetched transfer storage did not
	// decode into a transfer record.
	ErrStorageDecode = errors.New("failed to decode bridge transfer storage")
)
