// Package coreerrors defines the typed error conditions raised by the
// init queue, the init callback, and the speculative scheduler: REJECT,
// ABORT_USER, ABORT_CONFLICT, ABORT_TIMEOUT, ABORT_UNEXPECTED.
package coreerrors

import "fmt"

// RejectError is raised when a later-arriving, smaller-id transaction
// preempts an already-enqueued transaction at a partition. Restartable.
type RejectError struct {
	TxnID      uint64
	Partition  uint32
	BlockerID  uint64
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("txn %d rejected at partition %d, blocked by txn %d", e.TxnID, e.Partition, e.BlockerID)
}

// TimeoutError is raised when not all local partitions ack an init request
// within the configured window.
type TimeoutError struct {
	TxnID uint64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("txn %d init timed out waiting for local partition acks", e.TxnID)
}

// ConflictAbortError is raised when a speculative candidate must be rolled
// back because its holder dtxn aborted. Never escalates to the holder and
// never reaches the client.
type ConflictAbortError struct {
	TxnID     uint64
	HolderID  uint64
	Partition uint32
}

func (e *ConflictAbortError) Error() string {
	return fmt.Sprintf("speculative txn %d on partition %d rolled back: holder %d aborted", e.TxnID, e.Partition, e.HolderID)
}

// UnexpectedAbortError wraps an engine or deserialization failure that is
// fatal to the transaction. Treated as a user abort plus a logged fault.
type UnexpectedAbortError struct {
	TxnID uint64
	Cause error
}

func (e *UnexpectedAbortError) Error() string {
	return fmt.Sprintf("txn %d aborted unexpectedly: %v", e.TxnID, e.Cause)
}

func (e *UnexpectedAbortError) Unwrap() error { return e.Cause }

// UserAbortError wraps a procedure-raised abort. Client-visible.
type UserAbortError struct {
	TxnID  uint64
	Reason string
}

func (e *UserAbortError) Error() string {
	return fmt.Sprintf("txn %d aborted by procedure: %s", e.TxnID, e.Reason)
}

// MisconfiguredError describes a configuration boundary condition. An init
// with zero local partitions is reported by callback.MisconfiguredErr, not
// by this type.
type MisconfiguredError struct {
	Detail string
}

func (e *MisconfiguredError) Error() string {
	return fmt.Sprintf("misconfigured: %s", e.Detail)
}
