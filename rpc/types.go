// Package rpc defines the wire-level request/response shapes of the two
// external interfaces this core depends on: the transaction init RPC and
// the transaction work RPC. Client connection management and the actual
// network transport are handled by an external collaborator; this
// package only defines the boundary types the core consumes and
// produces, identified the way tinykv's proto-generated types are
// (plain structs, not hand-rolled protobuf wire codecs).
package rpc

import (
	"context"

	"github.com/google/uuid"

	"github.com/sdhost/h-store/txn"
)

// Status is the init response's status enum.
type Status int

const (
	OK Status = iota
	AbortReject
	AbortRepeatedRestart
	Timeout
	// AbortUnexpected is a fatal, non-restartable abort: a storage engine
	// fault or a prefetch parameter set that failed to deserialize.
	AbortUnexpected
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case AbortReject:
		return "ABORT_REJECT"
	case AbortRepeatedRestart:
		return "ABORT_REPEATED_RESTART"
	case Timeout:
		return "TIMEOUT"
	case AbortUnexpected:
		return "ABORT_UNEXPECTED"
	default:
		return "UNKNOWN"
	}
}

// PrefetchQuery is one entry of an init request's prefetch batch.
type PrefetchQuery struct {
	StatementIdx   int
	Partition      uint32
	SerializedArgs []byte
}

// InitRequest is the coordinator -> site transaction init RPC request.
type InitRequest struct {
	CorrelationID      uuid.UUID
	TxnID              txn.ID
	BasePartition      uint32
	InvolvedPartitions map[uint32]bool
	PrefetchBatch      []PrefetchQuery
}

// InitResponse is the coordinator-facing reply the accumulation callback
// builds up across local partition grants.
type InitResponse struct {
	TxnID               txn.ID
	Status              Status
	GrantedPartitions   []uint32
	RejectPartition     *uint32
	RejectBlockerTxnID  *txn.ID
}

// ResponseSink is where a finished InitResponse gets delivered. Stands in
// for the coordinator-facing RpcCallback<TransactionInitResponse> in
// H-Store.
type ResponseSink interface {
	Send(*InitResponse)
}

// WorkFragment carries one ordered fragment of the transaction work RPC.
type WorkFragment struct {
	TxnID       txn.ID
	PartitionID uint32
	StatementID int
	Payload     []byte
}

// Site is the narrow interface the init callback needs to dispatch
// prefetch fragments once a transaction has been granted at every local
// partition.
type Site interface {
	TransactionWork(ctx context.Context, t *txn.Transaction, frag WorkFragment) error
}
