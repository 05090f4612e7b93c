// Package queue implements the per-partition transaction init queue: a
// priority queue ordered by transaction id, granting mutual exclusion on
// one partition. Ordering uses github.com/google/btree
// rather than container/heap so that the ready-candidate lookup (smallest
// id) and membership tests share one ordered structure.
package queue

import (
	"time"

	"github.com/google/btree"

	"github.com/sdhost/h-store/txn"
)

// CallbackRef is a non-owning reference to whatever accumulation callback
// should be notified when this entry's transaction is granted or
// rejected. Defined as an interface here (rather than importing the
// callback package directly) to avoid a queue<->callback import cycle —
// the callback package implements it.
type CallbackRef interface {
	Grant(partition uint32)
	Reject(partition uint32, blockerID txn.ID)
}

// Entry is one (transaction id, required partition set, callback,
// enqueue timestamp) tuple.
type Entry struct {
	TxnID              txn.ID
	RequiredPartitions map[uint32]bool
	Callback           CallbackRef
	EnqueuedAt         time.Time
}

// Less implements btree.Item: entries order by transaction id ascending
// (txn.ID.Less already breaks ties by site id).
func (e *Entry) Less(than btree.Item) bool {
	other := than.(*Entry)
	return e.TxnID.Less(other.TxnID)
}

func keyEntry(id txn.ID) *Entry {
	return &Entry{TxnID: id}
}
