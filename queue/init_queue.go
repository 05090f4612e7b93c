package queue

import (
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/sdhost/h-store/coreerrors"
	"github.com/sdhost/h-store/txn"
)

const btreeDegree = 32

// HolderState is the partition-state view the init queue needs to decide
// readiness: whether a transaction currently holds the partition, and
// which one.
type HolderState interface {
	CurrentHolder() (txn.ID, bool)
}

// InitQueue is the per-partition priority queue granting mutual exclusion
// on one partition to the lowest-id waiting transaction. Single logical
// writer (the TransactionQueueManager), single consumer
// (the executor or the manager's own check loop); the mutex here lets
// either call in safely.
type InitQueue struct {
	mu   sync.Mutex
	tree *btree.BTree
}

func NewInitQueue() *InitQueue {
	return &InitQueue{tree: btree.New(btreeDegree)}
}

// Offer inserts entry; returns true if inserted, false if that id was
// already present. A transaction id appears in at most one init queue
// entry per partition at a time.
func (q *InitQueue) Offer(e *Entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tree.Has(e) {
		return false
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	q.tree.ReplaceOrInsert(e)
	return true
}

// Size returns the number of entries currently queued.
func (q *InitQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Len()
}

// Contains reports whether id is currently queued.
func (q *InitQueue) Contains(id txn.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Has(keyEntry(id))
}

// Remove deletes id from the queue if present, returning the removed
// entry. Offer(e); Remove(e.TxnID) is a no-op round-trip.
func (q *InitQueue) Remove(id txn.ID) (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := q.tree.Delete(keyEntry(id))
	if item == nil {
		return nil, false
	}
	return item.(*Entry), true
}

// PollIfHeadReady reports readiness: the head of the queue is ready when
// the partition has no current holder, or the current holder is the same
// id (idempotent re-notify). On readiness the head is removed and
// returned.
func (q *InitQueue) PollIfHeadReady(state HolderState) (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := q.tree.Min()
	if item == nil {
		return nil, false
	}
	head := item.(*Entry)

	holder, held := state.CurrentHolder()
	ready := !held || holder.Equal(head.TxnID)
	if !ready {
		return nil, false
	}
	q.tree.Delete(head)
	return head, true
}

// Peek returns the head entry without removing it.
func (q *InitQueue) Peek() (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := q.tree.Min()
	if item == nil {
		return nil, false
	}
	return item.(*Entry), true
}

// RejectPreempted builds the RejectError for an already-queued entry that
// is being preempted by a smaller id that just arrived, for the caller to
// route to the preempted entry's callback. It does not remove the entry
// from any queue.
func RejectPreempted(preempted *Entry, partition uint32, preemptingID txn.ID) *coreerrors.RejectError {
	return &coreerrors.RejectError{
		TxnID:     preempted.TxnID.Seq,
		Partition: partition,
		BlockerID: preemptingID.Seq,
	}
}
