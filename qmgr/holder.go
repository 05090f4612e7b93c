// Package qmgr implements TransactionQueueManager: orchestrating
// per-partition init queues across a site's local partitions, issuing
// grant/reject decisions, and restarting blocked transactions.
package qmgr

import (
	"sync"

	"github.com/sdhost/h-store/txn"
)

// partitionHolder tracks which transaction currently holds one partition,
// satisfying queue.HolderState.
type partitionHolder struct {
	mu     sync.Mutex
	id     txn.ID
	held   bool
}

func (h *partitionHolder) CurrentHolder() (txn.ID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id, h.held
}

func (h *partitionHolder) set(id txn.ID) {
	h.mu.Lock()
	h.id = id
	h.held = true
	h.mu.Unlock()
}

func (h *partitionHolder) clear() {
	h.mu.Lock()
	h.held = false
	h.mu.Unlock()
}
