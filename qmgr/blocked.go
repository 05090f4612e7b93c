package qmgr

import (
	"sync"

	"github.com/sdhost/h-store/txn"
)

// BlockedHistogram is a purely observational count, by blocker id, of how
// often each transaction has blocked some other transaction's init
// request.
type BlockedHistogram struct {
	mu     sync.Mutex
	counts map[txn.ID]int
}

func NewBlockedHistogram() *BlockedHistogram {
	return &BlockedHistogram{counts: make(map[txn.ID]int)}
}

func (h *BlockedHistogram) Record(blockerID txn.ID) {
	h.mu.Lock()
	h.counts[blockerID]++
	h.mu.Unlock()
}

func (h *BlockedHistogram) Snapshot() map[txn.ID]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[txn.ID]int, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}
