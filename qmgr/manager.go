package qmgr

import (
	"sync"
	"time"

	"github.com/sdhost/h-store/logutil"
	"github.com/sdhost/h-store/queue"
	"github.com/sdhost/h-store/txn"
)

// Manager is TransactionQueueManager: it owns one InitQueue per local
// partition and the grant/reject/restart bookkeeping.
type Manager struct {
	numPartitions int

	queues  map[uint32]*queue.InitQueue
	holders map[uint32]*partitionHolder

	// partialGrants tracks, for every transaction that currently holds at
	// least one local partition, the set of local partitions it holds.
	// Entries stay until Finished or Reject, so a fully granted transaction
	// is listed too. A listed transaction that is also still waiting in
	// some partition's queue is "partially acquired" — the condition that
	// makes it a preemption victim (see checkPreemption).
	mu            sync.Mutex
	partialGrants map[txn.ID]map[uint32]bool

	restart *RestartQueue
	blocked *BlockedHistogram
}

// NewManager constructs a Manager over the given local partition ids.
func NewManager(localPartitions []uint32) *Manager {
	m := &Manager{
		numPartitions: len(localPartitions),
		queues:        make(map[uint32]*queue.InitQueue),
		holders:       make(map[uint32]*partitionHolder),
		partialGrants: make(map[txn.ID]map[uint32]bool),
		restart:       NewRestartQueue(),
		blocked:       NewBlockedHistogram(),
	}
	for _, p := range localPartitions {
		m.queues[p] = queue.NewInitQueue()
		m.holders[p] = &partitionHolder{}
	}
	return m
}

func (m *Manager) Restart() *RestartQueue       { return m.restart }
func (m *Manager) Blocked() *BlockedHistogram    { return m.blocked }

// QueueDepth returns the number of transactions currently waiting in
// partition's init queue, or 0 if partition is not local to this
// manager.
func (m *Manager) QueueDepth(partition uint32) int {
	q, ok := m.queues[partition]
	if !ok {
		return 0
	}
	return q.Size()
}

// LocalPartitions returns the local partitions from partitionSet, in the
// order of m's partition map iteration — used to size the init callback.
func (m *Manager) LocalPartitions(partitionSet map[uint32]bool) []uint32 {
	var out []uint32
	for p := range m.queues {
		if partitionSet[p] {
			out = append(out, p)
		}
	}
	return out
}

// Register inserts t into the init queue of every local partition in
// partitions, then runs a check pass so any immediately-grantable
// partition is granted before Register returns.
func (m *Manager) Register(t *txn.Transaction, partitions map[uint32]bool, cb queue.CallbackRef) []uint32 {
	locals := m.LocalPartitions(partitions)
	for _, p := range locals {
		entry := &queue.Entry{
			TxnID:              t.ID,
			RequiredPartitions: partitions,
			Callback:           cb,
			EnqueuedAt:         time.Now(),
		}
		if !m.queues[p].Offer(entry) {
			logutil.Warnf("txn %d already queued at partition %d", t.ID.Seq, p)
			continue
		}
		m.checkPreemption(p, entry)
	}
	m.CheckQueues()
	return locals
}

// CheckQueues walks every partition: while its head is ready, pop it,
// mark the partition locked to that txn id, and invoke the per-partition
// grant on the txn's callback.
func (m *Manager) CheckQueues() {
	for p, q := range m.queues {
		holder := m.holders[p]
		for {
			entry, ok := q.PollIfHeadReady(holder)
			if !ok {
				break
			}
			holder.set(entry.TxnID)
			m.recordGrant(entry.TxnID, p)
			entry.Callback.Grant(p)
		}
	}
}

// Finished releases the lock at partition, and immediately re-checks its
// queue.
func (m *Manager) Finished(id txn.ID, partition uint32) {
	holder, ok := m.holders[partition]
	if !ok {
		return
	}
	if cur, held := holder.CurrentHolder(); !held || !cur.Equal(id) {
		return
	}
	holder.clear()
	m.forgetGrant(id, partition)
	m.CheckQueues()
}

// Reject removes txn from the remaining local partitions' queues (best
// effort) and signals abort through its callback.
func (m *Manager) Reject(t *txn.Transaction, partitions map[uint32]bool, cb queue.CallbackRef, rejectingPartition uint32, blockerID txn.ID) {
	for p := range partitions {
		q, ok := m.queues[p]
		if !ok {
			continue
		}
		q.Remove(t.ID)
		holder := m.holders[p]
		if cur, held := holder.CurrentHolder(); held && cur.Equal(t.ID) {
			holder.clear()
			m.CheckQueues()
		}
	}
	m.forgetAllGrants(t.ID)
	m.blocked.Record(blockerID)
	cb.Reject(rejectingPartition, blockerID)
}

// checkPreemption enforces the deadlock-avoidance policy: if the
// newly-offered entry's id is smaller than some other entry already
// waiting (not yet granted) at the same partition, and that other
// transaction already holds at least one other local partition, it must
// be preempted — letting it continue to wait here could deadlock against
// the newcomer's own eventual need for the partitions it already holds.
func (m *Manager) checkPreemption(partition uint32, newEntry *queue.Entry) {
	var victims []*queue.Entry

	// Walk the set of partially-granted transactions for entries with a
	// larger id than newEntry that are waiting at this same partition.
	for _, id := range m.partiallyGrantedLargerThan(newEntry.TxnID) {
		if entry, ok := m.queues[partition].Remove(id); ok {
			victims = append(victims, entry)
		}
	}
	for _, victim := range victims {
		m.forgetAllGrants(victim.TxnID)
		// Release every local partition the victim already holds, so the
		// newcomer (and anyone behind it) is not left waiting on them.
		for _, h := range m.holders {
			if cur, held := h.CurrentHolder(); held && cur.Equal(victim.TxnID) {
				h.clear()
			}
		}
		for p := range victim.RequiredPartitions {
			if p == partition {
				continue
			}
			if q2, ok := m.queues[p]; ok {
				q2.Remove(victim.TxnID)
			}
		}
		m.blocked.Record(newEntry.TxnID)
		victim.Callback.Reject(partition, newEntry.TxnID)
	}
}

func (m *Manager) recordGrant(id txn.ID, partition uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.partialGrants[id]
	if !ok {
		set = make(map[uint32]bool)
		m.partialGrants[id] = set
	}
	set[partition] = true
}

func (m *Manager) forgetGrant(id txn.ID, partition uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.partialGrants[id]; ok {
		delete(set, partition)
		if len(set) == 0 {
			delete(m.partialGrants, id)
		}
	}
}

func (m *Manager) forgetAllGrants(id txn.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partialGrants, id)
}

// partiallyGrantedLargerThan returns the ids that sort after id (per
// txn.ID.Less) and currently hold at least one local partition.
func (m *Manager) partiallyGrantedLargerThan(id txn.ID) []txn.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []txn.ID
	for other, set := range m.partialGrants {
		if id.Less(other) && len(set) > 0 {
			out = append(out, other)
		}
	}
	return out
}
