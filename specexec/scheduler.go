package specexec

import (
	"sync"

	"github.com/sdhost/h-store/logutil"
	"github.com/sdhost/h-store/txn"
)

// SpecState is the lifecycle of one candidate admitted ahead of a stalled
// distributed transaction.
type SpecState int

const (
	SpecPending SpecState = iota
	SpecCommittedBuffered
	SpecReleased
	SpecRollback
)

func (s SpecState) String() string {
	switch s {
	case SpecPending:
		return "SPEC_PENDING"
	case SpecCommittedBuffered:
		return "SPEC_COMMITTED_BUFFERED"
	case SpecReleased:
		return "SPEC_RELEASED"
	case SpecRollback:
		return "SPEC_ROLLBACK"
	default:
		return "UNKNOWN"
	}
}

// candidate tracks one admitted speculative transaction and its current
// SpecState.
type candidate struct {
	txn   *txn.Transaction
	state SpecState
}

// Scheduler is the SpeculativeScheduler for one partition: it admits
// single-partition candidates in arrival order while a distributed
// transaction holds the partition, buffers their completion, and either
// releases them in order (holder commits) or rolls them all back (holder
// aborts).
type Scheduler struct {
	checker   ConflictChecker
	partition uint32

	mu        sync.Mutex
	holder    *txn.Transaction
	queue     []*candidate
	byTxnID   map[txn.ID]*candidate
}

func NewScheduler(checker ConflictChecker, partition uint32) *Scheduler {
	return &Scheduler{
		checker:   checker,
		partition: partition,
		byTxnID:   make(map[txn.ID]*candidate),
	}
}

// BeginHolder marks holder as the distributed transaction currently
// stalled on this partition; candidates may now be admitted against it.
func (s *Scheduler) BeginHolder(holder *txn.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holder = holder
	s.queue = nil
	s.byTxnID = make(map[txn.ID]*candidate)
}

// TryAdmit checks candidate against the current holder using the
// configured ConflictChecker. On success the candidate is appended to the
// arrival-ordered queue in SPEC_PENDING and may run immediately; on
// failure the caller must queue the candidate normally behind the holder.
func (s *Scheduler) TryAdmit(cand *txn.Transaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == nil {
		return false
	}
	if s.checker.ShouldIgnoreProcedure(cand.Procedure) {
		s.admitLocked(cand)
		return true
	}
	if !s.checker.CanExecute(s.holder, cand, s.partition) {
		return false
	}
	s.admitLocked(cand)
	return true
}

func (s *Scheduler) admitLocked(cand *txn.Transaction) {
	c := &candidate{txn: cand, state: SpecPending}
	s.queue = append(s.queue, c)
	s.byTxnID[cand.ID] = c
}

// MarkCommittedBuffered records that a candidate finished executing and is
// waiting on the holder's outcome before its response can be released to
// the client.
func (s *Scheduler) MarkCommittedBuffered(id txn.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byTxnID[id]; ok {
		c.state = SpecCommittedBuffered
	}
}

// ReleaseOnCommit walks the admitted queue in arrival order and returns
// every buffered candidate as SPEC_RELEASED, in the order their responses
// should be flushed to the client. A candidate that never finished
// executing (still SPEC_PENDING) is not returned; it is dropped from the
// queue along with every other candidate when the queue is cleared.
func (s *Scheduler) ReleaseOnCommit() []*txn.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var released []*txn.Transaction
	for _, c := range s.queue {
		if c.state == SpecCommittedBuffered {
			c.state = SpecReleased
			released = append(released, c.txn)
		}
	}
	s.clearLocked()
	return released
}

// RollbackOnAbort rolls back every admitted candidate, in reverse arrival
// order (undo newest-first, mirroring how each one's writes layered on
// top of the last), increments each one's restart counter, and returns
// them so the caller can requeue each at the front of its partition's
// queue.
func (s *Scheduler) RollbackOnAbort() []*txn.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rolledBack []*txn.Transaction
	for i := len(s.queue) - 1; i >= 0; i-- {
		c := s.queue[i]
		c.state = SpecRollback
		c.txn.RestartCounter.Inc()
		rolledBack = append(rolledBack, c.txn)
	}
	logutil.Debugf("partition %d: rolled back %d speculative candidates", s.partition, len(rolledBack))
	s.clearLocked()
	return rolledBack
}

// EndHolder clears the current holder once it has finished (committed or
// aborted) and every candidate has been resolved one way or another.
func (s *Scheduler) EndHolder() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holder = nil
	s.clearLocked()
}

func (s *Scheduler) clearLocked() {
	s.queue = nil
	s.byTxnID = make(map[txn.ID]*candidate)
}

// PendingCount reports how many candidates are currently admitted but not
// yet buffered or resolved, for status reporting.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.queue {
		if c.state == SpecPending {
			n++
		}
	}
	return n
}
