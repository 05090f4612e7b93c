package specexec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdhost/h-store/catalog"
	"github.com/sdhost/h-store/txn"
)

type alwaysAdmitChecker struct{}

func (alwaysAdmitChecker) CanExecute(holder, candidate *txn.Transaction, partition uint32) bool {
	return true
}
func (alwaysAdmitChecker) ShouldIgnoreProcedure(proc catalog.ProcedureID) bool { return false }

func TestSchedulerReleaseOnCommitPreservesArrivalOrder(t *testing.T) {
	s := NewScheduler(alwaysAdmitChecker{}, 0)
	holder := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true}, 1, false)
	s.BeginHolder(holder)

	c1 := txn.NewTransaction(txn.ID{Seq: 2}, 0, map[uint32]bool{0: true}, 2, true)
	c2 := txn.NewTransaction(txn.ID{Seq: 3}, 0, map[uint32]bool{0: true}, 2, true)
	assert.True(t, s.TryAdmit(c1))
	assert.True(t, s.TryAdmit(c2))

	s.MarkCommittedBuffered(c1.ID)
	s.MarkCommittedBuffered(c2.ID)

	released := s.ReleaseOnCommit()
	assert.Len(t, released, 2)
	assert.Equal(t, c1.ID, released[0].ID)
	assert.Equal(t, c2.ID, released[1].ID)
	assert.Equal(t, 0, s.PendingCount())
}

func TestSchedulerRollbackOnAbortBumpsRestartCounterInReverseOrder(t *testing.T) {
	s := NewScheduler(alwaysAdmitChecker{}, 0)
	holder := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true}, 1, false)
	s.BeginHolder(holder)

	c1 := txn.NewTransaction(txn.ID{Seq: 2}, 0, map[uint32]bool{0: true}, 2, true)
	c2 := txn.NewTransaction(txn.ID{Seq: 3}, 0, map[uint32]bool{0: true}, 2, true)
	s.TryAdmit(c1)
	s.TryAdmit(c2)

	rolledBack := s.RollbackOnAbort()
	assert.Len(t, rolledBack, 2)
	assert.Equal(t, c2.ID, rolledBack[0].ID, "rollback should undo newest-first")
	assert.Equal(t, c1.ID, rolledBack[1].ID)
	assert.EqualValues(t, 1, c1.RestartCounter.Load())
	assert.EqualValues(t, 1, c2.RestartCounter.Load())
}

func TestSchedulerTryAdmitFailsWithoutHolder(t *testing.T) {
	s := NewScheduler(alwaysAdmitChecker{}, 0)
	cand := txn.NewTransaction(txn.ID{Seq: 2}, 0, map[uint32]bool{0: true}, 2, true)
	assert.False(t, s.TryAdmit(cand))
}
