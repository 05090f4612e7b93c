package qmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdhost/h-store/queue"
	"github.com/sdhost/h-store/txn"
)

type recordingCallback struct {
	grants   []uint32
	rejects  []uint32
	blockers []txn.ID
}

func (c *recordingCallback) Grant(partition uint32) { c.grants = append(c.grants, partition) }
func (c *recordingCallback) Reject(partition uint32, blockerID txn.ID) {
	c.rejects = append(c.rejects, partition)
	c.blockers = append(c.blockers, blockerID)
}

func mkTxn(seq uint64, partitions map[uint32]bool) *txn.Transaction {
	return txn.NewTransaction(txn.ID{Seq: seq}, 0, partitions, 1, false)
}

func TestRegisterGrantsImmediatelyWhenUncontended(t *testing.T) {
	m := NewManager([]uint32{0, 1})
	cb := &recordingCallback{}
	tx := mkTxn(1, map[uint32]bool{0: true, 1: true})

	locals := m.Register(tx, tx.Partitions, cb)
	assert.ElementsMatch(t, []uint32{0, 1}, locals)
	assert.ElementsMatch(t, []uint32{0, 1}, cb.grants)
}

func TestRegisterQueuesBehindExistingHolder(t *testing.T) {
	m := NewManager([]uint32{0})
	first := mkTxn(1, map[uint32]bool{0: true})
	cb1 := &recordingCallback{}
	m.Register(first, first.Partitions, cb1)
	assert.Equal(t, []uint32{0}, cb1.grants)

	second := mkTxn(2, map[uint32]bool{0: true})
	cb2 := &recordingCallback{}
	m.Register(second, second.Partitions, cb2)
	assert.Empty(t, cb2.grants, "second txn should wait behind the first")

	m.Finished(first.ID, 0)
	assert.Equal(t, []uint32{0}, cb2.grants, "finishing the holder should grant the waiter")
}

func TestCheckPreemptionRejectsPartiallyGrantedLargerTxn(t *testing.T) {
	m := NewManager([]uint32{0, 1})

	// txn 5 grabs partition 0 immediately, then waits on partition 1.
	big := mkTxn(5, map[uint32]bool{0: true, 1: true})
	bigCb := &recordingCallback{}
	m.queues[1].Offer(&queue.Entry{TxnID: big.ID, RequiredPartitions: big.Partitions, Callback: bigCb})
	m.holders[0].set(big.ID) // simulate partition 0 already granted to big.
	m.recordGrant(big.ID, 0)

	// txn 2, smaller id, now arrives needing partition 1 only; it should
	// preempt big's wait at partition 1.
	small := mkTxn(2, map[uint32]bool{1: true})
	smallCb := &recordingCallback{}
	m.Register(small, small.Partitions, smallCb)

	assert.Equal(t, []uint32{1}, smallCb.grants)
	assert.Equal(t, []uint32{1}, bigCb.rejects)
	assert.Equal(t, small.ID, bigCb.blockers[0])
}

func TestRejectClearsHolderAndUnblocksNextWaiter(t *testing.T) {
	m := NewManager([]uint32{0})
	holder := mkTxn(1, map[uint32]bool{0: true})
	holderCb := &recordingCallback{}
	m.Register(holder, holder.Partitions, holderCb)

	waiter := mkTxn(2, map[uint32]bool{0: true})
	waiterCb := &recordingCallback{}
	m.Register(waiter, waiter.Partitions, waiterCb)

	m.Reject(holder, holder.Partitions, holderCb, 0, txn.ID{Seq: 99})
	assert.Equal(t, []uint32{0}, waiterCb.grants, "waiter should be granted once the holder is rejected")
}
