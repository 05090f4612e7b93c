package callback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdhost/h-store/rpc"
	"github.com/sdhost/h-store/txn"
)

type fakeSink struct {
	responses []*rpc.InitResponse
}

func (f *fakeSink) Send(resp *rpc.InitResponse) { f.responses = append(f.responses, resp) }

type fakeSite struct {
	dispatched []rpc.WorkFragment
}

func (f *fakeSite) TransactionWork(ctx context.Context, t *txn.Transaction, frag rpc.WorkFragment) error {
	f.dispatched = append(f.dispatched, frag)
	return nil
}

func TestInitRequiresAtLeastOneLocalPartition(t *testing.T) {
	cb := &InitQueueCallback{}
	tx := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true}, 1, false)
	err := cb.Init(tx, tx.Partitions, nil, &fakeSink{}, nil, false, false)
	assert.Error(t, err)
}

func TestUnblocksOnceAllPartitionsGrant(t *testing.T) {
	sink := &fakeSink{}
	cb := &InitQueueCallback{}
	tx := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true, 1: true}, 1, false)
	err := cb.Init(tx, tx.Partitions, []uint32{0, 1}, sink, nil, false, false)
	assert.NoError(t, err)

	cb.Grant(0)
	assert.Empty(t, sink.responses, "should not emit until every local partition has granted")

	cb.Grant(1)
	assert.Len(t, sink.responses, 1)
	resp := sink.responses[0]
	assert.Equal(t, rpc.OK, resp.Status)
	assert.ElementsMatch(t, []uint32{0, 1}, resp.GrantedPartitions)
}

func TestAbortEmitsRejectStatusExactlyOnce(t *testing.T) {
	sink := &fakeSink{}
	cb := &InitQueueCallback{}
	tx := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true, 1: true}, 1, false)
	cb.Init(tx, tx.Partitions, []uint32{0, 1}, sink, nil, false, false)

	cb.Grant(0)
	cb.Reject(1, txn.ID{Seq: 2})
	assert.Len(t, sink.responses, 1)
	assert.Equal(t, rpc.AbortReject, sink.responses[0].Status)

	// A second abort/grant after emission must not produce another send.
	cb.Grant(0)
	cb.Reject(1, txn.ID{Seq: 3})
	assert.Len(t, sink.responses, 1)
}

func TestDispatchesPrefetchFragmentsExcludingBasePartition(t *testing.T) {
	sink := &fakeSink{}
	site := &fakeSite{}
	cb := &InitQueueCallback{}
	tx := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true}, 1, false)
	args, err := txn.SerializePrefetchParams([]interface{}{int64(42)})
	assert.NoError(t, err)
	tx.PrefetchRawParams = [][]byte{args}
	tx.PrefetchFragments = []txn.Fragment{
		{PartitionID: 0, Payload: []byte("skip-me-base-partition")},
		{PartitionID: 1, Payload: []byte("dispatch-me")},
	}

	err = cb.Init(tx, tx.Partitions, []uint32{0}, sink, site, true, false)
	assert.NoError(t, err)
	cb.Grant(0)

	assert.Len(t, sink.responses, 1)
	assert.Equal(t, rpc.OK, sink.responses[0].Status)
	assert.Len(t, site.dispatched, 1)
	assert.Equal(t, uint32(1), site.dispatched[0].PartitionID)
	assert.Equal(t, []interface{}{[]interface{}{int64(42)}}, tx.PrefetchParams, "grant should have deserialized the raw args onto the transaction")
}

// TestUndecodablePrefetchArgsAbortUnexpected confirms a corrupt prefetch
// argument blob aborts the transaction instead of panicking or silently
// dispatching garbage fragments.
func TestUndecodablePrefetchArgsAbortUnexpected(t *testing.T) {
	sink := &fakeSink{}
	site := &fakeSite{}
	cb := &InitQueueCallback{}
	tx := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true}, 1, false)
	tx.PrefetchRawParams = [][]byte{{0xff, 0xff, 0xff}}
	tx.PrefetchFragments = []txn.Fragment{{PartitionID: 1, Payload: []byte("never-sent")}}

	err := cb.Init(tx, tx.Partitions, []uint32{0}, sink, site, true, false)
	assert.NoError(t, err)
	cb.Grant(0)

	assert.Len(t, sink.responses, 1)
	assert.Equal(t, rpc.AbortUnexpected, sink.responses[0].Status)
	assert.Empty(t, site.dispatched, "must not dispatch prefetch fragments derived from undecodable args")
}
