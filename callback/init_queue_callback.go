package callback

import (
	"context"
	"sync"

	"github.com/sdhost/h-store/coreerrors"
	"github.com/sdhost/h-store/logutil"
	"github.com/sdhost/h-store/rpc"
	"github.com/sdhost/h-store/txn"
)

// InitQueueCallback is TransactionInitQueueCallback ported from
// edu.brown.hstore.callbacks.TransactionInitQueueCallback: it converts N
// per-partition grant/abort signals into one response to the coordinator.
type InitQueueCallback struct {
	blockingBase

	mu                  sync.Mutex
	txnHandle           *txn.Transaction
	partitions          map[uint32]bool
	localPartitions     []uint32
	granted             []uint32
	status              rpc.Status
	rejectPartition     *uint32
	rejectBlockerTxnID  *txn.ID

	sink    rpc.ResponseSink
	site    rpc.Site
	prefetch bool
}

// MisconfiguredErr is returned when a transaction is initialized with no
// local partitions at all — there is nothing to accumulate toward.
type MisconfiguredErr struct{ Detail string }

func (e *MisconfiguredErr) Error() string { return e.Detail }

// Init computes N = count of local partitions in partitions, builds a
// pending response skeleton with OK status, and arms the callback. N must
// be >= 1.
func (c *InitQueueCallback) Init(t *txn.Transaction, partitions map[uint32]bool, localPartitions []uint32, sink rpc.ResponseSink, site rpc.Site, prefetchEnabled bool, invokeEvenIfAborted bool) error {
	if len(localPartitions) == 0 {
		return &MisconfiguredErr{Detail: "init requires at least one local partition"}
	}
	c.mu.Lock()
	c.txnHandle = t
	c.partitions = partitions
	c.localPartitions = localPartitions
	c.granted = nil
	c.status = rpc.OK
	c.rejectPartition = nil
	c.rejectBlockerTxnID = nil
	c.sink = sink
	c.site = site
	c.prefetch = prefetchEnabled
	c.mu.Unlock()

	c.invokeEvenIfAborted = invokeEvenIfAborted
	c.blockingBase.init(int32(len(localPartitions)), c.unblockTransactionCallback, c.abortTransactionCallback, c.finishResources)
	return nil
}

// Grant implements queue.CallbackRef: the init queue calls this when the
// transaction's entry is granted the partition lock.
func (c *InitQueueCallback) Grant(partition uint32) {
	c.Run(partition)
}

// Reject implements queue.CallbackRef.
func (c *InitQueueCallback) Reject(partition uint32, blockerID txn.ID) {
	c.Abort(rpc.AbortReject, &partition, &blockerID)
}

// Run is invoked under a partition's grant: append partition_id to the
// pending response and decrement the remaining count.
func (c *InitQueueCallback) Run(partition uint32) {
	c.mu.Lock()
	if !c.isAborted() || c.invokeEvenIfAborted {
		c.granted = append(c.granted, partition)
	}
	c.mu.Unlock()
	c.run()
}

// Abort flips the callback to aborted and, if a response hasn't been
// emitted yet, sets status/reject fields and emits once.
func (c *InitQueueCallback) Abort(status rpc.Status, rejectPartition *uint32, blockerID *txn.ID) {
	c.mu.Lock()
	c.status = status
	c.rejectPartition = rejectPartition
	c.rejectBlockerTxnID = blockerID
	c.mu.Unlock()
	c.abortCallback()
}

// Finish releases resources for pool return.
func (c *InitQueueCallback) Finish() {
	c.finishImpl()
}

func (c *InitQueueCallback) finishResources() {
	c.mu.Lock()
	c.txnHandle = nil
	c.sink = nil
	c.site = nil
	c.mu.Unlock()
}

// unblockTransactionCallback fires once remaining reaches zero with no
// abort: send the OK response and dispatch any prefetch fragments. It does
// not touch idle_waiting_dtxn_time profiling; the executor starts and stops
// that measurement itself.
func (c *InitQueueCallback) unblockTransactionCallback() {
	c.mu.Lock()
	granted := append([]uint32(nil), c.granted...)
	status := c.status
	sink := c.sink
	t := c.txnHandle
	site := c.site
	prefetch := c.prefetch
	c.mu.Unlock()

	if sink == nil {
		logutil.Warn("init callback unblocked with no response sink attached")
		return
	}

	if prefetch && t.HasPrefetchQueries() {
		params, err := txn.DeserializePrefetchParams(t.PrefetchRawParams)
		if err != nil {
			abortErr := &coreerrors.UnexpectedAbortError{TxnID: t.ID.Seq, Cause: err}
			logutil.Errorf("txn %d: %v", t.ID.Seq, abortErr)
			sink.Send(&rpc.InitResponse{
				TxnID:  t.ID,
				Status: rpc.AbortUnexpected,
			})
			return
		}
		t.AttachPrefetchParameters(params)
	}

	sink.Send(&rpc.InitResponse{
		TxnID:             t.ID,
		Status:            status,
		GrantedPartitions: granted,
	})

	if prefetch && t.HasPrefetchQueries() {
		c.dispatchPrefetch(t, site)
	}
}

// dispatchPrefetch extracts each prefetched parameter set and routes
// prefetch fragments to their owning executors via the site-level
// TransactionWork interface, skipping fragments whose target partition
// equals the base partition.
func (c *InitQueueCallback) dispatchPrefetch(t *txn.Transaction, site rpc.Site) {
	if site == nil {
		return
	}
	for _, frag := range t.PrefetchFragments {
		if frag.PartitionID == t.BasePartition {
			continue
		}
		wf := rpc.WorkFragment{
			TxnID:       t.ID,
			PartitionID: frag.PartitionID,
			StatementID: frag.StatementID.Idx,
			Payload:     frag.Payload,
		}
		if err := site.TransactionWork(context.Background(), t, wf); err != nil {
			logutil.Errorf("txn %d: failed to dispatch prefetch fragment to partition %d: %v", t.ID.Seq, frag.PartitionID, err)
		}
	}
}

// abortTransactionCallback sends back an abort response carrying every
// local partition (mirroring the source clearing and re-adding the local
// partition set) plus the reject/blocker fields.
func (c *InitQueueCallback) abortTransactionCallback() {
	c.mu.Lock()
	status := c.status
	rejectPartition := c.rejectPartition
	rejectBlocker := c.rejectBlockerTxnID
	sink := c.sink
	t := c.txnHandle
	locals := append([]uint32(nil), c.localPartitions...)
	c.mu.Unlock()

	if sink == nil || t == nil {
		return
	}
	sink.Send(&rpc.InitResponse{
		TxnID:              t.ID,
		Status:             status,
		GrantedPartitions:  locals,
		RejectPartition:    rejectPartition,
		RejectBlockerTxnID: rejectBlocker,
	})
	c.clearCounter()
}
