// Package site implements HStoreSite: the top-level orchestrator binding
// one node's PartitionExecutors, its TransactionQueueManager, the
// transaction handle pools, and the chosen ConflictChecker into a single
// unit that answers the transaction init RPC and the transaction work
// RPC. Grounded on tinykv's kv/tinykv-server/main.go wiring sequence
// (load config -> build inner server -> build RPC server -> run).
package site

import (
	"context"
	"fmt"
	"time"

	"github.com/sdhost/h-store/callback"
	"github.com/sdhost/h-store/catalog"
	"github.com/sdhost/h-store/config"
	"github.com/sdhost/h-store/executor"
	"github.com/sdhost/h-store/logutil"
	"github.com/sdhost/h-store/qmgr"
	"github.com/sdhost/h-store/rpc"
	"github.com/sdhost/h-store/specexec"
	"github.com/sdhost/h-store/txn"
)

// restartBackoff is the fixed delay before a rejected transaction is
// resubmitted, standing in for the source's small fixed-delay restart
// thread.
const restartBackoff = 10 * time.Millisecond

// maxRestarts bounds how many times a transaction may be rejected and
// resubmitted before it is surfaced to the caller as a hard failure
// instead of retried again.
const maxRestarts = 10

// restartablePending is what a restartSink needs to resubmit a rejected
// transaction: its original request plus procedure identity.
type restartablePending struct {
	req      *rpc.InitRequest
	proc     catalog.ProcedureID
	readOnly bool
	attempt  int
}

// restartSink wraps the caller-provided sink: an AbortReject or
// AbortRepeatedRestart response is intercepted and turned into a
// RestartTask instead of being forwarded, up to maxRestarts attempts.
type restartSink struct {
	site    *Site
	inner   rpc.ResponseSink
	pending restartablePending
}

func (rs *restartSink) Send(resp *rpc.InitResponse) {
	if resp.Status != rpc.AbortReject && resp.Status != rpc.AbortRepeatedRestart {
		rs.inner.Send(resp)
		return
	}
	if rs.pending.attempt >= maxRestarts {
		logutil.Warnf("txn %d: giving up after %d restarts", resp.TxnID.Seq, rs.pending.attempt)
		giveUp := *resp
		giveUp.Status = rpc.AbortRepeatedRestart
		rs.inner.Send(&giveUp)
		return
	}
	blockerID := resp.TxnID
	if resp.RejectBlockerTxnID != nil {
		blockerID = *resp.RejectBlockerTxnID
	}
	next := rs.pending
	next.attempt++
	rs.site.queueMgr.Restart().Add(qmgr.RestartTask{
		TxnID:     resp.TxnID,
		BlockerID: blockerID,
		NotBefore: time.Now().Add(restartBackoff),
		Payload:   &restartTaskPayload{pending: next, inner: rs.inner},
	})
}

type restartTaskPayload struct {
	pending restartablePending
	inner   rpc.ResponseSink
}

// Site is one node's HStoreSite: it owns every local partition's
// PartitionExecutor, the site-wide TransactionQueueManager, the
// transaction id generator, and the per-partition object pools. It
// implements rpc.Site so the init callback can dispatch prefetch
// fragments back through it.
type Site struct {
	ID     uint32
	Config *config.Config

	catalog  *catalog.Catalog
	checker  specexec.ConflictChecker
	idGen    *txn.Generator
	queueMgr *qmgr.Manager

	partitions map[uint32]*executor.PartitionExecutor
	pools      map[uint32]*txn.PartitionPools
}

// Options bundles the Site's external collaborators: the compiled
// catalog, the per-partition storage engines, and the set of partitions
// this node owns.
type Options struct {
	SiteID          uint32
	Config          *config.Config
	Catalog         *catalog.Catalog
	LocalPartitions []uint32
	Engines         map[uint32]executor.Engine
}

// New builds a Site, choosing the ConflictChecker flavor from
// Config.Markov.Enable, and starts one PartitionExecutor per local
// partition.
func New(opts Options) *Site {
	var checker specexec.ConflictChecker
	if opts.Config.Markov.Enable {
		checker = specexec.NewMarkovChecker(opts.Catalog)
	} else {
		checker = specexec.NewTableChecker(opts.Catalog)
	}

	s := &Site{
		ID:         opts.SiteID,
		Config:     opts.Config,
		catalog:    opts.Catalog,
		checker:    checker,
		idGen:      txn.NewGenerator(opts.SiteID),
		queueMgr:   qmgr.NewManager(opts.LocalPartitions),
		partitions: make(map[uint32]*executor.PartitionExecutor),
		pools:      make(map[uint32]*txn.PartitionPools),
	}
	for _, p := range opts.LocalPartitions {
		engine, ok := opts.Engines[p]
		if !ok {
			panic(fmt.Sprintf("site %d: no storage engine configured for local partition %d", opts.SiteID, p))
		}
		s.partitions[p] = executor.New(p, engine, checker)
		s.pools[p] = txn.NewPartitionPools()
	}
	return s
}

// Partitions exposes the local partition executors, satisfying
// status.Site.
func (s *Site) Partitions() map[uint32]*executor.PartitionExecutor {
	return s.partitions
}

// QueueManager exposes the site's TransactionQueueManager, satisfying
// status.Site.
func (s *Site) QueueManager() *qmgr.Manager {
	return s.queueMgr
}

// NextTxnID draws the next globally-unique transaction id for this site.
func (s *Site) NextTxnID() txn.ID {
	return s.idGen.Next()
}

// InitTransaction registers a newly-arrived (local or remote)
// transaction against every local partition it touches, wiring an
// InitQueueCallback that will reply on sink once every local partition
// has granted or any one has rejected.
func (s *Site) InitTransaction(req *rpc.InitRequest, sink rpc.ResponseSink, proc catalog.ProcedureID, readOnly bool) error {
	return s.initTransaction(req, sink, proc, readOnly, 0)
}

func (s *Site) initTransaction(req *rpc.InitRequest, sink rpc.ResponseSink, proc catalog.ProcedureID, readOnly bool, attempt int) error {
	localPartitions := s.queueMgr.LocalPartitions(req.InvolvedPartitions)
	t := txn.NewTransaction(req.TxnID, req.BasePartition, req.InvolvedPartitions, proc, readOnly)
	t.RestartCounter.Store(int32(attempt))
	attachPrefetchBatch(t, req.PrefetchBatch, proc)

	wrapped := &restartSink{
		site:  s,
		inner: sink,
		pending: restartablePending{
			req:      req,
			proc:     proc,
			readOnly: readOnly,
			attempt:  attempt,
		},
	}

	cb := &callback.InitQueueCallback{}
	if err := cb.Init(t, req.InvolvedPartitions, localPartitions, wrapped, s, s.Config.Exec.PrefetchQueries, false); err != nil {
		logutil.Warnf("txn %d: %v", t.ID.Seq, err)
		return err
	}

	s.queueMgr.Register(t, req.InvolvedPartitions, cb)
	return nil
}

// attachPrefetchBatch copies an init request's prefetch batch onto the
// transaction handle: the raw argument bytes (deserialized later, once the
// transaction is granted) and the fragments themselves, ready for
// InitQueueCallback to dispatch on grant.
func attachPrefetchBatch(t *txn.Transaction, batch []rpc.PrefetchQuery, proc catalog.ProcedureID) {
	if len(batch) == 0 {
		return
	}
	t.PrefetchRawParams = make([][]byte, len(batch))
	t.PrefetchFragments = make([]txn.Fragment, len(batch))
	for i, pq := range batch {
		t.PrefetchRawParams[i] = pq.SerializedArgs
		t.PrefetchFragments[i] = txn.Fragment{
			PartitionID: pq.Partition,
			StatementID: catalog.StatementID{Proc: proc, Idx: pq.StatementIdx},
			Payload:     pq.SerializedArgs,
		}
	}
}

// RunRestartLoop drains the queue manager's RestartQueue until ctx is
// canceled, resubmitting each released transaction via initTransaction.
// Intended to run as one long-lived goroutine per site.
func (s *Site) RunRestartLoop(ctx context.Context) {
	for {
		tasks, err := s.queueMgr.Restart().Drain(ctx)
		if err != nil {
			return
		}
		for _, task := range tasks {
			payload, ok := task.Payload.(*restartTaskPayload)
			if !ok {
				continue
			}
			logutil.Debugf("restarting txn %d (attempt %d)", task.TxnID.Seq, payload.pending.attempt)
			if err := s.initTransaction(payload.pending.req, payload.inner, payload.pending.proc, payload.pending.readOnly, payload.pending.attempt); err != nil {
				logutil.Errorf("txn %d: restart failed: %v", task.TxnID.Seq, err)
			}
		}
	}
}

// TransactionWork implements rpc.Site: it routes a work fragment to the
// PartitionExecutor that owns frag.PartitionID. Used both for ordinary
// dtxn fragment dispatch and for the init callback's post-grant prefetch
// dispatch.
func (s *Site) TransactionWork(ctx context.Context, t *txn.Transaction, frag rpc.WorkFragment) error {
	pe, ok := s.partitions[frag.PartitionID]
	if !ok {
		return fmt.Errorf("site %d: partition %d is not local", s.ID, frag.PartitionID)
	}
	fragment := txn.Fragment{
		PartitionID: frag.PartitionID,
		StatementID: catalog.StatementID{Proc: t.Procedure, Idx: frag.StatementID},
		Payload:     frag.Payload,
	}
	_, err := pe.Dispatch(ctx, t, fragment)
	return err
}

// CommitTransaction notifies every local partition the transaction
// touched that it committed, releasing any speculative candidates
// buffered behind it, and clears its queue-manager bookkeeping.
func (s *Site) CommitTransaction(ctx context.Context, t *txn.Transaction) {
	for p := range t.Partitions {
		if pe, ok := s.partitions[p]; ok {
			pe.Commit(ctx, t)
		}
		s.queueMgr.Finished(t.ID, p)
	}
}

// AbortTransaction notifies every local partition the transaction
// touched that it aborted, triggering rollback of any speculative
// candidates admitted ahead of it, and clears its queue-manager
// bookkeeping.
func (s *Site) AbortTransaction(ctx context.Context, t *txn.Transaction) {
	for p := range t.Partitions {
		if pe, ok := s.partitions[p]; ok {
			pe.Abort(ctx, t)
		}
		s.queueMgr.Finished(t.ID, p)
	}
}

// Pools returns the object-pool arenas for one local partition.
func (s *Site) Pools(partition uint32) *txn.PartitionPools {
	return s.pools[partition]
}

// Stop shuts down every local partition's executor goroutine.
func (s *Site) Stop() {
	for _, pe := range s.partitions {
		pe.Stop()
	}
}
