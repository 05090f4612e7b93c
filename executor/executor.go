// Package executor implements PartitionExecutor: the single-threaded
// owner of one partition's data and the only goroutine allowed to mutate
// it. Grounded on tinykv's Sequential scheduler
// (kv/tikv/storage/exec/scheduler.go), which runs a channel-fed task loop
// on one goroutine for the same reason — no latching needed when only one
// thread ever touches the data.
package executor

import (
	"context"
	"fmt"

	"github.com/sdhost/h-store/catalog"
	"github.com/sdhost/h-store/coreerrors"
	"github.com/sdhost/h-store/logutil"
	"github.com/sdhost/h-store/profiler"
	"github.com/sdhost/h-store/specexec"
	"github.com/sdhost/h-store/txn"
)

// Mode is the partition's current execution mode, gating whether new work
// (distributed or speculative) may be admitted.
type Mode int

const (
	// ModeIdle: no distributed transaction holds the partition. Any
	// single-partition transaction may run immediately.
	ModeIdle Mode = iota
	// ModeCommitAll: a distributed transaction holds the partition and
	// every speculative candidate may be admitted (read or write).
	ModeCommitAll
	// ModeCommitReadOnly: only read-only speculative candidates may be
	// admitted; the holder itself has pending writes not yet visible.
	ModeCommitReadOnly
	// ModeCommitNone: no speculative execution permitted at all; every
	// arriving transaction queues behind the holder.
	ModeCommitNone
	// ModeSpeculative: the executor is currently running a speculative
	// candidate's fragment; re-entrant dispatch of another dtxn fragment
	// is disallowed until the candidate finishes.
	ModeSpeculative
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeCommitAll:
		return "COMMIT_ALL"
	case ModeCommitReadOnly:
		return "COMMIT_READONLY"
	case ModeCommitNone:
		return "COMMIT_NONE"
	case ModeSpeculative:
		return "SPECULATIVE"
	default:
		return "UNKNOWN"
	}
}

// FragmentResult is what the storage engine reports back after executing
// one fragment: the raw result payload plus which tables the fragment
// actually read or wrote. The engine is the only thing that knows this —
// this is the channel that information flows back through so the
// executor can advance Transaction.TouchedTables for the conflict
// checkers' benefit on the next candidate.
type FragmentResult struct {
	Payload     []byte
	ReadTables  []catalog.TableID
	WriteTables []catalog.TableID
}

// Engine is the narrow storage interface the executor drives. The storage
// and anti-cache engine itself is an external collaborator; this is the
// boundary the core depends on to apply and read back fragment effects.
type Engine interface {
	ExecuteFragment(ctx context.Context, t *txn.Transaction, frag txn.Fragment) (FragmentResult, error)
	LoadTable(ctx context.Context, tableName string, data []byte) error
	EvictBlock(ctx context.Context, tableName string, bytesToEvict int64) (int64, error)
}

// workItem is one unit enqueued on the executor's single task channel.
type workItem struct {
	kind workKind
	txn  *txn.Transaction
	frag txn.Fragment
	done chan<- workResult
}

type workKind int

const (
	workFragment workKind = iota
	workCommit
	workAbort
	workStop
)

type workResult struct {
	payload []byte
	err     error
}

// PartitionExecutor owns one partition. It runs a single goroutine loop
// reading from queue; every fragment dispatched to this partition —
// whether belonging to the current holder or to an admitted speculative
// candidate — executes on that one goroutine, so no additional latching
// is needed within the partition.
type PartitionExecutor struct {
	PartitionID uint32

	engine    Engine
	scheduler *specexec.Scheduler

	queue chan workItem

	mode   Mode
	holder *txn.Transaction

	idleWaitingDtxnTime *profiler.ProfileMeasurement
	execTime            *profiler.ProfileMeasurement
}

// New constructs a PartitionExecutor and starts its run loop.
func New(partitionID uint32, engine Engine, checker specexec.ConflictChecker) *PartitionExecutor {
	pe := &PartitionExecutor{
		PartitionID:         partitionID,
		engine:              engine,
		scheduler:           specexec.NewScheduler(checker, partitionID),
		queue:               make(chan workItem, 256),
		mode:                ModeIdle,
		idleWaitingDtxnTime: profiler.New(fmt.Sprintf("partition-%d-idle-waiting-dtxn", partitionID)),
		execTime:            profiler.New(fmt.Sprintf("partition-%d-exec", partitionID)),
	}
	go pe.run()
	return pe
}

func (pe *PartitionExecutor) run() {
	for item := range pe.queue {
		switch item.kind {
		case workFragment:
			pe.execTime.StartNow()
			payload, err := pe.runFragment(item.txn, item.frag)
			pe.execTime.StopNow()
			item.done <- workResult{payload: payload, err: err}
		case workCommit:
			pe.handleCommit(item.txn)
			item.done <- workResult{}
		case workAbort:
			pe.handleAbort(item.txn)
			item.done <- workResult{}
		case workStop:
			close(pe.queue)
			return
		}
	}
}

func (pe *PartitionExecutor) runFragment(t *txn.Transaction, frag txn.Fragment) ([]byte, error) {
	if t.IsDistributed() && pe.holder == nil {
		pe.beginHolder(t)
	}

	if t.IsDistributed() {
		result, err := pe.engine.ExecuteFragment(context.Background(), t, frag)
		if err != nil {
			return nil, pe.wrapEngineError(t, err)
		}
		pe.trackTouched(t, result)
		return result.Payload, nil
	}

	// Single-partition candidate arriving while a dtxn holds this
	// partition: try to admit it speculatively ahead of the holder.
	if pe.holder != nil {
		if pe.mode == ModeCommitNone {
			return nil, &coreerrors.RejectError{TxnID: t.ID.Seq, Partition: pe.PartitionID, BlockerID: pe.holder.ID.Seq}
		}
		if pe.mode == ModeCommitReadOnly && !t.ReadOnly {
			return nil, &coreerrors.RejectError{TxnID: t.ID.Seq, Partition: pe.PartitionID, BlockerID: pe.holder.ID.Seq}
		}
		if !pe.scheduler.TryAdmit(t) {
			return nil, &coreerrors.RejectError{TxnID: t.ID.Seq, Partition: pe.PartitionID, BlockerID: pe.holder.ID.Seq}
		}
		prevMode := pe.mode
		pe.mode = ModeSpeculative
		result, err := pe.engine.ExecuteFragment(context.Background(), t, frag)
		pe.mode = prevMode
		if err != nil {
			return nil, pe.wrapEngineError(t, err)
		}
		pe.trackTouched(t, result)
		pe.scheduler.MarkCommittedBuffered(t.ID)
		return result.Payload, nil
	}

	result, err := pe.engine.ExecuteFragment(context.Background(), t, frag)
	if err != nil {
		return nil, pe.wrapEngineError(t, err)
	}
	pe.trackTouched(t, result)
	return result.Payload, nil
}

// wrapEngineError turns a raw storage-engine failure into a typed
// UnexpectedAbortError and logs the fault, matching the treatment of an
// unexpected abort as a user abort plus a logged fault.
func (pe *PartitionExecutor) wrapEngineError(t *txn.Transaction, err error) error {
	wrapped := &coreerrors.UnexpectedAbortError{TxnID: t.ID.Seq, Cause: err}
	logutil.Errorf("partition %d: %v", pe.PartitionID, wrapped)
	return wrapped
}

// trackTouched advances t's per-partition touched-table bitmap from what
// the engine reported for this fragment, so the conflict checkers see an
// accurate picture on the next candidate.
func (pe *PartitionExecutor) trackTouched(t *txn.Transaction, result FragmentResult) {
	tt := t.TouchedTables(pe.PartitionID)
	for _, table := range result.ReadTables {
		tt.MarkRead(table)
	}
	for _, table := range result.WriteTables {
		tt.MarkWrite(table)
	}
}

func (pe *PartitionExecutor) beginHolder(t *txn.Transaction) {
	pe.holder = t
	pe.idleWaitingDtxnTime.StopIfStarted()
	if t.ReadOnly {
		pe.mode = ModeCommitAll
	} else {
		pe.mode = ModeCommitReadOnly
	}
	pe.scheduler.BeginHolder(t)
}

func (pe *PartitionExecutor) handleCommit(t *txn.Transaction) {
	if pe.holder == nil || pe.holder.ID != t.ID {
		return
	}
	released := pe.scheduler.ReleaseOnCommit()
	for _, cand := range released {
		logutil.Debugf("partition %d: released buffered speculative txn %d on holder %d commit", pe.PartitionID, cand.ID.Seq, t.ID.Seq)
	}
	pe.endHolder()
}

func (pe *PartitionExecutor) handleAbort(t *txn.Transaction) {
	if pe.holder == nil || pe.holder.ID != t.ID {
		return
	}
	rolledBack := pe.scheduler.RollbackOnAbort()
	for _, cand := range rolledBack {
		logutil.Debugf("partition %d: rolled back speculative txn %d (restart_counter=%d) on holder %d abort", pe.PartitionID, cand.ID.Seq, cand.RestartCounter.Load(), t.ID.Seq)
	}
	pe.endHolder()
}

func (pe *PartitionExecutor) endHolder() {
	pe.scheduler.EndHolder()
	pe.holder = nil
	pe.mode = ModeIdle
	pe.idleWaitingDtxnTime.StartNow()
}

// Dispatch enqueues frag for t and blocks until the single executor
// goroutine has run it, returning its result.
func (pe *PartitionExecutor) Dispatch(ctx context.Context, t *txn.Transaction, frag txn.Fragment) ([]byte, error) {
	done := make(chan workResult, 1)
	select {
	case pe.queue <- workItem{kind: workFragment, txn: t, frag: frag, done: done}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-done:
		return res.payload, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Commit notifies the executor that t (the current holder) has committed.
func (pe *PartitionExecutor) Commit(ctx context.Context, t *txn.Transaction) {
	done := make(chan workResult, 1)
	pe.queue <- workItem{kind: workCommit, txn: t, done: done}
	<-done
}

// Abort notifies the executor that t (the current holder) has aborted,
// triggering a rollback of every speculative candidate admitted ahead of
// it.
func (pe *PartitionExecutor) Abort(ctx context.Context, t *txn.Transaction) {
	done := make(chan workResult, 1)
	pe.queue <- workItem{kind: workAbort, txn: t, done: done}
	<-done
}

// CurrentMode reports the executor's current execution mode, for status
// reporting.
func (pe *PartitionExecutor) CurrentMode() Mode {
	return pe.mode
}

// PendingSpeculative reports how many speculative candidates are
// currently admitted but not yet finished executing (SPEC_PENDING);
// buffered candidates awaiting the holder's outcome are not counted.
func (pe *PartitionExecutor) PendingSpeculative() int {
	return pe.scheduler.PendingCount()
}

// IdleWaitingDtxnTime exposes the idle_waiting_dtxn_time profiling
// measurement for status rollups.
func (pe *PartitionExecutor) IdleWaitingDtxnTime() *profiler.ProfileMeasurement {
	return pe.idleWaitingDtxnTime
}

func (pe *PartitionExecutor) ExecTime() *profiler.ProfileMeasurement {
	return pe.execTime
}

// LoadTable passes a bulk load straight through to the storage engine. It
// runs on the caller's goroutine, not through the executor's work queue,
// so it is not serialized against fragments the executor is running.
func (pe *PartitionExecutor) LoadTable(ctx context.Context, tableName string, data []byte) error {
	return pe.engine.LoadTable(ctx, tableName, data)
}

// EvictBlock passes an anti-cache eviction request through to the storage
// engine.
func (pe *PartitionExecutor) EvictBlock(ctx context.Context, tableName string, bytesToEvict int64) (int64, error) {
	return pe.engine.EvictBlock(ctx, tableName, bytesToEvict)
}

// Stop shuts down the executor's run loop.
func (pe *PartitionExecutor) Stop() {
	done := make(chan workResult, 1)
	pe.queue <- workItem{kind: workStop, done: done}
}
