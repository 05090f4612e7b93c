// Package callback implements the accumulation callback that turns N
// per-partition grants into one response: TransactionInitQueueCallback.
// Ported from
// edu.brown.hstore.callbacks.TransactionInitQueueCallback and its base
// class edu.mit.hstore.callbacks.BlockingCallback. The Java template-method
// hierarchy (abstract runImpl/unblockTransactionCallback/
// abortTransactionCallback/finishImpl, overridden by the concrete
// subclass) maps onto Go as a struct embedding a small blockingBase whose
// three extension points are plain function fields rather than virtual
// methods.
package callback

import (
	"go.uber.org/atomic"

	"github.com/sdhost/h-store/logutil"
)

// blockingBase converts N independent acknowledgments into exactly one
// "unblocked" or "aborted" notification. Concurrency: Run and Abort may
// both be invoked concurrently from partition-executor threads; emission
// happens at most once, guarded by a compare-and-set on the emitted flag.
type blockingBase struct {
	origCounter int32
	remaining   atomic.Int32
	aborted     atomic.Bool
	emitted     atomic.Bool

	// invokeEvenIfAborted controls whether late-arriving Run calls still
	// update internal bookkeeping after Abort has already fired, matching
	// the per-callback-flavor `invoke_even_if_aborted` knob in the source.
	invokeEvenIfAborted bool

	unblock func()
	abort   func()
	finish  func()
}

func (b *blockingBase) init(origCounter int32, unblock, abort, finish func()) {
	b.origCounter = origCounter
	b.remaining.Store(origCounter)
	b.aborted.Store(false)
	b.emitted.Store(false)
	b.unblock = unblock
	b.abort = abort
	b.finish = finish
}

// run records one acknowledgment; when the remaining count reaches zero
// and the callback has not been aborted, it emits exactly once.
func (b *blockingBase) run() {
	if b.aborted.Load() && !b.invokeEvenIfAborted {
		return
	}
	remaining := b.remaining.Dec()
	if remaining < 0 {
		logutil.Warnf("callback run() invoked more times than expected (origCounter=%d)", b.origCounter)
		return
	}
	if remaining == 0 && !b.aborted.Load() {
		if b.emitted.CompareAndSwap(false, true) {
			b.unblock()
		}
	}
}

// abortCallback is idempotent: the first caller to win the emitted CAS
// delivers the abort notification; later callers are no-ops.
func (b *blockingBase) abortCallback() {
	b.aborted.Store(true)
	if b.emitted.CompareAndSwap(false, true) {
		b.abort()
	}
}

func (b *blockingBase) isAborted() bool {
	return b.aborted.Load()
}

func (b *blockingBase) finishImpl() {
	if b.finish != nil {
		b.finish()
	}
}

func (b *blockingBase) clearCounter() {
	b.remaining.Store(0)
}
