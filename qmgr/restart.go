package qmgr

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sdhost/h-store/txn"
)

// RestartTask is a transaction whose init was rejected and must be
// retried after a small delay.
type RestartTask struct {
	TxnID     txn.ID
	BlockerID txn.ID
	NotBefore time.Time

	// Payload is opaque to qmgr: whatever the caller needs to resubmit
	// this transaction (its original init request, procedure identity,
	// and response sink). Kept as interface{} so this package does not
	// need to depend on the rpc or catalog packages.
	Payload interface{}
}

// RestartQueue holds transactions awaiting retry. A rate.Limiter throttles
// how fast queued restarts are released, standing in for the small fixed
// delay thread in the source — backpressure here matters because a tight
// restart loop against a still-busy blocker just burns CPU.
type RestartQueue struct {
	mu      sync.Mutex
	pending []RestartTask
	limiter *rate.Limiter
}

func NewRestartQueue() *RestartQueue {
	return &RestartQueue{
		limiter: rate.NewLimiter(rate.Limit(50), 10),
	}
}

func (r *RestartQueue) Add(task RestartTask) {
	r.mu.Lock()
	r.pending = append(r.pending, task)
	r.mu.Unlock()
}

// Drain blocks until the limiter admits a release, then returns every task
// whose NotBefore has elapsed, removing them from the queue.
func (r *RestartQueue) Drain(ctx context.Context) ([]RestartTask, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var ready []RestartTask
	var remaining []RestartTask
	for _, t := range r.pending {
		if now.After(t.NotBefore) || now.Equal(t.NotBefore) {
			ready = append(ready, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	r.pending = remaining
	return ready, nil
}

func (r *RestartQueue) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
