package txn

import "sync"

// Kind distinguishes the object-pool arenas a partition maintains: local,
// remote, map-reduce, distributed, and prefetch-state handles each get
// their own arena so that handles of different shapes never thrash a
// shared pool.
type Kind int

const (
	KindLocal Kind = iota
	KindRemote
	KindMapReduce
	KindDistributed
	KindPrefetch
)

// Handle is a non-owning reference into a partition's arena: an index plus
// a generation counter. A holder of a Handle, unlike a holder of a
// *Transaction, does not keep the slot's occupant alive: the arena slot can
// be recycled out from under a stale reference without a dangling pointer;
// Resolve returns ok=false once the generation has moved on. The init
// callback (callback.InitQueueCallback) does not use Handles: it holds a
// *Transaction directly.
type Handle struct {
	Index      int
	Generation uint32
}

type slot struct {
	generation uint32
	inUse      bool
	txn        *Transaction
}

// Pool is an arena + free-list for one (partition, kind) pair. Ownership
// of a handle drawn from the pool is exclusively the partition's while in
// use; only the owning partition thread calls Acquire/Release.
type Pool struct {
	mu    sync.Mutex
	slots []slot
	free  []int
}

func NewPool() *Pool {
	return &Pool{}
}

// Acquire reserves a free arena slot (reusing one if available) and
// returns its Handle. The caller is responsible for building the
// Transaction and installing it via Put before the handle is resolved.
func (p *Pool) Acquire() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	var idx int
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		idx = len(p.slots)
		p.slots = append(p.slots, slot{})
	}
	p.slots[idx].inUse = true
	p.slots[idx].txn = nil
	p.slots[idx].generation++
	return Handle{Index: idx, Generation: p.slots[idx].generation}
}

// Put installs a freshly constructed Transaction into the slot identified
// by h. Callers build the Transaction (NewTransaction) then hand it to the
// pool so Acquire/Put stay allocation-free on the reuse path.
func (p *Pool) Put(h Handle, t *Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.Index < len(p.slots) && p.slots[h.Index].generation == h.Generation {
		p.slots[h.Index].txn = t
	}
}

// Resolve dereferences a Handle back to its Transaction. ok is false if
// the slot has since been released and reacquired (a stale reference), or
// if no Transaction has been installed with Put yet.
func (p *Pool) Resolve(h Handle) (*Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.Index >= len(p.slots) {
		return nil, false
	}
	s := p.slots[h.Index]
	if !s.inUse || s.generation != h.Generation || s.txn == nil {
		return nil, false
	}
	return s.txn, true
}

// Release returns the slot to the free list once FINISHED/ABORTED and all
// callback references have let go.
func (p *Pool) Release(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.Index >= len(p.slots) || p.slots[h.Index].generation != h.Generation {
		return
	}
	if t := p.slots[h.Index].txn; t != nil {
		t.Reset()
	}
	p.slots[h.Index].inUse = false
	p.free = append(p.free, h.Index)
}

// PartitionPools bundles the five kind-keyed arenas for one partition.
type PartitionPools struct {
	pools [5]*Pool
}

func NewPartitionPools() *PartitionPools {
	pp := &PartitionPools{}
	for i := range pp.pools {
		pp.pools[i] = NewPool()
	}
	return pp
}

func (pp *PartitionPools) Pool(kind Kind) *Pool {
	return pp.pools[kind]
}
