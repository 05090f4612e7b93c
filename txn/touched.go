package txn

import (
	"sync"

	"github.com/sdhost/h-store/catalog"
)

// TouchedTables is the per-transaction-per-partition read/write bitmap.
// Bits are monotonic: set during EXECUTING, never
// cleared until FINISHED/ABORTED. Only the owning partition's executor
// thread mutates an instance of this type; conflict checkers on the same
// partition read it from that same thread, so the mutex here is a
// defensive margin rather than a concurrency requirement.
type TouchedTables struct {
	mu    sync.Mutex
	read  map[catalog.TableID]bool
	write map[catalog.TableID]bool
}

func NewTouchedTables() *TouchedTables {
	return &TouchedTables{
		read:  make(map[catalog.TableID]bool),
		write: make(map[catalog.TableID]bool),
	}
}

func (t *TouchedTables) MarkRead(table catalog.TableID) {
	t.mu.Lock()
	t.read[table] = true
	t.mu.Unlock()
}

func (t *TouchedTables) MarkWrite(table catalog.TableID) {
	t.mu.Lock()
	t.write[table] = true
	t.mu.Unlock()
}

func (t *TouchedTables) IsRead(table catalog.TableID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read[table]
}

func (t *TouchedTables) IsWritten(table catalog.TableID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write[table]
}

// IsReadOrWritten reports whether table has been read or written.
func (t *TouchedTables) IsReadOrWritten(table catalog.TableID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read[table] || t.write[table]
}

// Clear resets the bitmap. Only legal once the transaction is
// FINISHED/ABORTED and the handle is about to be returned to its pool.
func (t *TouchedTables) Clear() {
	t.mu.Lock()
	t.read = make(map[catalog.TableID]bool)
	t.write = make(map[catalog.TableID]bool)
	t.mu.Unlock()
}
