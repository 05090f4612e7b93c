package specexec

import (
	"github.com/sdhost/h-store/catalog"
	"github.com/sdhost/h-store/txn"
)

// TableChecker is the table-level conflict checker: uses the precomputed
// rw/ww conflict bitsets and falls back to the declared ConflictPairs'
// table lists when a bit is set, testing against the holder's touched-table
// bitmap for the partition in question. Ported from
// TableConflictChecker.canExecute.
type TableChecker struct {
	cat     *catalog.Catalog
	compiled *catalog.CompiledConflicts
}

func NewTableChecker(cat *catalog.Catalog) *TableChecker {
	return &TableChecker{cat: cat, compiled: catalog.Compile(cat)}
}

func (c *TableChecker) ShouldIgnoreProcedure(proc catalog.ProcedureID) bool {
	return c.compiled.HasNoConflicts(proc)
}

// CanExecute reports whether candidate is admissible: it is unless it
// conflicts with a table the holder has already touched on this partition.
func (c *TableChecker) CanExecute(holder, candidate *txn.Transaction, partition uint32) bool {
	dtxnProc := holder.Procedure
	tsProc := candidate.Procedure

	dtxnHasRW := c.compiled.HasRWConflict(dtxnProc, tsProc)
	dtxnHasWW := c.compiled.HasWWConflict(dtxnProc, tsProc)
	tsHasRW := c.compiled.HasRWConflict(tsProc, dtxnProc)
	tsHasWW := c.compiled.HasWWConflict(tsProc, dtxnProc)

	if !dtxnHasRW && !dtxnHasWW && !tsHasRW && !tsHasWW {
		return true
	}

	holderTables := holder.TouchedTables(partition)

	// If TS is going to write to something that DTXN will read or write,
	// let it through as long as DTXN hasn't touched those tables yet.
	if dtxnHasRW || dtxnHasWW {
		for _, cp := range c.cat.ConflictsBetween(dtxnProc, tsProc) {
			if cp.Kind != catalog.ReadWrite && cp.Kind != catalog.WriteWrite {
				continue
			}
			for _, table := range cp.Tables {
				if holderTables.IsReadOrWritten(table) {
					return false
				}
			}
		}
	}

	// Symmetrically, if TS needs to read from (but not write to) a table
	// DTXN writes to, allow it as long as DTXN hasn't written there yet.
	if tsHasRW && !tsHasWW {
		for _, cp := range c.cat.ConflictsBetween(tsProc, dtxnProc) {
			if cp.Kind != catalog.ReadWrite {
				continue
			}
			for _, table := range cp.Tables {
				if holderTables.IsWritten(table) {
					return false
				}
			}
		}
	}

	return true
}
