// Package specexec implements the two interchangeable conflict-checker
// flavors (Table and Markov) plus the SpeculativeScheduler that admits
// single-partition work ahead of a stalled distributed transaction.
// Ported from edu.brown.hstore.specexec.
// AbstractConflictChecker/TableConflictChecker/MarkovConflictChecker.
package specexec

import (
	"github.com/sdhost/h-store/catalog"
	"github.com/sdhost/h-store/txn"
)

// ConflictChecker decides whether a single-partition candidate may run
// ahead of a stalled distributed-transaction holder on partition.
// Implementations are pure: no side effects, safe to call concurrently
// from multiple executor threads with no external synchronization.
type ConflictChecker interface {
	CanExecute(holder, candidate *txn.Transaction, partition uint32) bool
	// ShouldIgnoreProcedure is a fast short-circuit: true when proc never
	// needs a conflict check at all.
	ShouldIgnoreProcedure(proc catalog.ProcedureID) bool
}
