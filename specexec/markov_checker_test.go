package specexec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdhost/h-store/catalog"
	"github.com/sdhost/h-store/estimate"
	"github.com/sdhost/h-store/txn"
)

func buildMarkovCatalog() *catalog.Catalog {
	stmtA := catalog.StatementID{Proc: 1, Idx: 0}
	stmtB := catalog.StatementID{Proc: 2, Idx: 0}
	return &catalog.Catalog{
		Procedures: []*catalog.Procedure{
			{ID: 1, Name: "ProcA"},
			{ID: 2, Name: "ProcB"},
		},
		Conflicts: []*catalog.ConflictPair{
			{
				Proc0: 1, Proc1: 2,
				Stmt0: stmtA, Stmt1: stmtB,
				Kind: catalog.ReadWrite,
				KeyBindings: []catalog.KeyBinding{
					{Param0: catalog.ProcParamRef{Index: 0}, Param1: catalog.ProcParamRef{Index: 0}},
				},
			},
		},
	}
}

func withEstimate(tx *txn.Transaction, partition uint32, stmt catalog.StatementID, write bool) {
	pred := estimate.QueryPrediction{Statement: stmt, Partitions: map[uint32]bool{partition: true}, Write: write}
	est := &estimate.TransactionEstimate{Queries: []estimate.QueryPrediction{pred}}
	tx.EstimatorState.LastEstimate = est
	tx.EstimatorState.InitialEstimate = est
}

func TestMarkovCheckerRejectsWhenKeysMatch(t *testing.T) {
	cat := buildMarkovCatalog()
	checker := NewMarkovChecker(cat)

	stmtA := catalog.StatementID{Proc: 1, Idx: 0}
	stmtB := catalog.StatementID{Proc: 2, Idx: 0}

	holder := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true}, 1, false)
	holder.ProcParams = []interface{}{int64(42)}
	withEstimate(holder, 0, stmtA, true)

	candidate := txn.NewTransaction(txn.ID{Seq: 2}, 0, map[uint32]bool{0: true}, 2, false)
	candidate.ProcParams = []interface{}{int64(42)}
	withEstimate(candidate, 0, stmtB, true)

	assert.False(t, checker.CanExecute(holder, candidate, 0))
}

func TestMarkovCheckerAdmitsWhenKeysDiffer(t *testing.T) {
	cat := buildMarkovCatalog()
	checker := NewMarkovChecker(cat)

	stmtA := catalog.StatementID{Proc: 1, Idx: 0}
	stmtB := catalog.StatementID{Proc: 2, Idx: 0}

	holder := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true}, 1, false)
	holder.ProcParams = []interface{}{int64(42)}
	withEstimate(holder, 0, stmtA, true)

	candidate := txn.NewTransaction(txn.ID{Seq: 2}, 0, map[uint32]bool{0: true}, 2, false)
	candidate.ProcParams = []interface{}{int64(7)}
	withEstimate(candidate, 0, stmtB, true)

	assert.True(t, checker.CanExecute(holder, candidate, 0))
}

func TestMarkovCheckerRejectsWithoutEstimatorState(t *testing.T) {
	cat := buildMarkovCatalog()
	checker := NewMarkovChecker(cat)

	holder := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true}, 1, false)
	candidate := txn.NewTransaction(txn.ID{Seq: 2}, 0, map[uint32]bool{0: true}, 2, false)

	assert.False(t, checker.CanExecute(holder, candidate, 0))
}

func TestMarkovCheckerAdmitsBothReadOnly(t *testing.T) {
	cat := buildMarkovCatalog()
	checker := NewMarkovChecker(cat)

	stmtA := catalog.StatementID{Proc: 1, Idx: 0}
	stmtB := catalog.StatementID{Proc: 2, Idx: 0}

	holder := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true}, 1, true)
	withEstimate(holder, 0, stmtA, false)

	candidate := txn.NewTransaction(txn.ID{Seq: 2}, 0, map[uint32]bool{0: true}, 2, true)
	withEstimate(candidate, 0, stmtB, false)

	assert.True(t, checker.CanExecute(holder, candidate, 0))
}
