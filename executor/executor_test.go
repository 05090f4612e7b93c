package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdhost/h-store/catalog"
	"github.com/sdhost/h-store/specexec"
	"github.com/sdhost/h-store/txn"
)

const warehouseTable catalog.TableID = 100

// recordingEngine reports WriteTables for holderProc's fragments (standing
// in for a storage engine that knows it just wrote WAREHOUSE) and nothing
// for every other procedure.
type recordingEngine struct {
	holderProc catalog.ProcedureID
}

func (e *recordingEngine) ExecuteFragment(ctx context.Context, t *txn.Transaction, frag txn.Fragment) (FragmentResult, error) {
	if t.Procedure == e.holderProc {
		return FragmentResult{Payload: frag.Payload, WriteTables: []catalog.TableID{warehouseTable}}, nil
	}
	return FragmentResult{Payload: frag.Payload}, nil
}

func (e *recordingEngine) LoadTable(ctx context.Context, tableName string, data []byte) error { return nil }

func (e *recordingEngine) EvictBlock(ctx context.Context, tableName string, bytesToEvict int64) (int64, error) {
	return 0, nil
}

func buildConflictCatalog() *catalog.Catalog {
	const (
		holderProc    catalog.ProcedureID = 1
		candidateProc catalog.ProcedureID = 2
	)
	return &catalog.Catalog{
		Procedures: []*catalog.Procedure{
			{ID: holderProc, Name: "NewOrder", ReadOnly: false},
			{ID: candidateProc, Name: "StockLevel", ReadOnly: true},
		},
		Tables: []*catalog.Table{
			{ID: warehouseTable, Name: "warehouse"},
		},
		Conflicts: []*catalog.ConflictPair{
			{
				Proc0:  holderProc,
				Proc1:  candidateProc,
				Tables: []catalog.TableID{warehouseTable},
				Kind:   catalog.ReadWrite,
			},
			// Declared in both directions so candidateProc isn't wrongly
			// treated as conflict-free by ShouldIgnoreProcedure, which
			// indexes by each procedure's own Proc0 occurrences.
			{
				Proc0:  candidateProc,
				Proc1:  holderProc,
				Tables: []catalog.TableID{warehouseTable},
				Kind:   catalog.ReadWrite,
			},
		},
	}
}

// TestDispatchRecordsTouchedTablesAndRejectsConflictingCandidate drives
// scenario 4 end to end through Dispatch: a distributed holder writes
// WAREHOUSE, and a single-partition candidate whose procedure conflicts
// with WAREHOUSE is rejected once the executor has recorded that write —
// not by poking TouchedTables directly.
func TestDispatchRecordsTouchedTablesAndRejectsConflictingCandidate(t *testing.T) {
	const (
		holderProc    catalog.ProcedureID = 1
		candidateProc catalog.ProcedureID = 2
	)
	cat := buildConflictCatalog()
	checker := specexec.NewTableChecker(cat)
	engine := &recordingEngine{holderProc: holderProc}
	pe := New(0, engine, checker)
	defer pe.Stop()

	ctx := context.Background()

	holder := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true, 1: true}, holderProc, false)
	_, err := pe.Dispatch(ctx, holder, txn.Fragment{
		PartitionID: 0,
		StatementID: catalog.StatementID{Proc: holderProc, Idx: 0},
	})
	assert.NoError(t, err)
	assert.True(t, holder.TouchedTables(0).IsWritten(warehouseTable), "the executor should have recorded the engine's reported write")
	assert.Equal(t, ModeCommitReadOnly, pe.CurrentMode())

	candidate := txn.NewTransaction(txn.ID{Seq: 2}, 0, map[uint32]bool{0: true}, candidateProc, true)
	_, err = pe.Dispatch(ctx, candidate, txn.Fragment{
		PartitionID: 0,
		StatementID: catalog.StatementID{Proc: candidateProc, Idx: 0},
	})
	assert.Error(t, err, "candidate should be rejected: it conflicts with a table the holder already wrote")
}

// TestDispatchAdmitsNonConflictingSpeculativeCandidate is the control case:
// a read-only candidate whose procedure does not conflict with anything
// the holder touched is admitted and executes speculatively.
func TestDispatchAdmitsNonConflictingSpeculativeCandidate(t *testing.T) {
	const (
		holderProc       catalog.ProcedureID = 1
		unrelatedProc    catalog.ProcedureID = 3
	)
	cat := buildConflictCatalog()
	cat.Procedures = append(cat.Procedures, &catalog.Procedure{ID: unrelatedProc, Name: "OrderStatus", ReadOnly: true})
	checker := specexec.NewTableChecker(cat)
	engine := &recordingEngine{holderProc: holderProc}
	pe := New(0, engine, checker)
	defer pe.Stop()

	ctx := context.Background()

	holder := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true, 1: true}, holderProc, false)
	_, err := pe.Dispatch(ctx, holder, txn.Fragment{PartitionID: 0, StatementID: catalog.StatementID{Proc: holderProc, Idx: 0}})
	assert.NoError(t, err)

	candidate := txn.NewTransaction(txn.ID{Seq: 2}, 0, map[uint32]bool{0: true}, unrelatedProc, true)
	_, err = pe.Dispatch(ctx, candidate, txn.Fragment{PartitionID: 0, StatementID: catalog.StatementID{Proc: unrelatedProc, Idx: 0}})
	assert.NoError(t, err, "a non-conflicting read-only candidate should be admitted speculatively")
}

// TestDispatchWrapsEngineErrorAsUnexpectedAbort confirms a raw engine
// failure is not returned verbatim but surfaced as a typed abort.
func TestDispatchWrapsEngineErrorAsUnexpectedAbort(t *testing.T) {
	cat := buildConflictCatalog()
	checker := specexec.NewTableChecker(cat)
	pe := New(0, &failingEngine{}, checker)
	defer pe.Stop()

	holder := txn.NewTransaction(txn.ID{Seq: 1}, 0, map[uint32]bool{0: true, 1: true}, 1, false)
	_, err := pe.Dispatch(context.Background(), holder, txn.Fragment{PartitionID: 0})
	assert.Error(t, err)
	_, ok := err.(interface{ Unwrap() error })
	assert.True(t, ok, "wrapped error should support Unwrap")
}

type failingEngine struct{}

func (e *failingEngine) ExecuteFragment(ctx context.Context, t *txn.Transaction, frag txn.Fragment) (FragmentResult, error) {
	return FragmentResult{}, assertError{}
}

func (e *failingEngine) LoadTable(ctx context.Context, tableName string, data []byte) error { return nil }

func (e *failingEngine) EvictBlock(ctx context.Context, tableName string, bytesToEvict int64) (int64, error) {
	return 0, nil
}

type assertError struct{}

func (assertError) Error() string { return "engine exploded" }
