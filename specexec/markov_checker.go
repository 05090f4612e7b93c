package specexec

import (
	"reflect"

	"github.com/sdhost/h-store/catalog"
	"github.com/sdhost/h-store/estimate"
	"github.com/sdhost/h-store/txn"
)

// pairKey indexes the catalog's declared ConflictPairs by (stmt0, stmt1),
// mirroring the per-statement StatementCache map built by
// MarkovConflictChecker's constructor in the source.
type pairKey struct {
	s0, s1 catalog.StatementID
}

// MarkovChecker is the query-estimate conflict checker: it compares the
// actual bound primary-key values of each side's forecast queries rather
// than relying on static table-level conflict bits. Ported from
// edu.brown.hstore.specexec.MarkovConflictChecker. It does not read
// QueryPrediction.StatementCounter: key bindings are resolved directly
// against each side's own procedure parameters, so the source's
// queries0/queries1 statement-counter asymmetry has no counterpart here.
type MarkovChecker struct {
	cat      *catalog.Catalog
	pairs    map[pairKey]*catalog.ConflictPair
	disabled bool
}

// NewMarkovChecker builds the pair index once at startup; disabled mirrors
// the Java `disabled` field and is true only when the catalog declares no
// ConflictPairs at all. A catalog with conflict pairs but no KeyBindings
// leaves the checker enabled.
func NewMarkovChecker(cat *catalog.Catalog) *MarkovChecker {
	c := &MarkovChecker{cat: cat, pairs: make(map[pairKey]*catalog.ConflictPair)}
	anyBindings := false
	for _, cp := range cat.Conflicts {
		c.pairs[pairKey{cp.Stmt0, cp.Stmt1}] = cp
		if len(cp.KeyBindings) > 0 {
			anyBindings = true
		}
	}
	c.disabled = !anyBindings && len(cat.Conflicts) == 0
	return c
}

func (c *MarkovChecker) ShouldIgnoreProcedure(proc catalog.ProcedureID) bool {
	return c.disabled
}

func (c *MarkovChecker) Disabled() bool { return c.disabled }

// CanExecute compares the actual forecast queries on both sides. Missing
// estimator state on either side means "cannot prove safe" -> reject.
func (c *MarkovChecker) CanExecute(holder, candidate *txn.Transaction, partition uint32) bool {
	if c.disabled {
		return false
	}

	dtxnEst := holder.EstimatorState.LastEstimate
	tsEst := candidate.EstimatorState.InitialEstimate
	if !dtxnEst.HasQueryEstimate() || !tsEst.HasQueryEstimate() {
		return false
	}

	if dtxnEst.IsReadOnlyPartition(partition) && tsEst.IsReadOnlyPartition(partition) {
		return true
	}

	queries0 := dtxnEst.EstimatedQueries(partition)
	queries1 := tsEst.EstimatedQueries(partition)
	return c.canExecuteQueries(holder, queries0, candidate, queries1)
}

// canExecuteQueries walks every (q0, q1) cross-pair. A registered ALWAYS
// pair rejects outright; otherwise the candidate is rejected only if every
// key binding for some conflicting pair resolves to equal values on both
// sides (the queries would touch the same rows).
func (c *MarkovChecker) canExecuteQueries(t0 *txn.Transaction, queries0 []estimate.QueryPrediction, t1 *txn.Transaction, queries1 []estimate.QueryPrediction) bool {
	for _, q0 := range queries0 {
		for _, q1 := range queries1 {
			cp, ok := c.pairs[pairKey{q0.Statement, q1.Statement}]
			if !ok {
				continue
			}
			if cp.Always {
				return false
			}
			if c.bindingsEqual(t0.ProcParams, t1.ProcParams, cp.KeyBindings) {
				return false
			}
		}
	}
	return true
}

func (c *MarkovChecker) bindingsEqual(params0, params1 []interface{}, bindings []catalog.KeyBinding) bool {
	if len(bindings) == 0 {
		// A declared conflict pair with no key bindings to disambiguate
		// cannot be proven disjoint; treat like ALWAYS.
		return true
	}
	for _, kb := range bindings {
		v0 := extractParam(params0, kb.Param0)
		v1 := extractParam(params1, kb.Param1)
		if !equalValues(v0, v1) {
			return false
		}
	}
	return true
}

func extractParam(params []interface{}, ref catalog.ProcParamRef) interface{} {
	if ref.Index < 0 || ref.Index >= len(params) {
		return nil
	}
	v := params[ref.Index]
	if !ref.IsArray {
		return v
	}
	arr, ok := v.([]interface{})
	if !ok || ref.ArrayIndex < 0 || ref.ArrayIndex >= len(arr) {
		return nil
	}
	return arr[ref.ArrayIndex]
}

func equalValues(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}
