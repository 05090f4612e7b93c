// Package estimate models the externally-supplied query-estimate forecast
// consumed read-only by the Markov conflict checker. The estimator itself
// — edu.brown.hstore.estimators in H-Store — is an external collaborator;
// this package only defines the shape of its output.
package estimate

import "github.com/sdhost/h-store/catalog"

// QueryPrediction is one (statement, per-partition set) pair in a
// transaction's forecast, plus whether that statement writes.
type QueryPrediction struct {
	Statement        catalog.StatementID
	StatementCounter int
	Partitions       map[uint32]bool
	Write            bool
}

// TransactionEstimate is an ordered list of QueryPredictions for one
// transaction, as produced by a single pass of the external estimator.
type TransactionEstimate struct {
	Queries []QueryPrediction
}

// HasQueryEstimate reports whether this estimate actually carries a query
// forecast (false for an estimate produced before the estimator committed
// to a path, matching TransactionEstimate.hasQueryEstimate in the source).
func (e *TransactionEstimate) HasQueryEstimate() bool {
	return e != nil && e.Queries != nil
}

// EstimatedQueries filters the forecast down to queries that touch
// partition, preserving order.
func (e *TransactionEstimate) EstimatedQueries(partition uint32) []QueryPrediction {
	if e == nil {
		return nil
	}
	var out []QueryPrediction
	for _, q := range e.Queries {
		if q.Partitions[partition] {
			out = append(out, q)
		}
	}
	return out
}

// IsReadOnlyPartition reports whether none of the forecast queries touching
// partition write anything.
func (e *TransactionEstimate) IsReadOnlyPartition(partition uint32) bool {
	for _, q := range e.EstimatedQueries(partition) {
		if q.Write {
			return false
		}
	}
	return true
}

// State holds the evolving sequence of estimates for one transaction: the
// estimate computed at dispatch time (InitialEstimate) and the most recent
// one refined as the transaction executes (LastEstimate).
type State struct {
	InitialEstimate *TransactionEstimate
	LastEstimate    *TransactionEstimate
}
