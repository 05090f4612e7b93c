// Package txn implements the transaction handle hierarchy: AbstractTransaction
// (shared state), LocalTransaction (client-submitted), RemoteTransaction
// (received via init RPC from another site), their per-partition
// touched-table bitmaps, and per-partition typed object pools.
package txn

import "go.uber.org/atomic"

// ID is a cluster-unique transaction identifier. Ordering is the global
// commit-precedence order: a smaller Seq sorts first; ties (which occur
// between transactions from different sites, since each site's Generator
// numbers its own transactions from 1) break on SiteID.
type ID struct {
	Seq    uint64
	SiteID uint32
}

// Less reports whether id sorts before other in the init-queue total
// order.
func (id ID) Less(other ID) bool {
	if id.Seq != other.Seq {
		return id.Seq < other.Seq
	}
	return id.SiteID < other.SiteID
}

func (id ID) Equal(other ID) bool {
	return id.Seq == other.Seq && id.SiteID == other.SiteID
}

// Generator is the single well-known monotonic id generator owned by a
// site, mapping the source's global-mutable static id counter onto a
// process-wide component.
type Generator struct {
	siteID uint32
	next   atomic.Uint64
}

func NewGenerator(siteID uint32) *Generator {
	return &Generator{siteID: siteID}
}

func (g *Generator) Next() ID {
	return ID{Seq: g.next.Inc(), SiteID: g.siteID}
}
