package catalog

// CompiledConflicts precomputes, for each procedure pair, whether an R-W or
// W-W conflict exists at all. Ported from TableConflictChecker's
// constructor: rwConflicts[P0] and wwConflicts[P0] are bitsets over P1.
// Immutable after construction; freely shared across executor threads.
type CompiledConflicts struct {
	size        int
	hasConflicts bitset
	rwConflicts []bitset
	wwConflicts []bitset
}

// Compile is a pure function of the catalog: identical catalogs produce
// identical CompiledConflicts.
func Compile(cat *Catalog) *CompiledConflicts {
	size := cat.NumProcedures()
	cc := &CompiledConflicts{
		size:         size,
		hasConflicts: newBitset(size),
		rwConflicts:  make([]bitset, size),
		wwConflicts:  make([]bitset, size),
	}
	for i := range cc.rwConflicts {
		cc.rwConflicts[i] = newBitset(size)
		cc.wwConflicts[i] = newBitset(size)
	}

	for _, proc := range cat.Procedures {
		idx := int(proc.ID)
		for _, cp := range cat.Conflicts {
			if cp.Proc0 != proc.ID {
				continue
			}
			switch cp.Kind {
			case ReadWrite:
				cc.rwConflicts[idx].set(int(cp.Proc1))
				cc.hasConflicts.set(idx)
			case WriteWrite:
				cc.wwConflicts[idx].set(int(cp.Proc1))
				cc.hasConflicts.set(idx)
			case Always:
				cc.rwConflicts[idx].set(int(cp.Proc1))
				cc.wwConflicts[idx].set(int(cp.Proc1))
				cc.hasConflicts.set(idx)
			}
		}

		// A procedure that is not read-only always conflicts with itself.
		if !proc.ReadOnly {
			cc.rwConflicts[idx].set(idx)
			cc.wwConflicts[idx].set(idx)
			cc.hasConflicts.set(idx)
		}
	}
	return cc
}

// HasNoConflicts is the TableConflictChecker.shouldIgnoreProcedure
// short-circuit: true when proc never conflicts with anything.
func (cc *CompiledConflicts) HasNoConflicts(proc ProcedureID) bool {
	return !cc.hasConflicts.test(int(proc))
}

func (cc *CompiledConflicts) HasRWConflict(p0, p1 ProcedureID) bool {
	return cc.rwConflicts[int(p0)].test(int(p1))
}

func (cc *CompiledConflicts) HasWWConflict(p0, p1 ProcedureID) bool {
	return cc.wwConflicts[int(p0)].test(int(p1))
}
