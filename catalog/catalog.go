// Package catalog holds the static catalog data consumed by the conflict
// checkers: procedures, tables, and the declared ConflictPair relation
// between procedures. Ported from org.voltdb.catalog's Procedure/Table/
// ConflictPair/ConflictSet and edu.brown.catalog.conflicts.ConflictSetUtil.
package catalog

// ProcedureID identifies a stored procedure within a catalog. IDs are
// dense and start at zero so they can index directly into bitsets.
type ProcedureID int

// TableID identifies a table within a catalog.
type TableID int

// ConflictKind classifies why two procedures might conflict on a table.
type ConflictKind int

const (
	ReadWrite ConflictKind = iota
	WriteWrite
	Always
)

// Table is catalog metadata for one table.
type Table struct {
	ID             TableID
	Name           string
	PrimaryKey     []string
}

// Procedure is catalog metadata for one stored procedure.
type Procedure struct {
	ID       ProcedureID
	Name     string
	ReadOnly bool
}

// ConflictPair is static catalog data: for an ordered pair of procedures,
// the tables involved and the conflict kind.
type ConflictPair struct {
	Proc0    ProcedureID
	Proc1    ProcedureID
	Tables   []TableID
	Kind     ConflictKind
	// Stmt0/Stmt1 identify the specific statements within Proc0/Proc1 that
	// this pair was derived from; used only by the Markov checker.
	Stmt0 StatementID
	Stmt1 StatementID
	// Always mirrors Kind == Always, kept as its own field because the
	// Markov checker short-circuits on it directly (see
	// MarkovConflictChecker.canExecute in original_source).
	Always bool
	// KeyBindings names, for each primary-key column shared by Tables, how
	// to pull the bound value out of each side's procedure parameters.
	// Stands in for the source's ParameterMapping/StmtParameter/Column
	// indirection — see DESIGN.md.
	KeyBindings []KeyBinding
}

// ProcParamRef locates a value within a procedure's flat parameter list:
// Index selects the procedure parameter; when IsArray is set, ArrayIndex
// additionally selects an element within that parameter's array value.
type ProcParamRef struct {
	Index      int
	IsArray    bool
	ArrayIndex int
}

// KeyBinding pairs, for one shared primary-key column, how to extract the
// bound value from each side of a ConflictPair's two procedures.
type KeyBinding struct {
	Param0 ProcParamRef
	Param1 ProcParamRef
}

// StatementID identifies one SQL statement within a procedure.
type StatementID struct {
	Proc ProcedureID
	Idx  int
}

// Catalog is the full static catalog: the procedures, tables, and the
// declared conflict relation between procedure pairs.
type Catalog struct {
	Procedures []*Procedure
	Tables     []*Table
	Conflicts  []*ConflictPair
}

// NumProcedures returns one past the highest procedure id, sizing bitsets.
func (c *Catalog) NumProcedures() int {
	n := 0
	for _, p := range c.Procedures {
		if int(p.ID)+1 > n {
			n = int(p.ID) + 1
		}
	}
	return n
}

// ConflictsBetween returns the declared ConflictPairs from p0 to p1, in
// catalog declaration order.
func (c *Catalog) ConflictsBetween(p0, p1 ProcedureID) []*ConflictPair {
	var out []*ConflictPair
	for _, cp := range c.Conflicts {
		if cp.Proc0 == p0 && cp.Proc1 == p1 {
			out = append(out, cp)
		}
	}
	return out
}

// ConflictsForStatement returns the declared ConflictPairs whose Stmt0 is
// stmt, keyed for fast per-statement lookup by the Markov checker.
func (c *Catalog) ConflictsForStatement(stmt StatementID) []*ConflictPair {
	var out []*ConflictPair
	for _, cp := range c.Conflicts {
		if cp.Stmt0 == stmt {
			out = append(out, cp)
		}
	}
	return out
}
