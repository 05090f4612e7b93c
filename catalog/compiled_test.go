package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildTestCatalog() *Catalog {
	return &Catalog{
		Procedures: []*Procedure{
			{ID: 0, Name: "ReadOnlyProc", ReadOnly: true},
			{ID: 1, Name: "WriteProcA", ReadOnly: false},
			{ID: 2, Name: "WriteProcB", ReadOnly: false},
		},
		Tables: []*Table{{ID: 0, Name: "stock"}},
		Conflicts: []*ConflictPair{
			{Proc0: 1, Proc1: 2, Tables: []TableID{0}, Kind: WriteWrite},
		},
	}
}

func TestCompileIsPure(t *testing.T) {
	cat := buildTestCatalog()
	a := Compile(cat)
	b := Compile(cat)

	assert.Equal(t, a.HasNoConflicts(0), b.HasNoConflicts(0))
	assert.Equal(t, a.HasWWConflict(1, 2), b.HasWWConflict(1, 2))
}

func TestHasNoConflictsForReadOnlyProcedure(t *testing.T) {
	cc := Compile(buildTestCatalog())
	assert.True(t, cc.HasNoConflicts(0))
}

func TestNonReadOnlyProcedureAlwaysConflictsWithItself(t *testing.T) {
	cc := Compile(buildTestCatalog())
	assert.True(t, cc.HasWWConflict(1, 1))
	assert.True(t, cc.HasRWConflict(1, 1))
}

func TestDeclaredWriteWriteConflictIsDirectional(t *testing.T) {
	cc := Compile(buildTestCatalog())
	assert.True(t, cc.HasWWConflict(1, 2))
	assert.False(t, cc.HasWWConflict(2, 1), "only Proc0=1 -> Proc1=2 was declared")
}
