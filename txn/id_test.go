package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDLess(t *testing.T) {
	a := ID{Seq: 1, SiteID: 0}
	b := ID{Seq: 2, SiteID: 0}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))

	tie0 := ID{Seq: 5, SiteID: 0}
	tie1 := ID{Seq: 5, SiteID: 1}
	assert.True(t, tie0.Less(tie1))
	assert.False(t, tie1.Less(tie0))
}

func TestIDEqual(t *testing.T) {
	a := ID{Seq: 7, SiteID: 2}
	b := ID{Seq: 7, SiteID: 2}
	c := ID{Seq: 7, SiteID: 3}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestGeneratorMonotonic(t *testing.T) {
	g := NewGenerator(4)
	first := g.Next()
	second := g.Next()
	assert.Equal(t, uint32(4), first.SiteID)
	assert.True(t, first.Less(second))
}
