package lattice

import (
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/resonance/internal/graph"
	"github.com/agentic-research/resonance/internal/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextClosure_Textbook(t *testing.T) {
	// 3-object, 3-attribute cross table (8 concepts):
	//      2  3  5
	// 0:   1  1  0
	// 1:   1  0  1
	// 2:   0  1  1
	ctx := NewFormalContext([]uint64{10, 11, 12}, []uint32{2, 3, 5}, [][]bool{
		{true, true, false},
		{true, false, true},
		{false, true, true},
	})

	concepts := NextClosure(ctx)
	require.Len(t, concepts, 8)

	// lectic order of intent: {}, {5}, {3}, {3,5}, {2}, {2,5}, {2,3}, {2,3,5}
	expected := []struct {
		intent []uint32
		extent []uint32
	}{
		{intent: nil, extent: []uint32{0, 1, 2}},
		{intent: []uint32{2}, extent: []uint32{1, 2}},
		{intent: []uint32{1}, extent: []uint32{0, 2}},
		{intent: []uint32{1, 2}, extent: []uint32{2}},
		{intent: []uint32{0}, extent: []uint32{0, 1}},
		{intent: []uint32{0, 2}, extent: []uint32{1}},
		{intent: []uint32{0, 1}, extent: []uint32{0}},
		{intent: []uint32{0, 1, 2}, extent: nil},
	}

	for i, exp := range expected {
		c := concepts[i]
		if exp.intent == nil {
			assert.True(t, c.Intent.IsEmpty(), "concept %d intent should be empty", i)
		} else {
			assert.Equal(t, exp.intent, c.Intent.ToArray(), "concept %d intent mismatch", i)
		}
		if exp.extent == nil {
			assert.True(t, c.Extent.IsEmpty(), "concept %d extent should be empty", i)
		} else {
			assert.Equal(t, exp.extent, c.Extent.ToArray(), "concept %d extent mismatch", i)
		}
	}
}

func TestNextClosure_Homogeneous(t *testing.T) {
	ctx := NewFormalContext([]uint64{1, 2, 3}, []uint32{2, 3}, [][]bool{
		{true, true},
		{true, true},
		{true, true},
	})

	concepts := NextClosure(ctx)
	require.Len(t, concepts, 1)
	assert.Equal(t, uint64(3), concepts[0].Extent.GetCardinality())
	assert.Equal(t, uint64(2), concepts[0].Intent.GetCardinality())
}

func TestNextClosure_NoPrimes(t *testing.T) {
	ctx := NewFormalContext([]uint64{0, 1}, nil, [][]bool{{}, {}})
	assert.Empty(t, NextClosure(ctx))
}

func TestFamilies_FactorialChain(t *testing.T) {
	idx := graph.NewIndex()
	p := signature.NewLegendre(100)
	for n := uint64(1); n <= 10; n++ {
		node, err := graph.NewNode(n, p)
		require.NoError(t, err)
		require.NoError(t, idx.Insert(node))
	}

	ctx := FromIndex(idx)
	assert.Equal(t, []uint32{2, 3, 5, 7}, ctx.Primes)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, ctx.Objects)

	families := Families(ctx)
	require.Len(t, families, 5)

	assert.Empty(t, families[0].Primes)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, families[0].Nodes)

	assert.Equal(t, []uint32{2}, families[1].Primes)
	assert.Equal(t, []uint64{2, 3, 4, 5, 6, 7, 8, 9, 10}, families[1].Nodes)

	assert.Equal(t, []uint32{2, 3}, families[2].Primes)
	assert.Equal(t, []uint64{3, 4, 5, 6, 7, 8, 9, 10}, families[2].Nodes)

	assert.Equal(t, []uint32{2, 3, 5}, families[3].Primes)
	assert.Equal(t, []uint64{5, 6, 7, 8, 9, 10}, families[3].Nodes)

	assert.Equal(t, []uint32{2, 3, 5, 7}, families[4].Primes)
	assert.Equal(t, []uint64{7, 8, 9, 10}, families[4].Nodes)
}

func TestClosure_Derivations(t *testing.T) {
	ctx := NewFormalContext([]uint64{4, 6, 9}, []uint32{2, 3}, [][]bool{
		{true, false},
		{true, true},
		{false, true},
	})

	both := ctx.AttrDeriv(bitmapOf(0, 1))
	assert.Equal(t, []uint32{1}, both.ToArray())

	shared := ctx.ObjectDeriv(bitmapOf(0, 1))
	assert.Equal(t, []uint32{0}, shared.ToArray())

	assert.Equal(t, []uint32{0}, ctx.Closure(bitmapOf(0)).ToArray())
}

func bitmapOf(vals ...uint32) *roaring.Bitmap {
	return roaring.BitmapOf(vals...)
}
