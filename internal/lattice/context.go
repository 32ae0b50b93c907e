// Package lattice groups indexed nodes into concept families by formal
// concept analysis over the node × prime incidence table.
//
// A family is a maximal set of nodes together with the maximal set of primes
// they all contain. For factorial signatures the prime supports are nested,
// so the families form a chain; arbitrary signature sets produce a general
// lattice.
package lattice

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/resonance/internal/graph"
)

// FormalContext is a bitmap-based incidence table for Formal Concept Analysis.
// Column-major storage: each prime has a bitmap of the objects containing it.
type FormalContext struct {
	// Objects holds the node n for each object index.
	Objects []uint64
	// Primes holds the prime for each attribute index, ascending.
	Primes []uint32

	columns []*roaring.Bitmap // columns[j] = objects whose signature contains Primes[j]
	rows    []*roaring.Bitmap // rows[i] = attributes of object i (lazy)
}

// FromIndex builds the context of every node in q, objects in ascending n.
func FromIndex(q graph.Querier) *FormalContext {
	nodes := q.Nodes()
	objects := make([]uint64, len(nodes))
	primeSet := make(map[uint32]struct{})
	for i, n := range nodes {
		objects[i] = n.N
		for _, p := range n.Signature().Primes() {
			primeSet[p] = struct{}{}
		}
	}
	primes := make([]uint32, 0, len(primeSet))
	for p := range primeSet {
		primes = append(primes, p)
	}
	sort.Slice(primes, func(i, j int) bool { return primes[i] < primes[j] })

	attrIndex := make(map[uint32]int, len(primes))
	for j, p := range primes {
		attrIndex[p] = j
	}
	ctx := &FormalContext{
		Objects: objects,
		Primes:  primes,
		columns: make([]*roaring.Bitmap, len(primes)),
	}
	for j := range primes {
		ctx.columns[j] = roaring.New()
	}
	for i, n := range nodes {
		for _, p := range n.Signature().Primes() {
			ctx.columns[attrIndex[p]].Add(uint32(i))
		}
	}
	return ctx
}

// NewFormalContext creates a context from a pre-built incidence table.
// incidence[i][j] reports whether object i contains primes[j].
func NewFormalContext(objects []uint64, primes []uint32, incidence [][]bool) *FormalContext {
	ctx := &FormalContext{
		Objects: objects,
		Primes:  primes,
		columns: make([]*roaring.Bitmap, len(primes)),
	}
	for j := range primes {
		ctx.columns[j] = roaring.New()
	}
	for i, row := range incidence {
		for j, has := range row {
			if has {
				ctx.columns[j].Add(uint32(i))
			}
		}
	}
	return ctx
}

// AttrDeriv computes B': the objects containing every prime in B.
func (ctx *FormalContext) AttrDeriv(attrs *roaring.Bitmap) *roaring.Bitmap {
	if attrs.IsEmpty() {
		all := roaring.New()
		all.AddRange(0, uint64(len(ctx.Objects)))
		return all
	}
	var out *roaring.Bitmap
	it := attrs.Iterator()
	for it.HasNext() {
		j := it.Next()
		if int(j) >= len(ctx.columns) {
			return roaring.New()
		}
		if out == nil {
			out = ctx.columns[j].Clone()
		} else {
			out.And(ctx.columns[j])
		}
	}
	return out
}

// ObjectDeriv computes A': the primes shared by every object in A.
func (ctx *FormalContext) ObjectDeriv(objs *roaring.Bitmap) *roaring.Bitmap {
	if objs.IsEmpty() {
		all := roaring.New()
		all.AddRange(0, uint64(len(ctx.Primes)))
		return all
	}
	ctx.ensureRows()
	var out *roaring.Bitmap
	it := objs.Iterator()
	for it.HasNext() {
		i := it.Next()
		if int(i) >= len(ctx.rows) {
			return roaring.New()
		}
		if out == nil {
			out = ctx.rows[i].Clone()
		} else {
			out.And(ctx.rows[i])
		}
	}
	return out
}

// Closure computes B'' = (B')'.
func (ctx *FormalContext) Closure(attrs *roaring.Bitmap) *roaring.Bitmap {
	return ctx.ObjectDeriv(ctx.AttrDeriv(attrs))
}

func (ctx *FormalContext) ensureRows() {
	if ctx.rows != nil {
		return
	}
	ctx.rows = make([]*roaring.Bitmap, len(ctx.Objects))
	for i := range ctx.rows {
		ctx.rows[i] = roaring.New()
	}
	for j, col := range ctx.columns {
		it := col.Iterator()
		for it.HasNext() {
			ctx.rows[it.Next()].Add(uint32(j))
		}
	}
}
