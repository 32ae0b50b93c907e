package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/resonance/internal/resonance"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Neighbor is a computed edge: a node and its similarity to the query node.
type Neighbor struct {
	Node       *Node
	Similarity float64
}

type neighborKey struct {
	n         uint64
	k         int
	threshold float64
}

// Neighbors returns the nodes whose similarity to n exceeds threshold,
// ordered by descending similarity then ascending n, truncated to k
// (k ≤ 0 means no limit).
//
// Similarity is resonance.Similarity (weighted Jaccard). Candidates are
// drawn from the prime-support bitmaps of n's primes intersected with the
// R-tree mass window [t·m, m/t], which bounds every pair that can exceed t.
func (x *Index) Neighbors(ctx context.Context, n uint64, k int, threshold float64) ([]Neighbor, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "graph.Neighbors",
		trace.WithAttributes(
			attribute.Int64("n", int64(n)),
			attribute.Int("k", k),
			attribute.Float64("threshold", threshold),
		),
	)
	defer span.End()

	key := neighborKey{n: n, k: k, threshold: threshold}
	if cached, ok := x.cache.Get(key); ok {
		recordCacheHit(ctx)
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cloneNeighbors(cached), nil
	}

	x.mu.RLock()
	id, ok := x.byN[n]
	if !ok {
		x.mu.RUnlock()
		return nil, fmt.Errorf("%w: %d", ErrNotFound, n)
	}
	out := x.neighborsLocked(id, k, threshold)
	// cache under the read lock so a concurrent Insert purges after us
	x.cache.Add(key, out)
	x.mu.RUnlock()

	span.SetAttributes(attribute.Int("result_count", len(out)))
	recordQuery(ctx, "neighbors", start, len(out))
	return cloneNeighbors(out), nil
}

// neighborsLocked must be called with x.mu held (read or write).
func (x *Index) neighborsLocked(id uint32, k int, threshold float64) []Neighbor {
	self := x.arena[id]
	candidates := x.candidates(self, threshold)
	candidates.Remove(id)

	out := make([]Neighbor, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		other := x.arena[it.Next()]
		sim := resonance.Similarity(self.sig, other.sig)
		if sim > threshold {
			out = append(out, Neighbor{Node: other, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Node.N < out[j].Node.N
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// candidates returns a fresh bitmap of ids that may exceed threshold.
func (x *Index) candidates(self *Node, threshold float64) *roaring.Bitmap {
	if threshold < 0 {
		// every pair has similarity ≥ 0
		return x.all.Clone()
	}
	if self.sig.IsEmpty() {
		// sim(∅, ∅) = 1 and sim(∅, x) = 0 otherwise
		return x.emptySupport.Clone()
	}

	// sim > 0 requires a shared prime
	out := roaring.New()
	for _, p := range self.sig.Primes() {
		if bm, ok := x.primeSupport[p]; ok {
			out.Or(bm)
		}
	}

	if threshold > 0 {
		m := float64(self.Mass())
		window := x.spatial.window(threshold*m, m/threshold, 0, x.spatial.maxWidth)
		out.And(window)
	}
	return out
}

// Edge returns the similarity between two indexed nodes.
func (x *Index) Edge(a, b uint64) (float64, error) {
	na, err := x.Get(a)
	if err != nil {
		return 0, err
	}
	nb, err := x.Get(b)
	if err != nil {
		return 0, err
	}
	return resonance.Similarity(na.sig, nb.sig), nil
}

// EdgeRecord is one undirected computed edge, A < B.
type EdgeRecord struct {
	A, B       uint64
	Similarity float64
}

// Edges lists every undirected edge whose similarity exceeds threshold,
// keeping at most k per node (k ≤ 0 means no limit), ordered by (A, B).
func (x *Index) Edges(ctx context.Context, threshold float64, k int) ([]EdgeRecord, error) {
	seen := make(map[[2]uint64]bool)
	var out []EdgeRecord
	for _, n := range x.Nodes() {
		nbs, err := x.Neighbors(ctx, n.N, k, threshold)
		if err != nil {
			return nil, err
		}
		for _, nb := range nbs {
			a, b := n.N, nb.Node.N
			if a > b {
				a, b = b, a
			}
			pair := [2]uint64{a, b}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			out = append(out, EdgeRecord{A: a, B: b, Similarity: nb.Similarity})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out, nil
}

func cloneNeighbors(in []Neighbor) []Neighbor {
	out := make([]Neighbor, len(in))
	copy(out, in)
	return out
}
