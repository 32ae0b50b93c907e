package graph

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/agentic-research/resonance/internal/resonance"
	"github.com/agentic-research/resonance/internal/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(t *testing.T, lo, hi uint64) *Index {
	t.Helper()
	x := NewIndex()
	require.NoError(t, x.InsertRange(context.Background(), signature.NewLegendre(10000), lo, hi))
	return x
}

func bruteNeighbors(x *Index, n uint64, k int, threshold float64) []Neighbor {
	self, _ := x.Get(n)
	var out []Neighbor
	for _, other := range x.Nodes() {
		if other.N == n {
			continue
		}
		sim := resonance.Similarity(self.Signature(), other.Signature())
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

func ns(nbs []Neighbor) []uint64 {
	out := make([]uint64, len(nbs))
	for i, nb := range nbs {
		out[i] = nb.Node.N
	}
	return out
}

func TestIndex_InsertAndGet(t *testing.T) {
	x := buildIndex(t, 1, 10)
	assert.Equal(t, 10, x.Len())

	n, err := x.Get(4)
	require.NoError(t, err)
	assert.Equal(t, map[uint32]uint32{2: 3, 3: 1}, n.Signature().Map())
	assert.Equal(t, 2, n.Depth)
	assert.Equal(t, "3.1", n.Key().String())

	_, err = x.Get(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndex_InsertDuplicateIsNotOverwrite(t *testing.T) {
	x := buildIndex(t, 1, 5)
	before, err := x.Get(4)
	require.NoError(t, err)

	fake := NodeFromSignature(4, signature.MustNew(signature.Factor{Prime: 2, Exp: 1}))
	err = x.Insert(fake)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	after, err := x.Get(4)
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.Equal(t, 5, x.Len())
}

func TestIndex_NodesOrdered(t *testing.T) {
	x := NewIndex()
	p := signature.NewLegendre(0)
	for _, n := range []uint64{9, 3, 7, 1} {
		node, err := NewNode(n, p)
		require.NoError(t, err)
		require.NoError(t, x.Insert(node))
	}
	var got []uint64
	for _, n := range x.Nodes() {
		got = append(got, n.N)
	}
	assert.Equal(t, []uint64{1, 3, 7, 9}, got)
}

func TestNeighbors_OrderingAndTruncation(t *testing.T) {
	x := buildIndex(t, 2, 12)

	nbs, err := x.Neighbors(context.Background(), 6, 3, 0.5)
	require.NoError(t, err)
	require.Len(t, nbs, 3)
	// 7! differs from 6! by one factor of 7
	assert.Equal(t, uint64(7), nbs[0].Node.N)
	assert.InDelta(t, 7.0/8.0, nbs[0].Similarity, 1e-12)
	for i := 1; i < len(nbs); i++ {
		assert.GreaterOrEqual(t, nbs[i-1].Similarity, nbs[i].Similarity)
	}
	assert.Equal(t, ns(bruteNeighbors(x, 6, 3, 0.5)), ns(nbs))
}

func TestNeighbors_ThresholdIsExclusive(t *testing.T) {
	x := buildIndex(t, 4, 6)
	// sim(4!, 6!) = 4/7 exactly
	nbs, err := x.Neighbors(context.Background(), 4, 0, 4.0/7.0)
	require.NoError(t, err)
	assert.NotContains(t, ns(nbs), uint64(6))
}

func TestNeighbors_MatchesBruteForce(t *testing.T) {
	x := buildIndex(t, 0, 120)
	ctx := context.Background()
	for _, n := range []uint64{0, 1, 2, 5, 17, 60, 119} {
		for _, th := range []float64{-1, 0, 0.1, 0.5, 0.8, 0.95} {
			for _, k := range []int{0, 1, 5} {
				got, err := x.Neighbors(ctx, n, k, th)
				require.NoError(t, err)
				want := bruteNeighbors(x, n, k, th)
				assert.Equal(t, ns(want), ns(got), "n=%d t=%v k=%d", n, th, k)
			}
		}
	}
}

func TestNeighbors_EmptySignatures(t *testing.T) {
	x := buildIndex(t, 0, 4)
	nbs, err := x.Neighbors(context.Background(), 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, nbs, 1)
	assert.Equal(t, uint64(1), nbs[0].Node.N)
	assert.Equal(t, 1.0, nbs[0].Similarity)
}

func TestNeighbors_NotFound(t *testing.T) {
	x := buildIndex(t, 1, 3)
	_, err := x.Neighbors(context.Background(), 40, 1, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNeighbors_CachePurgedOnInsert(t *testing.T) {
	x := buildIndex(t, 2, 6)
	ctx := context.Background()

	before, err := x.Neighbors(ctx, 6, 0, 0.8)
	require.NoError(t, err)
	assert.NotContains(t, ns(before), uint64(7))

	seven, err := NewNode(7, signature.NewLegendre(0))
	require.NoError(t, err)
	require.NoError(t, x.Insert(seven))

	after, err := x.Neighbors(ctx, 6, 0, 0.8)
	require.NoError(t, err)
	assert.Contains(t, ns(after), uint64(7))
}

func TestNeighbors_ResultIsACopy(t *testing.T) {
	x := buildIndex(t, 2, 10)
	ctx := context.Background()
	first, err := x.Neighbors(ctx, 5, 0, 0.3)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	first[0] = Neighbor{}

	second, err := x.Neighbors(ctx, 5, 0, 0.3)
	require.NoError(t, err)
	assert.NotNil(t, second[0].Node)
}

func TestPrefixSearch(t *testing.T) {
	x := buildIndex(t, 1, 12)
	// 4! = [3 1], 5! = [3 1 1]
	var got []uint64
	for _, n := range x.PrefixSearch([]uint32{3, 1}) {
		got = append(got, n.N)
	}
	assert.Equal(t, []uint64{4, 5}, got)

	assert.Len(t, x.PrefixSearch(nil), 12)
	assert.Empty(t, x.PrefixSearch([]uint32{99}))

	sib, err := x.PrefixSiblings(5, 2)
	require.NoError(t, err)
	require.Len(t, sib, 1)
	assert.Equal(t, uint64(4), sib[0].N)
}

func TestPrimeSupport(t *testing.T) {
	x := buildIndex(t, 1, 12)
	assert.Equal(t, []uint64{5, 6, 7, 8, 9, 10, 11, 12}, x.PrimeSupport(5))
	assert.Equal(t, []uint64{11, 12}, x.PrimeSupport(11))
	assert.Empty(t, x.PrimeSupport(13))
}

func TestRangeAndNearest(t *testing.T) {
	x := buildIndex(t, 1, 30)
	for _, n := range x.Range(10, 20, 0, 100) {
		assert.GreaterOrEqual(t, n.Mass(), uint64(10))
		assert.LessOrEqual(t, n.Mass(), uint64(20))
	}
	var brute int
	for _, n := range x.Nodes() {
		if n.Mass() >= 10 && n.Mass() <= 20 {
			brute++
		}
	}
	assert.Len(t, x.Range(10, 20, 0, 100), brute)

	near, err := x.Nearest(10, 2)
	require.NoError(t, err)
	require.Len(t, near, 2)
	for _, n := range near {
		assert.NotEqual(t, uint64(10), n.N)
	}
	// 9! and 11! are the closest masses to 10!
	got := []uint64{near[0].N, near[1].N}
	assert.ElementsMatch(t, []uint64{9, 11}, got)
}

func TestTraverse_VisitsEachNodeOnce(t *testing.T) {
	x := buildIndex(t, 1, 40)
	counts := map[uint64]int{}
	res, err := x.Traverse(context.Background(), 10, TraverseOptions{DepthLimit: 10, Threshold: 0}, func(n *Node, depth int) error {
		counts[n.N]++
		return nil
	})
	require.NoError(t, err)
	for n, c := range counts {
		assert.Equal(t, 1, c, "node %d", n)
	}
	assert.Len(t, res.Visited, len(counts))
	assert.Equal(t, uint64(10), res.Visited[0])
	// threshold 0 links every n ≥ 2; 1! shares no prime with anything
	assert.Len(t, res.Visited, 39)
	assert.Equal(t, BoundNone, res.Bound)
	assert.NoError(t, res.Err())
}

func TestTraverse_Deterministic(t *testing.T) {
	x := buildIndex(t, 1, 60)
	opts := TraverseOptions{DepthLimit: 3, Threshold: 0.7, FanOut: 3}
	a, err := x.Traverse(context.Background(), 20, opts, nil)
	require.NoError(t, err)
	b, err := x.Traverse(context.Background(), 20, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTraverse_DepthZero(t *testing.T) {
	x := buildIndex(t, 1, 10)
	res, err := x.Traverse(context.Background(), 5, TraverseOptions{DepthLimit: 0, Threshold: 0.3}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, res.Visited)
	assert.True(t, res.Bound.Has(BoundDepth))
	assert.ErrorIs(t, res.Err(), ErrTraversalBoundExceeded)
}

func TestTraverse_ExhaustedNaturally(t *testing.T) {
	x := buildIndex(t, 1, 10)
	// nothing exceeds similarity 1
	res, err := x.Traverse(context.Background(), 5, TraverseOptions{DepthLimit: 5, Threshold: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, res.Visited)
	assert.Equal(t, BoundNone, res.Bound)
}

func TestTraverse_DepthRecorded(t *testing.T) {
	x := buildIndex(t, 1, 50)
	depths := map[uint64]int{}
	res, err := x.Traverse(context.Background(), 25, TraverseOptions{DepthLimit: 2, Threshold: 0.85, FanOut: 2}, func(n *Node, depth int) error {
		depths[n.N] = depth
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, res.MaxDepth, 2)
	assert.Equal(t, 0, depths[25])
	for _, d := range depths {
		assert.LessOrEqual(t, d, 2)
	}
}

// withinHops is the breadth-first set of nodes at most hops edges from start.
func withinHops(t *testing.T, x *Index, start uint64, hops int, threshold float64) map[uint64]bool {
	t.Helper()
	seen := map[uint64]bool{start: true}
	level := []uint64{start}
	for h := 0; h < hops; h++ {
		var next []uint64
		for _, n := range level {
			nbs, err := x.Neighbors(context.Background(), n, 0, threshold)
			require.NoError(t, err)
			for _, nb := range nbs {
				if !seen[nb.Node.N] {
					seen[nb.Node.N] = true
					next = append(next, nb.Node.N)
				}
			}
		}
		level = next
	}
	return seen
}

func TestTraverse_MissedNodesFlagDepth(t *testing.T) {
	x := buildIndex(t, 1, 60)
	for _, limit := range []int{1, 2, 3, 4} {
		res, err := x.Traverse(context.Background(), 30, TraverseOptions{DepthLimit: limit, Threshold: 0.8}, nil)
		require.NoError(t, err)

		visited := map[uint64]bool{}
		for _, n := range res.Visited {
			visited[n] = true
		}
		missed := 0
		for n := range withinHops(t, x, 30, limit, 0.8) {
			if !visited[n] {
				missed++
			}
		}
		if missed > 0 {
			assert.True(t, res.Bound.Has(BoundDepth), "limit %d missed %d nodes", limit, missed)
		}
		if limit == 1 {
			assert.Zero(t, missed, "direct neighbors are always visited")
		}
		if res.Bound == BoundNone {
			assert.Zero(t, missed)
		}
	}
}

func TestTraverse_FanOutAndVisitBounds(t *testing.T) {
	x := buildIndex(t, 1, 40)
	ctx := context.Background()

	res, err := x.Traverse(ctx, 20, TraverseOptions{DepthLimit: 1, Threshold: 0, FanOut: 2}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Visited, 3)
	assert.True(t, res.Bound.Has(BoundFanOut))

	res, err = x.Traverse(ctx, 20, TraverseOptions{DepthLimit: 5, Threshold: 0, MaxVisits: 4}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Visited, 4)
	assert.True(t, res.Bound.Has(BoundVisits))
}

func TestTraverse_VisitorErrorAborts(t *testing.T) {
	x := buildIndex(t, 1, 20)
	stop := errors.New("stop")
	calls := 0
	_, err := x.Traverse(context.Background(), 10, TraverseOptions{DepthLimit: 4}, func(n *Node, depth int) error {
		calls++
		if calls == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, calls)
}

func TestTraverse_Canceled(t *testing.T) {
	x := buildIndex(t, 1, 20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := x.Traverse(ctx, 10, TraverseOptions{DepthLimit: 4}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTraverse_StartNotFound(t *testing.T) {
	x := buildIndex(t, 1, 5)
	_, err := x.Traverse(context.Background(), 77, TraverseOptions{DepthLimit: 1}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndex_ConcurrentReaders(t *testing.T) {
	x := buildIndex(t, 1, 80)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := uint64(10 + i)
			_, err := x.Neighbors(ctx, n, 5, 0.6)
			assert.NoError(t, err)
			_, err = x.Traverse(ctx, n, TraverseOptions{DepthLimit: 2, Threshold: 0.8}, nil)
			assert.NoError(t, err)
			_ = x.PrefixSearch([]uint32{uint32(i)})
		}(i)
	}
	// one writer interleaved with the readers
	wg.Add(1)
	go func() {
		defer wg.Done()
		node, err := NewNode(200, signature.NewLegendre(0))
		assert.NoError(t, err)
		assert.NoError(t, x.Insert(node))
	}()
	wg.Wait()
	assert.Equal(t, 81, x.Len())
}

func TestEdges_Undirected(t *testing.T) {
	x := buildIndex(t, 2, 10)
	edges, err := x.Edges(context.Background(), 0.8, 0)
	require.NoError(t, err)
	require.NotEmpty(t, edges)
	for _, e := range edges {
		assert.Less(t, e.A, e.B)
		sim, err := x.Edge(e.A, e.B)
		require.NoError(t, err)
		assert.Equal(t, sim, e.Similarity)
		assert.Greater(t, e.Similarity, 0.8)
	}
}

func TestHotSwapIndex(t *testing.T) {
	a := buildIndex(t, 1, 5)
	b := buildIndex(t, 1, 9)
	h := NewHotSwapIndex(a)
	assert.Equal(t, 5, h.Len())
	prev := h.Swap(b)
	assert.Same(t, a, prev)
	assert.Equal(t, 9, h.Len())
}

func TestPositionKey_Parse(t *testing.T) {
	k, err := ParsePositionKey("4.2.1")
	require.NoError(t, err)
	assert.Equal(t, PositionKey{4, 2, 1}, k)
	assert.True(t, k.HasPrefix([]uint32{4, 2}))
	assert.False(t, k.HasPrefix([]uint32{4, 3}))

	_, err = ParsePositionKey("4.x")
	assert.Error(t, err)
}
