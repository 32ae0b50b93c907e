package tests

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/resonance/internal/algebra"
	"github.com/agentic-research/resonance/internal/filter"
	"github.com/agentic-research/resonance/internal/graph"
	"github.com/agentic-research/resonance/internal/lattice"
	"github.com/agentic-research/resonance/internal/resonance"
	"github.com/agentic-research/resonance/internal/rules"
	"github.com/agentic-research/resonance/internal/signature"
	"github.com/agentic-research/resonance/internal/store"
)

// fixture is an index over 1..30 and the collection of its top edges.
type fixture struct {
	idx    *graph.Index
	edges  []graph.EdgeRecord
	scorer *resonance.Scorer
	all    *algebra.Collection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	idx := graph.NewIndex()
	require.NoError(t, idx.InsertRange(ctx, signature.NewLegendre(0), 1, 30))

	edges, err := idx.Edges(ctx, 0.5, 3)
	require.NoError(t, err)
	require.NotEmpty(t, edges)

	f := &fixture{idx: idx, edges: edges, scorer: resonance.DefaultScorer(), all: algebra.NewCollection(nil)}
	for _, rec := range edges {
		require.NoError(t, f.all.Insert(f.edge(t, rec.A, rec.B)))
	}
	require.Equal(t, len(edges), f.all.Len())
	return f
}

func (f *fixture) edge(t *testing.T, a, b uint64) *algebra.Edge {
	t.Helper()
	na, err := f.idx.Get(a)
	require.NoError(t, err)
	nb, err := f.idx.Get(b)
	require.NoError(t, err)
	e, err := algebra.NewEdge(f.scorer, na, nb)
	require.NoError(t, err)
	return e
}

func (f *fixture) collection(t *testing.T, pairs ...[2]uint64) *algebra.Collection {
	t.Helper()
	var es []*algebra.Edge
	for _, p := range pairs {
		es = append(es, f.edge(t, p[0], p[1]))
	}
	c, err := algebra.FromEdges(nil, es...)
	require.NoError(t, err)
	return c
}

func TestIntegration_EdgesMatchScorer(t *testing.T) {
	f := newFixture(t)
	for _, rec := range f.edges {
		e, ok := f.all.Get(f.edge(t, rec.A, rec.B).Key())
		require.True(t, ok)
		assert.Equal(t, rec.Similarity, e.Score)
		assert.Greater(t, e.Score, 0.5)
		assert.Contains(t, []resonance.Law{resonance.Echo, resonance.Harmony}, e.Law)
	}
}

func TestIntegration_FilterHarmony(t *testing.T) {
	f := newFixture(t)

	harmonic, err := filter.New(resonance.NewLawSet(resonance.Harmony), nil, "")
	require.NoError(t, err)
	view, err := harmonic.Apply(f.all)
	require.NoError(t, err)

	want := 0
	for _, rec := range f.edges {
		if rec.Similarity >= 0.75 {
			want++
		}
	}
	assert.Equal(t, want, view.Len())
	for _, e := range view.Edges() {
		assert.Equal(t, resonance.Harmony, e.Law)
	}
	// The source collection is untouched.
	assert.Equal(t, len(f.edges), f.all.Len())

	// The same view through a JSONPath query.
	byQuery, err := filter.New(nil, nil, "$[?(@.law == 'harmony')]")
	require.NoError(t, err)
	queried, err := byQuery.Apply(f.all)
	require.NoError(t, err)
	assert.True(t, view.Equal(queried))
}

func TestIntegration_AddUnderDefaultRules(t *testing.T) {
	f := newFixture(t)

	a := f.collection(t, [2]uint64{6, 7})
	require.NoError(t, a.Add(f.collection(t, [2]uint64{9, 10})))
	assert.Equal(t, 2, a.Len())

	err := a.Add(f.collection(t, [2]uint64{2, 10}))
	require.ErrorIs(t, err, rules.ErrRuleViolation)
	assert.Equal(t, 2, a.Len(), "rejected add leaves the target unchanged")
}

func TestIntegration_ComposeGatedByRules(t *testing.T) {
	f := newFixture(t)
	harmonic := f.collection(t, [2]uint64{6, 7}, [2]uint64{9, 10})

	damped, err := harmonic.Compose(algebra.Damp{Factor: 0.5})
	require.NoError(t, err)
	for _, e := range damped.Edges() {
		assert.Equal(t, resonance.Neutral, e.Law)
	}

	_, err = harmonic.Compose(algebra.Damp{Factor: 0.25})
	require.ErrorIs(t, err, rules.ErrRuleViolation)
	for _, e := range harmonic.Edges() {
		assert.Equal(t, resonance.Harmony, e.Law)
	}
}

func TestIntegration_StoreRoundTripPreservesFamilies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := store.Open(filepath.Join(t.TempDir(), "resonance.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Save(ctx, f.idx, f.edges, f.scorer))

	support, err := s.PrimeSupport(ctx, 29)
	require.NoError(t, err)
	assert.Equal(t, f.idx.PrimeSupport(29), support)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, f.idx.Len(), loaded.Len())

	want := lattice.Families(lattice.FromIndex(f.idx))
	got := lattice.Families(lattice.FromIndex(loaded))
	require.Equal(t, want, got)
	// One family per prime up to 29, plus 1! with no primes.
	assert.Len(t, got, 11)

	stored, err := s.Edges(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, len(f.edges))
}

func TestIntegration_TraverseStaysAboveThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var visited []uint64
	res, err := f.idx.Traverse(ctx, 10, graph.TraverseOptions{DepthLimit: 2, Threshold: 0.6}, func(n *graph.Node, _ int) error {
		visited = append(visited, n.N)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, visited)
	assert.Equal(t, uint64(10), visited[0])
	assert.Equal(t, res.Visited, visited)
	assert.LessOrEqual(t, res.MaxDepth, 2)
}
