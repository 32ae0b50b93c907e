package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/resonance/internal/graph"
	"github.com/agentic-research/resonance/internal/resonance"
	"github.com/agentic-research/resonance/internal/signature"
)

func buildIndex(t *testing.T, lo, hi uint64) *graph.Index {
	t.Helper()
	idx := graph.NewIndex()
	require.NoError(t, idx.InsertRange(context.Background(), signature.NewLegendre(0), lo, hi))
	return idx
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := buildIndex(t, 0, 40)
	edges, err := idx.Edges(ctx, 0.5, 3)
	require.NoError(t, err)
	require.NotEmpty(t, edges)

	s := openStore(t)
	require.NoError(t, s.Save(ctx, idx, edges, resonance.DefaultScorer()))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 41, count)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, idx.Len(), loaded.Len())
	for _, n := range idx.Nodes() {
		got, err := loaded.Get(n.N)
		require.NoError(t, err)
		assert.True(t, n.Signature().Equal(got.Signature()), "n=%d", n.N)
		assert.Equal(t, n.Key(), got.Key())
		assert.Equal(t, n.Depth, got.Depth)
	}

	want, err := idx.Neighbors(ctx, 20, 5, 0.5)
	require.NoError(t, err)
	got, err := loaded.Neighbors(ctx, 20, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Node.N, got[i].Node.N)
		assert.Equal(t, want[i].Similarity, got[i].Similarity)
	}

	stored, err := s.Edges(ctx)
	require.NoError(t, err)
	require.Len(t, stored, len(edges))
	for i, e := range edges {
		assert.Equal(t, e.A, stored[i].A)
		assert.Equal(t, e.B, stored[i].B)
		assert.Equal(t, e.Similarity, stored[i].Score)
		law, err := resonance.DefaultBands().Classify(e.Similarity)
		require.NoError(t, err)
		assert.Equal(t, law, stored[i].Law)
	}
}

func TestPrimeSupport(t *testing.T) {
	ctx := context.Background()
	idx := buildIndex(t, 1, 30)
	s := openStore(t)
	require.NoError(t, s.Save(ctx, idx, nil, resonance.DefaultScorer()))

	for _, p := range []uint32{2, 7, 29} {
		got, err := s.PrimeSupport(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, idx.PrimeSupport(p), got, "p=%d", p)
	}

	none, err := s.PrimeSupport(ctx, 31)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSave_ReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Save(ctx, buildIndex(t, 1, 50), nil, resonance.DefaultScorer()))
	require.NoError(t, s.Save(ctx, buildIndex(t, 1, 10), nil, resonance.DefaultScorer()))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	support, err := s.PrimeSupport(ctx, 47)
	require.NoError(t, err)
	assert.Empty(t, support)
}

func TestLoad_Empty(t *testing.T) {
	idx, err := openStore(t).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}

func TestSave_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := openStore(t).Save(ctx, buildIndex(t, 1, 5), nil, resonance.DefaultScorer())
	assert.Error(t, err)
}

func TestSupportVTab_FullScan(t *testing.T) {
	ctx := context.Background()
	idx := buildIndex(t, 1, 12)
	s := openStore(t)
	require.NoError(t, s.Save(ctx, idx, nil, resonance.DefaultScorer()))

	rows, err := s.QuerySupport(ctx, `SELECT prime, COUNT(*) FROM support GROUP BY prime ORDER BY prime`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	got := map[uint32]int{}
	for rows.Next() {
		var p int64
		var count int
		require.NoError(t, rows.Scan(&p, &count))
		got[uint32(p)] = count
	}
	require.NoError(t, rows.Err())

	// 2 divides n! for n >= 2, 11 only for n = 11 and 12.
	assert.Equal(t, map[uint32]int{2: 11, 3: 10, 5: 8, 7: 6, 11: 2}, got)
}

func TestSupportVTab_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, buildIndex(t, 1, 10), nil, resonance.DefaultScorer()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.PrimeSupport(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 8, 9, 10}, got)
}
