package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/resonance/internal/signature"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of neighbor query results kept in the LRU.
const DefaultCacheSize = 4096

// Querier is the read side of the index, shared by Index and HotSwapIndex.
type Querier interface {
	Get(n uint64) (*Node, error)
	Len() int
	Nodes() []*Node
	Neighbors(ctx context.Context, n uint64, k int, threshold float64) ([]Neighbor, error)
	Traverse(ctx context.Context, start uint64, opts TraverseOptions, visit Visitor) (*TraversalResult, error)
	PrefixSearch(prefix []uint32) []*Node
	PrimeSupport(p uint32) []uint64
	Nearest(n uint64, k int) ([]*Node, error)
}

// Option configures an Index.
type Option func(*Index)

// WithCacheSize sets the neighbor cache size (DefaultCacheSize when ≤ 0).
func WithCacheSize(size int) Option {
	return func(x *Index) { x.cacheSize = size }
}

// WithLogger sets the logger used for skipped work.
func WithLogger(l *slog.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// Index stores fractal nodes under graph, trie and spatial facets.
type Index struct {
	mu sync.RWMutex

	// Arena: internal uint32 id → node. Ids are dense and never reused.
	arena []*Node
	byN   map[uint64]uint32

	// Graph facet: prime → ids of nodes whose signature contains it.
	primeSupport map[uint32]*roaring.Bitmap
	// Nodes with an empty signature (0! and 1!) share no prime with anything.
	emptySupport *roaring.Bitmap
	all          *roaring.Bitmap

	trie    *trieNode
	spatial *spatialIndex

	cacheSize int
	cache     *lru.Cache[neighborKey, []Neighbor]
	logger    *slog.Logger
}

var _ Querier = (*Index)(nil)

// NewIndex returns an empty index.
func NewIndex(opts ...Option) *Index {
	x := &Index{
		byN:          make(map[uint64]uint32),
		primeSupport: make(map[uint32]*roaring.Bitmap),
		emptySupport: roaring.New(),
		all:          roaring.New(),
		trie:         newTrieNode(),
		spatial:      newSpatialIndex(),
		cacheSize:    DefaultCacheSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.cacheSize <= 0 {
		x.cacheSize = DefaultCacheSize
	}
	// lru.New only fails for non-positive sizes
	x.cache, _ = lru.New[neighborKey, []Neighbor](x.cacheSize)
	return x
}

// Insert adds a node. Re-inserting an existing n fails with ErrDuplicateKey
// and leaves the index untouched.
func (x *Index) Insert(n *Node) error {
	if n == nil {
		return fmt.Errorf("insert: nil node")
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.byN[n.N]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateKey, n.N)
	}
	if uint64(len(x.arena)) >= math.MaxUint32 {
		return ErrIndexFull
	}

	id := uint32(len(x.arena))
	x.arena = append(x.arena, n)
	x.byN[n.N] = id
	x.all.Add(id)

	x.indexNode(n, id)

	// A new node may be a neighbor of anything already cached.
	x.cache.Purge()
	recordInsert(context.Background())
	return nil
}

// indexNode registers id in every facet. Must be called with x.mu held.
func (x *Index) indexNode(n *Node, id uint32) {
	if n.sig.IsEmpty() {
		x.emptySupport.Add(id)
	}
	for _, p := range n.sig.Primes() {
		bm, ok := x.primeSupport[p]
		if !ok {
			bm = roaring.New()
			x.primeSupport[p] = bm
		}
		bm.Add(id)
	}
	x.trie.insert(n.key, id)
	x.spatial.insert(n, id)
}

// InsertRange builds and inserts the nodes lo..hi (inclusive).
func (x *Index) InsertRange(ctx context.Context, p signature.Provider, lo, hi uint64) error {
	if lo > hi {
		return fmt.Errorf("insert range: lo %d > hi %d", lo, hi)
	}
	for n := lo; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		node, err := NewNode(n, p)
		if err != nil {
			return fmt.Errorf("node %d: %w", n, err)
		}
		if err := x.Insert(node); err != nil {
			return err
		}
		if n == hi {
			return nil
		}
	}
}

// Get returns the node for n.
func (x *Index) Get(n uint64) (*Node, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.byN[n]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, n)
	}
	return x.arena[id], nil
}

// Len returns the number of indexed nodes.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.arena)
}

// Nodes returns every node ordered by ascending n.
func (x *Index) Nodes() []*Node {
	x.mu.RLock()
	out := make([]*Node, len(x.arena))
	copy(out, x.arena)
	x.mu.RUnlock()
	sortByN(out)
	return out
}

// PrefixSearch returns the nodes whose position key starts with prefix,
// ordered by ascending n. An empty prefix matches every node.
func (x *Index) PrefixSearch(prefix []uint32) []*Node {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.resolve(x.trie.lookup(prefix))
}

// PrefixSiblings returns the other nodes sharing the first depth key
// components with n.
func (x *Index) PrefixSiblings(n uint64, depth int) ([]*Node, error) {
	node, err := x.Get(n)
	if err != nil {
		return nil, err
	}
	key := node.key
	if depth > len(key) {
		depth = len(key)
	}
	var out []*Node
	for _, m := range x.PrefixSearch(key[:depth]) {
		if m.N != n {
			out = append(out, m)
		}
	}
	return out, nil
}

// PrimeSupport returns the n of every node whose signature contains p, ascending.
func (x *Index) PrimeSupport(p uint32) []uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	nodes := x.resolve(x.primeSupport[p])
	out := make([]uint64, len(nodes))
	for i, n := range nodes {
		out[i] = n.N
	}
	return out
}

// SupportBitmaps returns a copy of the prime → internal id bitmaps,
// together with the id → n mapping they refer to.
func (x *Index) SupportBitmaps() (map[uint32]*roaring.Bitmap, []uint64) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[uint32]*roaring.Bitmap, len(x.primeSupport))
	for p, bm := range x.primeSupport {
		out[p] = bm.Clone()
	}
	ids := make([]uint64, len(x.arena))
	for i, n := range x.arena {
		ids[i] = n.N
	}
	return out, ids
}

// Nearest returns up to k nodes closest to n in (mass, width) space,
// excluding n itself.
func (x *Index) Nearest(n uint64, k int) ([]*Node, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.byN[n]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, n)
	}
	var out []*Node
	for _, other := range x.spatial.nearest(x.arena[id], k+1) {
		if other == id {
			continue
		}
		out = append(out, x.arena[other])
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Range returns the nodes with mass in [minMass, maxMass] and width in
// [minWidth, maxWidth], ordered by ascending n.
func (x *Index) Range(minMass, maxMass uint64, minWidth, maxWidth int) []*Node {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := x.spatial.window(float64(minMass), float64(maxMass), float64(minWidth), float64(maxWidth))
	var out []*Node
	for _, n := range x.resolve(ids) {
		if n.Mass() >= minMass && n.Mass() <= maxMass && n.Depth >= minWidth && n.Depth <= maxWidth {
			out = append(out, n)
		}
	}
	return out
}

// resolve maps internal ids to nodes ordered by n. Must be called with x.mu held.
func (x *Index) resolve(ids *roaring.Bitmap) []*Node {
	if ids == nil || ids.IsEmpty() {
		return nil
	}
	out := make([]*Node, 0, ids.GetCardinality())
	it := ids.Iterator()
	for it.HasNext() {
		id := it.Next()
		if int(id) < len(x.arena) {
			out = append(out, x.arena[id])
		}
	}
	sortByN(out)
	return out
}

func sortByN(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].N < nodes[j].N })
}
