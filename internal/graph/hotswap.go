package graph

import (
	"context"
	"sync"
)

// HotSwapIndex is a thread-safe wrapper that allows swapping the underlying
// index, e.g. after reloading it from a store. Queries in flight keep the
// index they started with.
type HotSwapIndex struct {
	mu      sync.RWMutex
	current Querier
}

var _ Querier = (*HotSwapIndex)(nil)

func NewHotSwapIndex(initial Querier) *HotSwapIndex {
	return &HotSwapIndex{current: initial}
}

// Swap atomically replaces the current index and returns the previous one.
func (h *HotSwapIndex) Swap(next Querier) Querier {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.current
	h.current = next
	return prev
}

func (h *HotSwapIndex) load() Querier {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Get delegates to the current index.
func (h *HotSwapIndex) Get(n uint64) (*Node, error) { return h.load().Get(n) }

// Len delegates to the current index.
func (h *HotSwapIndex) Len() int { return h.load().Len() }

// Nodes delegates to the current index.
func (h *HotSwapIndex) Nodes() []*Node { return h.load().Nodes() }

// Neighbors delegates to the current index.
func (h *HotSwapIndex) Neighbors(ctx context.Context, n uint64, k int, threshold float64) ([]Neighbor, error) {
	return h.load().Neighbors(ctx, n, k, threshold)
}

// Traverse delegates to the current index.
func (h *HotSwapIndex) Traverse(ctx context.Context, start uint64, opts TraverseOptions, visit Visitor) (*TraversalResult, error) {
	return h.load().Traverse(ctx, start, opts, visit)
}

// PrefixSearch delegates to the current index.
func (h *HotSwapIndex) PrefixSearch(prefix []uint32) []*Node { return h.load().PrefixSearch(prefix) }

// PrimeSupport delegates to the current index.
func (h *HotSwapIndex) PrimeSupport(p uint32) []uint64 { return h.load().PrimeSupport(p) }

// Nearest delegates to the current index.
func (h *HotSwapIndex) Nearest(n uint64, k int) ([]*Node, error) { return h.load().Nearest(n, k) }
