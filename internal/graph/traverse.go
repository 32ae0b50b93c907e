package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Bound records which configured limits cut a traversal short.
// The zero value means the traversal exhausted its neighborhood naturally.
type Bound uint8

const (
	// BoundDepth: unvisited qualifying neighbors remained at the depth limit.
	BoundDepth Bound = 1 << iota
	// BoundFanOut: some expansion had more unvisited neighbors than FanOut.
	BoundFanOut
	// BoundVisits: MaxVisits was reached with work remaining.
	BoundVisits
)

// BoundNone is the zero Bound.
const BoundNone Bound = 0

// Has reports whether every flag in o is set.
func (b Bound) Has(o Bound) bool { return b&o == o && o != 0 }

func (b Bound) String() string {
	if b == BoundNone {
		return "none"
	}
	var parts []string
	if b.Has(BoundDepth) {
		parts = append(parts, "depth")
	}
	if b.Has(BoundFanOut) {
		parts = append(parts, "fanout")
	}
	if b.Has(BoundVisits) {
		parts = append(parts, "visits")
	}
	return strings.Join(parts, "|")
}

// TraverseOptions bounds a traversal.
type TraverseOptions struct {
	// DepthLimit is the number of hops expanded from the start node.
	// 0 visits only the start node.
	DepthLimit int
	// Threshold is the similarity an edge must exceed to be followed.
	Threshold float64
	// FanOut caps the children expanded per node (0 means no cap).
	FanOut int
	// MaxVisits caps the total number of visited nodes (0 means no cap).
	MaxVisits int
}

// Visitor is called once per visited node with the hop count at which it
// was discovered. A non-nil error aborts the traversal.
type Visitor func(n *Node, depth int) error

// TraversalResult describes a completed traversal.
type TraversalResult struct {
	// Visited lists n in visit order; each node appears once.
	Visited []uint64
	// MaxDepth is the deepest hop count reached.
	MaxDepth int
	// Bound is BoundNone when the traversal ran out of unvisited neighbors.
	Bound Bound
}

// Err returns ErrTraversalBoundExceeded when a bound stopped the traversal.
func (r *TraversalResult) Err() error {
	if r.Bound == BoundNone {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTraversalBoundExceeded, r.Bound)
}

type traversal struct {
	x       *Index
	opts    TraverseOptions
	visit   Visitor
	visited *roaring.Bitmap
	result  *TraversalResult

	// Checked after the walk: a node cut off by depth or fan-out may still
	// be reached along another path.
	frontier []*Node
	skipped  *roaring.Bitmap
}

// Traverse performs a recursive self-similar expansion from start: each
// visited node's neighbors above opts.Threshold are visited in neighbor
// order and expanded with one less hop of budget. A roaring bitmap of
// internal ids guards against revisits, so cycles in the similarity graph
// cannot cause unbounded recursion. The visit order is deterministic for a
// fixed index, start and options.
//
// Each node is visited once, at the depth of the first path that reaches it,
// which is not necessarily its shortest. A node first reached along a longer
// path is expanded with less remaining budget, so some nodes within
// DepthLimit hops of start may be left unvisited. When that happens the
// result carries BoundDepth; a result with BoundNone has visited every node
// reachable from start.
func (x *Index) Traverse(ctx context.Context, start uint64, opts TraverseOptions, visit Visitor) (*TraversalResult, error) {
	began := time.Now()
	ctx, span := tracer.Start(ctx, "graph.Traverse",
		trace.WithAttributes(
			attribute.Int64("start", int64(start)),
			attribute.Int("depth_limit", opts.DepthLimit),
			attribute.Float64("threshold", opts.Threshold),
			attribute.Int("fan_out", opts.FanOut),
		),
	)
	defer span.End()

	root, err := x.Get(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start not found")
		return nil, err
	}
	if visit == nil {
		visit = func(*Node, int) error { return nil }
	}

	t := &traversal{
		x:       x,
		opts:    opts,
		visit:   visit,
		visited: roaring.New(),
		result:  &TraversalResult{},
		skipped: roaring.New(),
	}
	if err := t.enter(root, 0); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return t.result, err
	}
	if err := t.expand(ctx, root, 0); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return t.result, err
	}
	if err := t.settleBounds(ctx); err != nil {
		return t.result, err
	}

	span.SetAttributes(
		attribute.Int("visited", len(t.result.Visited)),
		attribute.String("bound", t.result.Bound.String()),
	)
	recordQuery(ctx, "traverse", began, len(t.result.Visited))
	if t.result.Bound != BoundNone {
		x.logger.Debug("traversal bounded",
			"start", start, "bound", t.result.Bound.String(), "visited", len(t.result.Visited))
	}
	return t.result, nil
}

func (t *traversal) enter(n *Node, depth int) error {
	id, err := t.x.internalID(n.N)
	if err != nil {
		return err
	}
	t.visited.Add(id)
	t.result.Visited = append(t.result.Visited, n.N)
	if depth > t.result.MaxDepth {
		t.result.MaxDepth = depth
	}
	if err := t.visit(n, depth); err != nil {
		return fmt.Errorf("visit %d: %w", n.N, err)
	}
	return nil
}

func (t *traversal) seen(n *Node) bool {
	id, err := t.x.internalID(n.N)
	return err == nil && t.visited.Contains(id)
}

// expand visits the unvisited neighbors of n. depth is n's hop count.
func (t *traversal) expand(ctx context.Context, n *Node, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	nbs, err := t.x.Neighbors(ctx, n.N, 0, t.opts.Threshold)
	if err != nil {
		return err
	}

	if depth >= t.opts.DepthLimit {
		t.frontier = append(t.frontier, n)
		return nil
	}

	taken := 0
	for _, nb := range nbs {
		if t.seen(nb.Node) {
			continue
		}
		if t.opts.MaxVisits > 0 && len(t.result.Visited) >= t.opts.MaxVisits {
			t.result.Bound |= BoundVisits
			return nil
		}
		if t.opts.FanOut > 0 && taken >= t.opts.FanOut {
			id, err := t.x.internalID(nb.Node.N)
			if err != nil {
				return err
			}
			t.skipped.Add(id)
			continue
		}
		taken++
		if err := t.enter(nb.Node, depth+1); err != nil {
			return err
		}
		if err := t.expand(ctx, nb.Node, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// settleBounds flags depth and fan-out bounds whose cut-off nodes were
// never reached.
func (t *traversal) settleBounds(ctx context.Context) error {
	if t.skipped.AndCardinality(t.visited) < t.skipped.GetCardinality() {
		t.result.Bound |= BoundFanOut
	}
	for _, n := range t.frontier {
		nbs, err := t.x.Neighbors(ctx, n.N, 0, t.opts.Threshold)
		if err != nil {
			return err
		}
		for _, nb := range nbs {
			if !t.seen(nb.Node) {
				t.result.Bound |= BoundDepth
				return nil
			}
		}
	}
	return nil
}

func (x *Index) internalID(n uint64) (uint32, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.byN[n]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNotFound, n)
	}
	return id, nil
}
