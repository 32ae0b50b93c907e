// Package graph is the fractal index: factorial-signature nodes stored under
// three query facets that share one arena of internal ids.
//
//   - graph: edges are never stored; they are computed on demand from the
//     weighted Jaccard similarity of two signatures and cached per query.
//   - trie: each node's position key (its exponents in ascending prime order)
//     is a path in a prefix tree whose vertices carry roaring bitmaps of the
//     ids below them.
//   - spatial: nodes are points (mass, width) in an R-tree. Neighbor queries
//     use the mass window implied by the similarity threshold to prune
//     candidates before computing exact similarity.
//
// # Thread Safety
//
// Index is single-writer, multi-reader. Insert takes the write lock;
// Neighbors, Traverse and the facet queries take the read lock and may run
// concurrently.
package graph

import "errors"

var (
	// ErrDuplicateKey is returned when inserting a node whose n is already indexed.
	// Signatures are immutable, so the existing node is never overwritten.
	ErrDuplicateKey = errors.New("duplicate node key")

	// ErrNotFound is returned when a query names an n that is not indexed.
	ErrNotFound = errors.New("node not found")

	// ErrTraversalBoundExceeded reports that a traversal stopped on a
	// configured bound rather than by exhausting its neighborhood.
	ErrTraversalBoundExceeded = errors.New("traversal bound exceeded")

	// ErrIndexFull is returned once the arena has used every internal id.
	ErrIndexFull = errors.New("index arena exhausted")
)
