// Package algebra implements the law-constrained algebra over scored
// signature objects: edges, resonant transforms and collections whose
// mutations are gated by a rules.Engine.
package algebra

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/agentic-research/resonance/internal/graph"
	"github.com/agentic-research/resonance/internal/resonance"
)

// ErrInvalidEdge is returned for edges without endpoints.
var ErrInvalidEdge = errors.New("invalid edge")

// Kind discriminates the objects the algebra manipulates.
type Kind uint8

const (
	KindNode Kind = iota
	KindEdge
	KindCollection
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindEdge:
		return "edge"
	case KindCollection:
		return "collection"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Resonant is implemented by every object carrying a score and a law.
type Resonant interface {
	Kind() Kind
	// Key is the identity of the object.
	Key() string
	Resonance() (float64, resonance.Law)
	// Transform returns a new object with t applied; the receiver is left
	// unchanged.
	Transform(t Transform) (Resonant, error)
}

var (
	_ Resonant = (*Edge)(nil)
	_ Resonant = NodeValue{}
	_ Resonant = (*Collection)(nil)
)

// Edge combines one or more nodes with a score and its law. Endpoints are
// kept in ascending order; two edges with the same endpoints have the same
// identity regardless of score.
type Edge struct {
	Endpoints []uint64
	Score     float64
	Law       resonance.Law
}

// NewEdge scores the pair (a, b).
func NewEdge(s *resonance.Scorer, a, b *graph.Node) (*Edge, error) {
	r, err := s.Score(a.Signature(), b.Signature())
	if err != nil {
		return nil, err
	}
	ends := []uint64{a.N, b.N}
	slices.Sort(ends)
	return &Edge{Endpoints: ends, Score: r.Score, Law: r.Law}, nil
}

// NodeEdge wraps a single node as a self-classified edge.
func NodeEdge(s *resonance.Scorer, n *graph.Node) (*Edge, error) {
	r, err := s.Self(n.Signature())
	if err != nil {
		return nil, err
	}
	return &Edge{Endpoints: []uint64{n.N}, Score: r.Score, Law: r.Law}, nil
}

// Kind implements Resonant.
func (e *Edge) Kind() Kind { return KindEdge }

// Key joins the sorted endpoints with "~", e.g. "4~6".
func (e *Edge) Key() string {
	ends := slices.Clone(e.Endpoints)
	slices.Sort(ends)
	parts := make([]string, len(ends))
	for i, n := range ends {
		parts[i] = strconv.FormatUint(n, 10)
	}
	return strings.Join(parts, "~")
}

// Resonance implements Resonant.
func (e *Edge) Resonance() (float64, resonance.Law) { return e.Score, e.Law }

// Transform implements Resonant. A bare edge belongs to no collection, so
// the result is not checked by a rule engine.
func (e *Edge) Transform(t Transform) (Resonant, error) {
	out, err := t.Apply(e)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Clone returns a deep copy.
func (e *Edge) Clone() *Edge {
	return &Edge{Endpoints: slices.Clone(e.Endpoints), Score: e.Score, Law: e.Law}
}

// Equal reports identical endpoints, score and law.
func (e *Edge) Equal(o *Edge) bool {
	return slices.Equal(e.Endpoints, o.Endpoints) && e.Score == o.Score && e.Law == o.Law
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s(%.4f %s)", e.Key(), e.Score, e.Law)
}

// rescored returns a copy with score reclassified by s.
func (e *Edge) rescored(s *resonance.Scorer, score float64) (*Edge, error) {
	r, err := s.Classify(score)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDomain, err)
	}
	out := e.Clone()
	out.Score, out.Law = r.Score, r.Law
	return out, nil
}

// NodeValue adapts a node to Resonant through its self-classification.
type NodeValue struct {
	Node   *graph.Node
	Result resonance.Result
}

// AsResonant self-classifies n.
func AsResonant(s *resonance.Scorer, n *graph.Node) (NodeValue, error) {
	r, err := s.Self(n.Signature())
	if err != nil {
		return NodeValue{}, err
	}
	return NodeValue{Node: n, Result: r}, nil
}

// Kind implements Resonant.
func (v NodeValue) Kind() Kind { return KindNode }

// Key implements Resonant.
func (v NodeValue) Key() string { return strconv.FormatUint(v.Node.N, 10) }

// Resonance implements Resonant.
func (v NodeValue) Resonance() (float64, resonance.Law) { return v.Result.Score, v.Result.Law }

// Transform implements Resonant by applying t to the node's single-endpoint
// edge.
func (v NodeValue) Transform(t Transform) (Resonant, error) {
	e := &Edge{Endpoints: []uint64{v.Node.N}, Score: v.Result.Score, Law: v.Result.Law}
	return e.Transform(t)
}
