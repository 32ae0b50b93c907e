package graph

import (
	"strconv"
	"strings"

	"github.com/agentic-research/resonance/internal/signature"
)

// PositionKey is the exponent sequence of a signature in ascending prime
// order. For 4! = 2^3 · 3 it is [3 1].
type PositionKey []uint32

func (k PositionKey) String() string {
	parts := make([]string, len(k))
	for i, e := range k {
		parts[i] = strconv.FormatUint(uint64(e), 10)
	}
	return strings.Join(parts, ".")
}

// ParsePositionKey parses the dotted form produced by String.
func ParsePositionKey(s string) (PositionKey, error) {
	if s == "" {
		return PositionKey{}, nil
	}
	parts := strings.Split(s, ".")
	k := make(PositionKey, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, err
		}
		k[i] = uint32(v)
	}
	return k, nil
}

// HasPrefix reports whether prefix is a prefix of k.
func (k PositionKey) HasPrefix(prefix []uint32) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, e := range prefix {
		if k[i] != e {
			return false
		}
	}
	return true
}

// Node wraps one factorial signature. Nodes are immutable once built.
type Node struct {
	// N identifies the node: the node holds sig(N!).
	N uint64
	// Depth is the node's depth in the trie (the signature width).
	Depth int

	sig signature.Signature
	key PositionKey
}

// NewNode asks the provider for sig(n!) and wraps it.
func NewNode(n uint64, p signature.Provider) (*Node, error) {
	sig, err := p.Signature(n)
	if err != nil {
		return nil, err
	}
	return NodeFromSignature(n, sig), nil
}

// NodeFromSignature wraps an already computed signature, e.g. one loaded
// from a store.
func NodeFromSignature(n uint64, sig signature.Signature) *Node {
	return &Node{
		N:     n,
		Depth: sig.Width(),
		sig:   sig,
		key:   PositionKey(sig.Exponents()),
	}
}

// Signature returns the node's factorial signature.
func (n *Node) Signature() signature.Signature { return n.sig }

// Key returns a copy of the node's position key.
func (n *Node) Key() PositionKey {
	out := make(PositionKey, len(n.key))
	copy(out, n.key)
	return out
}

// Mass is the signature's total exponent.
func (n *Node) Mass() uint64 { return n.sig.Mass() }
