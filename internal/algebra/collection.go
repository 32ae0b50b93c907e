package algebra

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/agentic-research/resonance/internal/resonance"
	"github.com/agentic-research/resonance/internal/rules"
)

// Collection is a set of edges, keyed by edge identity and iterated in
// insertion order. Every mutation is validated by the rule engine first; a
// rejected mutation leaves the collection unchanged.
type Collection struct {
	id     uuid.UUID
	engine *rules.Engine
	logger *slog.Logger

	mu    sync.RWMutex
	order []string
	items map[string]*Edge
}

// NewCollection returns an empty collection gated by engine
// (rules.DefaultEngine when nil).
func NewCollection(engine *rules.Engine) *Collection {
	if engine == nil {
		engine = rules.DefaultEngine()
	}
	return &Collection{
		id:     uuid.New(),
		engine: engine,
		logger: slog.Default(),
		items:  make(map[string]*Edge),
	}
}

// FromEdges inserts edges one at a time into a new collection.
func FromEdges(engine *rules.Engine, edges ...*Edge) (*Collection, error) {
	c := NewCollection(engine)
	for _, e := range edges {
		if err := c.Insert(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ID returns the collection's identity.
func (c *Collection) ID() uuid.UUID { return c.id }

// Engine returns the rule engine gating this collection.
func (c *Collection) Engine() *rules.Engine { return c.engine }

// Kind implements Resonant.
func (c *Collection) Kind() Kind { return KindCollection }

// Key implements Resonant.
func (c *Collection) Key() string { return c.id.String() }

// Resonance is the mean member score, classified by the engine's bands.
// An empty collection scores 0.
func (c *Collection) Resonance() (float64, resonance.Law) {
	c.mu.RLock()
	var sum float64
	for _, k := range c.order {
		sum += c.items[k].Score
	}
	n := len(c.order)
	c.mu.RUnlock()

	mean := 0.0
	if n > 0 {
		mean = sum / float64(n)
	}
	law, err := c.engine.Bands().Classify(mean)
	if err != nil {
		// unreachable: members are checked to score inside [0, 1]
		return mean, c.engine.Bands().List()[0].Law
	}
	return mean, law
}

// Len returns the number of members.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Edges returns copies of the members in insertion order.
func (c *Collection) Edges() []*Edge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Edge, len(c.order))
	for i, k := range c.order {
		out[i] = c.items[k].Clone()
	}
	return out
}

// Get returns a copy of the member with the given key.
func (c *Collection) Get(key string) (*Edge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Contains reports membership by identity.
func (c *Collection) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[key]
	return ok
}

// Insert adds e as a one-element add.
func (c *Collection) Insert(e *Edge) error {
	if e == nil || len(e.Endpoints) == 0 {
		return ErrInvalidEdge
	}
	if _, err := c.engine.Bands().Classify(e.Score); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEdge, e.Key(), err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergeLocked([]*Edge{e})
}

// Add merges other into c. Every pair crossing the two collections is
// validated with rules.OpAdd before anything changes: a rejection returns a
// *rules.RuleViolation and leaves both collections as they were. Rewrites
// apply to copies, so other is never modified. Members already present in c
// are kept as they are. Adding a collection to itself is a no-op.
func (c *Collection) Add(other *Collection) error {
	if other == c {
		return nil
	}
	first, second := c, other
	if bytes.Compare(other.id[:], c.id[:]) < 0 {
		first, second = other, c
	}
	lock := func(x *Collection) {
		if x == c {
			x.mu.Lock()
		} else {
			x.mu.RLock()
		}
	}
	unlock := func(x *Collection) {
		if x == c {
			x.mu.Unlock()
		} else {
			x.mu.RUnlock()
		}
	}
	lock(first)
	defer unlock(first)
	lock(second)
	defer unlock(second)

	incoming := make([]*Edge, len(other.order))
	for i, k := range other.order {
		incoming[i] = other.items[k]
	}
	return c.mergeLocked(incoming)
}

// mergeLocked validates and applies incoming edges. Every existing member is
// checked against every incoming edge, including incoming edges whose
// identity is already present; those are validated but not re-added.
// Rewrites are tracked so that later pairs see earlier rewrites. c.mu must
// be held.
func (c *Collection) mergeLocked(incoming []*Edge) error {
	laws := make(map[string]resonance.Law, len(c.order))
	for _, k := range c.order {
		laws[k] = c.items[k].Law
	}

	type pending struct {
		edge  *Edge
		law   resonance.Law
		fresh bool
	}
	in := make([]pending, 0, len(incoming))
	seen := make(map[string]bool, len(incoming))
	for _, e := range incoming {
		k := e.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		_, exists := c.items[k]
		in = append(in, pending{edge: e, law: e.Law, fresh: !exists})
	}

	for _, left := range c.order {
		for i := range in {
			right := &in[i]
			d, err := c.engine.Check(rules.OpAdd, laws[left], right.law)
			if err != nil {
				c.logger.Debug("collection add rejected",
					"collection", c.id, "left", left, "right", right.edge.Key(), "err", err)
				return err
			}
			if d.Verdict == rules.Rewrite {
				laws[left], right.law = d.Laws[0], d.Laws[1]
			}
		}
	}

	for _, k := range c.order {
		if laws[k] != c.items[k].Law {
			cp := c.items[k].Clone()
			cp.Law = laws[k]
			c.items[k] = cp
		}
	}
	for _, p := range in {
		if !p.fresh {
			continue
		}
		k := p.edge.Key()
		cp := p.edge.Clone()
		cp.Law = p.law
		c.items[k] = cp
		c.order = append(c.order, k)
	}
	return nil
}

// clone copies c under a new identity with the same engine.
func (c *Collection) clone() *Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := NewCollection(c.engine)
	out.logger = c.logger
	out.order = append(out.order, c.order...)
	for k, e := range c.items {
		out.items[k] = e
	}
	return out
}

// Union returns a new collection holding a added with b. Neither input is
// modified.
func Union(a, b *Collection) (*Collection, error) {
	out := a.clone()
	if a == b {
		return out, nil
	}
	if err := out.Add(b); err != nil {
		return nil, err
	}
	return out, nil
}

// Compose applies t to every member in order and returns the results as a
// new collection. Each (before, after) law pair is validated with
// rules.OpCompose. The first transform failure or rejection aborts the
// whole composition; c is never modified.
func (c *Collection) Compose(t Transform) (*Collection, error) {
	c.mu.RLock()
	members := make([]*Edge, len(c.order))
	for i, k := range c.order {
		members[i] = c.items[k]
	}
	c.mu.RUnlock()

	out := NewCollection(c.engine)
	out.logger = c.logger
	for _, e := range members {
		next, err := c.transform(rules.OpCompose, t, e)
		if err != nil {
			return nil, fmt.Errorf("compose %s on %s: %w", t.Name(), e.Key(), err)
		}
		k := next.Key()
		if _, dup := out.items[k]; dup {
			continue
		}
		out.items[k] = next
		out.order = append(out.order, k)
	}
	return out, nil
}

// Transform implements Resonant through Compose.
func (c *Collection) Transform(t Transform) (Resonant, error) {
	out, err := c.Compose(t)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Apply replaces the member at key with t applied to it, validated with
// rules.OpTransform. It returns a copy of the new member.
func (c *Collection) Apply(t Transform, key string) (*Edge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, fmt.Errorf("apply %s: no member %q", t.Name(), key)
	}
	next, err := c.transform(rules.OpTransform, t, e)
	if err != nil {
		return nil, fmt.Errorf("apply %s on %s: %w", t.Name(), key, err)
	}
	nk := next.Key()
	if nk != key {
		if _, clash := c.items[nk]; clash {
			return nil, fmt.Errorf("apply %s on %s: result %s already a member", t.Name(), key, nk)
		}
		delete(c.items, key)
		for i, k := range c.order {
			if k == key {
				c.order[i] = nk
				break
			}
		}
	}
	c.items[nk] = next
	return next.Clone(), nil
}

// transform runs t on e and gates the law change through op.
func (c *Collection) transform(op rules.Op, t Transform, e *Edge) (*Edge, error) {
	next, err := t.Apply(e)
	if err != nil {
		return nil, err
	}
	d, err := c.engine.Check(op, e.Law, next.Law)
	if err != nil {
		return nil, err
	}
	if d.Verdict == rules.Rewrite {
		next.Law = d.Laws[1]
	}
	return next, nil
}

// Prune removes, in place, every member keep rejects. It returns the number
// removed. Removal only shrinks an already validated set, so it is not
// gated by the engine.
func (c *Collection) Prune(keep func(*Edge) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.order[:0]
	removed := 0
	for _, k := range c.order {
		if keep(c.items[k]) {
			kept = append(kept, k)
			continue
		}
		delete(c.items, k)
		removed++
	}
	c.order = kept
	return removed
}

// Select returns a new collection of the members keep accepts. c is not
// modified.
func (c *Collection) Select(keep func(*Edge) bool) *Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := NewCollection(c.engine)
	out.logger = c.logger
	for _, k := range c.order {
		if e := c.items[k]; keep(e) {
			out.items[k] = e.Clone()
			out.order = append(out.order, k)
		}
	}
	return out
}

// Equal reports whether both collections hold the same members, compared
// by identity, score and law. Insertion order is ignored.
func (c *Collection) Equal(other *Collection) bool {
	if c == other {
		return true
	}
	a, b := c.Edges(), other.Edges()
	if len(a) != len(b) {
		return false
	}
	byKey := make(map[string]*Edge, len(b))
	for _, e := range b {
		byKey[e.Key()] = e
	}
	for _, e := range a {
		o, ok := byKey[e.Key()]
		if !ok || !e.Equal(o) {
			return false
		}
	}
	return true
}
