// Package filter produces reduced views of collections by law, score and
// JSONPath predicates. Filtering never mutates its input unless Prune is
// asked to.
package filter

import (
	"fmt"

	"github.com/ohler55/ojg/jp"

	"github.com/agentic-research/resonance/internal/algebra"
	"github.com/agentic-research/resonance/internal/resonance"
)

// Matcher decides membership of a single edge. *Filter and *Composite
// implement it.
type Matcher interface {
	Keep(e *algebra.Edge) bool
}

// Filter keeps an edge when every configured predicate accepts it.
// Zero-valued fields accept everything.
type Filter struct {
	// Laws restricts members to these laws. Nil accepts every law; an empty
	// non-nil set accepts none.
	Laws resonance.LawSet
	// Score accepts a member's score.
	Score func(float64) bool
	// Query is a JSONPath filter evaluated over a one-element array holding
	// the member's document {"key", "endpoints", "score", "law"}; the member
	// is kept when the query selects anything, e.g.
	//
	//	$[?(@.score >= 0.5 && @.law != 'echo')]
	Query string

	expr jp.Expr
}

// AllowAll returns the identity filter.
func AllowAll() *Filter { return &Filter{} }

// New builds a filter and compiles its query.
func New(laws resonance.LawSet, score func(float64) bool, query string) (*Filter, error) {
	f := &Filter{Laws: laws, Score: score, Query: query}
	if err := f.Compile(); err != nil {
		return nil, err
	}
	return f, nil
}

// Compile parses Query. It must be called before concurrent use when Query
// is set after construction.
func (f *Filter) Compile() error {
	if f.Query == "" {
		f.expr = nil
		return nil
	}
	x, err := jp.ParseString(f.Query)
	if err != nil {
		return fmt.Errorf("invalid jsonpath '%s': %w", f.Query, err)
	}
	f.expr = x
	return nil
}

// Keep reports whether e passes the filter. An uncompiled query rejects
// everything.
func (f *Filter) Keep(e *algebra.Edge) bool {
	if f.Laws != nil && !f.Laws.Has(e.Law) {
		return false
	}
	if f.Score != nil && !f.Score(e.Score) {
		return false
	}
	if f.Query != "" {
		if f.expr == nil {
			return false
		}
		return len(f.expr.Get([]any{Document(e)})) > 0
	}
	return true
}

// Apply returns a new collection holding the members that pass.
func (f *Filter) Apply(c *algebra.Collection) (*algebra.Collection, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}
	return c.Select(f.Keep), nil
}

// Prune removes failing members from c in place and returns how many.
func (f *Filter) Prune(c *algebra.Collection) (int, error) {
	if err := f.ready(); err != nil {
		return 0, err
	}
	return c.Prune(f.Keep), nil
}

// Trace reports which members of c pass.
func (f *Filter) Trace(c *algebra.Collection) (Trace, error) {
	if err := f.ready(); err != nil {
		return Trace{}, err
	}
	return trace(f, c), nil
}

func (f *Filter) ready() error {
	if f.Query != "" && f.expr == nil {
		return f.Compile()
	}
	return nil
}

// Document renders e as the JSON-like value queries run against.
func Document(e *algebra.Edge) map[string]any {
	ends := make([]any, len(e.Endpoints))
	for i, n := range e.Endpoints {
		ends[i] = int64(n)
	}
	return map[string]any{
		"key":       e.Key(),
		"endpoints": ends,
		"score":     e.Score,
		"law":       e.Law.String(),
	}
}

// AtLeast accepts scores ≥ floor.
func AtLeast(floor float64) func(float64) bool {
	return func(s float64) bool { return s >= floor }
}

// Between accepts scores in [lo, hi).
func Between(lo, hi float64) func(float64) bool {
	return func(s float64) bool { return s >= lo && s < hi }
}
