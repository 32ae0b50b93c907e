package filter

import (
	"errors"
	"fmt"

	"github.com/agentic-research/resonance/internal/algebra"
)

// Logic combines the parts of a Composite.
type Logic uint8

const (
	LogicAnd Logic = iota
	LogicOr
	LogicNot
)

func (l Logic) String() string {
	switch l {
	case LogicAnd:
		return "and"
	case LogicOr:
		return "or"
	case LogicNot:
		return "not"
	default:
		return fmt.Sprintf("logic(%d)", uint8(l))
	}
}

// Composite combines matchers. And of no parts keeps everything, Or of no
// parts keeps nothing, Not negates its single part.
type Composite struct {
	Logic Logic
	Parts []Matcher
}

// And keeps an edge every part keeps.
func And(parts ...Matcher) *Composite {
	return &Composite{Logic: LogicAnd, Parts: append([]Matcher(nil), parts...)}
}

// Or keeps an edge any part keeps.
func Or(parts ...Matcher) *Composite {
	return &Composite{Logic: LogicOr, Parts: append([]Matcher(nil), parts...)}
}

// Not keeps an edge m rejects.
func Not(m Matcher) *Composite {
	return &Composite{Logic: LogicNot, Parts: []Matcher{m}}
}

// Keep implements Matcher.
func (c *Composite) Keep(e *algebra.Edge) bool {
	switch c.Logic {
	case LogicAnd:
		for _, m := range c.Parts {
			if !m.Keep(e) {
				return false
			}
		}
		return true
	case LogicOr:
		for _, m := range c.Parts {
			if m.Keep(e) {
				return true
			}
		}
		return false
	case LogicNot:
		return len(c.Parts) == 1 && !c.Parts[0].Keep(e)
	default:
		return false
	}
}

// Apply returns a new collection holding the members that pass.
func (c *Composite) Apply(col *algebra.Collection) (*algebra.Collection, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return col.Select(c.Keep), nil
}

// Prune removes failing members from col in place and returns how many.
func (c *Composite) Prune(col *algebra.Collection) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return col.Prune(c.Keep), nil
}

// Trace reports which members of col pass.
func (c *Composite) Trace(col *algebra.Collection) (Trace, error) {
	if err := c.ready(); err != nil {
		return Trace{}, err
	}
	return trace(c, col), nil
}

// ready compiles every nested filter query.
func (c *Composite) ready() error {
	switch c.Logic {
	case LogicAnd, LogicOr:
	case LogicNot:
		if len(c.Parts) != 1 {
			return fmt.Errorf("not filter needs exactly one part, got %d", len(c.Parts))
		}
	default:
		return fmt.Errorf("unknown filter logic %s", c.Logic)
	}
	for i, m := range c.Parts {
		var err error
		switch p := m.(type) {
		case nil:
			err = errors.New("nil part")
		case *Filter:
			err = p.ready()
		case *Composite:
			err = p.ready()
		}
		if err != nil {
			return fmt.Errorf("%s part %d: %w", c.Logic, i, err)
		}
	}
	return nil
}
