package algebra

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/resonance/internal/resonance"
	"github.com/agentic-research/resonance/internal/signature"
)

// ErrDomain is returned when a transform is undefined for its input.
var ErrDomain = errors.New("transform domain failure")

// Transform maps an edge to a new edge. Implementations are pure and
// deterministic and never mutate their input.
type Transform interface {
	Name() string
	Apply(e *Edge) (*Edge, error)
}

func scorerOrDefault(s *resonance.Scorer) *resonance.Scorer {
	if s == nil {
		return resonance.DefaultScorer()
	}
	return s
}

// Identity returns an unchanged copy.
type Identity struct{}

func (Identity) Name() string { return "identity" }

func (Identity) Apply(e *Edge) (*Edge, error) { return e.Clone(), nil }

// Damp scales the score by Factor in (0, 1] and reclassifies.
type Damp struct {
	Factor float64
	Scorer *resonance.Scorer
}

func (d Damp) Name() string { return fmt.Sprintf("damp(%g)", d.Factor) }

func (d Damp) Apply(e *Edge) (*Edge, error) {
	if !(d.Factor > 0 && d.Factor <= 1) {
		return nil, fmt.Errorf("%w: damp factor %g outside (0, 1]", ErrDomain, d.Factor)
	}
	return e.rescored(scorerOrDefault(d.Scorer), e.Score*d.Factor)
}

// Amplify scales the score by Factor ≥ 1, saturating at 1. Undefined for a
// zero score, which has nothing to amplify.
type Amplify struct {
	Factor float64
	Scorer *resonance.Scorer
}

func (a Amplify) Name() string { return fmt.Sprintf("amplify(%g)", a.Factor) }

func (a Amplify) Apply(e *Edge) (*Edge, error) {
	if !(a.Factor >= 1) {
		return nil, fmt.Errorf("%w: amplify factor %g below 1", ErrDomain, a.Factor)
	}
	if e.Score == 0 {
		return nil, fmt.Errorf("%w: amplify of zero score on %s", ErrDomain, e.Key())
	}
	return e.rescored(scorerOrDefault(a.Scorer), min(1, e.Score*a.Factor))
}

// Invert maps score to 1 - score and reclassifies.
type Invert struct {
	Scorer *resonance.Scorer
}

func (Invert) Name() string { return "invert" }

func (i Invert) Apply(e *Edge) (*Edge, error) {
	return e.rescored(scorerOrDefault(i.Scorer), 1-e.Score)
}

// Evolve shifts both endpoints of a pair by Step and rescores the new
// signatures. The input edge is left untouched.
type Evolve struct {
	Step     int64
	Provider signature.Provider
	Scorer   *resonance.Scorer
}

func (v Evolve) Name() string { return fmt.Sprintf("evolve(%+d)", v.Step) }

func (v Evolve) Apply(e *Edge) (*Edge, error) {
	if len(e.Endpoints) != 2 {
		return nil, fmt.Errorf("%w: evolve needs a pair, got %d endpoints", ErrDomain, len(e.Endpoints))
	}
	if v.Provider == nil {
		return nil, fmt.Errorf("%w: evolve without signature provider", ErrDomain)
	}
	var sigs [2]signature.Signature
	ends := make([]uint64, 2)
	for i, n := range e.Endpoints {
		shifted := int64(n) + v.Step
		if shifted < 0 || (v.Step > 0 && shifted < int64(n)) {
			return nil, fmt.Errorf("%w: evolve %d by %+d leaves the domain", ErrDomain, n, v.Step)
		}
		sig, err := v.Provider.Signature(uint64(shifted))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDomain, err)
		}
		sigs[i], ends[i] = sig, uint64(shifted)
	}
	r, err := scorerOrDefault(v.Scorer).Score(sigs[0], sigs[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDomain, err)
	}
	return &Edge{Endpoints: ends, Score: r.Score, Law: r.Law}, nil
}

// Composite applies its steps left to right. The first failing step stops
// the pipeline; its error names the step index and transform.
type Composite struct {
	Steps []Transform
}

// Compose builds a composite of ts.
func Compose(ts ...Transform) Composite {
	return Composite{Steps: append([]Transform(nil), ts...)}
}

// Then returns a new composite with t appended.
func (c Composite) Then(t Transform) Composite {
	steps := make([]Transform, 0, len(c.Steps)+1)
	steps = append(steps, c.Steps...)
	return Composite{Steps: append(steps, t)}
}

func (c Composite) Name() string {
	names := make([]string, len(c.Steps))
	for i, t := range c.Steps {
		names[i] = t.Name()
	}
	return "composite(" + strings.Join(names, ", ") + ")"
}

func (c Composite) Apply(e *Edge) (*Edge, error) {
	cur := e.Clone()
	for i, t := range c.Steps {
		next, err := t.Apply(cur)
		if err != nil {
			if errors.Is(err, ErrDomain) {
				return nil, fmt.Errorf("step %d (%s): %w", i, t.Name(), err)
			}
			return nil, fmt.Errorf("%w: step %d (%s): %w", ErrDomain, i, t.Name(), err)
		}
		cur = next
	}
	return cur, nil
}
