package filter

import "github.com/agentic-research/resonance/internal/algebra"

// Trace records which members passed a matcher, by key in collection order.
type Trace struct {
	Passed []string
	Failed []string
}

// Total is the number of members inspected.
func (t Trace) Total() int { return len(t.Passed) + len(t.Failed) }

// PassRate is the fraction of members that passed, 0 for an empty trace.
func (t Trace) PassRate() float64 {
	if t.Total() == 0 {
		return 0
	}
	return float64(len(t.Passed)) / float64(t.Total())
}

func trace(m Matcher, c *algebra.Collection) Trace {
	var out Trace
	for _, e := range c.Edges() {
		if m.Keep(e) {
			out.Passed = append(out.Passed, e.Key())
		} else {
			out.Failed = append(out.Failed, e.Key())
		}
	}
	return out
}
