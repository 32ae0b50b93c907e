package rules

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/agentic-research/resonance/internal/resonance"
)

// ErrRuleViolation is matched by every *RuleViolation.
var ErrRuleViolation = errors.New("rule violation")

// RuleViolation reports the law pair an operation was rejected for.
type RuleViolation struct {
	Op     Op
	Left   resonance.Law
	Right  resonance.Law
	Reason string
}

func (e *RuleViolation) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("rule violation: %s(%s, %s) rejected", e.Op, e.Left, e.Right)
	}
	return fmt.Sprintf("rule violation: %s(%s, %s) rejected: %s", e.Op, e.Left, e.Right, e.Reason)
}

// Is reports ErrRuleViolation.
func (e *RuleViolation) Is(target error) bool { return target == ErrRuleViolation }

// ReasonRewriteDisabled is the rejection reason for rewrite rules while
// rewriting is turned off.
const ReasonRewriteDisabled = "rewrite disabled"

// Config controls engine behavior.
type Config struct {
	// AllowRewrite honours rewrite verdicts. When false they are rejections.
	AllowRewrite bool
	Logger       *slog.Logger
}

// Decision is the outcome of validating an operation. Laws holds the
// operand laws to use: the inputs for Allow, replacements for Rewrite.
type Decision struct {
	Verdict Verdict
	Reason  string
	Laws    []resonance.Law
}

// Allowed reports whether the operation may proceed (possibly rewritten).
func (d Decision) Allowed() bool { return d.Verdict != Reject }

// Engine validates operations against a rule table. It holds no mutable
// state of its own; the table may be extended concurrently.
type Engine struct {
	table  *Table
	bands  resonance.Bands
	cfg    Config
	logger *slog.Logger
}

// NewEngine binds a table and its classification bands.
func NewEngine(table *Table, bands resonance.Bands, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{table: table, bands: bands, cfg: cfg, logger: logger}
}

// DefaultEngine compiles DefaultTable.
func DefaultEngine() *Engine {
	e, err := Compile(DefaultTable(), Config{})
	if err != nil {
		panic(err)
	}
	return e
}

// Table returns the engine's rule table, for plug-in registration.
func (e *Engine) Table() *Table { return e.table }

// Bands returns the classification bands the table was declared with.
func (e *Engine) Bands() resonance.Bands { return e.bands }

// Scorer returns a scorer classifying with the engine's bands.
func (e *Engine) Scorer() *resonance.Scorer { return resonance.NewScorer(e.bands) }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// decide resolves one pair, applying the rewrite configuration.
func (e *Engine) decide(op Op, left, right resonance.Law) Decision {
	r, _ := e.table.Lookup(op, left, right)
	switch r.Verdict {
	case Reject:
		return Decision{Verdict: Reject, Reason: r.Reason, Laws: []resonance.Law{left, right}}
	case Rewrite:
		if !e.cfg.AllowRewrite {
			return Decision{Verdict: Reject, Reason: ReasonRewriteDisabled, Laws: []resonance.Law{left, right}}
		}
		return Decision{Verdict: Rewrite, Reason: r.Reason, Laws: append([]resonance.Law(nil), r.Rewrite...)}
	default:
		return Decision{Verdict: Allow, Reason: r.Reason, Laws: []resonance.Law{left, right}}
	}
}

// Validate decides whether op may combine operands carrying laws. Adjacent
// pairs are checked left to right; the first rejection decides. Rewrites
// replace the laws of the pair they matched, and later pairs see the
// rewritten laws. Fewer than two laws are always allowed.
func (e *Engine) Validate(op Op, laws ...resonance.Law) Decision {
	out := Decision{Verdict: Allow, Laws: append([]resonance.Law(nil), laws...)}
	for i := 0; i+1 < len(out.Laws); i++ {
		d := e.decide(op, out.Laws[i], out.Laws[i+1])
		switch d.Verdict {
		case Reject:
			recordDecision(op, Reject)
			e.logger.Debug("rule rejected", "op", op, "left", out.Laws[i], "right", out.Laws[i+1], "reason", d.Reason)
			return Decision{Verdict: Reject, Reason: d.Reason, Laws: append([]resonance.Law(nil), laws...)}
		case Rewrite:
			out.Verdict = Rewrite
			out.Reason = d.Reason
			out.Laws[i], out.Laws[i+1] = d.Laws[0], d.Laws[1]
		}
	}
	recordDecision(op, out.Verdict)
	return out
}

// Check validates the pair (left, right) and converts a rejection into a
// *RuleViolation.
func (e *Engine) Check(op Op, left, right resonance.Law) (Decision, error) {
	d := e.Validate(op, left, right)
	if d.Verdict == Reject {
		return d, &RuleViolation{Op: op, Left: left, Right: right, Reason: d.Reason}
	}
	return d, nil
}

// verdict is the effective verdict for one pair, without recording metrics.
func (e *Engine) verdict(op Op, left, right resonance.Law) Verdict {
	return e.decide(op, left, right).Verdict
}

// Symmetric reports whether every (a, b) verdict for op equals (b, a).
func (e *Engine) Symmetric(op Op) bool {
	laws := resonance.Laws()
	for i, a := range laws {
		for _, b := range laws[i+1:] {
			if e.verdict(op, a, b) != e.verdict(op, b, a) {
				return false
			}
		}
	}
	return true
}

// Transitive reports whether the allowed relation of op is transitively
// closed: allowed(a, b) and allowed(b, c) imply allowed(a, c).
func (e *Engine) Transitive(op Op) bool {
	laws := resonance.Laws()
	allowed := make(map[[2]resonance.Law]bool, len(laws)*len(laws))
	for _, a := range laws {
		for _, b := range laws {
			allowed[[2]resonance.Law{a, b}] = e.verdict(op, a, b) != Reject
		}
	}
	for _, a := range laws {
		for _, b := range laws {
			if !allowed[[2]resonance.Law{a, b}] {
				continue
			}
			for _, c := range laws {
				if allowed[[2]resonance.Law{b, c}] && !allowed[[2]resonance.Law{a, c}] {
					return false
				}
			}
		}
	}
	return true
}

// Lawful reports whether op is both symmetric and transitive, the
// precondition for addition being commutative and associative.
func (e *Engine) Lawful(op Op) bool {
	return e.Symmetric(op) && e.Transitive(op)
}
