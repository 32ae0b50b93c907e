// Package rules implements the resonance rule engine: a data-driven table
// from (operation, law, law) to a verdict, consulted before every mutating
// algebra operation.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agentic-research/resonance/internal/resonance"
)

// ErrUnknownOp is returned for operation names that were never registered.
var ErrUnknownOp = errors.New("unknown operation")

// Op identifies an algebra operation kind.
type Op uint8

// Built-in operations.
const (
	OpAdd Op = iota
	OpCompose
	OpTransform
)

var (
	opMu    sync.RWMutex
	opNames = []string{"add", "compose", "transform"}
)

// RegisterOp adds an operation kind. Names are case-insensitive and unique.
func RegisterOp(name string) (Op, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return 0, fmt.Errorf("register op: empty name")
	}
	opMu.Lock()
	defer opMu.Unlock()
	for _, n := range opNames {
		if n == key {
			return 0, fmt.Errorf("register op %q: already registered", key)
		}
	}
	if len(opNames) > 255 {
		return 0, fmt.Errorf("register op %q: op table full", key)
	}
	opNames = append(opNames, key)
	return Op(len(opNames) - 1), nil
}

// ParseOp resolves a registered operation name.
func ParseOp(name string) (Op, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	opMu.RLock()
	defer opMu.RUnlock()
	for i, n := range opNames {
		if n == key {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOp, name)
}

func (o Op) String() string {
	opMu.RLock()
	defer opMu.RUnlock()
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Verdict is the outcome of a rule lookup.
type Verdict uint8

const (
	Allow Verdict = iota
	Reject
	Rewrite
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Reject:
		return "reject"
	case Rewrite:
		return "rewrite"
	default:
		return fmt.Sprintf("verdict(%d)", uint8(v))
	}
}

// ParseVerdict resolves "allow", "reject" or "rewrite". Empty means allow.
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow":
		return Allow, nil
	case "reject":
		return Reject, nil
	case "rewrite":
		return Rewrite, nil
	default:
		return 0, fmt.Errorf("unknown verdict %q", s)
	}
}

// Rule is the verdict for one (op, left, right) triple. Rewrite holds the
// replacement (left, right) laws when Verdict is Rewrite.
type Rule struct {
	Verdict Verdict
	Rewrite []resonance.Law
	Reason  string
}

type ruleKey struct {
	op          Op
	left, right resonance.Law
}

// Entry is a rule together with the triple it governs.
type Entry struct {
	Op    Op
	Left  resonance.Law
	Right resonance.Law
	Rule  Rule
}

// Table maps (op, law, law) to rules. Unlisted triples resolve to Default.
// Safe for concurrent use; rules may be registered while the engine runs.
type Table struct {
	Default Verdict

	mu    sync.RWMutex
	rules map[ruleKey]Rule
}

// NewTable returns an empty table with the given default verdict.
func NewTable(def Verdict) *Table {
	return &Table{Default: def, rules: make(map[ruleKey]Rule)}
}

// Set installs or replaces the rule for (op, left, right).
func (t *Table) Set(op Op, left, right resonance.Law, r Rule) error {
	if !left.Valid() || !right.Valid() {
		return fmt.Errorf("set rule %s(%s, %s): %w", op, left, right, resonance.ErrUnknownLaw)
	}
	switch r.Verdict {
	case Allow, Reject:
		if len(r.Rewrite) != 0 {
			return fmt.Errorf("set rule %s(%s, %s): rewrite laws on %s verdict", op, left, right, r.Verdict)
		}
	case Rewrite:
		if len(r.Rewrite) != 2 {
			return fmt.Errorf("set rule %s(%s, %s): rewrite needs 2 laws, got %d", op, left, right, len(r.Rewrite))
		}
		for _, l := range r.Rewrite {
			if !l.Valid() {
				return fmt.Errorf("set rule %s(%s, %s): %w", op, left, right, resonance.ErrUnknownLaw)
			}
		}
	default:
		return fmt.Errorf("set rule %s(%s, %s): unknown verdict %d", op, left, right, r.Verdict)
	}
	r.Rewrite = append([]resonance.Law(nil), r.Rewrite...)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules[ruleKey{op, left, right}] = r
	return nil
}

// SetSymmetric installs r for (left, right) and its mirror for (right, left).
func (t *Table) SetSymmetric(op Op, left, right resonance.Law, r Rule) error {
	if err := t.Set(op, left, right, r); err != nil {
		return err
	}
	mirror := Rule{Verdict: r.Verdict, Reason: r.Reason}
	if r.Verdict == Rewrite && len(r.Rewrite) == 2 {
		mirror.Rewrite = []resonance.Law{r.Rewrite[1], r.Rewrite[0]}
	}
	return t.Set(op, right, left, mirror)
}

// Lookup returns the rule for the triple and whether one was listed.
// Unlisted triples get a rule carrying the default verdict.
func (t *Table) Lookup(op Op, left, right resonance.Law) (Rule, bool) {
	t.mu.RLock()
	r, ok := t.rules[ruleKey{op, left, right}]
	t.mu.RUnlock()
	if !ok {
		return Rule{Verdict: t.Default}, false
	}
	return r, true
}

// Len returns the number of listed rules.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rules)
}

// Entries returns the listed rules ordered by op, left, right.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.rules))
	for k, r := range t.rules {
		r.Rewrite = append([]resonance.Law(nil), r.Rewrite...)
		out = append(out, Entry{Op: k.op, Left: k.left, Right: k.right, Rule: r})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Op != b.Op {
			return a.Op < b.Op
		}
		if a.Left != b.Left {
			return a.Left < b.Left
		}
		return a.Right < b.Right
	})
	return out
}
