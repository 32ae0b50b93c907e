package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/resonance/api"
	"github.com/agentic-research/resonance/internal/resonance"
)

// MaxTableFileSize bounds law-table files read from disk.
const MaxTableFileSize = 1 << 20

// DefaultTable returns the built-in law table: the default bands, rewrite
// disabled, and rules keeping harmony apart from dissonance.
func DefaultTable() *api.LawTable {
	t := &api.LawTable{Version: "1", Default: "allow"}
	for _, b := range resonance.DefaultBands().List() {
		t.Bands = append(t.Bands, api.Band{Law: b.Law.String(), Min: b.Min, Max: b.Max})
	}
	t.Rules = []api.Rule{
		{Op: "add", Left: "harmony", Right: "dissonance", Verdict: "reject", Symmetric: true,
			Reason: "harmony cannot absorb dissonance"},
		{Op: "add", Left: "echo", Right: "dissonance", Verdict: "rewrite", Symmetric: true,
			Rewrite: []string{"echo", "neutral"}, Reason: "dissonance next to echo downgraded to neutral"},
		{Op: "compose", Left: "harmony", Right: "dissonance", Verdict: "reject",
			Reason: "composition collapsed harmony into dissonance"},
		{Op: "transform", Left: "harmony", Right: "dissonance", Verdict: "reject",
			Reason: "transform collapsed harmony into dissonance"},
	}
	return t
}

// Decode parses a law table, choosing the syntax from the file extension:
// .hcl, .yaml/.yml or .json.
func Decode(filename string, src []byte) (*api.LawTable, error) {
	var t api.LawTable
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hcl":
		if err := hclsimple.Decode(filename, src, nil, &t); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", resonance.ErrInvalidLawTable, filename, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(src, &t); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", resonance.ErrInvalidLawTable, filename, err)
		}
	case ".json":
		if err := json.Unmarshal(src, &t); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", resonance.ErrInvalidLawTable, filename, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s: unsupported extension", resonance.ErrInvalidLawTable, filename)
	}
	return &t, nil
}

// LoadFile reads and decodes a law-table file.
func LoadFile(path string) (*api.LawTable, error) {
	info, err := os.Stat(path)
	if err != nil {
		tableLoadErrors.Inc()
		return nil, fmt.Errorf("load law table: %w", err)
	}
	if info.Size() > MaxTableFileSize {
		tableLoadErrors.Inc()
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", resonance.ErrInvalidLawTable, path, MaxTableFileSize)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		tableLoadErrors.Inc()
		return nil, fmt.Errorf("load law table: %w", err)
	}
	t, err := Decode(path, src)
	if err != nil {
		tableLoadErrors.Inc()
		return nil, err
	}
	return t, nil
}

// Load reads a law-table file and compiles it into an engine.
// AllowRewrite in cfg is overridden by the file.
func Load(path string, cfg Config) (*Engine, error) {
	t, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	e, err := Compile(t, cfg)
	if err != nil {
		tableLoadErrors.Inc()
		return nil, err
	}
	return e, nil
}

// Compile validates a law table and builds its engine. Every failure wraps
// resonance.ErrInvalidLawTable.
func Compile(t *api.LawTable, cfg Config) (*Engine, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil table", resonance.ErrInvalidLawTable)
	}

	bands := make([]resonance.Band, 0, len(t.Bands))
	for _, b := range t.Bands {
		law, err := resonance.Parse(b.Law)
		if err != nil {
			return nil, fmt.Errorf("%w: band: %v", resonance.ErrInvalidLawTable, err)
		}
		bands = append(bands, resonance.Band{Law: law, Min: b.Min, Max: b.Max})
	}
	bs, err := resonance.NewBands(bands)
	if err != nil {
		return nil, err
	}

	def, err := ParseVerdict(t.Default)
	if err != nil {
		return nil, fmt.Errorf("%w: default: %v", resonance.ErrInvalidLawTable, err)
	}
	if def == Rewrite {
		return nil, fmt.Errorf("%w: default verdict cannot be rewrite", resonance.ErrInvalidLawTable)
	}

	table := NewTable(def)
	for i, r := range t.Rules {
		if err := addRule(table, r); err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", resonance.ErrInvalidLawTable, i, err)
		}
	}

	cfg.AllowRewrite = t.AllowRewrite
	return NewEngine(table, bs, cfg), nil
}

func addRule(table *Table, r api.Rule) error {
	op, err := ParseOp(r.Op)
	if err != nil {
		return err
	}
	left, err := resonance.Parse(r.Left)
	if err != nil {
		return err
	}
	right, err := resonance.Parse(r.Right)
	if err != nil {
		return err
	}
	v, err := ParseVerdict(r.Verdict)
	if err != nil {
		return err
	}
	rule := Rule{Verdict: v, Reason: r.Reason}
	for _, name := range r.Rewrite {
		l, err := resonance.Parse(name)
		if err != nil {
			return err
		}
		rule.Rewrite = append(rule.Rewrite, l)
	}
	if r.Symmetric {
		return table.SetSymmetric(op, left, right, rule)
	}
	return table.Set(op, left, right, rule)
}

// Export renders the engine back into its configuration form. Symmetric
// rules are emitted as their two directed entries.
func (e *Engine) Export() *api.LawTable {
	t := &api.LawTable{
		Version:      "1",
		Default:      e.table.Default.String(),
		AllowRewrite: e.cfg.AllowRewrite,
	}
	for _, b := range e.bands.List() {
		t.Bands = append(t.Bands, api.Band{Law: b.Law.String(), Min: b.Min, Max: b.Max})
	}
	for _, en := range e.table.Entries() {
		r := api.Rule{
			Op:      en.Op.String(),
			Left:    en.Left.String(),
			Right:   en.Right.String(),
			Verdict: en.Rule.Verdict.String(),
			Reason:  en.Rule.Reason,
		}
		for _, l := range en.Rule.Rewrite {
			r.Rewrite = append(r.Rewrite, l.String())
		}
		t.Rules = append(t.Rules, r)
	}
	return t
}
