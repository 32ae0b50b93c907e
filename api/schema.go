package api

// LawTable is the root configuration of the resonance algebra.
// It declares the score bands and the rule table consulted before every
// mutating operation.
type LawTable struct {
	// Version of the law-table schema.
	Version string `json:"version,omitempty" yaml:"version,omitempty" hcl:"version,optional"`
	// Default is the verdict for (op, law, law) triples with no rule.
	// Empty means "allow".
	Default string `json:"default,omitempty" yaml:"default,omitempty" hcl:"default,optional"`
	// AllowRewrite enables rewrite verdicts. When false they are treated as
	// rejections.
	AllowRewrite bool `json:"allow_rewrite,omitempty" yaml:"allow_rewrite,omitempty" hcl:"allow_rewrite,optional"`
	// Bands partition [0, 1] into laws, in ascending order.
	Bands []Band `json:"bands" yaml:"bands" hcl:"band,block"`
	// Rules override the default verdict.
	Rules []Rule `json:"rules,omitempty" yaml:"rules,omitempty" hcl:"rule,block"`
}

// Band maps the score interval [Min, Max) to a law.
type Band struct {
	// Law name, e.g. "harmony".
	Law string `json:"law" yaml:"law" hcl:"law,label"`
	Min float64 `json:"min" yaml:"min" hcl:"min"`
	Max float64 `json:"max" yaml:"max" hcl:"max"`
}

// Rule is one entry of the rule table.
type Rule struct {
	// Op is the operation the rule governs ("add", "compose", "transform").
	Op    string `json:"op" yaml:"op" hcl:"op,label"`
	Left  string `json:"left" yaml:"left" hcl:"left"`
	Right string `json:"right" yaml:"right" hcl:"right"`
	// Verdict is one of "allow", "reject", "rewrite".
	Verdict string `json:"verdict" yaml:"verdict" hcl:"verdict"`
	// Rewrite lists the replacement laws for (left, right) when Verdict is
	// "rewrite". It must have exactly two entries.
	Rewrite []string `json:"rewrite,omitempty" yaml:"rewrite,omitempty" hcl:"rewrite,optional"`
	Reason  string   `json:"reason,omitempty" yaml:"reason,omitempty" hcl:"reason,optional"`
	// Symmetric also installs the rule for (right, left).
	Symmetric bool `json:"symmetric,omitempty" yaml:"symmetric,omitempty" hcl:"symmetric,optional"`
}
