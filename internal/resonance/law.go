// Package resonance classifies pairs of factorial signatures into resonance
// laws.
//
// Scoring uses the weighted Jaccard (Ruzicka) similarity of two exponent
// vectors:
//
//	sim(a, b) = Σ_p min(a_p, b_p) / Σ_p max(a_p, b_p)
//
// with sim(∅, ∅) = 1. The score is symmetric and lies in [0, 1]. Scores are
// mapped to laws by Bands: contiguous half-open intervals [min, max) covering
// [0, 1], with the top band closed at 1.
package resonance

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownLaw is returned when a law name is not registered.
var ErrUnknownLaw = errors.New("unknown resonance law")

// Law is a resonance classification. The built-in laws are registered at
// init; experimental laws can be added with Register.
type Law uint8

// Built-in laws, in ascending rank.
const (
	Dissonance Law = iota
	Neutral
	Echo
	Harmony
)

type lawInfo struct {
	name string
	rank int
}

var (
	lawMu     sync.RWMutex
	lawTable  = []lawInfo{{"dissonance", 0}, {"neutral", 1}, {"echo", 2}, {"harmony", 3}}
	lawByName = map[string]Law{"dissonance": Dissonance, "neutral": Neutral, "echo": Echo, "harmony": Harmony}
)

// Register adds an experimental law. Names are case-insensitive and unique.
func Register(name string, rank int) (Law, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return 0, fmt.Errorf("register law: empty name")
	}
	lawMu.Lock()
	defer lawMu.Unlock()
	if _, ok := lawByName[key]; ok {
		return 0, fmt.Errorf("register law %q: already registered", key)
	}
	if len(lawTable) > 255 {
		return 0, fmt.Errorf("register law %q: law table full", key)
	}
	l := Law(len(lawTable))
	lawTable = append(lawTable, lawInfo{name: key, rank: rank})
	lawByName[key] = l
	return l, nil
}

// Parse resolves a law by name.
func Parse(name string) (Law, error) {
	lawMu.RLock()
	defer lawMu.RUnlock()
	l, ok := lawByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLaw, name)
	}
	return l, nil
}

// Laws returns every registered law ordered by rank, then registration.
func Laws() []Law {
	lawMu.RLock()
	out := make([]Law, len(lawTable))
	for i := range lawTable {
		out[i] = Law(i)
	}
	lawMu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}

// Valid reports whether l is registered.
func (l Law) Valid() bool {
	lawMu.RLock()
	defer lawMu.RUnlock()
	return int(l) < len(lawTable)
}

// Rank orders laws for tie-breaking only.
func (l Law) Rank() int {
	lawMu.RLock()
	defer lawMu.RUnlock()
	if int(l) >= len(lawTable) {
		return -1
	}
	return lawTable[l].rank
}

func (l Law) String() string {
	lawMu.RLock()
	defer lawMu.RUnlock()
	if int(l) >= len(lawTable) {
		return fmt.Sprintf("law(%d)", uint8(l))
	}
	return lawTable[l].name
}

// MarshalText implements encoding.TextMarshaler.
func (l Law) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLaw, uint8(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Law) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// LawSet is a set of laws. The zero value is empty.
type LawSet map[Law]struct{}

// NewLawSet builds a set from laws.
func NewLawSet(laws ...Law) LawSet {
	s := make(LawSet, len(laws))
	for _, l := range laws {
		s[l] = struct{}{}
	}
	return s
}

// AllLaws returns a set containing every registered law.
func AllLaws() LawSet { return NewLawSet(Laws()...) }

// Has reports membership.
func (s LawSet) Has(l Law) bool {
	_, ok := s[l]
	return ok
}
