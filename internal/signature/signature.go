// Package signature models factorial signatures: the prime-exponent vector
// of n! as produced by a Provider.
package signature

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSignature is returned when a factor list is not a valid signature
// (unsorted primes, duplicate primes, zero exponents).
var ErrInvalidSignature = errors.New("invalid signature")

// Factor is one prime and its exponent.
type Factor struct {
	Prime uint32 `json:"p"`
	Exp   uint32 `json:"e"`
}

// Signature is an immutable prime-exponent vector, ascending by prime.
// The zero value is the empty signature (0! and 1!).
type Signature struct {
	factors []Factor
	mass    uint64
}

// New builds a Signature from factors. Factors must be ascending by prime
// with positive exponents; the slice is copied.
func New(factors []Factor) (Signature, error) {
	out := make([]Factor, len(factors))
	var mass uint64
	for i, f := range factors {
		if f.Exp == 0 {
			return Signature{}, fmt.Errorf("%w: zero exponent for prime %d", ErrInvalidSignature, f.Prime)
		}
		if i > 0 && factors[i-1].Prime >= f.Prime {
			return Signature{}, fmt.Errorf("%w: primes not strictly ascending at %d", ErrInvalidSignature, f.Prime)
		}
		out[i] = f
		mass += uint64(f.Exp)
	}
	return Signature{factors: out, mass: mass}, nil
}

// MustNew is New for literals in tests and tables.
func MustNew(factors ...Factor) Signature {
	s, err := New(factors)
	if err != nil {
		panic(err)
	}
	return s
}

// FromMap builds a Signature from a prime → exponent map. Zero exponents are dropped.
func FromMap(m map[uint32]uint32) (Signature, error) {
	factors := make([]Factor, 0, len(m))
	for p, e := range m {
		if e == 0 {
			continue
		}
		factors = append(factors, Factor{Prime: p, Exp: e})
	}
	sortFactors(factors)
	return New(factors)
}

func sortFactors(fs []Factor) {
	// insertion sort: signatures are short and nearly sorted
	for i := 1; i < len(fs); i++ {
		for j := i; j > 0 && fs[j-1].Prime > fs[j].Prime; j-- {
			fs[j-1], fs[j] = fs[j], fs[j-1]
		}
	}
}

// Factors returns a copy of the factor list.
func (s Signature) Factors() []Factor {
	out := make([]Factor, len(s.factors))
	copy(out, s.factors)
	return out
}

// Map returns the signature as a fresh prime → exponent map.
func (s Signature) Map() map[uint32]uint32 {
	m := make(map[uint32]uint32, len(s.factors))
	for _, f := range s.factors {
		m[f.Prime] = f.Exp
	}
	return m
}

// Exp returns the exponent of p, or 0 if p does not divide.
func (s Signature) Exp(p uint32) uint32 {
	lo, hi := 0, len(s.factors)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case s.factors[mid].Prime == p:
			return s.factors[mid].Exp
		case s.factors[mid].Prime < p:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0
}

// Primes returns the primes with non-zero exponent, ascending.
func (s Signature) Primes() []uint32 {
	out := make([]uint32, len(s.factors))
	for i, f := range s.factors {
		out[i] = f.Prime
	}
	return out
}

// Exponents returns the exponents in ascending prime order.
func (s Signature) Exponents() []uint32 {
	out := make([]uint32, len(s.factors))
	for i, f := range s.factors {
		out[i] = f.Exp
	}
	return out
}

// Mass is the total exponent sum (the number of prime factors of n! with multiplicity).
func (s Signature) Mass() uint64 { return s.mass }

// Width is the number of distinct primes.
func (s Signature) Width() int { return len(s.factors) }

// IsEmpty reports whether the signature has no factors.
func (s Signature) IsEmpty() bool { return len(s.factors) == 0 }

// Equal reports factor-wise equality.
func (s Signature) Equal(o Signature) bool {
	if len(s.factors) != len(o.factors) {
		return false
	}
	for i := range s.factors {
		if s.factors[i] != o.factors[i] {
			return false
		}
	}
	return true
}

// String renders the signature as "{2:3, 3:1}".
func (s Signature) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range s.factors {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatUint(uint64(f.Prime), 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(f.Exp), 10))
	}
	b.WriteByte('}')
	return b.String()
}

// MarshalJSON encodes the signature as its factor list.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.factors)
}

// UnmarshalJSON decodes a factor list and re-validates it.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var factors []Factor
	if err := json.Unmarshal(data, &factors); err != nil {
		return err
	}
	decoded, err := New(factors)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
