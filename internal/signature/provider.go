package signature

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxN bounds the sieve built by a Legendre provider.
const DefaultMaxN = 1 << 20

// ErrOutOfRange is returned for n beyond the provider's configured bound.
var ErrOutOfRange = errors.New("n out of provider range")

// Provider returns the factorial signature of n. Implementations must be
// pure and deterministic; the index never factorizes on its own.
type Provider interface {
	Signature(n uint64) (Signature, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(n uint64) (Signature, error)

// Signature implements Provider.
func (f ProviderFunc) Signature(n uint64) (Signature, error) { return f(n) }

// Legendre computes v_p(n!) = Σ_{i≥1} ⌊n / p^i⌋ for every prime p ≤ n.
// Primes are sieved lazily up to the largest n requested.
type Legendre struct {
	MaxN uint64

	mu     sync.Mutex
	primes []uint32
	sieved uint64
}

// NewLegendre returns a provider accepting n ≤ maxN (DefaultMaxN when 0).
func NewLegendre(maxN uint64) *Legendre {
	if maxN == 0 {
		maxN = DefaultMaxN
	}
	return &Legendre{MaxN: maxN}
}

// Signature implements Provider.
func (l *Legendre) Signature(n uint64) (Signature, error) {
	if n > l.MaxN {
		return Signature{}, fmt.Errorf("%w: %d > %d", ErrOutOfRange, n, l.MaxN)
	}
	primes := l.primesUpTo(n)

	factors := make([]Factor, 0, len(primes))
	var mass uint64
	for _, p := range primes {
		var e uint64
		for pk := uint64(p); pk <= n; pk *= uint64(p) {
			e += n / pk
			if pk > n/uint64(p) {
				break
			}
		}
		factors = append(factors, Factor{Prime: p, Exp: uint32(e)})
		mass += e
	}
	return Signature{factors: factors, mass: mass}, nil
}

// primesUpTo returns the primes ≤ n from the shared sieve, growing it if needed.
func (l *Legendre) primesUpTo(n uint64) []uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > l.sieved {
		limit := n
		if grown := l.sieved * 2; grown > limit && grown <= l.MaxN {
			limit = grown
		}
		l.primes = sieve(limit)
		l.sieved = limit
	}

	// primes is ascending; find the cut
	lo, hi := 0, len(l.primes)
	for lo < hi {
		mid := (lo + hi) / 2
		if uint64(l.primes[mid]) <= n {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	out := make([]uint32, lo)
	copy(out, l.primes[:lo])
	return out
}

func sieve(limit uint64) []uint32 {
	if limit < 2 {
		return nil
	}
	composite := make([]bool, limit+1)
	var primes []uint32
	for i := uint64(2); i <= limit; i++ {
		if composite[i] {
			continue
		}
		primes = append(primes, uint32(i))
		for j := i * i; j <= limit; j += i {
			composite[j] = true
		}
	}
	return primes
}

// Cached memoizes another provider in a bounded LRU.
type Cached struct {
	inner Provider
	cache *lru.Cache[uint64, Signature]
}

// NewCached wraps inner with an LRU of the given size.
func NewCached(inner Provider, size int) (*Cached, error) {
	c, err := lru.New[uint64, Signature](size)
	if err != nil {
		return nil, fmt.Errorf("signature cache: %w", err)
	}
	return &Cached{inner: inner, cache: c}, nil
}

// Signature implements Provider.
func (c *Cached) Signature(n uint64) (Signature, error) {
	if s, ok := c.cache.Get(n); ok {
		return s, nil
	}
	s, err := c.inner.Signature(n)
	if err != nil {
		return Signature{}, err
	}
	c.cache.Add(n, s)
	return s, nil
}
