package resonance

import (
	"context"
	"fmt"

	"github.com/agentic-research/resonance/internal/signature"
	"golang.org/x/sync/errgroup"
)

// Result is a scored, classified pair.
type Result struct {
	Score float64
	Law   Law
}

// Pair is one unit of batch scoring work.
type Pair struct {
	A, B signature.Signature
}

// Scorer scores signatures and classifies the score into bands.
// It is stateless after construction and safe for concurrent use.
type Scorer struct {
	bands Bands
}

// NewScorer returns a scorer using bands.
func NewScorer(bands Bands) *Scorer {
	return &Scorer{bands: bands}
}

// DefaultScorer uses DefaultBands.
func DefaultScorer() *Scorer { return NewScorer(DefaultBands()) }

// Bands returns the scorer's classification table.
func (s *Scorer) Bands() Bands { return s.bands }

// Similarity is the weighted Jaccard similarity of two signatures.
func Similarity(a, b signature.Signature) float64 {
	fa, fb := a.Factors(), b.Factors()
	if len(fa) == 0 && len(fb) == 0 {
		return 1
	}
	var num, den uint64
	i, j := 0, 0
	for i < len(fa) || j < len(fb) {
		switch {
		case j >= len(fb) || (i < len(fa) && fa[i].Prime < fb[j].Prime):
			den += uint64(fa[i].Exp)
			i++
		case i >= len(fa) || fb[j].Prime < fa[i].Prime:
			den += uint64(fb[j].Exp)
			j++
		default:
			x, y := fa[i].Exp, fb[j].Exp
			num += uint64(min(x, y))
			den += uint64(max(x, y))
			i++
			j++
		}
	}
	return float64(num) / float64(den)
}

// MassBound is the largest similarity two signatures with the given masses
// can reach: min(ma, mb) / max(ma, mb).
func MassBound(ma, mb uint64) float64 {
	if ma == 0 && mb == 0 {
		return 1
	}
	if ma > mb {
		ma, mb = mb, ma
	}
	return float64(ma) / float64(mb)
}

// Score scores and classifies a pair. Score(a, b) == Score(b, a).
func (s *Scorer) Score(a, b signature.Signature) (Result, error) {
	return s.Classify(Similarity(a, b))
}

// Self classifies a single signature against itself.
func (s *Scorer) Self(a signature.Signature) (Result, error) {
	return s.Score(a, a)
}

// Classify wraps a raw score into a Result.
func (s *Scorer) Classify(score float64) (Result, error) {
	law, err := s.bands.Classify(score)
	if err != nil {
		return Result{}, err
	}
	return Result{Score: score, Law: law}, nil
}

// ScoreBatch scores pairs concurrently with at most limit workers
// (unbounded when limit ≤ 0). Results keep input order.
func (s *Scorer) ScoreBatch(ctx context.Context, pairs []Pair, limit int) ([]Result, error) {
	out := make([]Result, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := s.Score(pairs[i].A, pairs[i].B)
			if err != nil {
				return fmt.Errorf("pair %d: %w", i, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
