package lattice

import "github.com/RoaringBitmap/roaring"

// MaxConcepts caps concept enumeration.
const MaxConcepts = 10000

// Concept is a maximal rectangle of the incidence table:
// Extent' = Intent and Intent' = Extent.
type Concept struct {
	Extent *roaring.Bitmap // object indices
	Intent *roaring.Bitmap // attribute indices
}

// Family is a concept resolved to node and prime values.
type Family struct {
	Nodes  []uint64
	Primes []uint32
}

// NextClosure enumerates every concept with Ganter's algorithm, in lectic
// order of intents, stopping after MaxConcepts.
func NextClosure(ctx *FormalContext) []Concept {
	m := len(ctx.Primes)
	if m == 0 {
		return nil
	}

	intent := ctx.Closure(roaring.New())
	concepts := []Concept{{Extent: ctx.AttrDeriv(intent), Intent: intent}}

	for len(concepts) < MaxConcepts {
		next := nextIntent(ctx, intent, m)
		if next == nil {
			break
		}
		concepts = append(concepts, Concept{Extent: ctx.AttrDeriv(next), Intent: next})
		intent = next
	}
	return concepts
}

// nextIntent returns the lectic successor of current, or nil after the last.
func nextIntent(ctx *FormalContext, current *roaring.Bitmap, m int) *roaring.Bitmap {
	for i := m - 1; i >= 0; i-- {
		ui := uint32(i)
		if current.Contains(ui) {
			continue
		}
		// candidate = (current ∩ [0, i)) ∪ {i}
		candidate := current.Clone()
		candidate.RemoveRange(uint64(ui), uint64(m))
		candidate.Add(ui)

		closed := ctx.Closure(candidate)

		// canonical iff closing added nothing below i
		below := closed.Clone()
		below.RemoveRange(uint64(ui), uint64(m))
		prefix := current.Clone()
		prefix.RemoveRange(uint64(ui), uint64(m))
		if below.Equals(prefix) {
			return closed
		}
	}
	return nil
}

// Families enumerates the concepts of ctx as node/prime families.
func Families(ctx *FormalContext) []Family {
	concepts := NextClosure(ctx)
	out := make([]Family, len(concepts))
	for i, c := range concepts {
		f := Family{}
		for _, obj := range c.Extent.ToArray() {
			f.Nodes = append(f.Nodes, ctx.Objects[obj])
		}
		for _, attr := range c.Intent.ToArray() {
			f.Primes = append(f.Primes, ctx.Primes[attr])
		}
		out[i] = f
	}
	return out
}
