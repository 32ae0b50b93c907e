package algebra

import "fmt"

// InvariantTolerance is the largest score change still classified as
// EffectInvariant.
const InvariantTolerance = 0.01

// Effect classifies what a transform did to a score.
type Effect uint8

const (
	EffectInvariant Effect = iota
	EffectAmplifying
	EffectDampening
)

func (f Effect) String() string {
	switch f {
	case EffectInvariant:
		return "invariant"
	case EffectAmplifying:
		return "amplifying"
	case EffectDampening:
		return "dampening"
	default:
		return fmt.Sprintf("effect(%d)", uint8(f))
	}
}

// EffectOf classifies a score delta. |delta| < InvariantTolerance is
// invariant.
func EffectOf(delta float64) Effect {
	switch {
	case delta > -InvariantTolerance && delta < InvariantTolerance:
		return EffectInvariant
	case delta > 0:
		return EffectAmplifying
	default:
		return EffectDampening
	}
}

// Delta applies t to e and returns the score change and its effect.
func Delta(t Transform, e *Edge) (float64, Effect, error) {
	out, err := t.Apply(e)
	if err != nil {
		return 0, EffectInvariant, err
	}
	d := out.Score - e.Score
	return d, EffectOf(d), nil
}
