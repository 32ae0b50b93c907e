package resonance

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidLawTable is returned when bands leave a gap, overlap, or
	// otherwise fail to cover [0, 1] exactly once. Detected at construction.
	ErrInvalidLawTable = errors.New("invalid law table")

	// ErrScoreOutOfRange is returned when classifying a score outside [0, 1].
	ErrScoreOutOfRange = errors.New("score out of range")
)

// Band maps the half-open score interval [Min, Max) to a law.
// The band whose Max is 1 also contains 1.
type Band struct {
	Law Law
	Min float64
	Max float64
}

// Bands is an ordered, validated set of score bands.
type Bands struct {
	bands []Band
}

// DefaultBands returns the built-in classification:
//
//	dissonance [0.00, 0.25)
//	neutral    [0.25, 0.50)
//	echo       [0.50, 0.75)
//	harmony    [0.75, 1.00]
func DefaultBands() Bands {
	b, err := NewBands([]Band{
		{Law: Dissonance, Min: 0, Max: 0.25},
		{Law: Neutral, Min: 0.25, Max: 0.5},
		{Law: Echo, Min: 0.5, Max: 0.75},
		{Law: Harmony, Min: 0.75, Max: 1},
	})
	if err != nil {
		panic(err)
	}
	return b
}

// NewBands validates bands (which must be listed in ascending order) and
// returns the classification table.
func NewBands(bands []Band) (Bands, error) {
	if err := validateBands(bands); err != nil {
		return Bands{}, err
	}
	cp := make([]Band, len(bands))
	copy(cp, bands)
	return Bands{bands: cp}, nil
}

func validateBands(bands []Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("%w: no bands", ErrInvalidLawTable)
	}
	seen := make(map[Law]bool, len(bands))
	for i, b := range bands {
		if !b.Law.Valid() {
			return fmt.Errorf("%w: band %d: %v", ErrInvalidLawTable, i, ErrUnknownLaw)
		}
		if seen[b.Law] {
			return fmt.Errorf("%w: law %s appears in more than one band", ErrInvalidLawTable, b.Law)
		}
		seen[b.Law] = true
		if math.IsNaN(b.Min) || math.IsNaN(b.Max) || b.Min >= b.Max {
			return fmt.Errorf("%w: band %s is empty [%g, %g)", ErrInvalidLawTable, b.Law, b.Min, b.Max)
		}
		if i == 0 {
			if b.Min != 0 {
				return fmt.Errorf("%w: gap [0, %g) before band %s", ErrInvalidLawTable, b.Min, b.Law)
			}
			continue
		}
		prev := bands[i-1]
		switch {
		case prev.Max < b.Min:
			return fmt.Errorf("%w: gap [%g, %g) between %s and %s", ErrInvalidLawTable, prev.Max, b.Min, prev.Law, b.Law)
		case prev.Max > b.Min:
			return fmt.Errorf("%w: %s and %s overlap on [%g, %g)", ErrInvalidLawTable, prev.Law, b.Law, b.Min, prev.Max)
		}
	}
	if last := bands[len(bands)-1]; last.Max != 1 {
		return fmt.Errorf("%w: top band %s ends at %g, want 1", ErrInvalidLawTable, last.Law, last.Max)
	}
	return nil
}

// Classify returns the single law whose band contains score.
func (b Bands) Classify(score float64) (Law, error) {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return 0, fmt.Errorf("%w: %g", ErrScoreOutOfRange, score)
	}
	if len(b.bands) == 0 {
		return 0, fmt.Errorf("%w: no bands", ErrInvalidLawTable)
	}
	for _, band := range b.bands {
		if score >= band.Min && score < band.Max {
			return band.Law, nil
		}
	}
	// score == 1 falls in the closed top band
	return b.bands[len(b.bands)-1].Law, nil
}

// Band returns the band for law, if any.
func (b Bands) Band(l Law) (Band, bool) {
	for _, band := range b.bands {
		if band.Law == l {
			return band, true
		}
	}
	return Band{}, false
}

// List returns a copy of the bands in ascending order.
func (b Bands) List() []Band {
	out := make([]Band, len(b.bands))
	copy(out, b.bands)
	return out
}

// Thresholds returns every band lower bound, ascending.
func (b Bands) Thresholds() []float64 {
	out := make([]float64, len(b.bands))
	for i, band := range b.bands {
		out[i] = band.Min
	}
	return out
}
