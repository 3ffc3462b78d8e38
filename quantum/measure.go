package quantum

import (
	"fmt"
	"math"

	qkderr "github.com/qtessera/qkd/internal/errors"
	"github.com/qtessera/qkd/qrand"
)

// ProbabilityTolerance is the floor below which an outcome probability is
// treated as zero, and the slack allowed when checking that a distribution
// sums to one.
const ProbabilityTolerance = 1e-9

// A Basis is a complete orthonormal measurement basis, represented by the
// unitary whose columns are its basis vectors.
type Basis struct {
	name string
	rot  Gate
}

// NewBasis builds a basis from a unitary whose columns are the basis
// vectors.
func NewBasis(name string, rot Gate) Basis {
	return Basis{name: name, rot: rot}
}

// Name identifies the basis; sifting compares names, never outcomes.
func (b Basis) Name() string {
	return b.name
}

// Dim returns the basis dimension.
func (b Basis) Dim() int {
	return b.rot.Dim()
}

// ComputationalBasis returns the d-dimensional computational (Z) basis.
func ComputationalBasis(d int) Basis {
	return Basis{name: "computational", rot: Identity(d)}
}

// HadamardBasis returns the diagonal (X) qubit basis {|+⟩, |−⟩}.
func HadamardBasis() Basis {
	return Basis{name: "hadamard", rot: Hadamard()}
}

// CircularBasis returns the circular (Y) qubit basis {|R⟩, |L⟩}.
func CircularBasis() Basis {
	h := complex(1/math.Sqrt2, 0)
	return Basis{name: "circular", rot: mustGate([][]complex128{
		{h, h},
		{h * 1i, -h * 1i},
	})}
}

// AngleBasis returns the qubit basis rotated by theta about the Y axis, as
// used by the E91 correlation measurements.
func AngleBasis(theta float64) Basis {
	return Basis{name: fmt.Sprintf("angle(%.4f)", theta), rot: Ry(theta)}
}

// FourierBasis returns the d-dimensional Fourier basis, the qudit analogue
// of the Hadamard basis.
func FourierBasis(d int) Basis {
	return Basis{name: "fourier", rot: Fourier(d)}
}

// An Outcome records one sampled measurement: the classical value, the basis
// used, the unit measured (-1 for the whole system), and the full Born-rule
// distribution the value was drawn from. Collapse requires the Outcome back,
// which keeps the sample and commit phases explicitly separated.
type Outcome struct {
	Value         int
	Basis         Basis
	Unit          int
	Probabilities []float64
}

// Probabilities computes the Born-rule outcome distribution for measuring
// the whole system in basis b, without mutating s.
func Probabilities(s *State, b Basis) ([]float64, error) {
	if b.Dim() != s.Dim() {
		return nil, fmt.Errorf("%w: %d-dim basis on %d-dim state", qkderr.ErrDimensionMismatch, b.Dim(), s.Dim())
	}
	rotated, err := s.Apply(b.rot.Dagger())
	if err != nil {
		return nil, err
	}
	probs := make([]float64, len(rotated.amps))
	for i, a := range rotated.amps {
		probs[i] = real(a)*real(a) + imag(a)*imag(a)
	}
	return probs, nil
}

// UnitProbabilities computes the outcome distribution for measuring one unit
// of a composite system in basis b, without mutating s.
func UnitProbabilities(s *State, unit int, b Basis) ([]float64, error) {
	if b.Dim() != s.unitDim {
		return nil, fmt.Errorf("%w: %d-dim basis on dimension-%d unit", qkderr.ErrDimensionMismatch, b.Dim(), s.unitDim)
	}
	rotated, err := s.ApplyAt(b.rot.Dagger(), unit)
	if err != nil {
		return nil, err
	}
	probs := make([]float64, s.unitDim)
	for i, a := range rotated.amps {
		probs[rotated.digit(i, unit)] += real(a)*real(a) + imag(a)*imag(a)
	}
	return probs, nil
}

// Sample draws one outcome for measuring the whole system in basis b. The
// state is not mutated; commit with Collapse.
func Sample(s *State, b Basis, src qrand.Source) (Outcome, error) {
	probs, err := Probabilities(s, b)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Value: draw(probs, src), Basis: b, Unit: -1, Probabilities: probs}, nil
}

// SampleUnit draws one outcome for measuring a single unit of a composite
// system in basis b, without mutating s.
func SampleUnit(s *State, unit int, b Basis, src qrand.Source) (Outcome, error) {
	probs, err := UnitProbabilities(s, unit, b)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Value: draw(probs, src), Basis: b, Unit: unit, Probabilities: probs}, nil
}

// Collapse deterministically returns the post-measurement state for the
// given outcome. It is a pure function of (state, outcome): collapsing the
// same inputs always yields the same state, and collapsing a collapsed state
// with the same outcome is a no-op. An outcome whose value is out of range
// or has zero probability in this state fails with ErrInvalidOutcome.
func Collapse(s *State, o Outcome) (*State, error) {
	if o.Unit >= 0 {
		return collapseUnit(s, o)
	}
	if o.Basis.Dim() != s.Dim() {
		return nil, fmt.Errorf("%w: %d-dim basis on %d-dim state", qkderr.ErrDimensionMismatch, o.Basis.Dim(), s.Dim())
	}
	if o.Value < 0 || o.Value >= s.Dim() {
		return nil, fmt.Errorf("%w: outcome %d of %d", qkderr.ErrInvalidOutcome, o.Value, s.Dim())
	}
	rotated, err := s.Apply(o.Basis.rot.Dagger())
	if err != nil {
		return nil, err
	}
	a := rotated.amps[o.Value]
	if real(a)*real(a)+imag(a)*imag(a) < ProbabilityTolerance {
		return nil, fmt.Errorf("%w: outcome %d has zero probability in basis %s", qkderr.ErrInvalidOutcome, o.Value, o.Basis.Name())
	}
	for i := range rotated.amps {
		if i != o.Value {
			rotated.amps[i] = 0
		}
	}
	if err := rotated.normalize(); err != nil {
		return nil, err
	}
	return rotated.Apply(o.Basis.rot)
}

func collapseUnit(s *State, o Outcome) (*State, error) {
	if o.Basis.Dim() != s.unitDim {
		return nil, fmt.Errorf("%w: %d-dim basis on dimension-%d unit", qkderr.ErrDimensionMismatch, o.Basis.Dim(), s.unitDim)
	}
	if o.Unit >= s.units {
		return nil, fmt.Errorf("%w: unit %d of %d", qkderr.ErrDimensionMismatch, o.Unit, s.units)
	}
	if o.Value < 0 || o.Value >= s.unitDim {
		return nil, fmt.Errorf("%w: outcome %d of %d", qkderr.ErrInvalidOutcome, o.Value, s.unitDim)
	}
	rotated, err := s.ApplyAt(o.Basis.rot.Dagger(), o.Unit)
	if err != nil {
		return nil, err
	}
	var kept float64
	for i, a := range rotated.amps {
		if rotated.digit(i, o.Unit) == o.Value {
			kept += real(a)*real(a) + imag(a)*imag(a)
		} else {
			rotated.amps[i] = 0
		}
	}
	if kept < ProbabilityTolerance {
		return nil, fmt.Errorf("%w: outcome %d has zero probability in basis %s", qkderr.ErrInvalidOutcome, o.Value, o.Basis.Name())
	}
	if err := rotated.normalize(); err != nil {
		return nil, err
	}
	return rotated.ApplyAt(o.Basis.rot, o.Unit)
}

// draw samples an index from a probability vector. The vector comes from
// squared amplitudes of a normalized state, so it sums to 1 up to float
// drift; any residual mass falls to the last nonzero entry.
func draw(probs []float64, src qrand.Source) int {
	r := src.Float64()
	var cum float64
	last := 0
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		last = i
		cum += p
		if r < cum {
			return i
		}
	}
	return last
}
