// Package quantum implements the amplitude-level simulation engine: state
// vectors for qubits, qudits, and composite systems, validated unitary
// gates, and projective measurement with an explicit sample/collapse split.
package quantum

import (
	"fmt"
	"math"
	"math/cmplx"

	qkderr "github.com/qtessera/qkd/internal/errors"
)

// NormTolerance bounds how far a state's squared norm may drift from 1.
const NormTolerance = 1e-9

// A State is a normalized complex amplitude vector over one or more units of
// equal dimension: qubits (d=2) or qudits (prime d>2). States are immutable
// by convention; gates and collapse return fresh values, and queries never
// mutate.
type State struct {
	unitDim int
	units   int
	amps    []complex128
}

// FromAmplitudes builds a state of per-unit dimension d from amps, whose
// length must be a positive power of d. The vector is normalized; a zero
// vector fails with ErrInvalidState.
func FromAmplitudes(d int, amps []complex128) (*State, error) {
	if d < 2 {
		return nil, fmt.Errorf("%w: unit dimension %d", qkderr.ErrInvalidState, d)
	}
	units := 0
	for total := 1; total < len(amps); total *= d {
		units++
		if total*d > len(amps) {
			return nil, fmt.Errorf("%w: %d amplitudes is not a power of %d", qkderr.ErrDimensionMismatch, len(amps), d)
		}
	}
	if len(amps) < d || units == 0 {
		return nil, fmt.Errorf("%w: %d amplitudes for dimension %d", qkderr.ErrDimensionMismatch, len(amps), d)
	}
	s := &State{unitDim: d, units: units, amps: append([]complex128(nil), amps...)}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return s, nil
}

// BasisState returns the single-unit computational basis state |k⟩ in
// dimension d.
func BasisState(d, k int) (*State, error) {
	if k < 0 || k >= d {
		return nil, fmt.Errorf("%w: basis index %d in dimension %d", qkderr.ErrDimensionMismatch, k, d)
	}
	amps := make([]complex128, d)
	amps[k] = 1
	return &State{unitDim: d, units: 1, amps: amps}, nil
}

// Zero returns the qubit |0⟩.
func Zero() *State {
	s, _ := BasisState(2, 0)
	return s
}

// One returns the qubit |1⟩.
func One() *State {
	s, _ := BasisState(2, 1)
	return s
}

// Plus returns the qubit (|0⟩+|1⟩)/√2.
func Plus() *State {
	h := complex(1/math.Sqrt2, 0)
	return &State{unitDim: 2, units: 1, amps: []complex128{h, h}}
}

// Minus returns the qubit (|0⟩−|1⟩)/√2.
func Minus() *State {
	h := complex(1/math.Sqrt2, 0)
	return &State{unitDim: 2, units: 1, amps: []complex128{h, -h}}
}

// Bell returns one of the four two-qubit Bell states:
//
//	0: (|00⟩+|11⟩)/√2   1: (|00⟩−|11⟩)/√2
//	2: (|01⟩+|10⟩)/√2   3: (|01⟩−|10⟩)/√2
func Bell(kind int) (*State, error) {
	h := complex(1/math.Sqrt2, 0)
	var amps []complex128
	switch kind {
	case 0:
		amps = []complex128{h, 0, 0, h}
	case 1:
		amps = []complex128{h, 0, 0, -h}
	case 2:
		amps = []complex128{0, h, h, 0}
	case 3:
		amps = []complex128{0, h, -h, 0}
	default:
		return nil, fmt.Errorf("%w: bell state kind %d", qkderr.ErrInvalidState, kind)
	}
	return &State{unitDim: 2, units: 2, amps: amps}, nil
}

// GHZ returns the n-qubit state (|0…0⟩+|1…1⟩)/√2.
func GHZ(n int) (*State, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: GHZ over %d qubits", qkderr.ErrInvalidState, n)
	}
	amps := make([]complex128, 1<<n)
	h := complex(1/math.Sqrt2, 0)
	amps[0] = h
	amps[len(amps)-1] = h
	return &State{unitDim: 2, units: n, amps: amps}, nil
}

// UnitDim returns the per-unit dimension d.
func (s *State) UnitDim() int {
	return s.unitDim
}

// Units returns the number of units in the composite system.
func (s *State) Units() int {
	return s.units
}

// Dim returns the total vector dimension, d^n.
func (s *State) Dim() int {
	return len(s.amps)
}

// Amplitudes returns a copy of the state vector.
func (s *State) Amplitudes() []complex128 {
	return append([]complex128(nil), s.amps...)
}

// Norm returns the vector norm; 1 within NormTolerance for any valid state.
func (s *State) Norm() float64 {
	var sum float64
	for _, a := range s.amps {
		sum += real(a)*real(a) + imag(a)*imag(a)
	}
	return math.Sqrt(sum)
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	return &State{unitDim: s.unitDim, units: s.units, amps: append([]complex128(nil), s.amps...)}
}

// Tensor composes s and other into one system. Both must share a unit
// dimension.
func (s *State) Tensor(other *State) (*State, error) {
	if s.unitDim != other.unitDim {
		return nil, fmt.Errorf("%w: tensor of dimension-%d and dimension-%d units", qkderr.ErrDimensionMismatch, s.unitDim, other.unitDim)
	}
	amps := make([]complex128, len(s.amps)*len(other.amps))
	for i, a := range s.amps {
		for j, b := range other.amps {
			amps[i*len(other.amps)+j] = a * b
		}
	}
	return &State{unitDim: s.unitDim, units: s.units + other.units, amps: amps}, nil
}

// Apply returns g applied to the whole system, renormalized to absorb
// floating-point drift. Fails with ErrDimensionMismatch when the gate does
// not span the full system.
func (s *State) Apply(g Gate) (*State, error) {
	if g.Dim() != len(s.amps) {
		return nil, fmt.Errorf("%w: %d-dim gate on %d-dim state", qkderr.ErrDimensionMismatch, g.Dim(), len(s.amps))
	}
	amps := make([]complex128, len(s.amps))
	for i := range amps {
		var sum complex128
		for j, a := range s.amps {
			sum += g.At(i, j) * a
		}
		amps[i] = sum
	}
	r := &State{unitDim: s.unitDim, units: s.units, amps: amps}
	if err := r.normalize(); err != nil {
		return nil, err
	}
	return r, nil
}

// ApplyAt returns a single-unit gate applied to the unit at the given index,
// leaving the other units untouched. The gate dimension must equal the
// per-unit dimension.
func (s *State) ApplyAt(g Gate, unit int) (*State, error) {
	if g.Dim() != s.unitDim {
		return nil, fmt.Errorf("%w: %d-dim gate on dimension-%d unit", qkderr.ErrDimensionMismatch, g.Dim(), s.unitDim)
	}
	if unit < 0 || unit >= s.units {
		return nil, fmt.Errorf("%w: unit %d of %d", qkderr.ErrDimensionMismatch, unit, s.units)
	}
	d := s.unitDim
	stride := s.stride(unit)
	amps := append([]complex128(nil), s.amps...)
	sub := make([]complex128, d)
	for base := 0; base < len(amps); base += stride * d {
		for off := 0; off < stride; off++ {
			for k := 0; k < d; k++ {
				sub[k] = amps[base+off+k*stride]
			}
			for i := 0; i < d; i++ {
				var sum complex128
				for j := 0; j < d; j++ {
					sum += g.At(i, j) * sub[j]
				}
				amps[base+off+i*stride] = sum
			}
		}
	}
	r := &State{unitDim: s.unitDim, units: s.units, amps: amps}
	if err := r.normalize(); err != nil {
		return nil, err
	}
	return r, nil
}

// Extract keeps only the listed units, in order. Every dropped unit must
// already be in a definite computational value (i.e. measured and
// collapsed); otherwise the reduced system is not a pure state and Extract
// fails.
func (s *State) Extract(keep ...int) (*State, error) {
	kept := make(map[int]bool, len(keep))
	for _, u := range keep {
		if u < 0 || u >= s.units {
			return nil, fmt.Errorf("%w: unit %d of %d", qkderr.ErrDimensionMismatch, u, s.units)
		}
		kept[u] = true
	}
	// Pin each dropped unit to its collapsed value.
	fixed := make(map[int]int)
	for u := 0; u < s.units; u++ {
		if kept[u] {
			continue
		}
		v := -1
		for i, a := range s.amps {
			if cmplx.Abs(a) < NormTolerance {
				continue
			}
			dv := s.digit(i, u)
			if v == -1 {
				v = dv
			} else if v != dv {
				return nil, fmt.Errorf("%w: unit %d is still entangled", qkderr.ErrInvalidState, u)
			}
		}
		if v == -1 {
			return nil, fmt.Errorf("%w: zero state", qkderr.ErrInvalidState)
		}
		fixed[u] = v
	}
	d := s.unitDim
	out := make([]complex128, pow(d, len(keep)))
	for i, a := range s.amps {
		match := true
		for u, v := range fixed {
			if s.digit(i, u) != v {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		idx := 0
		for _, u := range keep {
			idx = idx*d + s.digit(i, u)
		}
		out[idx] = a
	}
	r := &State{unitDim: d, units: len(keep), amps: out}
	if err := r.normalize(); err != nil {
		return nil, err
	}
	return r, nil
}

// digit returns the base-d digit of index i corresponding to the given unit,
// unit 0 being the most significant.
func (s *State) digit(i, unit int) int {
	return (i / s.stride(unit)) % s.unitDim
}

func (s *State) stride(unit int) int {
	return pow(s.unitDim, s.units-1-unit)
}

func (s *State) normalize() error {
	n := s.Norm()
	if n < NormTolerance {
		return fmt.Errorf("%w: zero norm", qkderr.ErrInvalidState)
	}
	if math.Abs(n-1) <= NormTolerance {
		return nil
	}
	inv := complex(1/n, 0)
	for i := range s.amps {
		s.amps[i] *= inv
	}
	return nil
}

func pow(b, e int) int {
	r := 1
	for i := 0; i < e; i++ {
		r *= b
	}
	return r
}
