package quantum

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/mat"

	qkderr "github.com/qtessera/qkd/internal/errors"
)

// UnitaryTolerance bounds how far a gate matrix may deviate from exact
// unitarity before construction is rejected.
const UnitaryTolerance = 1e-9

// A Gate is a d×d unitary matrix. Gates are validated at construction, so a
// Gate value in hand is always safe to apply.
type Gate struct {
	dim int
	m   *mat.CDense
}

// NewGate builds a gate from row-major elements, failing with ErrInvalidGate
// unless the matrix is square and unitary within UnitaryTolerance.
func NewGate(elements [][]complex128) (Gate, error) {
	n := len(elements)
	if n == 0 {
		return Gate{}, fmt.Errorf("%w: empty matrix", qkderr.ErrInvalidGate)
	}
	data := make([]complex128, 0, n*n)
	for _, row := range elements {
		if len(row) != n {
			return Gate{}, fmt.Errorf("%w: %d columns in a %d-row matrix", qkderr.ErrInvalidGate, len(row), n)
		}
		data = append(data, row...)
	}
	m := mat.NewCDense(n, n, data)
	if !isUnitary(m) {
		return Gate{}, fmt.Errorf("%w: %dx%d matrix", qkderr.ErrInvalidGate, n, n)
	}
	return Gate{dim: n, m: m}, nil
}

// Dim returns the dimension the gate acts on.
func (g Gate) Dim() int {
	return g.dim
}

// At returns the matrix element at row i, column j.
func (g Gate) At(i, j int) complex128 {
	return g.m.At(i, j)
}

// Mul composes g with other as sequential application: (g.Mul(h)).Apply is
// h-then-g. Fails with ErrDimensionMismatch unless dimensions agree.
func (g Gate) Mul(other Gate) (Gate, error) {
	if g.dim != other.dim {
		return Gate{}, fmt.Errorf("%w: composing %d-dim gate with %d-dim gate", qkderr.ErrDimensionMismatch, g.dim, other.dim)
	}
	p := mat.NewCDense(g.dim, g.dim, nil)
	cblas128.Gemm(blas.NoTrans, blas.NoTrans, 1, g.m.RawCMatrix(), other.m.RawCMatrix(), 0, p.RawCMatrix())
	return Gate{dim: g.dim, m: p}, nil
}

// Tensor returns the tensor product g ⊗ other, for acting on a subset of a
// composite state.
func (g Gate) Tensor(other Gate) Gate {
	n := g.dim * other.dim
	m := mat.NewCDense(n, n, nil)
	for i := 0; i < g.dim; i++ {
		for j := 0; j < g.dim; j++ {
			for k := 0; k < other.dim; k++ {
				for l := 0; l < other.dim; l++ {
					m.Set(i*other.dim+k, j*other.dim+l, g.m.At(i, j)*other.m.At(k, l))
				}
			}
		}
	}
	return Gate{dim: n, m: m}
}

// Dagger returns the conjugate transpose of g, which is also its inverse.
func (g Gate) Dagger() Gate {
	m := mat.NewCDense(g.dim, g.dim, nil)
	for i := 0; i < g.dim; i++ {
		for j := 0; j < g.dim; j++ {
			m.Set(i, j, cmplx.Conj(g.m.At(j, i)))
		}
	}
	return Gate{dim: g.dim, m: m}
}

// Identity returns the d-dimensional identity gate.
func Identity(d int) Gate {
	m := mat.NewCDense(d, d, nil)
	for i := 0; i < d; i++ {
		m.Set(i, i, 1)
	}
	return Gate{dim: d, m: m}
}

// PauliX returns the bit-flip gate.
func PauliX() Gate {
	return mustGate([][]complex128{
		{0, 1},
		{1, 0},
	})
}

// PauliY returns the Y gate.
func PauliY() Gate {
	return mustGate([][]complex128{
		{0, -1i},
		{1i, 0},
	})
}

// PauliZ returns the phase-flip gate.
func PauliZ() Gate {
	return mustGate([][]complex128{
		{1, 0},
		{0, -1},
	})
}

// Hadamard returns the Hadamard gate.
func Hadamard() Gate {
	h := complex(1/math.Sqrt2, 0)
	return mustGate([][]complex128{
		{h, h},
		{h, -h},
	})
}

// Phase returns the gate diag(1, e^{iφ}).
func Phase(phi float64) Gate {
	return mustGate([][]complex128{
		{1, 0},
		{0, cmplx.Exp(complex(0, phi))},
	})
}

// SGate returns the quarter-turn phase gate.
func SGate() Gate {
	return Phase(math.Pi / 2)
}

// TGate returns the eighth-turn phase gate.
func TGate() Gate {
	return Phase(math.Pi / 4)
}

// Rx returns a rotation of theta about the X axis.
func Rx(theta float64) Gate {
	c := complex(math.Cos(theta/2), 0)
	s := complex(0, -math.Sin(theta/2))
	return mustGate([][]complex128{
		{c, s},
		{s, c},
	})
}

// Ry returns a rotation of theta about the Y axis.
func Ry(theta float64) Gate {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return mustGate([][]complex128{
		{c, -s},
		{s, c},
	})
}

// Rz returns a rotation of theta about the Z axis.
func Rz(theta float64) Gate {
	return mustGate([][]complex128{
		{cmplx.Exp(complex(0, -theta/2)), 0},
		{0, cmplx.Exp(complex(0, theta/2))},
	})
}

// CNOT returns the two-qubit controlled-NOT, control on the first qubit.
func CNOT() Gate {
	return mustGate([][]complex128{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 0, 1},
		{0, 0, 1, 0},
	})
}

// Shift returns the generalized Pauli-X on d dimensions: |j⟩ → |j+1 mod d⟩.
func Shift(d int) Gate {
	m := mat.NewCDense(d, d, nil)
	for j := 0; j < d; j++ {
		m.Set((j+1)%d, j, 1)
	}
	return Gate{dim: d, m: m}
}

// Clock returns the generalized Pauli-Z on d dimensions: diag(ω^j) with
// ω = e^{2πi/d}.
func Clock(d int) Gate {
	m := mat.NewCDense(d, d, nil)
	for j := 0; j < d; j++ {
		m.Set(j, j, cmplx.Exp(complex(0, 2*math.Pi*float64(j)/float64(d))))
	}
	return Gate{dim: d, m: m}
}

// Fourier returns the d-dimensional discrete Fourier transform gate, the
// qudit generalization of Hadamard.
func Fourier(d int) Gate {
	m := mat.NewCDense(d, d, nil)
	norm := complex(1/math.Sqrt(float64(d)), 0)
	for j := 0; j < d; j++ {
		for k := 0; k < d; k++ {
			m.Set(j, k, norm*cmplx.Exp(complex(0, 2*math.Pi*float64(j*k)/float64(d))))
		}
	}
	return Gate{dim: d, m: m}
}

func mustGate(elements [][]complex128) Gate {
	g, err := NewGate(elements)
	if err != nil {
		panic("quantum: named gate failed validation: " + err.Error())
	}
	return g
}

// isUnitary checks G·G† ≈ I within UnitaryTolerance.
func isUnitary(m *mat.CDense) bool {
	n, c := m.Dims()
	if n != c {
		return false
	}
	p := mat.NewCDense(n, n, nil)
	cblas128.Gemm(blas.NoTrans, blas.ConjTrans, 1, m.RawCMatrix(), m.RawCMatrix(), 0, p.RawCMatrix())
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := complex128(0)
			if i == j {
				want = 1
			}
			if cmplx.Abs(p.At(i, j)-want) > UnitaryTolerance {
				return false
			}
		}
	}
	return true
}
