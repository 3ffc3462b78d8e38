package quantum

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qkderr "github.com/qtessera/qkd/internal/errors"
)

func TestFromAmplitudesNormalizes(t *testing.T) {
	s, err := FromAmplitudes(2, []complex128{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 1, s.Norm(), NormTolerance)
	assert.InDelta(t, 0.6, cmplx.Abs(s.Amplitudes()[0]), NormTolerance)
	assert.InDelta(t, 0.8, cmplx.Abs(s.Amplitudes()[1]), NormTolerance)
}

func TestFromAmplitudesRejectsBadInput(t *testing.T) {
	tcs := []struct {
		name string
		d    int
		amps []complex128
		want error
	}{
		{"zero vector", 2, []complex128{0, 0}, qkderr.ErrInvalidState},
		{"not a power", 2, []complex128{1, 0, 0}, qkderr.ErrDimensionMismatch},
		{"too short", 3, []complex128{1}, qkderr.ErrDimensionMismatch},
		{"dimension one", 1, []complex128{1}, qkderr.ErrInvalidState},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromAmplitudes(tc.d, tc.amps)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNamedStates(t *testing.T) {
	assert.InDelta(t, 1, Zero().Norm(), NormTolerance)
	assert.InDelta(t, 1, Plus().Norm(), NormTolerance)
	assert.InDelta(t, 1/math.Sqrt2, real(Minus().Amplitudes()[0]), NormTolerance)
	assert.InDelta(t, -1/math.Sqrt2, real(Minus().Amplitudes()[1]), NormTolerance)

	for kind := 0; kind < 4; kind++ {
		b, err := Bell(kind)
		require.NoError(t, err)
		assert.Equal(t, 2, b.Units())
		assert.InDelta(t, 1, b.Norm(), NormTolerance)
	}
	_, err := Bell(4)
	assert.ErrorIs(t, err, qkderr.ErrInvalidState)

	g, err := GHZ(3)
	require.NoError(t, err)
	assert.Equal(t, 8, g.Dim())
	assert.InDelta(t, 1/math.Sqrt2, cmplx.Abs(g.Amplitudes()[0]), NormTolerance)
	assert.InDelta(t, 1/math.Sqrt2, cmplx.Abs(g.Amplitudes()[7]), NormTolerance)
}

func TestTensorRequiresMatchingUnitDim(t *testing.T) {
	q, err := BasisState(3, 0)
	require.NoError(t, err)
	_, err = Zero().Tensor(q)
	assert.ErrorIs(t, err, qkderr.ErrDimensionMismatch)
}

func TestApplyPreservesNorm(t *testing.T) {
	s := Plus()
	for i := 0; i < 50; i++ {
		var err error
		s, err = s.Apply(TGate())
		require.NoError(t, err)
	}
	assert.InDelta(t, 1, s.Norm(), NormTolerance)
}

func TestApplyAtMatchesFullTensorGate(t *testing.T) {
	// Applying H to unit 1 of a 3-qubit state must agree with applying
	// I ⊗ H ⊗ I to the whole system.
	ghz, err := GHZ(3)
	require.NoError(t, err)
	viaUnit, err := ghz.ApplyAt(Hadamard(), 1)
	require.NoError(t, err)
	full := Identity(2).Tensor(Hadamard()).Tensor(Identity(2))
	viaFull, err := ghz.Apply(full)
	require.NoError(t, err)
	a, b := viaUnit.Amplitudes(), viaFull.Amplitudes()
	for i := range a {
		assert.InDelta(t, 0, cmplx.Abs(a[i]-b[i]), NormTolerance, "amplitude %d", i)
	}
}

func TestApplyAtRejectsBadUnit(t *testing.T) {
	b, err := Bell(0)
	require.NoError(t, err)
	_, err = b.ApplyAt(Hadamard(), 2)
	assert.ErrorIs(t, err, qkderr.ErrDimensionMismatch)
	_, err = b.ApplyAt(Shift(3), 0)
	assert.ErrorIs(t, err, qkderr.ErrDimensionMismatch)
}

func TestExtractDropsCollapsedUnits(t *testing.T) {
	// |0⟩ ⊗ |+⟩: unit 0 is definite, unit 1 is not.
	joint, err := Zero().Tensor(Plus())
	require.NoError(t, err)

	kept, err := joint.Extract(1)
	require.NoError(t, err)
	assert.Equal(t, 1, kept.Units())
	assert.InDelta(t, 1/math.Sqrt2, cmplx.Abs(kept.Amplitudes()[0]), NormTolerance)

	_, err = joint.Extract(0)
	assert.ErrorIs(t, err, qkderr.ErrInvalidState, "dropping a superposed unit must fail")
}

func TestExtractRejectsEntangledDrop(t *testing.T) {
	b, err := Bell(0)
	require.NoError(t, err)
	_, err = b.Extract(0)
	assert.ErrorIs(t, err, qkderr.ErrInvalidState)
}

func TestCloneIsIndependent(t *testing.T) {
	s := Plus()
	c := s.Clone()
	applied, err := c.Apply(PauliZ())
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt2, real(s.Amplitudes()[1]), NormTolerance)
	assert.InDelta(t, -1/math.Sqrt2, real(applied.Amplitudes()[1]), NormTolerance)
}
