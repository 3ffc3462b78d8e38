package channel

import (
	"math/cmplx"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qkderr "github.com/qtessera/qkd/internal/errors"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum"
)

func testChannel(t *testing.T, cfg Config, seed byte) *Channel {
	t.Helper()
	var key [32]byte
	key[0] = seed
	ch, err := New(cfg, qrand.Seeded(key), zerolog.Nop())
	require.NoError(t, err)
	return ch
}

func TestConfigValidation(t *testing.T) {
	tcs := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"zero value", Config{}, true},
		{"full", Config{Loss: 0.1, Noise: Depolarizing, NoiseLevel: 0.05, MeanPhotons: 0.2}, true},
		{"loss too high", Config{Loss: 1.5}, false},
		{"loss negative", Config{Loss: -0.1}, false},
		{"noise level too high", Config{Noise: Dephasing, NoiseLevel: 2}, false},
		{"negative photons", Config{MeanPhotons: -1}, false},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, qkderr.ErrInvalidChannelParam)
			}
		})
	}
}

func TestParseNoiseModel(t *testing.T) {
	for _, m := range []NoiseModel{None, Depolarizing, Dephasing, AmplitudeDamping} {
		got, err := ParseNoiseModel(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseNoiseModel("pink")
	assert.ErrorIs(t, err, qkderr.ErrInvalidChannelParam)
}

func TestPerfectChannelDeliversUnchanged(t *testing.T) {
	ch := testChannel(t, Config{}, 1)
	in := quantum.Plus()
	res, err := ch.Transmit(in)
	require.NoError(t, err)
	require.False(t, res.Lost)
	a, b := in.Amplitudes(), res.State.Amplitudes()
	for i := range a {
		assert.InDelta(t, 0, cmplx.Abs(a[i]-b[i]), quantum.NormTolerance)
	}
}

func TestTotalLossErasesEverything(t *testing.T) {
	ch := testChannel(t, Config{Loss: 1}, 2)
	for i := 0; i < 20; i++ {
		res, err := ch.Transmit(quantum.Zero())
		require.NoError(t, err)
		assert.True(t, res.Lost)
	}
}

func TestLossRateApproximatesConfig(t *testing.T) {
	ch := testChannel(t, Config{Loss: 0.3}, 3)
	lost := 0
	const trials = 2000
	for i := 0; i < trials; i++ {
		res, err := ch.Transmit(quantum.Zero())
		require.NoError(t, err)
		if res.Lost {
			lost++
		}
	}
	assert.InDelta(t, 0.3, float64(lost)/trials, 0.05)
}

func TestDephasingPreservesComputationalStates(t *testing.T) {
	// Phase noise commutes with computational basis states: |1⟩ picks up
	// only a global phase.
	ch := testChannel(t, Config{Noise: Dephasing, NoiseLevel: 1}, 4)
	res, err := ch.Transmit(quantum.One())
	require.NoError(t, err)
	require.False(t, res.Lost)
	probs, err := quantum.Probabilities(res.State, quantum.ComputationalBasis(2))
	require.NoError(t, err)
	assert.InDelta(t, 1, probs[1], quantum.ProbabilityTolerance)
}

func TestDephasingFlipsDiagonalStates(t *testing.T) {
	ch := testChannel(t, Config{Noise: Dephasing, NoiseLevel: 1}, 5)
	res, err := ch.Transmit(quantum.Plus())
	require.NoError(t, err)
	require.False(t, res.Lost)
	probs, err := quantum.Probabilities(res.State, quantum.HadamardBasis())
	require.NoError(t, err)
	assert.InDelta(t, 1, probs[1], quantum.ProbabilityTolerance, "|+⟩ must dephase to |−⟩")
}

func TestDepolarizingRandomizesOutcomes(t *testing.T) {
	ch := testChannel(t, Config{Noise: Depolarizing, NoiseLevel: 1}, 6)
	flips := 0
	const trials = 1000
	for i := 0; i < trials; i++ {
		res, err := ch.Transmit(quantum.Zero())
		require.NoError(t, err)
		require.False(t, res.Lost)
		probs, err := quantum.Probabilities(res.State, quantum.ComputationalBasis(2))
		require.NoError(t, err)
		if probs[1] > 0.5 {
			flips++
		}
	}
	// Uniform generalized Pauli flips the computational value half the time.
	assert.InDelta(t, 0.5, float64(flips)/trials, 0.05)
}

func TestAmplitudeDampingDecaysExcitedState(t *testing.T) {
	ch := testChannel(t, Config{Noise: AmplitudeDamping, NoiseLevel: 1}, 7)
	res, err := ch.Transmit(quantum.One())
	require.NoError(t, err)
	require.False(t, res.Lost)
	probs, err := quantum.Probabilities(res.State, quantum.ComputationalBasis(2))
	require.NoError(t, err)
	assert.InDelta(t, 1, probs[0], quantum.ProbabilityTolerance, "gamma=1 must decay |1⟩ to |0⟩")
}

func TestAmplitudeDampingRequiresQubits(t *testing.T) {
	ch := testChannel(t, Config{Noise: AmplitudeDamping, NoiseLevel: 0.5}, 8)
	qutrit, err := quantum.BasisState(3, 1)
	require.NoError(t, err)
	_, err = ch.Transmit(qutrit)
	assert.ErrorIs(t, err, qkderr.ErrDimensionMismatch)
}

func TestTransmitUnitPerturbsOnlyTarget(t *testing.T) {
	// Dephasing unit 1 of |0⟩⊗|1⟩ leaves the computational values intact.
	ch := testChannel(t, Config{Noise: Dephasing, NoiseLevel: 1}, 9)
	joint, err := quantum.Zero().Tensor(quantum.One())
	require.NoError(t, err)
	res, err := ch.TransmitUnit(joint, 1)
	require.NoError(t, err)
	require.False(t, res.Lost)
	p0, err := quantum.UnitProbabilities(res.State, 0, quantum.ComputationalBasis(2))
	require.NoError(t, err)
	p1, err := quantum.UnitProbabilities(res.State, 1, quantum.ComputationalBasis(2))
	require.NoError(t, err)
	assert.InDelta(t, 1, p0[0], quantum.ProbabilityTolerance)
	assert.InDelta(t, 1, p1[1], quantum.ProbabilityTolerance)
}

func TestTransmitRejectsComposite(t *testing.T) {
	ch := testChannel(t, Config{}, 10)
	pair, err := quantum.Bell(0)
	require.NoError(t, err)
	_, err = ch.Transmit(pair)
	assert.ErrorIs(t, err, qkderr.ErrDimensionMismatch)
}

func TestEmptyPulsesAreErasures(t *testing.T) {
	// With a tiny mean photon number nearly every pulse is empty.
	ch := testChannel(t, Config{MeanPhotons: 0.01}, 11)
	lost := 0
	const trials = 500
	for i := 0; i < trials; i++ {
		res, err := ch.Transmit(quantum.Zero())
		require.NoError(t, err)
		if res.Lost {
			lost++
		}
	}
	assert.Greater(t, lost, trials*9/10)
}
