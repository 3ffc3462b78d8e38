package protocol

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtessera/qkd/channel"
	qkderr "github.com/qtessera/qkd/internal/errors"
)

func newTestSession(t *testing.T, p Params, cfg channel.Config, seed byte) *Session {
	t.Helper()
	s, err := NewSession(p, cfg, seeded(seed), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestBB84CleanChannelProducesExactKey(t *testing.T) {
	s := newTestSession(t, Params{KeyLength: 64}, channel.Config{}, 30)
	res, err := s.Run()
	require.NoError(t, err)

	assert.True(t, res.IsSecure)
	assert.Equal(t, 64, res.FinalKey.Size())
	assert.Zero(t, res.QBER, "a noiseless channel admits no sifted errors")
	assert.Equal(t, Amplified, s.Phase())
	assert.Greater(t, res.CompressionRatio, 0.0)
	assert.Less(t, res.CompressionRatio, 1.0, "amplification must compress when bits were disclosed")
	assert.Greater(t, res.LeakedBits, 0, "sampling always discloses bits")
	assert.Greater(t, res.Stats.SiftedBits, 1500, "about half of 4096 pulses survive sifting")
	assert.Greater(t, res.Stats.MessagesSent, 0)
}

func TestBB84HighNoiseAborts(t *testing.T) {
	cfg := channel.Config{Noise: channel.Depolarizing, NoiseLevel: 0.8}
	s := newTestSession(t, Params{KeyLength: 64}, cfg, 31)
	res, err := s.Run()
	require.NoError(t, err, "a security abort is an outcome, not an error")

	assert.False(t, res.IsSecure)
	assert.Equal(t, Aborted, s.Phase())
	assert.Equal(t, 0, res.FinalKey.Size())
	assert.Greater(t, res.QBER, DefaultQBERThreshold)
}

func TestBB84ModerateNoiseSucceeds(t *testing.T) {
	// Dephasing errors land only on diagonal-basis positions, so the
	// observed QBER is about half the channel's phase-flip rate.
	cfg := channel.Config{Noise: channel.Dephasing, NoiseLevel: 0.04}
	s := newTestSession(t, Params{KeyLength: 32}, cfg, 32)
	res, err := s.Run()
	require.NoError(t, err)

	assert.True(t, res.IsSecure)
	assert.Equal(t, 32, res.FinalKey.Size())
	assert.InDelta(t, 0.02, res.QBER, 0.015)
	assert.Greater(t, res.Stats.DisclosedBits, 0)
}

func TestBB84LossyChannelStillAgrees(t *testing.T) {
	cfg := channel.Config{Loss: 0.25}
	s := newTestSession(t, Params{KeyLength: 64}, cfg, 33)
	res, err := s.Run()
	require.NoError(t, err)

	assert.True(t, res.IsSecure)
	assert.Equal(t, 64, res.FinalKey.Size())
	assert.Less(t, res.Stats.Delivered, res.Stats.Pulses)
}

func TestB92CleanChannel(t *testing.T) {
	s := newTestSession(t, Params{Variant: B92{}, KeyLength: 32}, channel.Config{}, 34)
	res, err := s.Run()
	require.NoError(t, err)

	assert.True(t, res.IsSecure)
	assert.Equal(t, 32, res.FinalKey.Size())
	assert.Zero(t, res.QBER)
	// Only a quarter of B92 pulses are conclusive.
	assert.Less(t, res.Stats.SiftedBits, res.Stats.Pulses/2)
}

func TestSARG04CleanChannel(t *testing.T) {
	s := newTestSession(t, Params{Variant: SARG04{}, KeyLength: 32}, channel.Config{}, 47)
	res, err := s.Run()
	require.NoError(t, err)

	assert.True(t, res.IsSecure)
	assert.Equal(t, 32, res.FinalKey.Size())
	assert.Zero(t, res.QBER, "conclusive outcomes identify the sent state exactly")
	// Only a quarter of SARG04 pulses are conclusive.
	assert.Less(t, res.Stats.SiftedBits, res.Stats.Pulses/2)
}

func TestSARG04HighNoiseAborts(t *testing.T) {
	cfg := channel.Config{Noise: channel.Depolarizing, NoiseLevel: 0.8}
	s := newTestSession(t, Params{Variant: SARG04{}, KeyLength: 32}, cfg, 48)
	res, err := s.Run()
	require.NoError(t, err)

	assert.False(t, res.IsSecure)
	assert.Equal(t, Aborted, s.Phase())
	assert.Greater(t, res.QBER, DefaultQBERThreshold)
}

func TestSARG04ConclusiveOutcomesAreCorrect(t *testing.T) {
	ch, err := channel.New(channel.Config{}, seeded(49), zerolog.Nop())
	require.NoError(t, err)
	rec, err := SARG04{}.Exchange(Params{Dimension: 2, Pulses: 512}, ch, seeded(49))
	require.NoError(t, err)

	conclusive := 0
	for i := range rec.Dropped {
		if rec.BobSymbols[i] < 0 {
			continue
		}
		conclusive++
		assert.Equal(t, rec.AliceSymbols[i], rec.BobSymbols[i],
			"position %d: an undisturbed conclusive outcome must match", i)
	}
	assert.InDelta(t, 128, conclusive, 64, "about a quarter of pulses are conclusive")
}

func TestE91CleanChannelViolatesBellBound(t *testing.T) {
	s := newTestSession(t, Params{Variant: E91{}, KeyLength: 16}, channel.Config{}, 35)
	res, err := s.Run()
	require.NoError(t, err)

	assert.True(t, res.IsSecure)
	assert.Equal(t, 16, res.FinalKey.Size())
	assert.Zero(t, res.QBER)
	assert.Greater(t, res.SValue, 2.5, "an undisturbed bell pair approaches S = 2√2")
}

func TestE91NoiseBreaksBellTest(t *testing.T) {
	cfg := channel.Config{Noise: channel.Depolarizing, NoiseLevel: 0.8}
	s := newTestSession(t, Params{Variant: E91{}, KeyLength: 16}, cfg, 36)
	res, err := s.Run()
	require.NoError(t, err)

	assert.False(t, res.IsSecure)
	assert.Equal(t, Aborted, s.Phase())
	assert.Less(t, res.SValue, 2.0)
}

func TestQutritBB84(t *testing.T) {
	s := newTestSession(t, Params{Dimension: 3, KeyLength: 32}, channel.Config{}, 37)
	res, err := s.Run()
	require.NoError(t, err)

	assert.True(t, res.IsSecure)
	assert.Equal(t, 32, res.FinalKey.Size())
	assert.Zero(t, res.QBER)
}

func TestPhaseOrderEnforced(t *testing.T) {
	s := newTestSession(t, Params{KeyLength: 64}, channel.Config{}, 38)

	assert.ErrorIs(t, s.Sift(), qkderr.ErrPhaseOrder)
	assert.ErrorIs(t, s.Reconcile(), qkderr.ErrPhaseOrder)
	assert.ErrorIs(t, s.Amplify(), qkderr.ErrPhaseOrder)

	require.NoError(t, s.Exchange())
	assert.ErrorIs(t, s.Exchange(), qkderr.ErrPhaseOrder)
	assert.ErrorIs(t, s.EstimateError(), qkderr.ErrPhaseOrder)

	require.NoError(t, s.Sift())
	require.NoError(t, s.EstimateError())
	require.NoError(t, s.Reconcile())
	require.NoError(t, s.Amplify())

	assert.Equal(t, Amplified, s.Phase())
	assert.ErrorIs(t, s.Exchange(), qkderr.ErrSessionTerminal)
	assert.ErrorIs(t, s.Amplify(), qkderr.ErrSessionTerminal)
}

func TestAbortedSessionIsTerminal(t *testing.T) {
	cfg := channel.Config{Noise: channel.Depolarizing, NoiseLevel: 0.8}
	s := newTestSession(t, Params{KeyLength: 64}, cfg, 39)
	_, err := s.Run()
	require.NoError(t, err)
	require.Equal(t, Aborted, s.Phase())
	assert.ErrorIs(t, s.Reconcile(), qkderr.ErrSessionTerminal)
}

func TestSeededSessionsReproduce(t *testing.T) {
	run := func(seed byte) *Result {
		res, err := Evaluate(Params{KeyLength: 64}, channel.Config{}, seeded(seed), zerolog.Nop())
		require.NoError(t, err)
		return res
	}
	a, b := run(40), run(40)
	assert.True(t, a.FinalKey.Equal(b.FinalKey), "identical seeds must reproduce the key")
	assert.Equal(t, a.Stats, b.Stats)

	c := run(41)
	assert.False(t, a.FinalKey.Equal(c.FinalKey), "different seeds must diverge")
}

func TestTrailRecordsLifecycle(t *testing.T) {
	s := newTestSession(t, Params{KeyLength: 64}, channel.Config{}, 42)
	res, err := s.Run()
	require.NoError(t, err)

	trail := s.Trail()
	require.Len(t, trail, 4)
	assert.Equal(t, StageRaw, trail[0].Stage)
	assert.Equal(t, StageSifted, trail[1].Stage)
	assert.Equal(t, StageReconciled, trail[2].Stage)
	assert.Equal(t, StageFinal, trail[3].Stage)

	assert.Equal(t, s.params.Pulses, trail[0].Bits.Size())
	assert.Equal(t, res.QBER, trail[1].QBER)
	assert.Equal(t, 64, trail[3].Bits.Size())
	assert.GreaterOrEqual(t, trail[3].LeakedBits, trail[1].LeakedBits)
}

func TestParamValidation(t *testing.T) {
	tcs := []struct {
		name string
		p    Params
	}{
		{"zero key length", Params{}},
		{"negative key length", Params{KeyLength: -3}},
		{"composite dimension", Params{KeyLength: 64, Dimension: 4}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSession(tc.p, channel.Config{}, seeded(43), zerolog.Nop())
			assert.ErrorIs(t, err, qkderr.ErrInvalidParam)
		})
	}
}

func TestDefaultPulsesScaleWithSiftRate(t *testing.T) {
	// Variants that keep fewer than half their pulses must be sized up,
	// or finite-size corrections would eat the whole key.
	tcs := []struct {
		name string
		p    Params
		want int
	}{
		{"bb84", Params{KeyLength: 64}, 4096},
		{"e91", Params{Variant: E91{}, KeyLength: 16}, 9216},
		{"b92", Params{Variant: B92{}, KeyLength: 32}, 8192},
		{"sarg04", Params{Variant: SARG04{}, KeyLength: 32}, 8192},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSession(t, tc.p, channel.Config{}, 50)
			assert.Equal(t, tc.want, s.params.Pulses)
		})
	}
}

func TestDisclosureWithholdsKeyRevealingBases(t *testing.T) {
	rec := newRecord(4)
	for i := range rec.Dropped {
		rec.AliceSymbols[i] = (i / 2) % 2
		rec.AliceSettings[i] = i % 2
		rec.BobSettings[i] = (i / 2) % 2
		rec.BobSymbols[i] = -1
	}
	rec.BobSymbols[2] = 1

	// BB84 and E91 bases carry no bit information, so both sides announce.
	bp := BB84{}.Disclose(rec)
	assert.Equal(t, rec.AliceSettings, bp.Alice)
	assert.Equal(t, rec.BobSettings, bp.Bob)

	// B92: Bob's basis plus conclusiveness determines Alice's bit, so only
	// the conclusiveness mask crosses.
	pub := B92{}.Disclose(rec)
	assert.Nil(t, pub.Alice)
	assert.Nil(t, pub.Bob)
	assert.Equal(t, []bool{false, false, true, false}, pub.Conclusive)

	// SARG04: Alice announces candidate-pair codes, never her basis.
	sp := SARG04{}.Disclose(rec)
	assert.Nil(t, sp.Bob)
	assert.Equal(t, []int{0, 1, 1, 0}, sp.Alice)
	assert.Equal(t, []bool{false, false, true, false}, sp.Conclusive)
}

func TestB92RejectsQudits(t *testing.T) {
	s := newTestSession(t, Params{Variant: B92{}, Dimension: 3, KeyLength: 32}, channel.Config{}, 44)
	_, err := s.Run()
	assert.ErrorIs(t, err, qkderr.ErrDimensionMismatch)
}

func TestTooFewPulsesFailsWithSentinel(t *testing.T) {
	s := newTestSession(t, Params{KeyLength: 64, Pulses: 128}, channel.Config{}, 45)
	_, err := s.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, qkderr.ErrInsufficientSiftedBits)

	var stage *qkderr.StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, "amplify", stage.Stage)
}

func TestResultNilBeforeTerminal(t *testing.T) {
	s := newTestSession(t, Params{KeyLength: 64}, channel.Config{}, 46)
	assert.Nil(t, s.Result())
	require.NoError(t, s.Exchange())
	assert.Nil(t, s.Result())
}
