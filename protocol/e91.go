package protocol

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/qtessera/qkd/channel"
	qkderr "github.com/qtessera/qkd/internal/errors"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum"
)

// Analyzer angles for the E91 correlation measurements, as rotations about
// the Y axis. Alice's middle settings coincide with Bob's first two, giving
// the key-generating matches; the remaining combinations feed the CHSH
// statistic, which is maximized at 2√2 by these choices.
var (
	e91AliceAngles = []float64{0, math.Pi / 4, math.Pi / 2}
	e91BobAngles   = []float64{math.Pi / 4, math.Pi / 2, 3 * math.Pi / 4}
)

// E91 is the entanglement-based variant: a source distributes Bell pairs,
// each party measures its half at an independently chosen analyzer angle,
// and matching-angle outcomes form the raw key. Security rests on a CHSH
// Bell test over the non-matching settings rather than on basis secrecy
// alone. Qubits only.
type E91 struct{}

// Name identifies the variant.
func (E91) Name() string { return "e91" }

// Exchange distributes and measures p.Pulses Bell pairs. Both halves
// traverse the channel, so loss and noise act twice per pair.
func (E91) Exchange(p Params, ch *channel.Channel, src qrand.Source) (*Record, error) {
	if p.Dimension != 2 {
		return nil, fmt.Errorf("%w: e91 requires qubits, got dimension %d", qkderr.ErrDimensionMismatch, p.Dimension)
	}
	rec := newRecord(p.Pulses)
	for i := 0; i < p.Pulses; i++ {
		aSet := src.Intn(3)
		bSet := src.Intn(3)
		rec.AliceSettings[i] = aSet
		rec.BobSettings[i] = bSet
		rec.AliceSymbols[i] = -1
		rec.BobSymbols[i] = -1

		pair, err := quantum.Bell(0)
		if err != nil {
			return nil, err
		}
		toAlice, err := ch.TransmitUnit(pair, 0)
		if err != nil {
			return nil, err
		}
		if toAlice.Lost {
			rec.Dropped[i] = true
			continue
		}
		toBob, err := ch.TransmitUnit(toAlice.State, 1)
		if err != nil {
			return nil, err
		}
		if toBob.Lost {
			rec.Dropped[i] = true
			continue
		}

		aOut, err := quantum.SampleUnit(toBob.State, 0, quantum.AngleBasis(e91AliceAngles[aSet]), src)
		if err != nil {
			return nil, err
		}
		collapsed, err := quantum.Collapse(toBob.State, aOut)
		if err != nil {
			return nil, err
		}
		bOut, err := quantum.SampleUnit(collapsed, 1, quantum.AngleBasis(e91BobAngles[bSet]), src)
		if err != nil {
			return nil, err
		}
		rec.AliceSymbols[i] = aOut.Value
		rec.BobSymbols[i] = bOut.Value
	}
	return rec, nil
}

// SiftMask keeps delivered positions where the analyzer angles coincide:
// Alice's setting 1 with Bob's 0, and Alice's 2 with Bob's 1.
func (E91) SiftMask(rec *Record) []bool {
	mask := make([]bool, len(rec.Dropped))
	for i := range mask {
		if rec.Dropped[i] {
			continue
		}
		a, b := rec.AliceSettings[i], rec.BobSettings[i]
		mask[i] = (a == 1 && b == 0) || (a == 2 && b == 1)
	}
	return mask
}

// Disclose announces both parties' analyzer angles; angle records carry
// no outcome information.
func (E91) Disclose(rec *Record) PublicRecord {
	return PublicRecord{Alice: rec.AliceSettings, Bob: rec.BobSettings}
}

// SiftRate reports the matching-angle probability: two of the nine
// setting combinations generate key.
func (E91) SiftRate() float64 { return 2.0 / 9 }

// Check runs the CHSH Bell test over the non-key settings. The session is
// secure only when |S| exceeds the classical bound and the sampled QBER
// stays below threshold; S ≤ 2 is consistent with an intercept-resend
// attacker holding classical correlations.
func (E91) Check(rec *Record, qber float64, p Params) Verdict {
	s := chshStatistic(rec)
	return Verdict{
		Secure: math.Abs(s) > p.CHSHThreshold && qber <= p.QBERThreshold,
		SValue: s,
	}
}

// chshStatistic estimates S = E(a1,b1) − E(a1,b3) + E(a3,b1) + E(a3,b3)
// from the exchange record, where a1, a3 are Alice's outer settings and
// b1, b3 Bob's.
func chshStatistic(rec *Record) float64 {
	products := map[[2]int][]float64{}
	for i := range rec.Dropped {
		if rec.Dropped[i] || rec.AliceSymbols[i] < 0 || rec.BobSymbols[i] < 0 {
			continue
		}
		key := [2]int{rec.AliceSettings[i], rec.BobSettings[i]}
		a := float64(1 - 2*rec.AliceSymbols[i])
		b := float64(1 - 2*rec.BobSymbols[i])
		products[key] = append(products[key], a*b)
	}
	corr := func(a, b int) float64 {
		obs := products[[2]int{a, b}]
		if len(obs) == 0 {
			return 0
		}
		return stat.Mean(obs, nil)
	}
	return corr(0, 0) - corr(0, 2) + corr(2, 0) + corr(2, 2)
}
