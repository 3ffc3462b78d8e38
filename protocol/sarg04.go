package protocol

import (
	"fmt"

	"github.com/qtessera/qkd/channel"
	qkderr "github.com/qtessera/qkd/internal/errors"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum"
)

// SARG04 is the four-state prepare-and-measure variant that shares BB84's
// signal states but a different sifting rule: instead of revealing her
// basis, Alice announces a pair of non-orthogonal candidate states, and
// Bob keeps the positions where his measurement excludes one candidate.
// The bit is carried by which candidate was sent, so it survives against
// photon-number-splitting attacks that break BB84's basis announcement.
// Qubits only.
type SARG04 struct{}

// Name identifies the variant.
func (SARG04) Name() string { return "sarg04" }

// Exchange prepares, transmits, and measures p.Pulses qubits. Bit 0 is
// encoded as |0⟩ or |+⟩ and bit 1 as |1⟩ or |−⟩, per Alice's basis coin.
func (SARG04) Exchange(p Params, ch *channel.Channel, src qrand.Source) (*Record, error) {
	if p.Dimension != 2 {
		return nil, fmt.Errorf("%w: sarg04 requires qubits, got dimension %d", qkderr.ErrDimensionMismatch, p.Dimension)
	}
	rec := newRecord(p.Pulses)
	for i := 0; i < p.Pulses; i++ {
		bit := src.Intn(2)
		aSet := src.Intn(2)
		rec.AliceSymbols[i] = bit
		rec.AliceSettings[i] = aSet

		s, err := encodeSymbol(bit, aSet, 2)
		if err != nil {
			return nil, err
		}
		res, err := ch.Transmit(s)
		if err != nil {
			return nil, err
		}

		bSet := src.Intn(2)
		rec.BobSettings[i] = bSet
		rec.BobSymbols[i] = -1
		if res.Lost {
			rec.Dropped[i] = true
			continue
		}
		out, err := quantum.Sample(res.State, encodingBasis(bSet, 2), src)
		if err != nil {
			return nil, err
		}

		// The announced candidate pair {sent state, conjugate partner of
		// the opposite bit} always holds the computational state |c⟩ and
		// the Hadamard state of value 1−c, where c = bit XOR basis. Bob's
		// outcome is conclusive when it is impossible for one candidate:
		// measuring c̄ in the computational basis excludes |c⟩, and
		// measuring c in the Hadamard basis excludes the 1−c partner.
		c := bit ^ aSet
		if bSet == 0 && out.Value != c {
			rec.BobSymbols[i] = 1 - c
		} else if bSet == 1 && out.Value == c {
			rec.BobSymbols[i] = c
		}
	}
	return rec, nil
}

// SiftMask keeps delivered positions Bob announced as conclusive.
func (SARG04) SiftMask(rec *Record) []bool {
	mask := make([]bool, len(rec.Dropped))
	for i := range mask {
		mask[i] = !rec.Dropped[i] && rec.BobSymbols[i] >= 0
	}
	return mask
}

// Disclose announces Alice's candidate-pair codes and Bob's conclusiveness
// mask. The pair code bit XOR basis identifies two non-orthogonal states
// and reveals nothing by itself; the basis itself must stay private, since
// pair code plus basis determines the bit.
func (SARG04) Disclose(rec *Record) PublicRecord {
	pairs := make([]int, len(rec.Dropped))
	conclusive := make([]bool, len(rec.Dropped))
	for i := range pairs {
		pairs[i] = rec.AliceSymbols[i] ^ rec.AliceSettings[i]
		conclusive[i] = rec.BobSymbols[i] >= 0
	}
	return PublicRecord{Alice: pairs, Conclusive: conclusive}
}

// SiftRate reports the conclusive-outcome probability of one quarter.
func (SARG04) SiftRate() float64 { return 0.25 }

// Check aborts when the error estimate exceeds the configured threshold.
func (SARG04) Check(rec *Record, qber float64, p Params) Verdict {
	return Verdict{Secure: qber <= p.QBERThreshold}
}
