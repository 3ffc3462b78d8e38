package protocol

import (
	"fmt"

	"github.com/qtessera/qkd/channel"
	qkderr "github.com/qtessera/qkd/internal/errors"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum"
)

// B92 is the two-state prepare-and-measure variant: Alice encodes bit 0 as
// |0⟩ and bit 1 as |+⟩, and Bob measures in a random conjugate basis. An
// outcome of 1 is conclusive: it excludes one of the two preparations
// outright, so Bob learns Alice's bit with certainty. Outcome 0 is
// inconclusive and Bob announces only which positions to discard. Qubits
// only.
type B92 struct{}

// Name identifies the variant.
func (B92) Name() string { return "b92" }

// Exchange prepares, transmits, and measures p.Pulses qubits.
func (B92) Exchange(p Params, ch *channel.Channel, src qrand.Source) (*Record, error) {
	if p.Dimension != 2 {
		return nil, fmt.Errorf("%w: b92 requires qubits, got dimension %d", qkderr.ErrDimensionMismatch, p.Dimension)
	}
	rec := newRecord(p.Pulses)
	for i := 0; i < p.Pulses; i++ {
		// Alice's preparation IS her bit, so unlike BB84 she has no
		// announceable setting; the settings record stays zero.
		bit := src.Intn(2)
		rec.AliceSymbols[i] = bit

		// bit 0 → |0⟩, bit 1 → |+⟩.
		s, err := encodeSymbol(0, bit, 2)
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
		if out.Value != 1 {
			continue
		}
		// Computational outcome 1 excludes |0⟩, so Alice sent |+⟩.
		// Hadamard outcome |−⟩ excludes |+⟩, so Alice sent |0⟩.
		if bSet == 0 {
			rec.BobSymbols[i] = 1
		} else {
			rec.BobSymbols[i] = 0
		}
	}
	return rec, nil
}

// SiftMask keeps delivered positions Bob announced as conclusive.
func (B92) SiftMask(rec *Record) []bool {
	mask := make([]bool, len(rec.Dropped))
	for i := range mask {
		mask[i] = !rec.Dropped[i] && rec.BobSymbols[i] >= 0
	}
	return mask
}

// Disclose announces only Bob's conclusiveness mask. Bob's basis must
// stay private: basis plus conclusiveness determines Alice's bit at
// every conclusive position, so publishing it would hand an observer
// the whole sifted key.
func (B92) Disclose(rec *Record) PublicRecord {
	conclusive := make([]bool, len(rec.Dropped))
	for i := range conclusive {
		conclusive[i] = rec.BobSymbols[i] >= 0
	}
	return PublicRecord{Conclusive: conclusive}
}

// SiftRate reports the conclusive-outcome probability of one quarter.
func (B92) SiftRate() float64 { return 0.25 }

// Check aborts when the error estimate exceeds the configured threshold.
func (B92) Check(rec *Record, qber float64, p Params) Verdict {
	return Verdict{Secure: qber <= p.QBERThreshold}
}
