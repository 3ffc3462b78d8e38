package protocol

import (
	"github.com/qtessera/qkd/channel"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum"
)

// BB84 is the standard prepare-and-measure variant: Alice encodes uniform
// symbols in one of two conjugate bases, Bob measures in a basis chosen
// independently, and sifting keeps the positions where the choices agree.
// Dimension 2 gives textbook BB84; prime d generalizes to qudits with the
// Fourier basis as the conjugate.
type BB84 struct{}

// Name identifies the variant.
func (BB84) Name() string { return "bb84" }

// Exchange prepares, transmits, and measures p.Pulses units.
func (BB84) Exchange(p Params, ch *channel.Channel, src qrand.Source) (*Record, error) {
	d := p.Dimension
	rec := newRecord(p.Pulses)
	for i := 0; i < p.Pulses; i++ {
		sym := src.Intn(d)
		aSet := src.Intn(2)
		rec.AliceSymbols[i] = sym
		rec.AliceSettings[i] = aSet

		s, err := encodeSymbol(sym, aSet, d)
		if err != nil {
			return nil, err
		}
		res, err := ch.Transmit(s)
		if err != nil {
			return nil, err
		}

		bSet := src.Intn(2)
		rec.BobSettings[i] = bSet
		if res.Lost {
			rec.Dropped[i] = true
			rec.BobSymbols[i] = -1
			continue
		}
		out, err := quantum.Sample(res.State, encodingBasis(bSet, d), src)
		if err != nil {
			return nil, err
		}
		rec.BobSymbols[i] = out.Value
	}
	return rec, nil
}

// SiftMask keeps delivered positions where the basis choices agree.
func (BB84) SiftMask(rec *Record) []bool {
	mask := make([]bool, len(rec.Dropped))
	for i := range mask {
		mask[i] = !rec.Dropped[i] && rec.AliceSettings[i] == rec.BobSettings[i]
	}
	return mask
}

// Disclose announces both parties' basis choices; basis records carry no
// bit information in BB84.
func (BB84) Disclose(rec *Record) PublicRecord {
	return PublicRecord{Alice: rec.AliceSettings, Bob: rec.BobSettings}
}

// SiftRate reports the basis-match probability of one half.
func (BB84) SiftRate() float64 { return 0.5 }

// Check aborts when the error estimate exceeds the configured threshold.
func (BB84) Check(rec *Record, qber float64, p Params) Verdict {
	return Verdict{Secure: qber <= p.QBERThreshold}
}
