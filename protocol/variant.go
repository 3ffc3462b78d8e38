package protocol

import (
	"github.com/qtessera/qkd/channel"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum"
)

// A Record is the classical residue of one quantum exchange: each party's
// basis settings and measured symbols, plus which transmissions were lost.
// A symbol of -1 marks a dropped or inconclusive position.
type Record struct {
	AliceSettings []int
	BobSettings   []int
	AliceSymbols  []int
	BobSymbols    []int
	Dropped       []bool
}

// A Verdict is the result of a variant's post-selection security test.
type Verdict struct {
	Secure bool

	// SValue is the CHSH statistic for entanglement-based variants, zero
	// otherwise.
	SValue float64
}

// A PublicRecord is the sifting metadata each party may announce on the
// classical channel: per-position classical values (basis choices for
// BB84 and E91, candidate-pair codes for SARG04) and, for variants with
// probabilistic detection, Bob's conclusiveness mask. A nil slice means
// that party announces nothing of that kind. The values must never
// determine key bits when combined with the rest of the public
// transcript; B92 and SARG04 therefore suppress basis records entirely.
type PublicRecord struct {
	Alice      []int
	Bob        []int
	Conclusive []bool
}

// A Variant supplies the protocol-specific policy steps of the shared state
// machine: how symbols are encoded and exchanged, which positions sifting
// keeps, and what security test gates the session. Every variant shares the
// same downstream pipeline of error estimation, reconciliation, and privacy
// amplification.
type Variant interface {
	// Name identifies the protocol variant.
	Name() string

	// Exchange runs the prepare/transmit/measure phases for p.Pulses units.
	Exchange(p Params, ch *channel.Channel, src qrand.Source) (*Record, error)

	// SiftMask reports which positions survive sifting, using only
	// information the parties may announce publicly: settings, drop
	// records, and conclusiveness flags. Never raw key symbols.
	SiftMask(rec *Record) []bool

	// Disclose reports the sifting metadata each party announces on the
	// classical channel. Whatever it returns crosses the public
	// transcript verbatim.
	Disclose(rec *Record) PublicRecord

	// SiftRate estimates the fraction of transmitted pulses surviving
	// sifting on a clean channel, used to size the default pulse count.
	SiftRate() float64

	// Check runs the variant's post-selection security test against the
	// exchange record and the estimated QBER.
	Check(rec *Record, qber float64, p Params) Verdict
}

func newRecord(n int) *Record {
	return &Record{
		AliceSettings: make([]int, n),
		BobSettings:   make([]int, n),
		AliceSymbols:  make([]int, n),
		BobSymbols:    make([]int, n),
		Dropped:       make([]bool, n),
	}
}

// encodingBasis maps the binary basis setting shared by the prepare-and-
// measure variants onto a measurement basis: 0 is computational, 1 is the
// Fourier (Hadamard, for qubits) conjugate basis.
func encodingBasis(setting, d int) quantum.Basis {
	if setting == 0 {
		return quantum.ComputationalBasis(d)
	}
	return quantum.FourierBasis(d)
}

// encodeSymbol prepares |symbol⟩ in the requested basis.
func encodeSymbol(symbol, setting, d int) (*quantum.State, error) {
	s, err := quantum.BasisState(d, symbol)
	if err != nil {
		return nil, err
	}
	if setting == 0 {
		return s, nil
	}
	return s.Apply(quantum.Fourier(d))
}
