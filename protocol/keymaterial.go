package protocol

import (
	"github.com/qtessera/qkd/quantum/bitarray"
)

// Stage identifies a point in the key material lifecycle.
type Stage int

const (
	// StageRaw is the pre-sifting record of every delivered position.
	StageRaw Stage = iota
	// StageSifted keeps only matching-basis positions.
	StageSifted
	// StageReconciled follows error correction, with the sampled and
	// parity positions removed.
	StageReconciled
	// StageFinal is the privacy-amplified key.
	StageFinal
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageRaw:
		return "raw"
	case StageSifted:
		return "sifted"
	case StageReconciled:
		return "reconciled"
	case StageFinal:
		return "final"
	default:
		return "unknown"
	}
}

// KeyMaterial is one immutable snapshot of a party's key as it moves through
// the lifecycle raw → sifted → reconciled → final. Sessions retain every
// stage for audit: the QBER recorded on the sifted stage is the
// pre-reconciliation estimate the abort decision was made on.
type KeyMaterial struct {
	Stage Stage

	// Bits is this party's key material at this stage.
	Bits bitarray.Dense

	// BasisMatch marks, on the raw stage, which positions survived sifting.
	BasisMatch bitarray.Dense

	// QBER is the error estimate available when this stage was produced.
	QBER float64

	// LeakedBits is the cumulative information disclosed publicly up to and
	// including this stage, in bits.
	LeakedBits float64
}
