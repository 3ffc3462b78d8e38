// Package network simulates entanglement distribution beyond a single
// point-to-point link: a repeater node performing entanglement swapping, and
// chains of swaps that stitch short Bell pairs into one long-distance pair.
package network

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qtessera/qkd/channel"
	qkderr "github.com/qtessera/qkd/internal/errors"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum"
)

// A PairResult reports one attempt at establishing a shared Bell pair.
type PairResult struct {
	// Success is false when any transmission was lost in transit.
	Success bool

	// PairID tags the established pair for bookkeeping.
	PairID uuid.UUID

	// Outcomes are the repeater's Bell measurement results, present when a
	// swap was performed: the phase bit then the parity bit.
	Outcomes []int

	// Pair is the two-qubit state now shared by the end nodes.
	Pair *quantum.State
}

// A Swapper is a repeater node: it holds one half of each of two Bell pairs,
// measures them jointly in the Bell basis, and leaves the two remote halves
// entangled with each other.
type Swapper struct {
	src qrand.Source
	log zerolog.Logger
}

// NewSwapper builds a repeater drawing measurement randomness from src.
func NewSwapper(src qrand.Source, log zerolog.Logger) *Swapper {
	return &Swapper{src: src, log: log.With().Str("component", "swapper").Logger()}
}

// Swap consumes two Bell pairs, left shared between node A and the repeater
// and right between the repeater and node B, and returns the pair now shared
// between A and B. The repeater's measurement outcomes determine the Pauli
// correction applied to B's half, so the output is always the Φ+ pair
// regardless of which Bell outcome occurred.
func (sw *Swapper) Swap(left, right *quantum.State) (PairResult, error) {
	for _, p := range []*quantum.State{left, right} {
		if p.UnitDim() != 2 || p.Units() != 2 {
			return PairResult{}, fmt.Errorf("%w: %d units of dimension %d",
				qkderr.ErrNotEntangledPair, p.Units(), p.UnitDim())
		}
	}

	// Joint state over [A, R1, R2, B], with the repeater holding R1 and R2.
	joint, err := left.Tensor(right)
	if err != nil {
		return PairResult{}, err
	}

	// Bell measurement on R1, R2: CNOT then Hadamard rotates the Bell basis
	// onto the computational basis.
	bellRot := quantum.Identity(2).Tensor(quantum.CNOT()).Tensor(quantum.Identity(2))
	joint, err = joint.Apply(bellRot)
	if err != nil {
		return PairResult{}, err
	}
	joint, err = joint.ApplyAt(quantum.Hadamard(), 1)
	if err != nil {
		return PairResult{}, err
	}

	comp := quantum.ComputationalBasis(2)
	var outcomes []int
	for _, unit := range []int{1, 2} {
		out, err := quantum.SampleUnit(joint, unit, comp, sw.src)
		if err != nil {
			return PairResult{}, err
		}
		joint, err = quantum.Collapse(joint, out)
		if err != nil {
			return PairResult{}, err
		}
		outcomes = append(outcomes, out.Value)
	}

	// Pauli correction on B's half: X for the parity bit, Z for the phase
	// bit.
	if outcomes[1] == 1 {
		if joint, err = joint.ApplyAt(quantum.PauliX(), 3); err != nil {
			return PairResult{}, err
		}
	}
	if outcomes[0] == 1 {
		if joint, err = joint.ApplyAt(quantum.PauliZ(), 3); err != nil {
			return PairResult{}, err
		}
	}

	pair, err := joint.Extract(0, 3)
	if err != nil {
		return PairResult{}, err
	}
	r := PairResult{
		Success:  true,
		PairID:   uuid.New(),
		Outcomes: outcomes,
		Pair:     pair,
	}
	sw.log.Debug().Ints("outcomes", outcomes).Str("pair", r.PairID.String()).Msg("entanglement swap complete")
	return r, nil
}

// Distribute sources one Bell pair and sends each half through the channel.
// Loss of either half fails the whole attempt.
func (sw *Swapper) Distribute(ch *channel.Channel) (PairResult, error) {
	pair, err := quantum.Bell(0)
	if err != nil {
		return PairResult{}, err
	}
	for unit := 0; unit < 2; unit++ {
		res, err := ch.TransmitUnit(pair, unit)
		if err != nil {
			return PairResult{}, err
		}
		if res.Lost {
			return PairResult{Success: false}, nil
		}
		pair = res.State
	}
	return PairResult{Success: true, PairID: uuid.New(), Pair: pair}, nil
}

// Chain establishes a pair across hops links by distributing a pair per link
// and swapping at each intermediate node. Noise compounds per link, which is
// exactly what repeater studies measure.
func (sw *Swapper) Chain(ch *channel.Channel, hops int) (PairResult, error) {
	if hops < 1 {
		return PairResult{}, fmt.Errorf("%w: chain of %d hops", qkderr.ErrNotEntangledPair, hops)
	}
	acc, err := sw.Distribute(ch)
	if err != nil || !acc.Success {
		return acc, err
	}
	for i := 1; i < hops; i++ {
		next, err := sw.Distribute(ch)
		if err != nil || !next.Success {
			return next, err
		}
		acc, err = sw.Swap(acc.Pair, next.Pair)
		if err != nil {
			return PairResult{}, err
		}
	}
	return acc, nil
}
