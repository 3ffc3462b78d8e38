package protocol

import (
	"fmt"
	"math/bits"

	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum/bitarray"
)

// A winnower corrects the residual errors between the parties' sifted keys
// with the Winnow algorithm (https://arxiv.org/abs/quant-ph/0203096):
// repeated rounds of synchronized shuffling, blockwise Hamming SECDED
// syndrome comparison, and discarding of every position whose parity was
// disclosed. The discard step is what keeps the net information leakage of
// reconciliation at zero: each announced parity bit is paid for with a
// sacrificed key bit.
type winnower struct {
	an    *announcer
	src   qrand.Source
	iters []int
}

// reconcile runs the iteration schedule over both parties' keys, announcing
// every exchange through the classical channel. It returns the surviving
// key bits for each party; with a sensible schedule they agree except with
// negligible probability.
func (w winnower) reconcile(alice, bob bitarray.Dense, s *Stats) (bitarray.Dense, bitarray.Dense, error) {
	var err error
	for _, hBits := range w.iters {
		alice, bob, err = w.winnow(alice, bob, hBits, s)
		if err != nil {
			return bitarray.Empty(), bitarray.Empty(), err
		}
	}
	return alice, bob, nil
}

func (w winnower) winnow(alice, bob bitarray.Dense, hBits int, s *Stats) (bitarray.Dense, bitarray.Dense, error) {
	// Alice announces a shuffle seed so both parties permute identically,
	// decorrelating burst errors between rounds.
	var seed seedAnnouncement
	if err := w.an.aliceAnnounce(&seedAnnouncement{Seed: qrand.Bytes(w.src, 32)}, &seed); err != nil {
		return bitarray.Empty(), bitarray.Empty(), err
	}
	var k [32]byte
	copy(k[:], seed.Seed)
	alice.Shuffle(qrand.Seeded(k))
	copy(k[:], seed.Seed)
	bob.Shuffle(qrand.Seeded(k))

	aSyn, err := blockSyndromes(alice, hBits)
	if err != nil {
		return bitarray.Empty(), bitarray.Empty(), err
	}
	bSyn, err := blockSyndromes(bob, hBits)
	if err != nil {
		return bitarray.Empty(), bitarray.Empty(), err
	}
	todo, err := w.exchangeTotalParity(aSyn, bSyn, s)
	if err != nil {
		return bitarray.Empty(), bitarray.Empty(), err
	}
	if err := w.fixErrors(&bob, aSyn, bSyn, todo, hBits, s); err != nil {
		return bitarray.Empty(), bitarray.Empty(), err
	}
	alice = discardDisclosed(alice, todo, hBits)
	bob = discardDisclosed(bob, todo, hBits)
	return alice, bob, nil
}

// exchangeTotalParity has each party announce the total parity of every
// block. Blocks whose parities disagree hold an odd number of errors and
// proceed to full syndrome exchange.
func (w winnower) exchangeTotalParity(aSyn, bSyn []bitarray.Dense, s *Stats) (bitarray.Dense, error) {
	aTP, bTP := bitarray.Empty(), bitarray.Empty()
	for i := range aSyn {
		hBits := aSyn[i].Size() - 1
		aTP.AppendBit(aSyn[i].Get(hBits))
		bTP.AppendBit(bSyn[i].Get(hBits))
	}
	var fromAlice, fromBob parityAnnouncement
	if err := w.an.aliceAnnounce(&parityAnnouncement{Parities: aTP}, &fromAlice); err != nil {
		return bitarray.Empty(), err
	}
	if err := w.an.bobAnnounce(&parityAnnouncement{Parities: bTP}, &fromBob); err != nil {
		return bitarray.Empty(), err
	}
	if fromAlice.Parities.Size() != fromBob.Parities.Size() {
		return bitarray.Empty(), fmt.Errorf(
			"reconciling keys with different block counts: %d != %d",
			fromAlice.Parities.Size(), fromBob.Parities.Size())
	}
	if s != nil {
		s.DisclosedBits += aTP.Size() + bTP.Size()
	}
	return fromAlice.Parities.XOr(fromBob.Parities), nil
}

// fixErrors has Alice announce the full syndromes of the disagreeing
// blocks; Bob sums them with his own and flips the bit the Hamming code
// points at. A zero data syndrome means only the appended total parity bit
// differs.
func (w winnower) fixErrors(bob *bitarray.Dense, aSyn, bSyn []bitarray.Dense, todo bitarray.Dense, hBits int, s *Stats) error {
	msg := syndromeAnnouncement{}
	for i, syn := range aSyn {
		if todo.Get(i) {
			msg.Syndromes = append(msg.Syndromes, syn)
		}
	}
	var got syndromeAnnouncement
	if err := w.an.aliceAnnounce(&msg, &got); err != nil {
		return err
	}
	if len(got.Syndromes) != len(msg.Syndromes) {
		return fmt.Errorf("reconciling syndromes with different block counts: %d != %d",
			len(msg.Syndromes), len(got.Syndromes))
	}
	n := 1 << hBits
	for i, k := 0, -1; i < todo.Size(); i++ {
		if !todo.Get(i) {
			continue
		}
		k++
		sum := got.Syndromes[k].XOr(bSyn[i])
		pos := 0
		for j := 0; j < hBits; j++ {
			if sum.Get(j) {
				pos |= 1 << j
			}
		}
		pos-- // hamming syndromes index from 1
		if pos < 0 {
			pos = n - 1
		}
		// Blocks with several errors can alias into the zero padding of the
		// tail block; skip the flip and let a later round catch it.
		if idx := i*n + pos; idx < bob.Size() {
			bob.Flip(idx)
		}
		if s != nil {
			s.DisclosedBits += hBits
		}
	}
	return nil
}

// discardDisclosed removes every position whose parity crossed the public
// channel: the last bit of each block always (total parity), plus the
// power-of-two Hamming positions of blocks that went through full syndrome
// exchange.
func discardDisclosed(x bitarray.Dense, todo bitarray.Dense, hBits int) bitarray.Dense {
	keep := bitarray.Empty()
	n := 1 << hBits
	for i := 0; i < todo.Size(); i++ {
		if !todo.Get(i) {
			for j := 0; j < n-1; j++ {
				keep.AppendBit(true)
			}
			keep.AppendBit(false)
			continue
		}
		for j := 0; j < n; j++ {
			keep.AppendBit(bits.OnesCount(uint(j+1)) != 1)
		}
	}
	return x.Select(keep)
}

// blockSyndromes splits x into 2^hBits-bit blocks, zero-padding the tail,
// and computes the SECDED syndrome of each.
func blockSyndromes(x bitarray.Dense, hBits int) ([]bitarray.Dense, error) {
	var r []bitarray.Dense
	bSize := 1 << hBits
	for i := 0; i < x.Size(); i += bSize {
		end := i + bSize
		if end > x.Size() {
			end = x.Size()
		}
		block, err := x.Slice(i, end)
		if err != nil {
			return nil, err
		}
		if block.Size() < bSize {
			block = bitarray.NewDense(block.Data(), bSize)
		}
		syn, err := secded(block, hBits)
		if err != nil {
			return nil, err
		}
		r = append(r, syn)
	}
	return r, nil
}

// secded computes the Hamming SECDED syndrome of a 2^hBits-bit block: hBits
// stride parities followed by one total parity bit. The p-th parity bit
// covers positions in alternating runs of 2^p, e.g. p=0 covers {0, 2, 4,
// ...} and p=1 covers {1,2, 5,6, ...}.
func secded(block bitarray.Dense, hBits int) (bitarray.Dense, error) {
	if block.Size() != 1<<hBits {
		return bitarray.Empty(), fmt.Errorf(
			"hamming SECDED with %d parity bits needs a %d-bit block, got %d",
			hBits, 1<<hBits, block.Size())
	}
	r := bitarray.Empty()
	for p := 0; p < hBits; p++ {
		stride := 1 << p
		parity := false
		for i := stride - 1; i < block.Size(); i += 2 * stride {
			for j := i; j < i+stride && j < block.Size(); j++ {
				parity = (block.Get(j) != parity)
			}
		}
		r.AppendBit(parity)
	}
	r.AppendBit(block.Parity())
	return r, nil
}
