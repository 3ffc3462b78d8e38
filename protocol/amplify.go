package protocol

import (
	"fmt"
	"io"
	"math"

	"github.com/cloudflare/circl/xof"

	qkderr "github.com/qtessera/qkd/internal/errors"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum/bitarray"
)

// h2 is the binary entropy function.
func h2(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

// secureLength bounds the number of eps-secure key bits extractable from n
// reconciled bits. The sampled QBER is inflated by the Hoeffding finite-size
// correction sqrt(ln(1/eps) / 2k) for a k-bit sample, the adversary is
// granted n·h2 of that rate, and the leftover hash lemma charges a further
// 2·log2(1/eps) for the extraction itself. Reconciliation contributes no
// term here: winnow discards every position whose parity it announced.
func secureLength(n int, qber float64, sampled int, eps float64) int {
	if n <= 0 {
		return 0
	}
	nu := 0.0
	if sampled > 0 {
		nu = math.Sqrt(math.Log(1/eps) / (2 * float64(sampled)))
	}
	rate := qber + nu
	if rate > 0.5 {
		rate = 0.5
	}
	leak := float64(n) * h2(rate)
	m := float64(n) - math.Ceil(leak+2*math.Log2(1/eps))
	if m < 0 {
		return 0
	}
	return int(m)
}

// An amplifier performs privacy amplification: hashing the reconciled key
// through a random Toeplitz matrix down to a length the adversary's
// information bound permits. The hash seed is announced publicly; universal
// hashing guarantees the output is eps-close to uniform regardless.
type amplifier struct {
	an  *announcer
	src qrand.Source
}

// amplify compresses both parties' reconciled keys to exactly keyLen bits,
// failing with ErrInsufficientSiftedBits when the secure extractable length
// falls short.
func (a amplifier) amplify(alice, bob bitarray.Dense, keyLen int, qber float64, sampled int, eps float64) (bitarray.Dense, bitarray.Dense, error) {
	m := secureLength(alice.Size(), qber, sampled, eps)
	if m < keyLen {
		return bitarray.Empty(), bitarray.Empty(), fmt.Errorf(
			"%w: %d secure bits extractable from %d reconciled, need %d",
			qkderr.ErrInsufficientSiftedBits, m, alice.Size(), keyLen)
	}
	var seed seedAnnouncement
	if err := a.an.aliceAnnounce(&seedAnnouncement{Seed: qrand.Bytes(a.src, 32)}, &seed); err != nil {
		return bitarray.Empty(), bitarray.Empty(), err
	}
	n := alice.Size()
	t := toeplitz{
		diags: expandDiags(seed.Seed, keyLen+n-1),
		m:     keyLen,
		n:     n,
	}
	aKey, err := t.Mul(alice)
	if err != nil {
		return bitarray.Empty(), bitarray.Empty(), err
	}
	bKey, err := t.Mul(bob)
	if err != nil {
		return bitarray.Empty(), bitarray.Empty(), err
	}
	return aKey, bKey, nil
}

// expandDiags stretches the announced seed into Toeplitz diagonal bits with
// SHAKE256, so a 32-byte announcement seeds a hash matrix of any size.
func expandDiags(seed []byte, bits int) bitarray.Dense {
	x := xof.SHAKE256.New()
	x.Write(seed)
	buf := make([]byte, bitarray.BytesFor(bits))
	io.ReadFull(x, buf)
	return bitarray.NewDense(buf, bits)
}
