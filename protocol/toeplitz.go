package protocol

import (
	"fmt"

	"github.com/qtessera/qkd/quantum/bitarray"
)

// A toeplitz represents a matrix whose diagonals are all constant, operating
// in F_2. Toeplitz matrices form a universal hash family, which is what both
// privacy amplification and the classical-channel MACs rely on.
type toeplitz struct {
	// The diagonal constants, starting from the bottom left and ending with
	// the top right. Needs at least m+n-1 bits.
	diags bitarray.Dense

	m int
	n int
}

// Mul computes the matrix-vector product Tv in F_2.
func (t toeplitz) Mul(vec bitarray.Dense) (bitarray.Dense, error) {
	if t.diags.Size() < t.m+t.n-1 {
		return bitarray.Dense{}, fmt.Errorf("improper toeplitz construction, has %d diagonals, needs %d", t.diags.Size(), t.m+t.n-1)
	}
	if t.n != vec.Size() {
		return bitarray.Dense{}, fmt.Errorf("multiplying %dx%d matrix into %d-dim vector", t.m, t.n, vec.Size())
	}

	r := bitarray.Dense{}
	for off := t.m - 1; off >= 0; off-- {
		row, err := t.diags.Slice(off, off+t.n)
		if err != nil {
			return bitarray.Empty(), err
		}
		r.AppendBit(row.And(vec).Parity())
	}
	return r, nil
}
