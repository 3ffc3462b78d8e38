// Package bitarray provides densely-packed bit strings for classical key
// material: raw bits, basis records, sift masks, and final keys.
package bitarray

import (
	"fmt"
	"math/bits"
)

const blockSize = 8

// A Rand supplies the random indices used to permute a bit array.
type Rand interface {
	Intn(n int) int
}

// A Dense is a bit array where every bit is explicitly represented.
type Dense struct {
	bits []byte
	len  int
}

// NewDense returns a new Dense whose data is a copy of data, and whose
// length is bitLen. If bitLen is longer than data, trailing zeros are added.
// If bitLen is negative, it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * blockSize
	}
	b := make([]byte, BytesFor(bitLen))
	copy(b, data)
	d := Dense{bits: b, len: bitLen}
	d.clearTail()
	return d
}

// Empty returns an empty, dense bit array.
func Empty() Dense {
	return Dense{}
}

// BytesFor returns the number of bytes needed to hold n bits.
func BytesFor(n int) int {
	return (n + blockSize - 1) / blockSize
}

// Size returns the number of bits in d.
func (d Dense) Size() int {
	return d.len
}

// ByteSize returns the number of bytes necessary to represent d.
func (d Dense) ByteSize() int {
	return BytesFor(d.len)
}

// Data returns a copy of the bytes underlying d.
func (d Dense) Data() []byte {
	r := make([]byte, len(d.bits))
	copy(r, d.bits)
	return r
}

// Get returns the bit at idx. Bits beyond the end read as zero.
func (d Dense) Get(idx int) bool {
	if idx < 0 || idx >= d.len {
		return false
	}
	return d.bits[idx/blockSize]&(1<<(idx%blockSize)) != 0
}

// Flip inverts the bit at idx.
func (d *Dense) Flip(idx int) {
	d.bits[idx/blockSize] ^= 1 << (idx % blockSize)
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	pos := d.len % blockSize
	d.len++
	if pos == 0 {
		d.bits = append(d.bits, 0)
	}
	if bit {
		d.bits[len(d.bits)-1] |= 1 << pos
	}
}

// And computes a bitwise AND of d and other. If one is shorter than the
// other, trailing zeros are implicitly added to make the sizes match.
func (d Dense) And(other Dense) Dense {
	short := other
	if d.len < other.len {
		short = d
	}
	r := Dense{bits: make([]byte, 0, BytesFor(short.len)), len: short.len}
	for i := range short.bits {
		r.bits = append(r.bits, d.byteAt(i)&other.byteAt(i))
	}
	r.clearTail()
	return r
}

// XOr computes a bitwise XOR of d and other, zero-extending the shorter.
func (d Dense) XOr(other Dense) Dense {
	long := d
	if d.len < other.len {
		long = other
	}
	r := Dense{bits: make([]byte, 0, BytesFor(long.len)), len: long.len}
	for i := range long.bits {
		r.bits = append(r.bits, d.byteAt(i)^other.byteAt(i))
	}
	r.clearTail()
	return r
}

// XNor computes a bitwise equality mask of d and other, zero-extending the
// shorter.
func (d Dense) XNor(other Dense) Dense {
	long := d
	if d.len < other.len {
		long = other
	}
	r := Dense{bits: make([]byte, 0, BytesFor(long.len)), len: long.len}
	for i := range long.bits {
		r.bits = append(r.bits, ^(d.byteAt(i) ^ other.byteAt(i)))
	}
	r.clearTail()
	return r
}

// Parity returns the overall parity of d, true corresponding to odd.
func (d Dense) Parity() bool {
	var sum byte
	for _, b := range d.bits {
		sum ^= b
	}
	return bits.OnesCount8(sum)%2 == 1
}

// CountOnes returns the total number of bits set in d.
func (d Dense) CountOnes() int {
	var sum int
	for _, b := range d.bits {
		sum += bits.OnesCount8(b)
	}
	return sum
}

// Select keeps the bits of d at positions where mask is set.
func (d Dense) Select(mask Dense) Dense {
	var r Dense
	for i := 0; i < d.len; i++ {
		if mask.Get(i) {
			r.AppendBit(d.Get(i))
		}
	}
	return r
}

// Slice copies bits [start, end) of d into a new Dense.
func (d Dense) Slice(start, end int) (Dense, error) {
	if start < 0 {
		return Dense{}, fmt.Errorf("slicing bitarray with negative start: %d", start)
	}
	if end < start {
		return Dense{}, fmt.Errorf("slicing bitarray to negative length: %d", end-start)
	}
	if end > d.len {
		return Dense{}, fmt.Errorf("slicing bitarray of len %d up to %d", d.len, end)
	}
	var r Dense
	for i := start; i < end; i++ {
		r.AppendBit(d.Get(i))
	}
	return r, nil
}

// Append adds the contents of other to the end of d.
func (d *Dense) Append(other Dense) {
	for i := 0; i < other.len; i++ {
		d.AppendBit(other.Get(i))
	}
}

// Shuffle randomly permutes the bits of d in place, drawing indices from r.
// Two arrays shuffled with identically-seeded sources end up permuted the
// same way, which is what synchronized reconciliation rounds rely on.
func (d *Dense) Shuffle(r Rand) {
	for i := d.len - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		a, b := d.Get(i), d.Get(j)
		if a != b {
			d.Flip(i)
			d.Flip(j)
		}
	}
}

// Equal reports whether d and other have the same length and bits.
func (d Dense) Equal(other Dense) bool {
	if d.len != other.len {
		return false
	}
	for i := range d.bits {
		if d.byteAt(i) != other.byteAt(i) {
			return false
		}
	}
	return true
}

// String renders d as a bit string, least significant bit first.
func (d Dense) String() string {
	r := make([]byte, d.len)
	for i := 0; i < d.len; i++ {
		if d.Get(i) {
			r[i] = '1'
		} else {
			r[i] = '0'
		}
	}
	return string(r)
}

func (d Dense) byteAt(i int) byte {
	if i >= len(d.bits) {
		return 0
	}
	b := d.bits[i]
	if i == len(d.bits)-1 {
		if off := d.len % blockSize; off != 0 {
			b &= 0xFF >> (blockSize - off)
		}
	}
	return b
}

// clearTail zeroes bits past len so byte-level ops stay canonical.
func (d *Dense) clearTail() {
	if len(d.bits) == 0 {
		return
	}
	if off := d.len % blockSize; off != 0 {
		d.bits[len(d.bits)-1] &= 0xFF >> (blockSize - off)
	}
}
