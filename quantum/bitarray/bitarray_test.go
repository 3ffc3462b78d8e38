package bitarray

import (
	"bytes"
	"reflect"
	"testing"
)

// fromBits builds a Dense from a string of '0' and '1' runes, index 0 first.
// Spaces are ignored.
func fromBits(t *testing.T, s string) Dense {
	t.Helper()
	d := Empty()
	for _, c := range s {
		switch c {
		case '0':
			d.AppendBit(false)
		case '1':
			d.AppendBit(true)
		case ' ':
		default:
			t.Fatalf("bad bit rune %q", c)
		}
	}
	return d
}

func TestGet(t *testing.T) {
	tcs := []struct {
		name  string
		data  Dense
		ebits []bool
	}{
		{"implicit zeros", NewDense(nil, 3), []bool{false, false, false}},
		{"aligned", fromBits(t, "10101010"), []bool{true, false, true, false, true, false, true, false}},
		{"multibyte",
			fromBits(t, "00000000 101"),
			[]bool{false, false, false, false, false, false, false, false, true, false, true}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var got []bool
			for i := 0; i < tc.data.Size(); i++ {
				got = append(got, tc.data.Get(i))
			}
			if !reflect.DeepEqual(got, tc.ebits) {
				t.Errorf("Get() == %v, want %v", got, tc.ebits)
			}
		})
	}
}

func TestNewDenseCanonicalizesTail(t *testing.T) {
	// Bits beyond the declared length must read as zero and never survive
	// into the backing bytes.
	d := NewDense([]byte{0xff}, 3)
	if d.Size() != 3 {
		t.Errorf("Size() == %d, want 3", d.Size())
	}
	if got := d.Data(); !bytes.Equal(got, []byte{0b111}) {
		t.Errorf("Data() == %v, want [7]", got)
	}
	if d.Get(3) {
		t.Errorf("Get(3) == true beyond length")
	}
}

func TestNewDensePads(t *testing.T) {
	d := NewDense([]byte{0b1}, 12)
	if d.Size() != 12 {
		t.Errorf("Size() == %d, want 12", d.Size())
	}
	if !d.Get(0) || d.Get(8) || d.Get(11) {
		t.Errorf("padding bits not zero: %v", d)
	}
}

func TestOps(t *testing.T) {
	tcs := []struct {
		name string
		op   func(a, b Dense) Dense
		a, b Dense
		eout Dense
	}{
		{"and", Dense.And, fromBits(t, "1100"), fromBits(t, "1010"), fromBits(t, "1000")},
		{"and uneven", Dense.And, fromBits(t, "11"), fromBits(t, "1010"), fromBits(t, "10")},
		{"xor", Dense.XOr, fromBits(t, "1100"), fromBits(t, "1010"), fromBits(t, "0110")},
		{"xor uneven", Dense.XOr, fromBits(t, "11"), fromBits(t, "1010"), fromBits(t, "0110")},
		{"xnor", Dense.XNor, fromBits(t, "1100"), fromBits(t, "1010"), fromBits(t, "1001")},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := tc.op(tc.a, tc.b)
			if !out.Equal(tc.eout) {
				t.Errorf("got %v, want %v", out, tc.eout)
			}
		})
	}
}

func TestParityAndCount(t *testing.T) {
	tcs := []struct {
		name    string
		d       Dense
		eparity bool
		ecount  int
	}{
		{"empty", Empty(), false, 0},
		{"even", fromBits(t, "1100"), false, 2},
		{"odd", fromBits(t, "1110"), true, 3},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.d.Parity(); got != tc.eparity {
				t.Errorf("Parity() == %v, want %v", got, tc.eparity)
			}
			if got := tc.d.CountOnes(); got != tc.ecount {
				t.Errorf("CountOnes() == %d, want %d", got, tc.ecount)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	tcs := []struct {
		name    string
		d, mask Dense
		eout    Dense
	}{
		{"all", fromBits(t, "101"), fromBits(t, "111"), fromBits(t, "101")},
		{"none", fromBits(t, "101"), fromBits(t, "000"), Empty()},
		{"alternating", fromBits(t, "110011"), fromBits(t, "101010"), fromBits(t, "101")},
		{"long mask", fromBits(t, "11"), fromBits(t, "11111"), fromBits(t, "11")},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := tc.d.Select(tc.mask)
			if !out.Equal(tc.eout) {
				t.Errorf("got %v, want %v", out, tc.eout)
			}
		})
	}
}

func TestSlice(t *testing.T) {
	d := fromBits(t, "10110010 101")
	got, err := d.Slice(3, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := fromBits(t, "100101"); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := d.Slice(3, 12); err == nil {
		t.Errorf("expected error slicing past end")
	}
	if _, err := d.Slice(-1, 2); err == nil {
		t.Errorf("expected error slicing before start")
	}
}

func TestAppend(t *testing.T) {
	a := fromBits(t, "10101010 01")
	a.Append(fromBits(t, "01010101"))
	if want := fromBits(t, "10101010 01 01010101"); !a.Equal(want) {
		t.Errorf("got %v, want %v", a, want)
	}
}

type seqRand struct{ vals []int }

func (r *seqRand) Intn(n int) int {
	v := r.vals[0] % n
	r.vals = r.vals[1:]
	return v
}

func TestShuffleDeterministic(t *testing.T) {
	a := fromBits(t, "11110000")
	b := fromBits(t, "11110000")
	a.Shuffle(&seqRand{vals: []int{3, 1, 4, 1, 5, 2, 6}})
	b.Shuffle(&seqRand{vals: []int{3, 1, 4, 1, 5, 2, 6}})
	if !a.Equal(b) {
		t.Errorf("identical random sequences shuffled differently: %v vs %v", a, b)
	}
	if a.CountOnes() != 4 {
		t.Errorf("shuffle changed popcount: %v", a)
	}
}
