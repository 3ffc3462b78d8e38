package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/qtessera/qkd/quantum/bitarray"
)

// Classical announcements cross the public channel as protobuf-wire-encoded
// messages. The message set is small and stable, so the codecs are written
// directly against the wire format rather than generated.

// A message is anything the classical channel can frame.
type message interface {
	marshal() []byte
	unmarshal(b []byte) error
}

// denseBits is the wire form of a bitarray.Dense: raw bytes plus a bit
// length.
//
//	bits  bytes  = 1
//	len   varint = 2
func appendDense(b []byte, num protowire.Number, d bitarray.Dense) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, 1, protowire.BytesType)
	inner = protowire.AppendBytes(inner, d.Data())
	inner = protowire.AppendTag(inner, 2, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(d.Size()))
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func consumeDense(b []byte) (bitarray.Dense, error) {
	var data []byte
	bitLen := -1
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return bitarray.Empty(), protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return bitarray.Empty(), protowire.ParseError(n)
			}
			data, b = v, b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return bitarray.Empty(), protowire.ParseError(n)
			}
			bitLen, b = int(v), b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return bitarray.Empty(), protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return bitarray.NewDense(data, bitLen), nil
}

// basisAnnouncement discloses the public sifting metadata a variant allows:
// basis choices where they are announceable, the receiver's drop positions,
// and the receiver's conclusiveness mask for variants with probabilistic
// detection. No bit values cross in this message.
//
//	bases      denseBits = 1
//	dropped    denseBits = 2
//	settings   varint... = 3 (packed, for variants with more than two bases)
//	conclusive denseBits = 4
type basisAnnouncement struct {
	Bases      bitarray.Dense
	Dropped    bitarray.Dense
	Settings   []int
	Conclusive bitarray.Dense
}

func (m *basisAnnouncement) marshal() []byte {
	var b []byte
	b = appendDense(b, 1, m.Bases)
	b = appendDense(b, 2, m.Dropped)
	if len(m.Settings) > 0 {
		var packed []byte
		for _, s := range m.Settings {
			packed = protowire.AppendVarint(packed, uint64(s))
		}
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	b = appendDense(b, 4, m.Conclusive)
	return b
}

func (m *basisAnnouncement) unmarshal(b []byte) error {
	*m = basisAnnouncement{}
	return walkFields(b, func(num protowire.Number, payload []byte) error {
		switch num {
		case 1:
			d, err := consumeDense(payload)
			if err != nil {
				return err
			}
			m.Bases = d
		case 2:
			d, err := consumeDense(payload)
			if err != nil {
				return err
			}
			m.Dropped = d
		case 3:
			for len(payload) > 0 {
				v, n := protowire.ConsumeVarint(payload)
				if n < 0 {
					return protowire.ParseError(n)
				}
				m.Settings = append(m.Settings, int(v))
				payload = payload[n:]
			}
		case 4:
			d, err := consumeDense(payload)
			if err != nil {
				return err
			}
			m.Conclusive = d
		}
		return nil
	})
}

// bitAnnouncement discloses a public bit vector: the sampled
// error-estimation bits with the shuffle seed that selected them, or the
// keep-mask of qudit binarization.
//
//	bits  denseBits = 1
//	seed  bytes     = 2
type bitAnnouncement struct {
	Bits bitarray.Dense
	Seed []byte
}

func (m *bitAnnouncement) marshal() []byte {
	var b []byte
	b = appendDense(b, 1, m.Bits)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Seed)
	return b
}

func (m *bitAnnouncement) unmarshal(b []byte) error {
	*m = bitAnnouncement{}
	return walkFields(b, func(num protowire.Number, payload []byte) error {
		switch num {
		case 1:
			d, err := consumeDense(payload)
			if err != nil {
				return err
			}
			m.Bits = d
		case 2:
			m.Seed = append([]byte(nil), payload...)
		}
		return nil
	})
}

// qberAnnouncement reports the error rate measured on the sampled subset.
//
//	qber fixed64 = 1
type qberAnnouncement struct {
	QBER float64
}

func (m *qberAnnouncement) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(m.QBER))
	return b
}

func (m *qberAnnouncement) unmarshal(b []byte) error {
	*m = qberAnnouncement{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if num == 1 && typ == protowire.Fixed64Type {
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.QBER = math.Float64frombits(v)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

// parityAnnouncement carries one total-parity bit per code block.
//
//	parities denseBits = 1
type parityAnnouncement struct {
	Parities bitarray.Dense
}

func (m *parityAnnouncement) marshal() []byte {
	return appendDense(nil, 1, m.Parities)
}

func (m *parityAnnouncement) unmarshal(b []byte) error {
	*m = parityAnnouncement{}
	return walkFields(b, func(num protowire.Number, payload []byte) error {
		if num == 1 {
			d, err := consumeDense(payload)
			if err != nil {
				return err
			}
			m.Parities = d
		}
		return nil
	})
}

// syndromeAnnouncement carries the full Hamming syndromes for blocks whose
// total parities disagreed.
//
//	syndromes denseBits = 1 (repeated)
type syndromeAnnouncement struct {
	Syndromes []bitarray.Dense
}

func (m *syndromeAnnouncement) marshal() []byte {
	var b []byte
	for _, s := range m.Syndromes {
		b = appendDense(b, 1, s)
	}
	return b
}

func (m *syndromeAnnouncement) unmarshal(b []byte) error {
	*m = syndromeAnnouncement{}
	return walkFields(b, func(num protowire.Number, payload []byte) error {
		if num == 1 {
			d, err := consumeDense(payload)
			if err != nil {
				return err
			}
			m.Syndromes = append(m.Syndromes, d)
		}
		return nil
	})
}

// seedAnnouncement publishes a random seed: the amplification hash seed, or
// the synchronized shuffle seed used by reconciliation.
//
//	seed bytes = 1
type seedAnnouncement struct {
	Seed []byte
}

func (m *seedAnnouncement) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Seed)
	return b
}

func (m *seedAnnouncement) unmarshal(b []byte) error {
	*m = seedAnnouncement{}
	return walkFields(b, func(num protowire.Number, payload []byte) error {
		if num == 1 {
			m.Seed = append([]byte(nil), payload...)
		}
		return nil
	})
}

// walkFields iterates length-delimited fields, skipping anything else.
func walkFields(b []byte, f func(num protowire.Number, payload []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		payload, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		if err := f(num, payload); err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[n:]
	}
	return nil
}
