package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/qtessera/qkd/quantum/bitarray"
)

// A framer reads and writes framed announcements on the classical channel.
// The frame structure is trivial: payload-length | payload | mac.
//
// MACs are computed by applying a secret Toeplitz matrix to hash the
// payload, then one-time-padding the hash from the shared bootstrap secret,
// which gives information-theoretic authentication.
type framer struct {
	rw     io.ReadWriter
	secret io.Reader
	t      toeplitz
}

func newFramer(rw io.ReadWriter, secret io.Reader, epsAuth float64, maxBytes int) (*framer, error) {
	macBits := int(math.Ceil(math.Log2(1 / epsAuth)))
	// Round the MAC up to whole bytes so frames stay byte-aligned.
	macBits = 8 * ((macBits + 7) / 8)
	diags := make([]byte, 2*maxBytes+macBits/8)
	if _, err := io.ReadFull(secret, diags); err != nil {
		return nil, fmt.Errorf("drawing MAC diagonals: %w", err)
	}
	return &framer{
		rw:     rw,
		secret: secret,
		t: toeplitz{
			diags: bitarray.NewDense(diags, -1),
			m:     macBits,
		},
	}, nil
}

func (f *framer) write(m message, s *Stats) error {
	marshalled := m.marshal()
	if err := binary.Write(f.rw, binary.LittleEndian, int32(len(marshalled))); err != nil {
		return err
	}
	if _, err := f.rw.Write(marshalled); err != nil {
		return err
	}
	mac, err := f.buildMAC(marshalled)
	if err != nil {
		return err
	}
	if _, err := f.rw.Write(mac); err != nil {
		return err
	}
	if s != nil {
		s.MessagesSent++
		s.BytesSent += 4 + len(marshalled) + len(mac)
	}
	return nil
}

func (f *framer) read(m message, s *Stats) error {
	var mLen int32
	if err := binary.Read(f.rw, binary.LittleEndian, &mLen); err != nil {
		return err
	}
	marshalled := make([]byte, mLen)
	if _, err := io.ReadFull(f.rw, marshalled); err != nil {
		return err
	}
	mac := make([]byte, f.t.m/8)
	if _, err := io.ReadFull(f.rw, mac); err != nil {
		return err
	}
	emac, err := f.buildMAC(marshalled)
	if err != nil {
		return err
	}
	if !bytes.Equal(mac, emac) {
		return fmt.Errorf("invalid mac: got %v, expected %v", mac, emac)
	}
	if s != nil {
		s.MessagesReceived++
		s.BytesRead += 4 + len(marshalled) + len(mac)
	}
	return m.unmarshal(marshalled)
}

func (f *framer) buildMAC(msg []byte) ([]byte, error) {
	f.t.n = len(msg) * 8
	hash, err := f.t.Mul(bitarray.NewDense(msg, -1))
	if err != nil {
		return nil, err
	}
	otp := make([]byte, hash.ByteSize())
	if _, err := io.ReadFull(f.secret, otp); err != nil {
		return nil, err
	}
	mac := hash.XOr(bitarray.NewDense(otp, -1))
	return mac.Data(), nil
}

// An announcer models the public classical channel inside one simulated
// session. Both endpoints hold a framer over the same transport and
// identical views of the bootstrap secret, so every announcement is framed,
// MACed, and verified exactly as it would be between two processes, while
// execution stays single-threaded.
type announcer struct {
	transport *bytes.Buffer
	alice     *framer
	bob       *framer
	stats     *Stats
}

func newAnnouncer(secret []byte, epsAuth float64, maxBytes int, stats *Stats) (*announcer, error) {
	transport := &bytes.Buffer{}
	a, err := newFramer(transport, bytes.NewReader(secret), epsAuth, maxBytes)
	if err != nil {
		return nil, err
	}
	b, err := newFramer(transport, bytes.NewReader(secret), epsAuth, maxBytes)
	if err != nil {
		return nil, err
	}
	return &announcer{transport: transport, alice: a, bob: b, stats: stats}, nil
}

// aliceAnnounce publishes a message from Alice; Bob's endpoint receives and
// authenticates it into dst (which may be the same value).
func (an *announcer) aliceAnnounce(src, dst message) error {
	if err := an.alice.write(src, an.stats); err != nil {
		return err
	}
	return an.bob.read(dst, an.stats)
}

// bobAnnounce publishes a message from Bob; Alice's endpoint receives and
// authenticates it into dst.
func (an *announcer) bobAnnounce(src, dst message) error {
	if err := an.bob.write(src, an.stats); err != nil {
		return err
	}
	return an.alice.read(dst, an.stats)
}
