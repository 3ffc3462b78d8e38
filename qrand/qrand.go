// Package qrand provides the secure random sources used throughout the
// simulation. Loss and noise sampling, basis and bit choices, and
// amplification seeds are all security-relevant: predictable randomness
// breaks the protocol's security argument, so the default source is backed
// by crypto/rand. A deterministic ChaCha20-keyed source is provided so
// sessions can be reproduced under test.
//
// Sources are dependency-injected into channels, protocols and swappers
// rather than shared through a module-level singleton, keeping sessions
// independently testable.
package qrand

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/chacha20"
	exprand "golang.org/x/exp/rand"
)

// A Source produces cryptographically secure randomness. Implementations
// must be safe for use by a single session; use one Source per session when
// running sessions in parallel.
type Source interface {
	io.Reader

	// Uint64 returns a uniformly random 64-bit value.
	Uint64() uint64

	// Intn returns a uniformly random int in [0, n). Panics if n <= 0.
	Intn(n int) int

	// Float64 returns a uniformly random float64 in [0, 1).
	Float64() float64
}

// System returns a Source backed by the operating system CSPRNG.
func System() Source {
	return &reader{r: rand.Reader}
}

// Seeded returns a deterministic Source keyed by seed. The stream is a
// ChaCha20 keystream, so it remains unpredictable to anyone without the
// seed, but two Sources built from the same seed produce identical output.
func Seeded(seed [32]byte) Source {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		// Key and nonce sizes are fixed at compile time.
		panic("qrand: building seeded source: " + err.Error())
	}
	return &reader{r: &keystream{c: c}}
}

// Bytes reads n random bytes from src. A failure to read randomness is
// unrecoverable and panics, matching crypto/rand conventions.
func Bytes(src Source, n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(src, b); err != nil {
		panic("qrand: reading random bytes: " + err.Error())
	}
	return b
}

// ExpSource adapts a Source to the golang.org/x/exp/rand Source interface
// consumed by gonum's distribution samplers.
func ExpSource(src Source) exprand.Source {
	return expAdapter{src}
}

type reader struct {
	r io.Reader
}

func (s *reader) Read(p []byte) (int, error) {
	return io.ReadFull(s.r, p)
}

func (s *reader) Uint64() uint64 {
	var b [8]byte
	if _, err := io.ReadFull(s.r, b[:]); err != nil {
		panic("qrand: reading random bytes: " + err.Error())
	}
	return binary.LittleEndian.Uint64(b[:])
}

func (s *reader) Intn(n int) int {
	if n <= 0 {
		panic("qrand: Intn with non-positive bound")
	}
	// Rejection sampling to avoid modulo bias.
	max := ^uint64(0) - ^uint64(0)%uint64(n)
	for {
		v := s.Uint64()
		if v < max {
			return int(v % uint64(n))
		}
	}
}

func (s *reader) Float64() float64 {
	// 53 bits of randomness for a uniform double in [0, 1).
	return float64(s.Uint64()>>11) / (1 << 53)
}

// keystream exposes a ChaCha20 keystream as an io.Reader.
type keystream struct {
	c *chacha20.Cipher
}

func (k *keystream) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	k.c.XORKeyStream(p, p)
	return len(p), nil
}

type expAdapter struct {
	src Source
}

func (a expAdapter) Uint64() uint64 { return a.src.Uint64() }

// Seed is a no-op: the underlying source is keyed at construction.
func (a expAdapter) Seed(uint64) {}
