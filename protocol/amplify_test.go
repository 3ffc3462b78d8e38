package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qkderr "github.com/qtessera/qkd/internal/errors"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum/bitarray"
)

func TestBinaryEntropy(t *testing.T) {
	assert.Equal(t, 0.0, h2(0))
	assert.Equal(t, 0.0, h2(1))
	assert.InDelta(t, 1.0, h2(0.5), 1e-12)
	assert.InDelta(t, h2(0.11), h2(0.89), 1e-12)
	assert.Greater(t, h2(0.3), h2(0.1))
}

func TestSecureLength(t *testing.T) {
	// More observed errors means fewer extractable bits.
	prev := secureLength(4096, 0, 2048, 1e-12)
	assert.Greater(t, prev, 0)
	for _, q := range []float64{0.01, 0.05, 0.1, 0.2} {
		m := secureLength(4096, q, 2048, 1e-12)
		assert.Less(t, m, prev, "qber %v", q)
		prev = m
	}

	// At half error rate the adversary may know everything.
	assert.Equal(t, 0, secureLength(4096, 0.5, 2048, 1e-12))
	assert.Equal(t, 0, secureLength(0, 0, 2048, 1e-12))

	// A small sample inflates the correction more than a large one.
	assert.Less(t,
		secureLength(4096, 0.02, 64, 1e-12),
		secureLength(4096, 0.02, 4096, 1e-12))

	// The output never exceeds the input.
	assert.LessOrEqual(t, secureLength(512, 0, 1<<20, 1e-12), 512)
}

func TestAmplifyCompressesToExactLength(t *testing.T) {
	var stats Stats
	secret := qrand.Bytes(seeded(20), 64*1024)
	an, err := newAnnouncer(secret, 1e-12, 4096, &stats)
	require.NoError(t, err)

	key := bitarray.NewDense(qrand.Bytes(seeded(21), 125), 1000)
	a := amplifier{an: an, src: seeded(22)}
	aOut, bOut, err := a.amplify(key, key, 64, 0.02, 1000, 1e-12)
	require.NoError(t, err)
	assert.Equal(t, 64, aOut.Size())
	assert.True(t, aOut.Equal(bOut), "equal inputs must hash to equal keys")
	assert.Less(t, aOut.Size(), key.Size())
}

func TestAmplifyFailsWhenKeyTooShort(t *testing.T) {
	var stats Stats
	secret := qrand.Bytes(seeded(23), 64*1024)
	an, err := newAnnouncer(secret, 1e-12, 4096, &stats)
	require.NoError(t, err)

	key := bitarray.NewDense(qrand.Bytes(seeded(24), 125), 1000)
	a := amplifier{an: an, src: seeded(25)}
	_, _, err = a.amplify(key, key, 900, 0.02, 1000, 1e-12)
	assert.ErrorIs(t, err, qkderr.ErrInsufficientSiftedBits)
}

func TestExpandDiagsDeterministic(t *testing.T) {
	seed := []byte{1, 2, 3, 4}
	a := expandDiags(seed, 777)
	b := expandDiags(seed, 777)
	assert.True(t, a.Equal(b))
	assert.Equal(t, 777, a.Size())
	c := expandDiags([]byte{9, 9, 9}, 777)
	assert.False(t, a.Equal(c))
}
