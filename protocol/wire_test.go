package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum/bitarray"
)

func testAnnouncer(t *testing.T, stats *Stats) *announcer {
	t.Helper()
	var key [32]byte
	key[0] = 0xA5
	secret := qrand.Bytes(qrand.Seeded(key), 64*1024)
	an, err := newAnnouncer(secret, 1e-12, 4096, stats)
	require.NoError(t, err)
	return an
}

func TestAnnouncerRoundTrips(t *testing.T) {
	var stats Stats
	an := testAnnouncer(t, &stats)

	src := &basisAnnouncement{
		Bases:      bitarray.NewDense([]byte{0b10110100}, 8),
		Dropped:    bitarray.NewDense([]byte{0b00000001}, 8),
		Settings:   []int{0, 2, 1, 0, 2, 2, 1, 0},
		Conclusive: bitarray.NewDense([]byte{0b01011010}, 8),
	}
	var dst basisAnnouncement
	require.NoError(t, an.aliceAnnounce(src, &dst))
	assert.True(t, dst.Bases.Equal(src.Bases))
	assert.True(t, dst.Dropped.Equal(src.Dropped))
	assert.Equal(t, src.Settings, dst.Settings)
	assert.True(t, dst.Conclusive.Equal(src.Conclusive))

	var q qberAnnouncement
	require.NoError(t, an.bobAnnounce(&qberAnnouncement{QBER: 0.0625}, &q))
	assert.Equal(t, 0.0625, q.QBER)

	var syn syndromeAnnouncement
	require.NoError(t, an.aliceAnnounce(&syndromeAnnouncement{
		Syndromes: []bitarray.Dense{
			bitarray.NewDense([]byte{0b1011}, 4),
			bitarray.NewDense([]byte{0b0001}, 4),
		},
	}, &syn))
	require.Len(t, syn.Syndromes, 2)
	assert.True(t, syn.Syndromes[0].Equal(bitarray.NewDense([]byte{0b1011}, 4)))

	assert.Equal(t, 3, stats.MessagesSent)
	assert.Equal(t, 3, stats.MessagesReceived)
	assert.Equal(t, stats.BytesSent, stats.BytesRead)
	assert.Greater(t, stats.BytesSent, 0)
}

func TestAnnouncerDetectsTampering(t *testing.T) {
	var stats Stats
	an := testAnnouncer(t, &stats)

	msg := &bitAnnouncement{Bits: bitarray.NewDense([]byte{0xff, 0x0f}, 12), Seed: []byte{1, 2, 3}}
	require.NoError(t, an.alice.write(msg, &stats))

	// Flip one payload bit in transit.
	raw := an.transport.Bytes()
	raw[5] ^= 0x10

	var got bitAnnouncement
	err := an.bob.read(&got, &stats)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mac")
}

func TestDenseWireKeepsOddBitLengths(t *testing.T) {
	// Bit lengths that are not byte multiples must survive the trip.
	for _, n := range []int{1, 7, 9, 63} {
		d := bitarray.Empty()
		for i := 0; i < n; i++ {
			d.AppendBit(i%3 == 0)
		}
		var got parityAnnouncement
		require.NoError(t, got.unmarshal((&parityAnnouncement{Parities: d}).marshal()))
		assert.Equal(t, n, got.Parities.Size())
		assert.True(t, got.Parities.Equal(d))
	}
}
