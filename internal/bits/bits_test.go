package bits_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/stream/internal/bits"
)

func TestExtract(t *testing.T) {
	data := []byte{0xA5, 0x0F, 0xF0, 0x81}
	tests := []struct {
		name       string
		byteOffset int
		bitOffset  int
		n          int
		expected   uint64
	}{
		{"first bit", 0, 0, 1, 1},
		{"nibble", 0, 4, 4, 0x5},
		{"whole byte", 1, 0, 8, 0x0F},
		{"crossing bytes", 0, 4, 8, 0x50},
		{"bit offset beyond byte", 0, 12, 8, 0xFF},
		{"all", 0, 0, 32, 0xA50FF081},
		{"last bit", 3, 7, 1, 1},
		{"empty", 2, 0, 0, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v, err := bits.Extract(data, test.byteOffset, test.bitOffset, test.n)
			require.NoError(t, err)
			assert.Equal(t, test.expected, v)
		})
	}
}

func TestExtractRange(t *testing.T) {
	data := make([]byte, 9)
	_, err := bits.Extract(data, 0, 0, 65)
	assert.ErrorIs(t, err, bits.ErrRange)
	_, err = bits.Extract(data, 8, 1, 8)
	assert.ErrorIs(t, err, bits.ErrRange)
	_, err = bits.Extract(data, -1, 0, 1)
	assert.ErrorIs(t, err, bits.ErrRange)

	v, err := bits.Extract([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, 0, 3, 64)
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), v)
}

func TestPut(t *testing.T) {
	data := make([]byte, 8)
	require.NoError(t, bits.Put(data, 0, 3, 20, 44100))
	require.NoError(t, bits.Put(data, 2, 7, 36, 1<<35|5))
	v, err := bits.Extract(data, 0, 3, 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(44100), v)
	v, err = bits.Extract(data, 2, 7, 36)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<35|5), v)

	// existing bits are overwritten.
	require.NoError(t, bits.Put(data, 0, 3, 20, 0))
	v, err = bits.Extract(data, 0, 3, 20)
	require.NoError(t, err)
	assert.Zero(t, v)

	assert.ErrorIs(t, bits.Put(data, 7, 4, 8, 1), bits.ErrRange)
}
