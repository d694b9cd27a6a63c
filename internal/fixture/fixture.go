// Package fixture builds small encoded streams for tests of stream
// packages.
package fixture

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// MP3Header is a header of MPEG-1 Layer III frame: 128kbps, 44100Hz,
// stereo.
var MP3Header = []byte{0xFF, 0xFB, 0x90, 0x00}

// MP3 returns size bytes that start with MP3Header and are filled with
// value.
func MP3(size int, value byte) []byte {
	b := bytes.Repeat([]byte{value}, size)
	copy(b, MP3Header)
	return b
}

// PCM returns n little-endian 16-bit samples of a saw wave.
func PCM(n int) []byte {
	b := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(int16(i*37-1000)))
	}
	return b
}

// WriteFile writes data to a file in the test temp dir and returns its
// path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
