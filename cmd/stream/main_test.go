package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/stream/flac"
	"pipelined.dev/stream/internal/fixture"
	"pipelined.dev/stream/metadata"
)

func mp3File(t *testing.T, name string, value byte) (string, []byte) {
	t.Helper()
	data := fixture.MP3(2000, value)
	return fixture.WriteFile(t, name, data), data
}

func run(args ...string) (int, string) {
	var out bytes.Buffer
	c := config{args: append([]string{"stream"}, args...), out: &out}
	return c.run(), out.String()
}

func TestInit(t *testing.T) {
	var names []string
	for _, cmd := range commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"identify", "relay"})
}

func TestUsage(t *testing.T) {
	code, out := run()
	assert.Equal(t, errorExitCode, code)
	assert.Contains(t, out, "identify")

	code, _ = run("unknown")
	assert.Equal(t, errorExitCode, code)
}

func TestIdentify(t *testing.T) {
	path, _ := mp3File(t, "song.mp3", 0)
	code, out := run("identify", path)
	assert.Equal(t, successExitCode, code)
	assert.Contains(t, out, "MP3")

	code, out = run("identify")
	assert.Equal(t, errorExitCode, code)
	assert.Contains(t, out, "missing file")
}

func TestRelayPlaylist(t *testing.T) {
	first, a := mp3File(t, "first.mp3", 1)
	second, b := mp3File(t, "second.mp3", 2)
	out := filepath.Join(t.TempDir(), "out.mp3")

	code, output := run("relay", "-in", first, "-in", second, "-out", out, "-rate", "1000000")
	require.Equal(t, successExitCode, code, output)

	relayed, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, append(a, b...), relayed)
}

func TestRelayNoOutputs(t *testing.T) {
	path, _ := mp3File(t, "song.mp3", 0)
	code, out := run("relay", "-in", path)
	assert.Equal(t, errorExitCode, code)
	assert.Contains(t, out, "no outputs")
}

func flacFile(t *testing.T, info flac.StreamInfo, size int) string {
	t.Helper()
	body, err := info.MarshalBinary()
	require.NoError(t, err)
	h, err := flac.BlockHeader{Last: true, Type: flac.StreamInfoBlock, Length: len(body)}.MarshalBinary()
	require.NoError(t, err)
	data := bytes.Join([][]byte{[]byte(flac.Marker), h, body}, nil)
	if pad := size - len(data); pad > 0 {
		data = append(data, make([]byte, pad)...)
	}
	return fixture.WriteFile(t, "song.flac", data)
}

func TestByteRate(t *testing.T) {
	testRate := func(path string, m metadata.Metadata, expected int) func(*testing.T) {
		return func(t *testing.T) {
			assert.Equal(t, expected, byteRate(path, m))
		}
	}
	info := flac.StreamInfo{
		MinBlockSize:  4096,
		MaxBlockSize:  4096,
		SampleRate:    48000,
		Channels:      2,
		BitsPerSample: 16,
	}
	format := func(encoding string) metadata.Metadata {
		return metadata.New(metadata.NewFormat(2, 48000, encoding), metadata.Content{})
	}
	mp3Path, _ := mp3File(t, "song.mp3", 0)
	t.Run("pcm", testRate("", format(metadata.PCM), 0))
	t.Run("mp3", testRate(mp3Path, format(metadata.MP3), 128000/8))
	t.Run("flac without length", testRate(flacFile(t, info, 0), format(metadata.FLAC), 192000))
	withLength := info
	withLength.TotalSamples = 10 * 48000
	t.Run("flac average", testRate(flacFile(t, withLength, 100000), format(metadata.FLAC), 10000))
	t.Run("flac missing", testRate(filepath.Join(t.TempDir(), "none.flac"), format(metadata.FLAC), -1))
	t.Run("vorbis", testRate(mp3Path, format(metadata.Vorbis), -1))
}
