package mp3_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/stream/codec"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/mp3"
)

// MPEG-1 Layer III, 128 kbit/s, 44100 Hz, stereo.
var frameHeader = []byte{0xFF, 0xFB, 0x90, 0x00}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestParseHeader(t *testing.T) {
	h, err := mp3.ParseHeader(frameHeader)
	require.NoError(t, err)
	assert.Equal(t, mp3.MPEG1, h.Version)
	assert.Equal(t, mp3.LayerIII, h.Layer)
	assert.False(t, h.Protected)
	assert.Equal(t, 128000, h.Bitrate)
	assert.Equal(t, 44100, h.SampleRate)
	assert.Equal(t, mp3.Stereo, h.ChannelMode)
	assert.Equal(t, 2, h.Channels())
	assert.Equal(t, 1152, h.SamplesPerFrame())
	assert.Equal(t, 417, h.FrameLength())
	assert.Equal(t, "MPEG-1 Layer III 128kbps 44100Hz 2ch", h.String())

	b, err := h.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, frameHeader, b)
}

func TestInvalidHeader(t *testing.T) {
	testInvalid := func(b []byte) func(*testing.T) {
		return func(t *testing.T) {
			_, err := mp3.ParseHeader(b)
			assert.ErrorIs(t, err, mp3.ErrHeader)
			assert.False(t, mp3.IsFrame(b))
		}
	}
	t.Run("no sync", testInvalid([]byte{0xFE, 0xFB, 0x90, 0x00}))
	t.Run("short", testInvalid([]byte{0xFF, 0xFB}))
	t.Run("bad bitrate", testInvalid([]byte{0xFF, 0xFB, 0xF0, 0x00}))
	t.Run("free bitrate", testInvalid([]byte{0xFF, 0xFB, 0x00, 0x00}))
	t.Run("reserved sample rate", testInvalid([]byte{0xFF, 0xFB, 0x9C, 0x00}))
	t.Run("reserved version", testInvalid([]byte{0xFF, 0xEB, 0x90, 0x00}))
	t.Run("reserved layer", testInvalid([]byte{0xFF, 0xF9, 0x90, 0x00}))
}

func TestMono(t *testing.T) {
	h, err := mp3.ParseHeader([]byte{0xFF, 0xFB, 0x90, 0xC0})
	require.NoError(t, err)
	assert.Equal(t, mp3.Mono, h.ChannelMode)
	assert.Equal(t, 1, h.Channels())
}

func TestSynchsafe(t *testing.T) {
	v, err := mp3.Synchsafe([]byte{0x00, 0x00, 0x02, 0x01})
	require.NoError(t, err)
	assert.Equal(t, 257, v)

	_, err = mp3.Synchsafe([]byte{0x00, 0x80, 0x00, 0x00})
	assert.ErrorIs(t, err, mp3.ErrSynchsafe)

	b := make([]byte, 4)
	mp3.PutSynchsafe(b, 1<<20)
	v, err = mp3.Synchsafe(b)
	require.NoError(t, err)
	assert.Equal(t, 1<<20, v)
}

func TestIdentify(t *testing.T) {
	testIdentify := func(data []byte, ok bool, expected metadata.Metadata) func(*testing.T) {
		return func(t *testing.T) {
			m, recognized := mp3.Identify(bytes.NewReader(data))
			assert.Equal(t, ok, recognized)
			if ok {
				assert.True(t, m.Equal(expected), "got %v", m)
			}
		}
	}
	format := metadata.NewFormat(2, 44100, metadata.MP3)
	tag := mp3.TagV23(mp3.TextFrame("TPE1", "Band"), mp3.TextFrame("TIT2", "Song"))
	t.Run("frame at start", testIdentify(
		frameHeader,
		true,
		metadata.New(format, metadata.Content{}),
	))
	t.Run("garbage before frame", testIdentify(
		join(make([]byte, 100), frameHeader),
		true,
		metadata.New(format, metadata.Content{}),
	))
	t.Run("id3 tag", testIdentify(
		join(tag, make([]byte, 3), frameHeader),
		true,
		metadata.New(format, metadata.NewContent("Band", "Song")),
	))
	t.Run("utf-16 text", testIdentify(
		join(mp3.TagV23(
			[]byte{'T', 'I', 'T', '2', 0, 0, 0, 11, 0, 0, 1, 0xFF, 0xFE, 'C', 0, 'a', 0, 'f', 0, 0xE9, 0},
		), frameHeader),
		true,
		metadata.New(format, metadata.NewContent("", "Café")),
	))
	t.Run("latin-1 text", testIdentify(
		join(mp3.TagV23(mp3.TextFrame("TIT2", "Café")), frameHeader),
		true,
		metadata.New(format, metadata.NewContent("", "Café")),
	))
	t.Run("no frame", testIdentify(make([]byte, 100), false, metadata.Metadata{}))
	t.Run("empty", testIdentify(nil, false, metadata.Metadata{}))
	t.Run("truncated tag", testIdentify(tag[:12], false, metadata.Metadata{}))
}

func TestIdentifyBudget(t *testing.T) {
	data := join(make([]byte, 64), frameHeader, []byte{1, 2, 3})
	_, _, ok := mp3.IdentifyBudget(bytes.NewReader(data), 32)
	assert.False(t, ok)

	r := bytes.NewReader(data)
	_, h, ok := mp3.IdentifyBudget(r, 128)
	require.True(t, ok)
	assert.Equal(t, 44100, h.SampleRate)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, rest)
}

func TestSkipID3v2(t *testing.T) {
	r := bytes.NewReader(join(mp3.TagV23(mp3.TextFrame("TPE1", "Band")), frameHeader))
	tag, err := mp3.SkipID3v2(r)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), tag.Major)
	assert.Equal(t, "Band", tag.Artist)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, frameHeader, rest)

	_, err = mp3.SkipID3v2(bytes.NewReader(frameHeader))
	assert.Error(t, err)
}

func TestDecoderPrecondition(t *testing.T) {
	d := mp3.Decoder()
	err := d.Open(metadata.New(metadata.NewFormat(2, 44100, metadata.FLAC), metadata.Content{}))
	assert.ErrorIs(t, err, codec.ErrPrecondition)
}
