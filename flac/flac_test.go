package flac_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/stream/codec"
	"pipelined.dev/stream/flac"
	"pipelined.dev/stream/metadata"
)

var streamInfo = flac.StreamInfo{
	MinBlockSize:  4096,
	MaxBlockSize:  4096,
	MinFrameSize:  14,
	MaxFrameSize:  12000,
	SampleRate:    44100,
	Channels:      2,
	BitsPerSample: 16,
	TotalSamples:  44100 * 3,
	MD5:           [16]byte{1, 2, 3},
}

func block(t *testing.T, typ flac.BlockType, last bool, body []byte) []byte {
	t.Helper()
	h, err := flac.BlockHeader{Last: last, Type: typ, Length: len(body)}.MarshalBinary()
	require.NoError(t, err)
	return append(h, body...)
}

func vorbisComments(comments ...string) []byte {
	var b bytes.Buffer
	vendor := "test"
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(vendor)))
	b.WriteString(vendor)
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(comments)))
	for _, c := range comments {
		_ = binary.Write(&b, binary.LittleEndian, uint32(len(c)))
		b.WriteString(c)
	}
	return b.Bytes()
}

func header(t *testing.T, si flac.StreamInfo, blocks ...[]byte) []byte {
	t.Helper()
	body, err := si.MarshalBinary()
	require.NoError(t, err)
	b := []byte(flac.Marker)
	b = append(b, block(t, flac.StreamInfoBlock, len(blocks) == 0, body)...)
	for _, blk := range blocks {
		b = append(b, blk...)
	}
	return b
}

func TestStreamInfo(t *testing.T) {
	body, err := streamInfo.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, body, flac.StreamInfoLength)

	si, err := flac.ParseStreamInfo(body)
	require.NoError(t, err)
	assert.Equal(t, streamInfo, si)
	assert.Equal(t, 2, si.Channels)
	assert.Equal(t, 44100, si.SampleRate)
	assert.Equal(t, 3*time.Second, si.Duration())

	_, err = flac.ParseStreamInfo(body[:10])
	assert.ErrorIs(t, err, flac.ErrStreamInfo)
}

func TestStreamInfoLayout(t *testing.T) {
	// 44100 Hz, 2 channels, 16 bits per sample packed at sub-byte offsets.
	body := make([]byte, flac.StreamInfoLength)
	body[10], body[11], body[12], body[13] = 0x0A, 0xC4, 0x42, 0xF0
	si, err := flac.ParseStreamInfo(body)
	require.NoError(t, err)
	assert.Equal(t, 44100, si.SampleRate)
	assert.Equal(t, 2, si.Channels)
	assert.Equal(t, 16, si.BitsPerSample)
}

func TestBlockHeader(t *testing.T) {
	h, err := flac.ParseBlockHeader([]byte{0x84, 0x00, 0x01, 0x02})
	require.NoError(t, err)
	assert.True(t, h.Last)
	assert.Equal(t, flac.VorbisCommentBlock, h.Type)
	assert.Equal(t, 258, h.Length)
	assert.Equal(t, "VORBIS_COMMENT", h.Type.String())

	_, err = flac.ParseBlockHeader([]byte{0x84})
	assert.Error(t, err)
}

func TestIdentify(t *testing.T) {
	testIdentify := func(data []byte, ok bool, expected metadata.Metadata) func(*testing.T) {
		return func(t *testing.T) {
			m, recognized := flac.Identify(bytes.NewReader(data))
			assert.Equal(t, ok, recognized)
			if ok {
				assert.True(t, m.Equal(expected), "got %v", m)
			}
		}
	}
	format := metadata.NewFormat(2, 44100, metadata.FLAC)
	t.Run("stream info only", testIdentify(
		header(t, streamInfo),
		true,
		metadata.New(format, metadata.NewContent("", "")),
	))
	t.Run("with comments", testIdentify(
		header(t, streamInfo,
			block(t, flac.PaddingBlock, false, make([]byte, 16)),
			block(t, flac.VorbisCommentBlock, true, vorbisComments("title=Song", "ARTIST=Band", "TITLE=Other")),
		),
		true,
		metadata.New(format, metadata.NewContent("Band", "Song")),
	))
	t.Run("invalid marker", testIdentify([]byte("fLaX0000"), false, metadata.Metadata{}))
	t.Run("truncated", testIdentify(header(t, streamInfo)[:20], false, metadata.Metadata{}))
	t.Run("first block is not stream info", testIdentify(
		append([]byte(flac.Marker), block(t, flac.PaddingBlock, true, make([]byte, 4))...),
		false,
		metadata.Metadata{},
	))
}

func TestReadHeaderStopsAtLastBlock(t *testing.T) {
	audio := []byte{0xFF, 0xF8, 0x00}
	data := append(header(t, streamInfo), audio...)
	r := bytes.NewReader(data)
	_, err := flac.ReadHeader(r)
	require.NoError(t, err)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, audio, rest)
}

func TestDecoderPrecondition(t *testing.T) {
	d := flac.Decoder()
	err := d.Open(metadata.New(metadata.NewFormat(2, 44100, metadata.MP3), metadata.Content{}))
	assert.ErrorIs(t, err, codec.ErrPrecondition)
}

func TestDecodeInvalid(t *testing.T) {
	err := flac.Decode(context.Background(), bytes.NewReader([]byte("not flac")), io.Discard)
	assert.Error(t, err)
}
