package vorbis_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/stream/codec"
	"pipelined.dev/stream/internal/fixture"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/vorbis"
)

func TestIdentify(t *testing.T) {
	testIdentify := func(data []byte, expected metadata.Metadata) func(*testing.T) {
		return func(t *testing.T) {
			m, ok := vorbis.Identify(bytes.NewReader(data))
			require.True(t, ok)
			assert.True(t, m.Format.Equal(expected.Format), "got %v", m)
			assert.Equal(t, expected.Content.Artist(), m.Content.Artist())
			assert.Equal(t, expected.Content.Name(), m.Content.Name())
		}
	}
	format := metadata.NewFormat(1, 44100, metadata.Vorbis)
	t.Run("comments", testIdentify(
		fixture.Vorbis("ARTIST=Band", "TITLE=Song", "ALBUM=Record"),
		metadata.New(format, metadata.NewContent("Band", "Song")),
	))
	t.Run("no comments", testIdentify(
		fixture.Vorbis(),
		metadata.New(format, metadata.Content{}),
	))
	t.Run("leading garbage", testIdentify(
		append(bytes.Repeat([]byte{0x55}, 5000), fixture.Vorbis("title=Song")...),
		metadata.New(format, metadata.NewContent("", "Song")),
	))
}

func TestIdentifyBudget(t *testing.T) {
	data := fixture.Vorbis("TITLE=Song")
	_, ok := vorbis.IdentifyBudget(bytes.NewReader(data), 100)
	assert.False(t, ok)

	late := append(make([]byte, vorbis.ScanBudget+1), data...)
	_, ok = vorbis.IdentifyBudget(bytes.NewReader(late), vorbis.DefaultReadBudget)
	assert.False(t, ok)
}

func TestDecode(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, vorbis.Decode(context.Background(), bytes.NewReader(fixture.Vorbis()), &out))
	assert.Equal(t, 0, out.Len()%2)
	assert.Greater(t, out.Len(), 44100)
}

func TestIdentifyRejects(t *testing.T) {
	testRejects := func(data []byte) func(*testing.T) {
		return func(t *testing.T) {
			_, ok := vorbis.Identify(bytes.NewReader(data))
			assert.False(t, ok)
		}
	}
	t.Run("empty", testRejects(nil))
	t.Run("not ogg", testRejects([]byte("RIFF\x00\x00\x00\x00WAVE")))
	t.Run("truncated page", testRejects([]byte("OggS\x00\x02")))
}

func TestContentOf(t *testing.T) {
	c := vorbis.ContentOf([]string{"title=Song", "Artist=Band", "TITLE=Other", "broken"})
	assert.Equal(t, "Band", c.Artist())
	assert.Equal(t, "Song", c.Name())
	assert.Equal(t, "Band - Song", c.Title())

	assert.True(t, vorbis.ContentOf(nil).Equal(metadata.NewContent("", "")))
}

func TestDecoderPrecondition(t *testing.T) {
	d := vorbis.Decoder()
	err := d.Open(metadata.New(metadata.NewFormat(2, 44100, metadata.MP3), metadata.Content{}))
	assert.ErrorIs(t, err, codec.ErrPrecondition)
}
