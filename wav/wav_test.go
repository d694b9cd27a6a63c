package wav_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/stream"
	"pipelined.dev/stream/internal/fixture"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/mock"
	"pipelined.dev/stream/wav"
)

var pcm = metadata.New(metadata.NewFormat(2, 8000, metadata.PCM), metadata.Content{})

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	sink := wav.NewSink(path)
	require.NoError(t, sink.Open(pcm))
	// odd split keeps a byte between packets.
	require.NoError(t, sink.Process(stream.Packet{Buffer: data[:101]}))
	require.NoError(t, sink.Process(stream.Packet{Buffer: data[101:]}))
	require.NoError(t, sink.Close())
	return path
}

func TestRoundTrip(t *testing.T) {
	data := fixture.PCM(4000)
	path := writeFile(t, data)

	source, err := wav.Open(path)
	require.NoError(t, err)
	defer source.Close()
	assert.True(t, source.Metadata().Format.Equal(pcm.Format))

	sink := &mock.Sink{}
	p, err := stream.NewBuilder(source).To(sink).Build()
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Wait())
	assert.Equal(t, data, sink.Buffer())
}

func TestIdentify(t *testing.T) {
	data := fixture.PCM(100)
	file, err := os.ReadFile(writeFile(t, data))
	require.NoError(t, err)

	m, offset, ok := wav.IdentifyHeader(bytes.NewReader(file))
	require.True(t, ok)
	assert.True(t, m.Format.Equal(pcm.Format), "got %v", m)
	assert.Equal(t, int64(44), offset)
	assert.Equal(t, data, file[offset:])

	_, ok = wav.Identify(bytes.NewReader([]byte("OggS not a wav file")))
	assert.False(t, ok)
}

func TestSinkUnsupported(t *testing.T) {
	sink := wav.NewSink(filepath.Join(t.TempDir(), "test.wav"))
	err := sink.Open(metadata.New(metadata.NewFormat(2, 44100, metadata.MP3), metadata.Content{}))
	assert.ErrorIs(t, err, wav.ErrUnsupported)
	assert.NoError(t, sink.Close())
}

func TestSinkFormatChange(t *testing.T) {
	sink := wav.NewSink(filepath.Join(t.TempDir(), "test.wav"))
	require.NoError(t, sink.Open(pcm))
	err := sink.Process(stream.Packet{Buffer: fixture.PCM(2)}.WithMetadata(pcm.WithFrequency(44100)))
	assert.ErrorIs(t, err, stream.ErrFormatMismatch)
	require.NoError(t, sink.Process(stream.Packet{Buffer: fixture.PCM(2)}.WithMetadata(pcm.WithTitle("title"))))
	assert.NoError(t, sink.Close())
}
