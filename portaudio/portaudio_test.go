//go:build portaudio

package portaudio_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/stream"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/portaudio"
)

func TestSink(t *testing.T) {
	pcm := metadata.New(metadata.NewFormat(2, 44100, metadata.PCM), metadata.Content{})
	// half a second of silence.
	source := stream.NewReaderSource(bytes.NewReader(make([]byte, pcm.BytesPerSecond()/2)), pcm)
	sink := portaudio.NewSink(512)
	sink.Volume.Set(0.5)

	p, err := stream.NewBuilder(source).To(sink).Build()
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	assert.NoError(t, p.Wait())
}

func TestSinkUnsupported(t *testing.T) {
	err := portaudio.NewSink(0).Open(metadata.New(metadata.NewFormat(2, 44100, metadata.MP3), metadata.Content{}))
	assert.ErrorIs(t, err, portaudio.ErrUnsupported)
}
