package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/stream"
	"pipelined.dev/stream/file"
	"pipelined.dev/stream/internal/fixture"
	"pipelined.dev/stream/metadata"
)

func copyFile(t *testing.T, source *file.Source) []byte {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out")
	p, err := stream.NewBuilder(source).To(file.NewSink(out)).Build(stream.WithChunkSize(100))
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Wait())
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	return b
}

func TestMP3(t *testing.T) {
	data := fixture.MP3(1000, 0)
	source, err := file.Open(fixture.WriteFile(t, "song.mp3", data))
	require.NoError(t, err)
	defer source.Close()

	m := source.Metadata()
	assert.True(t, m.Format.Equal(metadata.NewFormat(2, 44100, metadata.MP3)), "got %v", m)
	assert.Equal(t, "song", m.Title())
	assert.Equal(t, data, copyFile(t, source))
}

func TestUnrecognized(t *testing.T) {
	data := []byte("hello world")
	source, err := file.Open(fixture.WriteFile(t, "notes.txt", data))
	require.NoError(t, err)
	defer source.Close()

	m := source.Metadata()
	assert.True(t, m.Format.Equal(metadata.UnknownFormat()))
	assert.Equal(t, "notes", m.Title())
	assert.Equal(t, data, copyFile(t, source))
}

func TestOpenMissing(t *testing.T) {
	_, err := file.Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSinkCloseUnopened(t *testing.T) {
	assert.NoError(t, file.NewSink("unused").Close())
}
