package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/stream"
	"pipelined.dev/stream/config"
)

func TestDefaults(t *testing.T) {
	c := config.Load()
	assert.Equal(t, stream.DefaultChunkSize, c.ChunkSize)
	assert.Nil(t, c.Icecast)
	assert.Nil(t, c.Archive)
	assert.NoError(t, c.Validate())
}

func TestIcecast(t *testing.T) {
	t.Setenv("STREAM_ICECAST_HOST", "radio.local")
	t.Setenv("STREAM_ICECAST_PASSWORD", "hackme")
	t.Setenv("STREAM_ICECAST_PUBLIC", "true")
	t.Setenv("STREAM_ICECAST_TIMEOUT", "3s")
	t.Setenv("STREAM_CHUNK_SIZE", "not a number")

	c := config.Load()
	require.NotNil(t, c.Icecast)
	assert.Equal(t, "radio.local", c.Icecast.Host)
	assert.Equal(t, 8000, c.Icecast.Port)
	assert.Equal(t, "/stream", c.Icecast.Mount)
	assert.True(t, c.Icecast.Public)
	assert.Equal(t, 3*time.Second, c.Icecast.Timeout)
	assert.Equal(t, stream.DefaultChunkSize, c.ChunkSize)
	assert.NoError(t, c.Validate())

	t.Setenv("STREAM_ICECAST_MOUNT", "stream")
	assert.Error(t, config.Load().Validate())
}

func TestArchive(t *testing.T) {
	t.Setenv("STREAM_ARCHIVE_BUCKET", "radio")
	c := config.Load()
	require.NotNil(t, c.Archive)
	assert.Equal(t, "stream", c.Archive.Name)
	// credentials are required
	assert.Error(t, c.Validate())

	t.Setenv("STREAM_ARCHIVE_ACCESS_KEY_ID", "key")
	t.Setenv("STREAM_ARCHIVE_SECRET_ACCESS_KEY", "secret")
	assert.NoError(t, config.Load().Validate())
}

func TestListen(t *testing.T) {
	t.Setenv("STREAM_LISTEN", "localhost:8080")
	assert.NoError(t, config.Load().Validate())
	t.Setenv("STREAM_LISTEN", "localhost")
	assert.Error(t, config.Load().Validate())
}
