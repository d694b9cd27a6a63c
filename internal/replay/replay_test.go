package replay_test

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/stream/internal/replay"
)

func TestRewind(t *testing.T) {
	r := replay.NewReader(strings.NewReader("abcdef"))
	b := make([]byte, 3)
	_, err := io.ReadFull(r, b)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))

	r.Rewind()
	b = make([]byte, 4)
	_, err = io.ReadFull(r, b)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(b))
	assert.Equal(t, 4, r.Recorded())

	r.Rewind()
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(all))
}

func TestForget(t *testing.T) {
	r := replay.NewReader(strings.NewReader("abcdef"))
	b := make([]byte, 2)
	_, err := io.ReadFull(r, b)
	require.NoError(t, err)

	r.Rewind()
	r.Forget()
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(all))
	assert.Zero(t, r.Recorded())
}
