package mock_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/stream"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/mock"
)

var errTest = errors.New("test error")

func TestSource(t *testing.T) {
	testSource := func(source *mock.Source, size, messages int) func(*testing.T) {
		return func(t *testing.T) {
			total := 0
			for {
				p, err := source.Get(size)
				if err != nil {
					assert.Equal(t, io.EOF, err)
					break
				}
				assert.NotEmpty(t, p.Buffer)
				for _, b := range p.Buffer {
					assert.Equal(t, source.Value, b)
				}
				total += len(p.Buffer)
			}
			m, bytes := source.Count()
			assert.Equal(t, messages, m)
			assert.Equal(t, source.Limit, bytes)
			assert.Equal(t, source.Limit, total)
		}
	}
	t.Run("3 calls", testSource(&mock.Source{Limit: 11, Value: 1}, 5, 3))
	t.Run("1 call", testSource(&mock.Source{Limit: 10, Value: 2}, 10, 1))
	t.Run("split on change", testSource(&mock.Source{
		Limit: 10,
		Changes: map[int]metadata.Metadata{
			4: metadata.New(metadata.NewFormat(2, 44100, metadata.PCM), metadata.Content{}),
		},
	}, 10, 2))
}

func TestSourceChanges(t *testing.T) {
	changed := metadata.New(metadata.UnknownFormat(), metadata.NewContent("a", "b"))
	source := mock.Source{
		Limit:   8,
		Changes: map[int]metadata.Metadata{4: changed},
	}
	_, err := source.Get(8)
	require.NoError(t, err)
	assert.False(t, source.Metadata().Equal(changed))
	_, err = source.Get(8)
	require.NoError(t, err)
	assert.True(t, source.Metadata().Equal(changed))
}

func TestSinkFailAfter(t *testing.T) {
	log := mock.Log{}
	sink := mock.Sink{
		Name:        "sink",
		Log:         &log,
		ErrorOnCall: errTest,
		FailAfter:   1,
	}
	require.NoError(t, sink.Open(metadata.Metadata{}))
	require.NoError(t, sink.Process(stream.Packet{Buffer: []byte{1}}))
	assert.Equal(t, errTest, sink.Process(stream.Packet{Buffer: []byte{2}}))
	require.NoError(t, sink.Close())

	assert.Equal(t, []byte{1}, sink.Buffer())
	assert.Equal(t, []string{"sink: open", "sink: chunk 1", "sink: fail", "sink: close"}, log.Events())
	assert.True(t, sink.Opened)
	assert.True(t, sink.Closed)
}

func TestFilter(t *testing.T) {
	filter := mock.NewFilter("filter", 2)
	require.NoError(t, filter.Open(metadata.Metadata{}))
	require.NoError(t, filter.Process(stream.Packet{Buffer: []byte{1, 2, 3}}))
	require.NoError(t, filter.CloseWithError(errTest))

	p, err := filter.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, p.Buffer)
	p, err = filter.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, p.Buffer)
	_, err = filter.Get(2)
	assert.Equal(t, errTest, err)
	assert.Equal(t, errTest, filter.ClosedWith())
}
