package icy_test

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/stream"
	"pipelined.dev/stream/icy"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const interval = 1000

func client() *http.Client {
	return &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
}

func payload(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(1)).Read(b)
	return b
}

// encode writes payload with titles set at provided offsets.
func encode(t *testing.T, data []byte, titles map[int]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := icy.NewWriter(&buf, interval)
	offsets := []int{0, 2500, 5200, len(data)}
	for i := 0; i < len(offsets)-1; i++ {
		if title, ok := titles[offsets[i]]; ok {
			require.NoError(t, w.SetTitle(title))
		}
		n, err := w.Write(data[offsets[i]:offsets[i+1]])
		require.NoError(t, err)
		require.Equal(t, offsets[i+1]-offsets[i], n)
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	data := payload(10000)
	encoded := encode(t, data, map[int]string{2500: "Artist - Song", 5200: "Jingle"})
	require.Greater(t, len(encoded), len(data))

	testRead := func(wrap func(io.Reader) io.Reader) func(*testing.T) {
		return func(t *testing.T) {
			var titles []string
			r := icy.NewReader(bytes.NewReader(encoded), interval, func(fs icy.Fields) {
				title, ok := fs.Get(icy.StreamTitle)
				require.True(t, ok)
				titles = append(titles, title)
			})
			decoded, err := io.ReadAll(wrap(r))
			require.NoError(t, err)
			assert.Equal(t, data, decoded)
			assert.Equal(t, []string{"Artist - Song", "Jingle"}, titles)
		}
	}
	t.Run("whole", testRead(func(r io.Reader) io.Reader { return r }))
	t.Run("one byte", testRead(iotest.OneByteReader))
	t.Run("half", testRead(iotest.HalfReader))
	t.Run("odd chunks", testRead(func(r io.Reader) io.Reader {
		return readerFunc(func(p []byte) (int, error) {
			if len(p) > 777 {
				p = p[:777]
			}
			return r.Read(p)
		})
	}))
}

type readerFunc func([]byte) (int, error)

func (fn readerFunc) Read(p []byte) (int, error) { return fn(p) }

func TestReaderTruncatedBlock(t *testing.T) {
	encoded := append(bytes.Repeat([]byte{1}, 10), 2, 'S', 't')
	_, err := io.ReadAll(icy.NewReader(bytes.NewReader(encoded), 10, nil))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestParseMetadata(t *testing.T) {
	testParse := func(block string, expected icy.Fields) func(*testing.T) {
		return func(t *testing.T) {
			assert.Equal(t, expected, icy.ParseMetadata([]byte(block)))
		}
	}
	t.Run("single quotes", testParse(
		"StreamTitle='Band - Song';StreamUrl='http://example.com';\x00\x00\x00",
		icy.Fields{{"StreamTitle", "Band - Song"}, {"StreamUrl", "http://example.com"}},
	))
	t.Run("double quotes", testParse(
		`StreamTitle="Song";`,
		icy.Fields{{"StreamTitle", "Song"}},
	))
	t.Run("quote inside value", testParse(
		"StreamTitle='Rock 'n' Roll';",
		icy.Fields{{"StreamTitle", "Rock 'n' Roll"}},
	))
	t.Run("no terminator", testParse(
		"StreamTitle='Song'",
		icy.Fields{{"StreamTitle", "Song"}},
	))
	t.Run("latin-1", testParse(
		"StreamTitle='Caf\xe9';",
		icy.Fields{{"StreamTitle", "Café"}},
	))
	t.Run("utf-8", testParse(
		"StreamTitle='Café';",
		icy.Fields{{"StreamTitle", "Café"}},
	))
	t.Run("empty", testParse("\x00\x00", nil))
}

func TestFormatMetadata(t *testing.T) {
	b, err := icy.FormatMetadata(icy.Field{Key: icy.StreamTitle, Value: "Song"})
	require.NoError(t, err)
	require.Len(t, b, 1+2*icy.BlockUnit)
	assert.Equal(t, byte(2), b[0])
	assert.Equal(t, icy.Fields{{icy.StreamTitle, "Song"}}, icy.ParseMetadata(b[1:]))

	_, err = icy.FormatMetadata(icy.Field{Key: icy.StreamTitle, Value: string(make([]byte, icy.MaxBlockSize))})
	assert.ErrorIs(t, err, icy.ErrBlockTooLarge)
}

func TestContent(t *testing.T) {
	c, ok := icy.Fields{{icy.StreamTitle, "Band - Song"}}.Content()
	require.True(t, ok)
	assert.Equal(t, "Band", c.Artist())
	assert.Equal(t, "Song", c.Name())

	c, ok = icy.Fields{{icy.StreamTitle, "Jingle"}}.Content()
	require.True(t, ok)
	assert.Equal(t, "Jingle", c.Title())

	_, ok = icy.Fields{{icy.StreamURL, "x"}}.Content()
	assert.False(t, ok)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/ogg", icy.ContentType("vorbis"))
	assert.Equal(t, "audio/mpeg", icy.ContentType(metadata.MP3))
	assert.Equal(t, "audio/vnd.wave", icy.ContentType(metadata.PCM))
	assert.Equal(t, "application/octet-stream", icy.ContentType(metadata.FLAC))
	assert.Equal(t, metadata.MP3, icy.EncodingOf("audio/mpeg; charset=binary"))
	assert.Equal(t, metadata.EncodingUnknown, icy.EncodingOf("text/html"))
}

func TestDial(t *testing.T) {
	data := payload(10000)
	encoded := encode(t, data, map[int]string{0: "Band - First", 5200: "Band - Second"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(icy.MetadataHeader) != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set(icy.IntervalHeader, strconv.Itoa(interval))
		_, _ = w.Write(encoded)
	}))
	defer server.Close()

	source, err := icy.Dial(context.Background(), server.URL, icy.WithClient(client()))
	require.NoError(t, err)
	defer source.Close()
	assert.True(t, source.Metadata().Is(metadata.MP3))

	sink := &mock.Sink{}
	p, err := stream.NewBuilder(source).To(sink).Build()
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Wait())

	assert.Equal(t, data, sink.Buffer())
	var titles []string
	for _, m := range sink.Metadata() {
		titles = append(titles, m.Title())
	}
	assert.Equal(t, []string{"Band - First", "Band - Second"}, titles)
}

func TestDialStatus(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	_, err := icy.Dial(context.Background(), server.URL, icy.WithClient(client()))
	assert.Error(t, err)
}
