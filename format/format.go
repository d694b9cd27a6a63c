// Package format identifies the encoding of a byte stream by trying known
// identifiers on its prefix.
package format

import (
	"errors"
	"fmt"
	"io"

	"pipelined.dev/stream/flac"
	"pipelined.dev/stream/internal/replay"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/mp3"
	"pipelined.dev/stream/vorbis"
	"pipelined.dev/stream/wav"
)

// ErrUnrecognized is returned when no identifier recognized the stream.
var ErrUnrecognized = errors.New("format: unrecognized stream")

// Identifier recognizes a single format.
type Identifier struct {
	Name string
	// Identify returns metadata of the stream and the number of leading
	// container bytes that aren't part of the encoded stream.
	Identify func(io.Reader) (metadata.Metadata, int64, bool)
}

// Identifiers are tried in order. MP3 scans for a frame sync and goes
// last.
var Identifiers = []Identifier{
	{Name: "flac", Identify: whole(flac.Identify)},
	{Name: "wav", Identify: wav.IdentifyHeader},
	{Name: "vorbis", Identify: whole(vorbis.Identify)},
	{Name: "mp3", Identify: whole(mp3.Identify)},
}

func whole(fn func(io.Reader) (metadata.Metadata, bool)) func(io.Reader) (metadata.Metadata, int64, bool) {
	return func(r io.Reader) (metadata.Metadata, int64, bool) {
		m, ok := fn(r)
		return m, 0, ok
	}
}

// Identify tries Identifiers on r. The returned reader yields the stream
// from the first byte of encoded data, including the bytes consumed by
// identification. If the stream is not recognized, the reader yields
// the whole stream and ErrUnrecognized is returned.
func Identify(r io.Reader) (metadata.Metadata, io.Reader, error) {
	return IdentifyWith(r, Identifiers...)
}

// IdentifyWith is like Identify, but tries provided identifiers.
func IdentifyWith(r io.Reader, identifiers ...Identifier) (metadata.Metadata, io.Reader, error) {
	rr := replay.NewReader(r)
	for _, id := range identifiers {
		rr.Rewind()
		m, skip, ok := id.Identify(rr)
		if !ok {
			continue
		}
		rr.Rewind()
		rr.Forget()
		if skip > 0 {
			if _, err := io.CopyN(io.Discard, rr, skip); err != nil {
				return metadata.Metadata{}, nil, fmt.Errorf("format: skip %s header: %w", id.Name, err)
			}
		}
		return m, rr, nil
	}
	rr.Rewind()
	rr.Forget()
	return metadata.Metadata{}, rr, ErrUnrecognized
}
