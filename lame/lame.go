// Package lame encodes PCM stream to MP3 with LAME library.
package lame

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/viert/lame"

	"pipelined.dev/stream/codec"
	"pipelined.dev/stream/metadata"
)

// Default encoder settings.
const (
	DefaultBitrate = 128
	DefaultQuality = 2
)

// readSize is the number of bytes passed to the encoder at once.
const readSize = 8192

// ErrFormat is returned when input format is not known.
var ErrFormat = errors.New("lame: channels and frequency must be known")

type encoder struct {
	bitrate   int
	quality   int
	channels  int
	frequency int
}

// Encoder returns a filter that encodes 16-bit little-endian PCM into MP3
// with provided bitrate in kbit/s and quality from 0 (best) to 9.
func Encoder(bitrate, quality int, options ...codec.Option) *codec.Filter {
	options = append([]codec.Option{
		codec.WithPrecondition(codec.RequireEncoding(metadata.PCM)),
		codec.WithConvert(func(m metadata.Metadata) metadata.Metadata {
			return m.WithEncoding(metadata.MP3)
		}),
	}, options...)
	return codec.New(&encoder{bitrate: bitrate, quality: quality}, options...)
}

func (e *encoder) Open(m metadata.Metadata) error {
	if m.Channels <= 0 || m.Frequency <= 0 {
		return fmt.Errorf("%w: %v", ErrFormat, m.Format)
	}
	e.channels = m.Channels
	e.frequency = m.Frequency
	return nil
}

func (e *encoder) Transform(ctx context.Context, in io.Reader, out io.Writer) error {
	wr := lame.NewWriter(out)
	wr.Encoder.SetBitrate(e.bitrate)
	wr.Encoder.SetQuality(e.quality)
	wr.Encoder.SetNumChannels(e.channels)
	wr.Encoder.SetInSamplerate(e.frequency)
	if e.channels == 2 {
		wr.Encoder.SetMode(lame.JOINT_STEREO)
	}
	wr.Encoder.SetVBR(lame.VBR_RH)
	wr.Encoder.InitParams()

	// only whole frames are passed to the encoder.
	frameSize := 2 * e.channels
	buf := make([]byte, readSize-readSize%frameSize)
	var buffered int
	for ctx.Err() == nil {
		n, err := in.Read(buf[buffered:])
		buffered += n
		if whole := buffered - buffered%frameSize; whole > 0 {
			if _, werr := wr.Write(buf[:whole]); werr != nil {
				return werr
			}
			buffered = copy(buf, buf[whole:buffered])
		}
		if errors.Is(err, io.EOF) {
			return wr.Close()
		}
		if err != nil {
			return err
		}
	}
	return ctx.Err()
}
