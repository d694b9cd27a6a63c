package flac

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"

	"pipelined.dev/stream/codec"
	"pipelined.dev/stream/metadata"
)

// Decoder returns a filter that decodes FLAC stream into 16-bit
// little-endian interleaved PCM.
func Decoder(options ...codec.Option) *codec.Filter {
	options = append([]codec.Option{
		codec.WithPrecondition(codec.RequireEncoding(metadata.FLAC)),
		codec.WithConvert(func(m metadata.Metadata) metadata.Metadata {
			return m.WithEncoding(metadata.PCM)
		}),
	}, options...)
	return codec.New(codec.Func(Decode), options...)
}

// Decode reads FLAC stream from in and writes PCM to out.
func Decode(ctx context.Context, in io.Reader, out io.Writer) error {
	s, err := flac.New(in)
	if err != nil {
		return fmt.Errorf("flac: %w", err)
	}
	bw := bufio.NewWriter(out)
	var sample [2]byte
	for ctx.Err() == nil {
		f, err := s.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("flac: %w", err)
		}
		if len(f.Subframes) == 0 {
			continue
		}
		shift := int(s.Info.BitsPerSample) - 16
		for i := 0; i < f.Subframes[0].NSamples; i++ {
			for _, sf := range f.Subframes {
				v := sf.Samples[i]
				if shift > 0 {
					v >>= uint(shift)
				} else if shift < 0 {
					v <<= uint(-shift)
				}
				binary.LittleEndian.PutUint16(sample[:], uint16(int16(v)))
				if _, err := bw.Write(sample[:]); err != nil {
					return err
				}
			}
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return bw.Flush()
}
