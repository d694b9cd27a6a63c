package mp3

import (
	"context"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"pipelined.dev/stream/codec"
	"pipelined.dev/stream/metadata"
)

// decodeBufferSize is a multiple of 4 to keep stereo frames whole.
const decodeBufferSize = 4096

// Decoder returns a filter that decodes MPEG audio into 16-bit
// little-endian stereo PCM.
func Decoder(options ...codec.Option) *codec.Filter {
	options = append([]codec.Option{
		codec.WithPrecondition(codec.RequireEncoding(metadata.MP3)),
		codec.WithConvert(func(m metadata.Metadata) metadata.Metadata {
			// decoder always produces two channels.
			return m.WithEncoding(metadata.PCM).WithChannels(2)
		}),
	}, options...)
	return codec.New(codec.Func(Decode), options...)
}

// Decode reads MPEG audio from in and writes PCM to out.
func Decode(ctx context.Context, in io.Reader, out io.Writer) error {
	d, err := gomp3.NewDecoder(in)
	if err != nil {
		return fmt.Errorf("mp3: %w", err)
	}
	buf := make([]byte, decodeBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := d.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("mp3: %w", err)
		}
	}
}
