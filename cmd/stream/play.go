//go:build portaudio

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"pipelined.dev/stream"
	"pipelined.dev/stream/log"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/portaudio"
)

func init() {
	deviceCommands = append(deviceCommands, &playCommand{})
}

type playCommand struct {
	in     stringList
	volume float64
	frames int
}

func (cmd *playCommand) Name() string {
	return "play"
}

func (cmd *playCommand) Help() string {
	return "Play files or a stream on the default output device"
}

func (cmd *playCommand) Register(fs *flag.FlagSet) {
	fs.Var(&cmd.in, "in", "input file or http url, files can be repeated (required)")
	fs.Float64Var(&cmd.volume, "volume", 1, "volume from 0 to 1")
	fs.IntVar(&cmd.frames, "frames", 0, "frames per device buffer")
}

func (cmd *playCommand) Run(out io.Writer) error {
	logger := log.GetLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := openInput(ctx, cmd.in, logger)
	if err != nil {
		return err
	}
	defer in.close()
	m := in.source.Metadata()
	fmt.Fprintf(out, "Playing %v\n", m)

	speaker := portaudio.NewSink(cmd.frames)
	speaker.Volume.Set(cmd.volume)
	b := stream.NewBuilder(in.source)
	if !m.Is(metadata.PCM) {
		decoder, err := decoderFor(m, logger)
		if err != nil {
			return err
		}
		b.To(decoder)
	}
	p, err := b.To(speaker).Build(stream.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}
	return p.Wait()
}
