package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"pipelined.dev/stream"
	"pipelined.dev/stream/codec"
	"pipelined.dev/stream/file"
	"pipelined.dev/stream/flac"
	"pipelined.dev/stream/icy"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/mp3"
	"pipelined.dev/stream/vorbis"
)

// input is the head of pipeline. Files are played one after another,
// a URL is streamed live.
type input struct {
	source stream.Source
	live   bool
	close  func() error
}

func isURL(in string) bool {
	return strings.HasPrefix(in, "http://") || strings.HasPrefix(in, "https://")
}

func openInput(ctx context.Context, ins []string, logger logrus.FieldLogger) (*input, error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("missing -in flag")
	}
	if isURL(ins[0]) {
		if len(ins) > 1 {
			return nil, fmt.Errorf("only one url can be relayed")
		}
		s, err := icy.Dial(ctx, ins[0], icy.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &input{source: s, live: true, close: s.Close}, nil
	}

	first, err := file.Open(ins[0])
	if err != nil {
		return nil, err
	}
	pl := playlist{paths: ins[1:], logger: logger}
	ms := stream.NewMultiSource(
		stream.WithMultiSourceLogger(logger),
		stream.WithListener(&pl),
	)
	if err := ms.SetSource(first); err != nil {
		first.Close()
		return nil, err
	}
	return &input{
		source: ms,
		close: func() error {
			if c, ok := ms.Source().(io.Closer); ok {
				return c.Close()
			}
			return nil
		},
	}, nil
}

// playlist opens the next file when the current one ends. Files that
// can't be opened or have a different format are skipped.
type playlist struct {
	paths  []string
	logger logrus.FieldLogger
}

func (pl *playlist) SourceNeeded(ms *stream.MultiSource) {
	for len(pl.paths) > 0 {
		path := pl.paths[0]
		pl.paths = pl.paths[1:]
		s, err := file.Open(path)
		if err != nil {
			pl.logger.WithError(err).WithField("path", path).Warn("skipped file")
			continue
		}
		if err := ms.SetSource(s); err != nil {
			pl.logger.WithError(err).WithField("path", path).Warn("skipped file")
			s.Close()
			continue
		}
		return
	}
	ms.Close()
}

func (pl *playlist) SourceReleased(s stream.Source) {
	if c, ok := s.(io.Closer); ok {
		if err := c.Close(); err != nil {
			pl.logger.WithError(err).Debug("failed to close file")
		}
	}
}

// byteRate returns bytes per second the input should be sent with. Zero
// means the rate is derived from PCM format, negative means unknown.
func byteRate(path string, m metadata.Metadata) int {
	if m.Is(metadata.PCM) {
		return 0
	}
	f, err := os.Open(path)
	if err != nil {
		return -1
	}
	defer f.Close()
	switch {
	case m.Is(metadata.MP3):
		if _, h, ok := mp3.IdentifyBudget(f, mp3.DefaultScanBudget); ok {
			return h.Bitrate * 1000 / 8
		}
	case m.Is(metadata.FLAC):
		h, err := flac.ReadHeader(f)
		if err != nil {
			return -1
		}
		// average rate of the whole file if the length is known.
		if info, err := f.Stat(); err == nil && h.TotalSamples > 0 {
			return int(uint64(info.Size()) * uint64(h.SampleRate) / h.TotalSamples)
		}
		return h.SampleRate * h.Channels * h.BitsPerSample / 8
	}
	return -1
}

func decoderFor(m metadata.Metadata, logger logrus.FieldLogger) (*codec.Filter, error) {
	option := codec.WithLogger(logger)
	switch {
	case m.Is(metadata.MP3):
		return mp3.Decoder(option), nil
	case m.Is(metadata.Vorbis):
		return vorbis.Decoder(option), nil
	case m.Is(metadata.FLAC):
		return flac.Decoder(option), nil
	}
	return nil, fmt.Errorf("no decoder for %v", m.Format)
}
