// Package vorbis identifies Ogg Vorbis streams and decodes them to PCM.
package vorbis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jfreymuth/oggvorbis"

	"pipelined.dev/stream/codec"
	"pipelined.dev/stream/metadata"
)

// CapturePattern starts every Ogg page.
const CapturePattern = "OggS"

// DefaultReadBudget limits the number of bytes Identify reads while
// looking for the three header packets.
const DefaultReadBudget = 256 << 10

// ScanBudget is the number of leading bytes where the first capture
// pattern is looked for.
const ScanBudget = 8 << 10

// Identify reads Vorbis header packets from r. Channels, sample rate and
// ARTIST and TITLE comments are returned.
func Identify(r io.Reader) (metadata.Metadata, bool) {
	return IdentifyBudget(r, DefaultReadBudget)
}

// IdentifyBudget is like Identify, but reads at most budget bytes. Up to
// ScanBudget bytes before the first capture pattern are skipped.
func IdentifyBudget(r io.Reader, budget int64) (metadata.Metadata, bool) {
	br := bufio.NewReader(io.LimitReader(r, budget))
	if !findCapture(br) {
		return metadata.Metadata{}, false
	}
	dec, err := oggvorbis.NewReader(br)
	if err != nil {
		return metadata.Metadata{}, false
	}
	return metadata.New(
		metadata.NewFormat(dec.Channels(), dec.SampleRate(), metadata.Vorbis),
		ContentOf(dec.CommentHeader().Comments),
	), true
}

// findCapture discards bytes until br starts with CapturePattern.
func findCapture(br *bufio.Reader) bool {
	pattern := []byte(CapturePattern)
	for skipped := 0; skipped <= ScanBudget; {
		b, err := br.Peek(br.Size())
		if i := bytes.Index(b, pattern); i >= 0 {
			_, _ = br.Discard(i)
			return skipped+i <= ScanBudget
		}
		if err != nil {
			return false
		}
		n, _ := br.Discard(len(b) - len(pattern) + 1)
		skipped += n
	}
	return false
}

// ContentOf returns content described by vorbis comments. Field names are
// case-insensitive and the first value wins.
func ContentOf(comments []string) metadata.Content {
	var artist, title string
	for _, c := range comments {
		k, v, ok := strings.Cut(c, "=")
		if !ok {
			continue
		}
		switch strings.ToUpper(k) {
		case "ARTIST":
			if artist == "" {
				artist = v
			}
		case "TITLE":
			if title == "" {
				title = v
			}
		}
	}
	return metadata.NewContent(artist, title)
}

// Decoder returns a filter that decodes Ogg Vorbis into 16-bit
// little-endian interleaved PCM.
func Decoder(options ...codec.Option) *codec.Filter {
	options = append([]codec.Option{
		codec.WithPrecondition(codec.RequireEncoding(metadata.Vorbis)),
		codec.WithConvert(func(m metadata.Metadata) metadata.Metadata {
			return m.WithEncoding(metadata.PCM)
		}),
	}, options...)
	return codec.New(codec.Func(Decode), options...)
}

// Decode reads Ogg Vorbis from in and writes PCM to out.
func Decode(ctx context.Context, in io.Reader, out io.Writer) error {
	dec, err := oggvorbis.NewReader(in)
	if err != nil {
		return fmt.Errorf("vorbis: %w", err)
	}
	var (
		samples = make([]float32, 2048*dec.Channels())
		sample  [2]byte
		bw      = bufio.NewWriter(out)
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := dec.Read(samples)
		for _, v := range samples[:n] {
			binary.LittleEndian.PutUint16(sample[:], uint16(toInt16(v)))
			if _, werr := bw.Write(sample[:]); werr != nil {
				return werr
			}
		}
		if ferr := bw.Flush(); ferr != nil {
			return ferr
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("vorbis: %w", err)
		}
	}
}

func toInt16(v float32) int16 {
	switch {
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	}
	return int16(v * math.MaxInt16)
}
