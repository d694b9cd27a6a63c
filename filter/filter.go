// Package filter provides in-process stream filters. Every filter is a
// stream.Queue whose transformer rewrites packets on their way in, so the
// filter is paced by its reader.
package filter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"pipelined.dev/stream/metadata"
)

// ErrUnsupported is returned from Open when input format can't be
// processed by the filter.
var ErrUnsupported = errors.New("filter: unsupported format")

// sampleSize is the size of 16-bit PCM sample.
const sampleSize = 2

func requirePCM(m metadata.Metadata) error {
	if !m.Is(metadata.PCM) {
		return fmt.Errorf("%w: %v", ErrUnsupported, m.Format)
	}
	return nil
}

// frames keeps partial frames between packets.
type frames struct {
	rest []byte
}

// whole returns whole frames of b prepended with the rest of the previous
// call. Returned slice may alias b.
func (f *frames) whole(b []byte, frameSize int) []byte {
	if len(f.rest) > 0 {
		b = append(f.rest, b...)
		f.rest = nil
	}
	n := len(b) - len(b)%frameSize
	if n < len(b) {
		f.rest = append([]byte(nil), b[n:]...)
	}
	return b[:n]
}

func sample(b []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(b[i*sampleSize:]))
}

func putSample(b []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(b[i*sampleSize:], uint16(v))
}

// clip converts v to int16 truncating toward zero and clipping.
func clip(v float64) int16 {
	switch {
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
