// Package mp3 identifies MPEG audio streams and decodes them to PCM.
package mp3

import (
	"errors"
	"fmt"

	"pipelined.dev/stream/internal/bits"
)

// HeaderSize is the size of MPEG audio frame header.
const HeaderSize = 4

// MPEG versions as encoded in the header.
const (
	MPEG25 Version = iota
	versionReserved
	MPEG2
	MPEG1
)

// Layers as encoded in the header.
const (
	layerReserved Layer = iota
	LayerIII
	LayerII
	LayerI
)

// Channel modes.
const (
	Stereo ChannelMode = iota
	JointStereo
	DualChannel
	Mono
)

// ErrHeader is returned when frame header is invalid.
var ErrHeader = errors.New("mp3: invalid frame header")

type (
	// Version of MPEG audio.
	Version uint8

	// Layer of MPEG audio.
	Layer uint8

	// ChannelMode of MPEG audio.
	ChannelMode uint8

	// Header is a decoded MPEG audio frame header.
	Header struct {
		Version     Version
		Layer       Layer
		Protected   bool
		Bitrate     int
		SampleRate  int
		Padding     bool
		Private     bool
		ChannelMode ChannelMode
		// ModeExtension is meaningful only for joint stereo.
		ModeExtension uint8
		Copyright     bool
		Original      bool
		Emphasis      uint8
	}
)

// bitrates in kbit/s by index. Index 0 is free format and index 15 is
// invalid, both are rejected.
var (
	v1l1Bitrates = [16]int{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, -1}
	v1l2Bitrates = [16]int{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, -1}
	v1l3Bitrates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, -1}
	v2l1Bitrates = [16]int{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, -1}
	v2l3Bitrates = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1}
)

// sample rates in Hz by index. Index 3 is reserved.
var sampleRates = map[Version][3]int{
	MPEG1:  {44100, 48000, 32000},
	MPEG2:  {22050, 24000, 16000},
	MPEG25: {11025, 12000, 8000},
}

// IsFrameSync reports whether b starts with 11-bit frame sync.
func IsFrameSync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}

// IsFrame reports whether b starts with a valid frame header.
func IsFrame(b []byte) bool {
	_, err := ParseHeader(b)
	return err == nil
}

// ParseHeader decodes the frame header at the beginning of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrHeader, len(b))
	}
	if !IsFrameSync(b) {
		return Header{}, fmt.Errorf("%w: no sync", ErrHeader)
	}
	get := func(bitOffset, n int) uint8 {
		v, _ := bits.Extract(b, 0, bitOffset, n)
		return uint8(v)
	}
	h := Header{
		Version:       Version(get(11, 2)),
		Layer:         Layer(get(13, 2)),
		Protected:     get(15, 1) == 0,
		Padding:       get(22, 1) == 1,
		Private:       get(23, 1) == 1,
		ChannelMode:   ChannelMode(get(24, 2)),
		ModeExtension: get(26, 2),
		Copyright:     get(28, 1) == 1,
		Original:      get(29, 1) == 1,
		Emphasis:      get(30, 2),
	}
	if h.Version == versionReserved {
		return Header{}, fmt.Errorf("%w: reserved version", ErrHeader)
	}
	if h.Layer == layerReserved {
		return Header{}, fmt.Errorf("%w: reserved layer", ErrHeader)
	}
	if h.Emphasis == 2 {
		return Header{}, fmt.Errorf("%w: reserved emphasis", ErrHeader)
	}

	bitrate := bitrateTable(h.Version, h.Layer)[get(16, 4)]
	if bitrate <= 0 {
		return Header{}, fmt.Errorf("%w: bitrate index %d", ErrHeader, get(16, 4))
	}
	h.Bitrate = bitrate * 1000

	srIndex := get(20, 2)
	if srIndex == 3 {
		return Header{}, fmt.Errorf("%w: reserved sample rate", ErrHeader)
	}
	h.SampleRate = sampleRates[h.Version][srIndex]
	return h, nil
}

func bitrateTable(v Version, l Layer) [16]int {
	if v == MPEG1 {
		switch l {
		case LayerI:
			return v1l1Bitrates
		case LayerII:
			return v1l2Bitrates
		default:
			return v1l3Bitrates
		}
	}
	if l == LayerI {
		return v2l1Bitrates
	}
	// layers II and III share the table in MPEG 2 and 2.5.
	return v2l3Bitrates
}

// Channels returns number of channels.
func (h Header) Channels() int {
	if h.ChannelMode == Mono {
		return 1
	}
	return 2
}

// SamplesPerFrame returns number of samples per channel in a frame.
func (h Header) SamplesPerFrame() int {
	switch {
	case h.Layer == LayerI:
		return 384
	case h.Layer == LayerIII && h.Version != MPEG1:
		return 576
	default:
		return 1152
	}
}

// FrameLength returns length of the frame in bytes including header.
func (h Header) FrameLength() int {
	if h.SampleRate == 0 {
		return 0
	}
	if h.Layer == LayerI {
		n := 12 * h.Bitrate / h.SampleRate
		if h.Padding {
			n++
		}
		return n * 4
	}
	n := h.SamplesPerFrame() / 8 * h.Bitrate / h.SampleRate
	if h.Padding {
		n++
	}
	return n
}

// MarshalBinary encodes the header. It's the inverse of ParseHeader.
func (h Header) MarshalBinary() ([]byte, error) {
	b := []byte{0xFF, 0xE0, 0, 0}
	bitrateIndex, srIndex := -1, -1
	for i, v := range bitrateTable(h.Version, h.Layer) {
		if v > 0 && v*1000 == h.Bitrate {
			bitrateIndex = i
			break
		}
	}
	for i, v := range sampleRates[h.Version] {
		if v == h.SampleRate {
			srIndex = i
			break
		}
	}
	if bitrateIndex < 0 || srIndex < 0 {
		return nil, fmt.Errorf("%w: unsupported bitrate %d or sample rate %d", ErrHeader, h.Bitrate, h.SampleRate)
	}
	put := func(bitOffset, n int, v uint8) {
		_ = bits.Put(b, 0, bitOffset, n, uint64(v))
	}
	put(11, 2, uint8(h.Version))
	put(13, 2, uint8(h.Layer))
	put(15, 1, boolBit(!h.Protected))
	put(16, 4, uint8(bitrateIndex))
	put(20, 2, uint8(srIndex))
	put(22, 1, boolBit(h.Padding))
	put(23, 1, boolBit(h.Private))
	put(24, 2, uint8(h.ChannelMode))
	put(26, 2, h.ModeExtension)
	put(28, 1, boolBit(h.Copyright))
	put(29, 1, boolBit(h.Original))
	put(30, 2, h.Emphasis)
	if _, err := ParseHeader(b); err != nil {
		return nil, err
	}
	return b, nil
}

func boolBit(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

func (v Version) String() string {
	switch v {
	case MPEG1:
		return "MPEG-1"
	case MPEG2:
		return "MPEG-2"
	case MPEG25:
		return "MPEG-2.5"
	}
	return "reserved"
}

func (l Layer) String() string {
	switch l {
	case LayerI:
		return "Layer I"
	case LayerII:
		return "Layer II"
	case LayerIII:
		return "Layer III"
	}
	return "reserved"
}

func (h Header) String() string {
	return fmt.Sprintf("%v %v %dkbps %dHz %dch", h.Version, h.Layer, h.Bitrate/1000, h.SampleRate, h.Channels())
}
