// Package flac identifies FLAC streams and decodes them to PCM.
//
// A FLAC stream starts with the "fLaC" marker followed by metadata blocks.
// Each block has a 4-byte header: 1 bit last-block flag, 7 bits block type
// and 24 bits length. The first block is always STREAMINFO.
package flac

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"pipelined.dev/stream/internal/bits"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/vorbis"
)

// Marker starts every FLAC stream.
const Marker = "fLaC"

// StreamInfoLength is the size of STREAMINFO block body.
const StreamInfoLength = 34

// maxBlocks limits the number of metadata blocks walked during
// identification.
const maxBlocks = 128

// Block types.
const (
	StreamInfoBlock BlockType = iota
	PaddingBlock
	ApplicationBlock
	SeekTableBlock
	VorbisCommentBlock
	CueSheetBlock
	PictureBlock
)

var (
	// ErrMarker is returned when stream doesn't start with FLAC marker.
	ErrMarker = errors.New("flac: invalid marker")
	// ErrStreamInfo is returned when STREAMINFO block is missing or
	// malformed.
	ErrStreamInfo = errors.New("flac: invalid stream info")
)

type (
	// BlockType is a type of metadata block.
	BlockType uint8

	// BlockHeader precedes every metadata block.
	BlockHeader struct {
		Last   bool
		Type   BlockType
		Length int
	}

	// StreamInfo describes stream-wide parameters.
	StreamInfo struct {
		MinBlockSize  int
		MaxBlockSize  int
		MinFrameSize  int
		MaxFrameSize  int
		SampleRate    int
		Channels      int
		BitsPerSample int
		TotalSamples  uint64
		MD5           [16]byte
	}

	// Header is the parsed metadata section of a FLAC stream.
	Header struct {
		StreamInfo
		// Comments are vorbis comments in KEY=value form.
		Comments []string
	}
)

// STREAMINFO field layout as (byte offset, bit offset, width).
var (
	minBlockSizeField  = field{0, 0, 16}
	maxBlockSizeField  = field{2, 0, 16}
	minFrameSizeField  = field{4, 0, 24}
	maxFrameSizeField  = field{7, 0, 24}
	sampleRateField    = field{10, 0, 20}
	channelsField      = field{12, 4, 3}
	bitsPerSampleField = field{12, 7, 5}
	totalSamplesField  = field{13, 4, 36}
)

type field struct {
	byteOffset, bitOffset, n int
}

func (f field) get(b []byte) int {
	v, _ := bits.Extract(b, f.byteOffset, f.bitOffset, f.n)
	return int(v)
}

func (f field) put(b []byte, v uint64) error {
	return bits.Put(b, f.byteOffset, f.bitOffset, f.n, v)
}

func (t BlockType) String() string {
	switch t {
	case StreamInfoBlock:
		return "STREAMINFO"
	case PaddingBlock:
		return "PADDING"
	case ApplicationBlock:
		return "APPLICATION"
	case SeekTableBlock:
		return "SEEKTABLE"
	case VorbisCommentBlock:
		return "VORBIS_COMMENT"
	case CueSheetBlock:
		return "CUESHEET"
	case PictureBlock:
		return "PICTURE"
	}
	return fmt.Sprintf("RESERVED(%d)", uint8(t))
}

// ParseBlockHeader parses 4-byte metadata block header.
func ParseBlockHeader(b []byte) (BlockHeader, error) {
	if len(b) < 4 {
		return BlockHeader{}, io.ErrUnexpectedEOF
	}
	return BlockHeader{
		Last:   b[0]&0x80 != 0,
		Type:   BlockType(b[0] & 0x7F),
		Length: int(b[1])<<16 | int(b[2])<<8 | int(b[3]),
	}, nil
}

// MarshalBinary returns 4-byte block header.
func (h BlockHeader) MarshalBinary() ([]byte, error) {
	if h.Length < 0 || h.Length >= 1<<24 {
		return nil, fmt.Errorf("flac: block length %d out of range", h.Length)
	}
	b := []byte{byte(h.Type) & 0x7F, byte(h.Length >> 16), byte(h.Length >> 8), byte(h.Length)}
	if h.Last {
		b[0] |= 0x80
	}
	return b, nil
}

// ParseStreamInfo parses body of STREAMINFO block.
func ParseStreamInfo(b []byte) (StreamInfo, error) {
	if len(b) < StreamInfoLength {
		return StreamInfo{}, fmt.Errorf("%w: %d bytes", ErrStreamInfo, len(b))
	}
	si := StreamInfo{
		MinBlockSize:  minBlockSizeField.get(b),
		MaxBlockSize:  maxBlockSizeField.get(b),
		MinFrameSize:  minFrameSizeField.get(b),
		MaxFrameSize:  maxFrameSizeField.get(b),
		SampleRate:    sampleRateField.get(b),
		Channels:      channelsField.get(b) + 1,
		BitsPerSample: bitsPerSampleField.get(b) + 1,
	}
	total, _ := bits.Extract(b, totalSamplesField.byteOffset, totalSamplesField.bitOffset, totalSamplesField.n)
	si.TotalSamples = total
	copy(si.MD5[:], b[18:StreamInfoLength])
	if si.SampleRate == 0 {
		return StreamInfo{}, fmt.Errorf("%w: zero sample rate", ErrStreamInfo)
	}
	return si, nil
}

// MarshalBinary returns body of STREAMINFO block.
func (si StreamInfo) MarshalBinary() ([]byte, error) {
	if si.Channels < 1 || si.Channels > 8 {
		return nil, fmt.Errorf("%w: %d channels", ErrStreamInfo, si.Channels)
	}
	if si.BitsPerSample < 1 || si.BitsPerSample > 32 {
		return nil, fmt.Errorf("%w: %d bits per sample", ErrStreamInfo, si.BitsPerSample)
	}
	b := make([]byte, StreamInfoLength)
	for _, f := range []struct {
		field
		v uint64
	}{
		{minBlockSizeField, uint64(si.MinBlockSize)},
		{maxBlockSizeField, uint64(si.MaxBlockSize)},
		{minFrameSizeField, uint64(si.MinFrameSize)},
		{maxFrameSizeField, uint64(si.MaxFrameSize)},
		{sampleRateField, uint64(si.SampleRate)},
		{channelsField, uint64(si.Channels - 1)},
		{bitsPerSampleField, uint64(si.BitsPerSample - 1)},
		{totalSamplesField, si.TotalSamples},
	} {
		if err := f.put(b, f.v); err != nil {
			return nil, err
		}
	}
	copy(b[18:], si.MD5[:])
	return b, nil
}

// Duration returns duration of the stream. Zero is returned if total
// number of samples is unknown.
func (si StreamInfo) Duration() time.Duration {
	if si.SampleRate == 0 {
		return 0
	}
	return time.Duration(si.TotalSamples) * time.Second / time.Duration(si.SampleRate)
}

// ReadHeader verifies marker and walks metadata blocks until the last one.
// Only STREAMINFO and VORBIS_COMMENT blocks are parsed, the rest are
// skipped. Reader is left at the first audio frame.
func ReadHeader(r io.Reader) (Header, error) {
	var marker [4]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return Header{}, err
	}
	if string(marker[:]) != Marker {
		return Header{}, ErrMarker
	}

	var (
		h        Header
		hasInfo  bool
		blockHdr [4]byte
	)
	for i := 0; i < maxBlocks; i++ {
		if _, err := io.ReadFull(r, blockHdr[:]); err != nil {
			return Header{}, err
		}
		bh, _ := ParseBlockHeader(blockHdr[:])
		if i == 0 && bh.Type != StreamInfoBlock {
			return Header{}, fmt.Errorf("%w: first block is %v", ErrStreamInfo, bh.Type)
		}
		switch bh.Type {
		case StreamInfoBlock, VorbisCommentBlock:
			body := make([]byte, bh.Length)
			if _, err := io.ReadFull(r, body); err != nil {
				return Header{}, err
			}
			if bh.Type == StreamInfoBlock {
				si, err := ParseStreamInfo(body)
				if err != nil {
					return Header{}, err
				}
				h.StreamInfo, hasInfo = si, true
			} else {
				h.Comments = parseComments(body)
			}
		default:
			if _, err := io.CopyN(io.Discard, r, int64(bh.Length)); err != nil {
				return Header{}, err
			}
		}
		if bh.Last {
			break
		}
	}
	if !hasInfo {
		return Header{}, ErrStreamInfo
	}
	return h, nil
}

// parseComments parses vorbis comment block. Malformed blocks are ignored.
func parseComments(b []byte) []string {
	r := bytes.NewReader(b)
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil
	}
	// vendor string.
	if _, err := r.Seek(int64(n), io.SeekCurrent); err != nil {
		return nil
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil
	}
	comments := make([]string, 0, min(int(count), 64))
	for i := uint32(0); i < count; i++ {
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil || int(n) > r.Len() {
			return comments
		}
		s := make([]byte, n)
		if _, err := io.ReadFull(r, s); err != nil {
			return comments
		}
		comments = append(comments, string(s))
	}
	return comments
}

// Content returns stream content described by ARTIST and TITLE comments.
func (h Header) Content() metadata.Content {
	return vorbis.ContentOf(h.Comments)
}

// Metadata returns stream metadata.
func (h Header) Metadata() metadata.Metadata {
	return metadata.New(
		metadata.NewFormat(h.Channels, h.SampleRate, metadata.FLAC),
		h.Content(),
	)
}

// Identify reads FLAC header from r. It returns false if r is not a FLAC
// stream.
func Identify(r io.Reader) (metadata.Metadata, bool) {
	h, err := ReadHeader(r)
	if err != nil {
		return metadata.Metadata{}, false
	}
	return h.Metadata(), true
}
