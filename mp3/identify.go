package mp3

import (
	"io"

	"pipelined.dev/stream/metadata"
)

// DefaultScanBudget is the number of bytes Identify scans for a frame sync
// after the optional ID3v2 tag.
const DefaultScanBudget = 64 << 10

// Identify finds the first valid frame of MPEG audio stream. An ID3v2 tag
// at the beginning is skipped and its title and artist are used as
// content. The stream is scanned byte by byte up to DefaultScanBudget
// bytes.
func Identify(r io.Reader) (metadata.Metadata, bool) {
	m, _, ok := IdentifyBudget(r, DefaultScanBudget)
	return m, ok
}

// IdentifyBudget is like Identify, but scans at most budget bytes. It also
// returns header of the first frame. The reader is left right after the
// header.
func IdentifyBudget(r io.Reader, budget int) (metadata.Metadata, Header, bool) {
	br := byteReader(r)
	var (
		window  [HeaderSize]byte
		content metadata.Content
	)
	if _, err := io.ReadFull(r, window[:]); err != nil {
		return metadata.Metadata{}, Header{}, false
	}
	if string(window[:3]) == ID3Marker {
		tag, err := readID3v2(r, window[:])
		if err != nil {
			return metadata.Metadata{}, Header{}, false
		}
		content = tag.Content()
		if _, err := io.ReadFull(r, window[:]); err != nil {
			return metadata.Metadata{}, Header{}, false
		}
	}

	for scanned := 0; scanned < budget; scanned++ {
		if h, err := ParseHeader(window[:]); err == nil {
			return metadata.New(
				metadata.NewFormat(h.Channels(), h.SampleRate, metadata.MP3),
				content,
			), h, true
		}
		b, err := br.ReadByte()
		if err != nil {
			return metadata.Metadata{}, Header{}, false
		}
		copy(window[:], window[1:])
		window[HeaderSize-1] = b
	}
	return metadata.Metadata{}, Header{}, false
}

// byteReader returns r as io.ByteReader without buffering ahead.
func byteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return &singleByteReader{r: r}
}

type singleByteReader struct {
	r   io.Reader
	buf [1]byte
}

func (r *singleByteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(r.r, r.buf[:]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}
