package mp3

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"pipelined.dev/stream/metadata"
)

// ID3v2 tag constants.
const (
	ID3Marker     = "ID3"
	id3HeaderSize = 10
	// tags larger than this are skipped without parsing.
	maxTagSize = 1 << 20
)

// ErrSynchsafe is returned when synchsafe integer has the high bit set in
// any byte.
var ErrSynchsafe = errors.New("mp3: invalid synchsafe integer")

// Synchsafe decodes 4-byte integer that uses 7 bits per byte.
func Synchsafe(b []byte) (int, error) {
	if len(b) < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	var v int
	for _, c := range b[:4] {
		if c&0x80 != 0 {
			return 0, ErrSynchsafe
		}
		v = v<<7 | int(c)
	}
	return v, nil
}

// PutSynchsafe encodes v as 4-byte synchsafe integer.
func PutSynchsafe(b []byte, v int) {
	for i := 3; i >= 0; i-- {
		b[i] = byte(v & 0x7F)
		v >>= 7
	}
}

// ID3v2 is a parsed ID3v2 tag. Only text frames describing content are
// kept.
type ID3v2 struct {
	Major  uint8
	Size   int
	Artist string
	Title  string
}

// Content returns content described by the tag.
func (t ID3v2) Content() metadata.Content {
	return metadata.NewContent(t.Artist, t.Title)
}

// readID3v2 reads the tag whose 4 first bytes are already consumed into
// head. It returns the tag with the body parsed when it's small enough.
func readID3v2(r io.Reader, head []byte) (ID3v2, error) {
	hdr := make([]byte, id3HeaderSize)
	copy(hdr, head)
	if _, err := io.ReadFull(r, hdr[len(head):]); err != nil {
		return ID3v2{}, err
	}
	size, err := Synchsafe(hdr[6:10])
	if err != nil {
		return ID3v2{}, err
	}
	tag := ID3v2{Major: hdr[3], Size: size}
	flags := hdr[5]
	if flags&0x10 != 0 {
		// footer.
		size += id3HeaderSize
	}
	// unsynchronised and extended headers are skipped without parsing.
	if size > maxTagSize || flags&0xC0 != 0 || (tag.Major != 3 && tag.Major != 4) {
		_, err := io.CopyN(io.Discard, r, int64(size))
		return tag, err
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return ID3v2{}, err
	}
	tag.parseFrames(body)
	return tag, nil
}

func (t *ID3v2) parseFrames(body []byte) {
	for len(body) >= id3HeaderSize {
		id := string(body[:4])
		if body[0] == 0 {
			// padding.
			return
		}
		var size int
		if t.Major == 4 {
			s, err := Synchsafe(body[4:8])
			if err != nil {
				return
			}
			size = s
		} else {
			size = int(body[4])<<24 | int(body[5])<<16 | int(body[6])<<8 | int(body[7])
		}
		body = body[id3HeaderSize:]
		if size > len(body) {
			return
		}
		switch id {
		case "TPE1":
			t.Artist = decodeText(body[:size])
		case "TIT2":
			t.Title = decodeText(body[:size])
		}
		body = body[size:]
	}
}

// decodeText decodes text frame body. The first byte selects encoding.
func decodeText(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var (
		text []byte
		err  error
	)
	switch b[0] {
	case 0:
		text, err = charmap.ISO8859_1.NewDecoder().Bytes(b[1:])
	case 1:
		text, err = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(b[1:])
	case 2:
		text, err = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b[1:])
	default:
		text = b[1:]
	}
	if err != nil {
		return ""
	}
	// multiple values are separated with NUL, the first one is used.
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	return string(text)
}

// TextFrame returns ID3v2.3 text frame. Text is encoded as ISO-8859-1
// when possible and as UTF-8 otherwise.
func TextFrame(id, text string) []byte {
	encoding, body := byte(0), []byte(text)
	if latin, err := charmap.ISO8859_1.NewEncoder().Bytes(body); err == nil {
		body = latin
	} else {
		encoding = 3
	}
	b := make([]byte, id3HeaderSize, id3HeaderSize+1+len(body))
	copy(b, id)
	size := 1 + len(body)
	b[4], b[5], b[6], b[7] = byte(size>>24), byte(size>>16), byte(size>>8), byte(size)
	b = append(b, encoding)
	return append(b, body...)
}

// TagV23 returns ID3v2.3 tag with provided frames.
func TagV23(frames ...[]byte) []byte {
	body := bytes.Join(frames, nil)
	b := []byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, 0}
	PutSynchsafe(b[6:], len(body))
	return append(b, body...)
}

func (t ID3v2) String() string {
	return fmt.Sprintf("ID3v2.%d %d bytes", t.Major, t.Size)
}

// SkipID3v2 consumes ID3v2 tag at the beginning of r. It returns
// io.ErrUnexpectedEOF when r doesn't start with a tag.
func SkipID3v2(r io.Reader) (ID3v2, error) {
	head := make([]byte, 3)
	if _, err := io.ReadFull(r, head); err != nil {
		return ID3v2{}, err
	}
	if string(head) != ID3Marker {
		return ID3v2{}, fmt.Errorf("mp3: no ID3v2 marker: %w", io.ErrUnexpectedEOF)
	}
	return readID3v2(r, head)
}
