// Package icy reads and writes streams with interleaved SHOUTcast
// metadata.
//
// A server that was asked for metadata with "Icy-MetaData: 1" request
// header announces the interval in "icy-metaint" response header. After
// every interval bytes of audio a metadata block follows: a length byte
// in 16-byte units and the text padded with NUL bytes.
package icy

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"pipelined.dev/stream/metadata"
)

// Metadata block constants.
const (
	BlockUnit    = 16
	MaxBlockSize = 255 * BlockUnit
	StreamTitle  = "StreamTitle"
	StreamURL    = "StreamUrl"
)

// ErrBlockTooLarge is returned when formatted metadata doesn't fit into a
// block.
var ErrBlockTooLarge = errors.New("icy: metadata block too large")

type (
	// Field is a single key='value' pair of metadata block.
	Field struct {
		Key   string
		Value string
	}

	// Fields of metadata block in order of appearance.
	Fields []Field
)

// Get returns the value of the first field with provided key.
func (fs Fields) Get(key string) (string, bool) {
	for _, f := range fs {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Content returns content described by StreamTitle. Title in "artist -
// name" form is split into artist and name.
func (fs Fields) Content() (metadata.Content, bool) {
	title, ok := fs.Get(StreamTitle)
	if !ok {
		return metadata.Content{}, false
	}
	if artist, name, found := strings.Cut(title, metadata.TitleSeparator); found {
		return metadata.NewContent(artist, name), true
	}
	return metadata.NewContent("", title), true
}

// ParseMetadata parses block text without length byte. Trailing NUL
// padding is stripped. Text that isn't valid UTF-8 is decoded as
// ISO-8859-1.
func ParseMetadata(b []byte) Fields {
	b = bytes.TrimRight(b, "\x00")
	return parseFields(decodeText(b))
}

func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// parseFields parses key='value';key="value"; pairs. A quoted value ends
// at the quote followed by semicolon or at the last quote, so quotes
// inside values are kept.
func parseFields(s string) Fields {
	var fields Fields
	for s != "" {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(s[:eq])
		s = s[eq+1:]

		var value string
		if s != "" && (s[0] == '\'' || s[0] == '"') {
			quote := s[:1]
			s = s[1:]
			end := strings.Index(s, quote+";")
			switch {
			case end >= 0:
				value, s = s[:end], s[end+2:]
			case strings.HasSuffix(s, quote):
				value, s = s[:len(s)-1], ""
			default:
				value, s = s, ""
			}
		} else {
			end := strings.IndexByte(s, ';')
			if end < 0 {
				value, s = s, ""
			} else {
				value, s = s[:end], s[end+1:]
			}
		}
		if key != "" {
			fields = append(fields, Field{Key: key, Value: value})
		}
	}
	return fields
}

// FormatMetadata returns metadata block including the length byte.
// Values are single-quoted.
func FormatMetadata(fields ...Field) ([]byte, error) {
	var text strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&text, "%s='%s';", f.Key, f.Value)
	}
	units := (text.Len() + BlockUnit - 1) / BlockUnit
	if units*BlockUnit > MaxBlockSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBlockTooLarge, text.Len())
	}
	b := make([]byte, 1+units*BlockUnit)
	b[0] = byte(units)
	copy(b[1:], text.String())
	return b, nil
}

// ContentType returns MIME type of provided encoding.
func ContentType(encoding string) string {
	switch strings.ToUpper(encoding) {
	case metadata.Vorbis:
		return "audio/ogg"
	case metadata.MP3:
		return "audio/mpeg"
	case metadata.PCM:
		return "audio/vnd.wave"
	default:
		return "application/octet-stream"
	}
}

// EncodingOf returns encoding of provided MIME type. Parameters are
// ignored.
func EncodingOf(contentType string) string {
	mime, _, _ := strings.Cut(contentType, ";")
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "audio/ogg", "application/ogg", "audio/vorbis":
		return metadata.Vorbis
	case "audio/mpeg", "audio/mp3":
		return metadata.MP3
	case "audio/flac", "audio/x-flac":
		return metadata.FLAC
	case "audio/vnd.wave", "audio/wav", "audio/x-wav", "audio/l16":
		return metadata.PCM
	default:
		return metadata.EncodingUnknown
	}
}
