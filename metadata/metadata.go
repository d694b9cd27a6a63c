// Package metadata describes the format and the content of an audio
// stream. All types are immutable values: setters return modified copies.
package metadata

import (
	"fmt"
	"strings"
)

// Unknown is used for channels and frequency when the value is not known.
const Unknown = -1

// Known encodings. Encodings are compared case-insensitively.
const (
	EncodingUnknown = ""
	PCM             = "PCM"
	MP3             = "MP3"
	Vorbis          = "VORBIS"
	FLAC            = "FLAC"
)

// TitleSeparator joins artist and name into a default title.
const TitleSeparator = " - "

type (
	// Format describes how the bytes of a stream are encoded.
	Format struct {
		Channels  int
		Frequency int
		Encoding  string
	}

	// Content describes what is being streamed. Empty strings mean the
	// value is absent.
	Content struct {
		artist  string
		name    string
		title   string
		comment string
		titled  bool
	}

	// Metadata combines format and content description of a stream.
	Metadata struct {
		Format
		Content
	}
)

// UnknownFormat returns a format with all values unknown.
func UnknownFormat() Format {
	return Format{
		Channels:  Unknown,
		Frequency: Unknown,
		Encoding:  EncodingUnknown,
	}
}

// NewFormat returns format with provided values.
func NewFormat(channels, frequency int, encoding string) Format {
	return Format{
		Channels:  channels,
		Frequency: frequency,
		Encoding:  encoding,
	}
}

// WithChannels returns a copy of format with channels set.
func (f Format) WithChannels(channels int) Format {
	f.Channels = channels
	return f
}

// WithFrequency returns a copy of format with frequency set.
func (f Format) WithFrequency(frequency int) Format {
	f.Frequency = frequency
	return f
}

// WithEncoding returns a copy of format with encoding set.
func (f Format) WithEncoding(encoding string) Format {
	f.Encoding = encoding
	return f
}

// Is reports whether format has provided encoding.
func (f Format) Is(encoding string) bool {
	return strings.EqualFold(f.Encoding, encoding)
}

// Equal compares formats, encoding is compared case-insensitively.
func (f Format) Equal(o Format) bool {
	return f.Channels == o.Channels &&
		f.Frequency == o.Frequency &&
		strings.EqualFold(f.Encoding, o.Encoding)
}

// BytesPerSecond returns byte rate of 16-bit PCM stream with this format.
// Zero is returned if channels or frequency are unknown.
func (f Format) BytesPerSecond() int {
	if f.Channels <= 0 || f.Frequency <= 0 {
		return 0
	}
	return f.Channels * f.Frequency * 2
}

func (f Format) String() string {
	encoding := f.Encoding
	if encoding == EncodingUnknown {
		encoding = "unknown"
	}
	return fmt.Sprintf("%s %dch %dHz", strings.ToUpper(encoding), f.Channels, f.Frequency)
}

// NewContent returns content with provided artist and name. Title is
// derived from them.
func NewContent(artist, name string) Content {
	return Content{
		artist: artist,
		name:   name,
	}
}

// Artist returns the artist or empty string.
func (c Content) Artist() string {
	return c.artist
}

// Name returns the name or empty string.
func (c Content) Name() string {
	return c.name
}

// Comment returns the comment or empty string.
func (c Content) Comment() string {
	return c.comment
}

// Title returns explicit title if it was set. Otherwise artist and name
// joined with TitleSeparator are returned, absent parts are skipped.
func (c Content) Title() string {
	if c.titled {
		return c.title
	}
	switch {
	case c.artist != "" && c.name != "":
		return c.artist + TitleSeparator + c.name
	case c.artist != "":
		return c.artist
	default:
		return c.name
	}
}

// WithArtist returns a copy of content with artist set.
func (c Content) WithArtist(artist string) Content {
	c.artist = artist
	return c
}

// WithName returns a copy of content with name set.
func (c Content) WithName(name string) Content {
	c.name = name
	return c
}

// WithTitle returns a copy of content with explicit title.
func (c Content) WithTitle(title string) Content {
	c.title = title
	c.titled = true
	return c
}

// WithComment returns a copy of content with comment set.
func (c Content) WithComment(comment string) Content {
	c.comment = comment
	return c
}

// Equal compares all content values.
func (c Content) Equal(o Content) bool {
	return c.EqualIgnoreComment(o) && c.comment == o.comment
}

// EqualIgnoreComment compares all content values but comment. It is used
// to tell meaningful changes from cosmetic ones.
func (c Content) EqualIgnoreComment(o Content) bool {
	return c.artist == o.artist &&
		c.name == o.name &&
		c.Title() == o.Title()
}

func (c Content) String() string {
	if c.comment == "" {
		return c.Title()
	}
	return c.Title() + " (" + c.comment + ")"
}

// New returns metadata with provided format and content.
func New(f Format, c Content) Metadata {
	return Metadata{
		Format:  f,
		Content: c,
	}
}

// WithFormat returns a copy of metadata with format replaced.
func (m Metadata) WithFormat(f Format) Metadata {
	m.Format = f
	return m
}

// WithContent returns a copy of metadata with content replaced.
func (m Metadata) WithContent(c Content) Metadata {
	m.Content = c
	return m
}

// WithChannels returns a copy of metadata with channels set.
func (m Metadata) WithChannels(channels int) Metadata {
	m.Format = m.Format.WithChannels(channels)
	return m
}

// WithFrequency returns a copy of metadata with frequency set.
func (m Metadata) WithFrequency(frequency int) Metadata {
	m.Format = m.Format.WithFrequency(frequency)
	return m
}

// WithEncoding returns a copy of metadata with encoding set.
func (m Metadata) WithEncoding(encoding string) Metadata {
	m.Format = m.Format.WithEncoding(encoding)
	return m
}

// WithArtist returns a copy of metadata with artist set.
func (m Metadata) WithArtist(artist string) Metadata {
	m.Content = m.Content.WithArtist(artist)
	return m
}

// WithName returns a copy of metadata with name set.
func (m Metadata) WithName(name string) Metadata {
	m.Content = m.Content.WithName(name)
	return m
}

// WithTitle returns a copy of metadata with explicit title.
func (m Metadata) WithTitle(title string) Metadata {
	m.Content = m.Content.WithTitle(title)
	return m
}

// WithComment returns a copy of metadata with comment set.
func (m Metadata) WithComment(comment string) Metadata {
	m.Content = m.Content.WithComment(comment)
	return m
}

// FullTitle returns title with comment appended in parentheses.
func (m Metadata) FullTitle() string {
	return m.Content.String()
}

// Equal compares format and content.
func (m Metadata) Equal(o Metadata) bool {
	return m.Format.Equal(o.Format) && m.Content.Equal(o.Content)
}

// EqualIgnoreComment compares format and content without comment.
func (m Metadata) EqualIgnoreComment(o Metadata) bool {
	return m.Format.Equal(o.Format) && m.Content.EqualIgnoreComment(o.Content)
}

func (m Metadata) String() string {
	return fmt.Sprintf("%v [%v]", m.FullTitle(), m.Format)
}
