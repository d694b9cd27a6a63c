// Package wav reads and writes 16-bit PCM wav files.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/stream"
	"pipelined.dev/stream/metadata"
)

const (
	bitDepth  = 16
	pcmFormat = 1
)

// DefaultHeaderBudget is the number of bytes Identify reads to find the
// data chunk.
const DefaultHeaderBudget = 4096

// ErrUnsupported is returned for wav files that don't hold 16-bit PCM and
// for sinks opened with non-PCM metadata.
var ErrUnsupported = errors.New("wav: unsupported format")

type (
	// Source reads samples of wav file.
	Source struct {
		*stream.ReaderSource
		file *os.File
	}

	// Sink saves PCM stream to wav file.
	Sink struct {
		path    string
		format  metadata.Format
		file    *os.File
		encoder *wav.Encoder
		buf     *audio.IntBuffer
		// odd byte left from the previous packet.
		partial []byte
	}
)

// Identify reads RIFF header from r.
func Identify(r io.Reader) (metadata.Metadata, bool) {
	m, _, ok := IdentifyHeader(r)
	return m, ok
}

// IdentifyHeader is like Identify, but also returns the number of header
// bytes that precede the samples.
func IdentifyHeader(r io.Reader) (metadata.Metadata, int64, bool) {
	buf := make([]byte, DefaultHeaderBudget)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return metadata.Metadata{}, 0, false
	}
	br := bytes.NewReader(buf[:n])
	d := wav.NewDecoder(br)
	if err := d.FwdToPCM(); err != nil {
		return metadata.Metadata{}, 0, false
	}
	m, err := describe(d)
	if err != nil {
		return metadata.Metadata{}, 0, false
	}
	return m, int64(n - br.Len()), true
}

func describe(d *wav.Decoder) (metadata.Metadata, error) {
	if d.WavAudioFormat != pcmFormat || d.BitDepth != bitDepth || d.NumChans == 0 || d.SampleRate == 0 {
		return metadata.Metadata{}, fmt.Errorf("%w: audio format %d with %d bits", ErrUnsupported, d.WavAudioFormat, d.BitDepth)
	}
	var content metadata.Content
	if d.Metadata != nil {
		content = metadata.NewContent(d.Metadata.Artist, d.Metadata.Title)
	}
	return metadata.New(
		metadata.NewFormat(int(d.NumChans), int(d.SampleRate), metadata.PCM),
		content,
	), nil
}

// Open opens wav file for reading.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d := wav.NewDecoder(f)
	if err := d.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("wav: %s: %w", path, err)
	}
	m, err := describe(d)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Source{
		ReaderSource: stream.NewReaderSource(io.LimitReader(f, int64(d.PCMSize)), m),
		file:         f,
	}, nil
}

// Close closes the file.
func (s *Source) Close() error {
	return s.file.Close()
}

// NewSink returns sink that creates file at path once it's opened.
func NewSink(path string) *Sink {
	return &Sink{path: path}
}

// Open creates the file. Only PCM with known channels and frequency is
// accepted.
func (s *Sink) Open(m metadata.Metadata) error {
	if !m.Is(metadata.PCM) || m.Channels <= 0 || m.Frequency <= 0 {
		return fmt.Errorf("%w: %v", ErrUnsupported, m.Format)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	s.format = m.Format
	s.file = f
	s.encoder = wav.NewEncoder(f, m.Frequency, bitDepth, m.Channels, pcmFormat)
	s.buf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: m.Channels,
			SampleRate:  m.Frequency,
		},
		SourceBitDepth: bitDepth,
	}
	return nil
}

// Process writes samples. Format changes are rejected, content changes
// are ignored.
func (s *Sink) Process(p stream.Packet) error {
	if p.Metadata != nil && !p.Metadata.Format.Equal(s.format) {
		return fmt.Errorf("%w: %v changed to %v", stream.ErrFormatMismatch, s.format, p.Metadata.Format)
	}
	data := p.Buffer
	if len(s.partial) > 0 {
		data = append(s.partial, data...)
		s.partial = nil
	}
	n := len(data) &^ 1
	if n < len(data) {
		s.partial = []byte{data[n]}
	}
	s.buf.Data = s.buf.Data[:0]
	for i := 0; i < n; i += 2 {
		s.buf.Data = append(s.buf.Data, int(int16(binary.LittleEndian.Uint16(data[i:]))))
	}
	if len(s.buf.Data) == 0 {
		return nil
	}
	return s.encoder.Write(s.buf)
}

// Close finalizes the header and closes the file.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	if err := s.encoder.Close(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
