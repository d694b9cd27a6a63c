// Package file reads and writes streams as plain files.
package file

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pipelined.dev/stream"
	"pipelined.dev/stream/format"
	"pipelined.dev/stream/metadata"
)

type (
	// Source reads encoded file. Format is identified when the file is
	// opened.
	Source struct {
		*stream.ReaderSource
		file *os.File
	}

	// Sink writes bytes of a stream to a file as is.
	Sink struct {
		path string
		file *os.File
		w    *bufio.Writer
	}
)

// Open opens the file and identifies its format. Unrecognized files are
// streamed with unknown format. If the file has no title, the name of the
// file is used.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, r, err := format.Identify(f)
	switch {
	case errors.Is(err, format.ErrUnrecognized):
		m = metadata.New(metadata.UnknownFormat(), metadata.Content{})
	case err != nil:
		f.Close()
		return nil, fmt.Errorf("file: %s: %w", path, err)
	}
	if m.Title() == "" {
		m = m.WithName(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	return &Source{
		ReaderSource: stream.NewReaderSource(r, m),
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

// Open creates the file.
func (s *Sink) Open(metadata.Metadata) error {
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	s.file = f
	s.w = bufio.NewWriter(f)
	return nil
}

// Process writes bytes to the file.
func (s *Sink) Process(p stream.Packet) error {
	_, err := s.w.Write(p.Buffer)
	return err
}

// Close flushes and closes the file.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.w.Flush()
	return errors.Join(err, s.file.Close())
}
