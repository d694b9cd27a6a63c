package stream

import (
	"io"

	"pipelined.dev/stream/metadata"
)

// Reader adapts a source to io.Reader. Metadata attached to packets is
// passed to the callback before the bytes are returned.
type Reader struct {
	source     Source
	onMetadata func(metadata.Metadata)
	pending    []byte
}

// NewReader returns reader of provided source. The callback can be nil.
func NewReader(s Source, onMetadata func(metadata.Metadata)) *Reader {
	return &Reader{
		source:     s,
		onMetadata: onMetadata,
	}
}

// Read implements io.Reader. End of stream is reported as io.EOF.
func (r *Reader) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(r.pending) == 0 {
		p, err := r.source.Get(len(b))
		if err != nil {
			return 0, err
		}
		if p.Metadata != nil && r.onMetadata != nil {
			r.onMetadata(*p.Metadata)
		}
		r.pending = p.Buffer
	}
	n := copy(b, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// ReaderSource is a source of bytes read from io.Reader. Its metadata can
// be replaced while streaming, the connection attaches the change to the
// next packet.
type ReaderSource struct {
	r    io.Reader
	meta MetaState
	err  error
}

// NewReaderSource returns source that reads r and describes it with m.
func NewReaderSource(r io.Reader, m metadata.Metadata) *ReaderSource {
	s := ReaderSource{r: r}
	s.meta.Update(m)
	return &s
}

// Get reads up to size bytes. An error returned by the reader together
// with data is reported on the next call.
func (s *ReaderSource) Get(size int) (Packet, error) {
	if s.err != nil {
		return Packet{}, s.err
	}
	buf := make([]byte, size)
	for {
		n, err := s.r.Read(buf)
		if n > 0 {
			s.err = err
			return Packet{Buffer: buf[:n]}, nil
		}
		if err != nil {
			s.err = err
			return Packet{}, err
		}
	}
}

// Metadata returns the current metadata.
func (s *ReaderSource) Metadata() metadata.Metadata {
	m, _ := s.meta.Current()
	return m
}

// CurrentMetadata returns the current metadata. It's always known.
func (s *ReaderSource) CurrentMetadata() (metadata.Metadata, bool) {
	return s.meta.Current()
}

// SetMetadata replaces metadata of the source.
func (s *ReaderSource) SetMetadata(m metadata.Metadata) {
	s.meta.Update(m)
}

// Close closes the reader if it's io.Closer.
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
