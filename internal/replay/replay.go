// Package replay provides a reader that can re-read the bytes it has
// already returned. It's used to try several format identifiers on the
// same prefix of a stream.
package replay

import (
	"bytes"
	"io"
)

// Reader records bytes read from the underlying reader until Forget is
// called. Rewind makes the recorded bytes readable again.
type Reader struct {
	r         io.Reader
	recorded  bytes.Buffer
	offset    int
	recording bool
}

// NewReader returns a recording reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:         r,
		recording: true,
	}
}

// Read reads recorded bytes first and then the underlying reader.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.offset < r.recorded.Len() {
		n := copy(p, r.recorded.Bytes()[r.offset:])
		r.offset += n
		if !r.recording && r.offset == r.recorded.Len() {
			r.recorded = bytes.Buffer{}
			r.offset = 0
		}
		return n, nil
	}
	n, err := r.r.Read(p)
	if r.recording && n > 0 {
		r.recorded.Write(p[:n])
		r.offset += n
	}
	return n, err
}

// Rewind moves the read position to the first recorded byte.
func (r *Reader) Rewind() {
	r.offset = 0
}

// Forget stops recording. Bytes that were recorded but not read yet are
// still returned by Read.
func (r *Reader) Forget() {
	r.recording = false
	if r.offset == r.recorded.Len() {
		r.recorded = bytes.Buffer{}
		r.offset = 0
	}
}

// Recorded returns the number of recorded bytes.
func (r *Reader) Recorded() int {
	return r.recorded.Len()
}
