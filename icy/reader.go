package icy

import (
	"errors"
	"io"
)

// Reader removes metadata blocks from the stream. Parsed non-empty blocks
// are passed to the callback before the audio bytes that follow them are
// returned.
type Reader struct {
	r          io.Reader
	interval   int
	left       int
	onMetadata func(Fields)
	pending    Fields
	hasPending bool
	length     [1]byte
}

// NewReader returns reader of stream with metadata every interval bytes.
// Zero interval means the stream has no metadata. The callback can be nil.
func NewReader(r io.Reader, interval int, onMetadata func(Fields)) *Reader {
	return &Reader{
		r:          r,
		interval:   interval,
		left:       interval,
		onMetadata: onMetadata,
	}
}

// Read returns audio bytes only. A read may span several intervals, but
// it stops before bytes that follow a non-empty block.
func (r *Reader) Read(p []byte) (int, error) {
	if r.interval <= 0 {
		return r.r.Read(p)
	}
	r.flush()
	var total int
	for total < len(p) {
		if r.left == 0 {
			if err := r.readBlock(); err != nil {
				if total > 0 && errors.Is(err, io.EOF) {
					return total, nil
				}
				return total, err
			}
			r.left = r.interval
			if r.hasPending {
				if total > 0 {
					return total, nil
				}
				r.flush()
			}
		}
		chunk := p[total:]
		if len(chunk) > r.left {
			chunk = chunk[:r.left]
		}
		n, err := r.r.Read(chunk)
		total += n
		r.left -= n
		if err != nil {
			return total, err
		}
		// continue only when the interval is done, a short read means
		// the rest is not available yet.
		if n < len(chunk) || r.left > 0 {
			return total, nil
		}
	}
	return total, nil
}

// readBlock reads a metadata block. io.EOF is returned only if stream
// ended right before the block.
func (r *Reader) readBlock() error {
	if _, err := io.ReadFull(r.r, r.length[:]); err != nil {
		return err
	}
	size := int(r.length[0]) * BlockUnit
	if size == 0 {
		return nil
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r.r, b); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	r.pending = ParseMetadata(b)
	r.hasPending = true
	return nil
}

func (r *Reader) flush() {
	if !r.hasPending {
		return
	}
	fields := r.pending
	r.pending, r.hasPending = nil, false
	if r.onMetadata != nil {
		r.onMetadata(fields)
	}
}
