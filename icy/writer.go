package icy

import (
	"io"
	"sync"
)

// Writer embeds metadata blocks into the stream every interval bytes. A
// block is written once after metadata is set, empty blocks are written
// otherwise.
type Writer struct {
	w        io.Writer
	interval int
	left     int

	mu      sync.Mutex
	pending []byte
}

var emptyBlock = []byte{0}

// NewWriter returns writer that embeds metadata every interval bytes.
// Zero interval disables metadata.
func NewWriter(w io.Writer, interval int) *Writer {
	return &Writer{
		w:        w,
		interval: interval,
		left:     interval,
	}
}

// SetMetadata sets fields sent in the next block. It's safe to call
// concurrently with Write.
func (w *Writer) SetMetadata(fields ...Field) error {
	b, err := FormatMetadata(fields...)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.pending = b
	w.mu.Unlock()
	return nil
}

// SetTitle sets StreamTitle sent in the next block.
func (w *Writer) SetTitle(title string) error {
	return w.SetMetadata(Field{Key: StreamTitle, Value: title})
}

// Write writes audio bytes with blocks embedded. Returned count doesn't
// include metadata bytes.
func (w *Writer) Write(p []byte) (int, error) {
	if w.interval <= 0 {
		return w.w.Write(p)
	}
	var written int
	for len(p) > 0 {
		n := min(len(p), w.left)
		n, err := w.w.Write(p[:n])
		written += n
		w.left -= n
		p = p[n:]
		if err != nil {
			return written, err
		}
		if w.left == 0 {
			if err := w.writeBlock(); err != nil {
				return written, err
			}
			w.left = w.interval
		}
	}
	return written, nil
}

func (w *Writer) writeBlock() error {
	w.mu.Lock()
	block := w.pending
	w.pending = nil
	w.mu.Unlock()
	if block == nil {
		block = emptyBlock
	}
	_, err := w.w.Write(block)
	return err
}
