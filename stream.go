package stream

import (
	"errors"

	"pipelined.dev/stream/metadata"
)

// DefaultChunkSize is the number of bytes a connection pulls at once.
const DefaultChunkSize = 4096

var (
	// ErrStarted is returned when pipeline is started twice.
	ErrStarted = errors.New("pipeline already started")
	// ErrClosed is returned when component is used after it was closed.
	ErrClosed = errors.New("component closed")
	// ErrFormatMismatch is returned when sources with different formats are
	// swapped in multi source.
	ErrFormatMismatch = errors.New("format mismatch")
)

type (
	// Packet couples bytes with metadata. Metadata is set only when it has
	// changed since the previous packet.
	Packet struct {
		Metadata *metadata.Metadata
		Buffer   []byte
	}

	// Source is a component bytes can be pulled from. Get either returns
	// at least one byte or an error. io.EOF is returned at the end of
	// stream.
	Source interface {
		Get(size int) (Packet, error)
		Metadata() metadata.Metadata
	}

	// Sink is a component bytes are pushed to. Open is called exactly once
	// before the first Process call.
	Sink interface {
		Open(metadata.Metadata) error
		Process(Packet) error
		Close() error
	}

	// Filter is both sink and source.
	Filter interface {
		Source
		Sink
	}

	// ErrorCloser is implemented by components that can be closed with an
	// error. The error is returned to the next reader of the component.
	ErrorCloser interface {
		CloseWithError(error) error
	}
)

// WithMetadata returns packet with metadata attached.
func (p Packet) WithMetadata(m metadata.Metadata) Packet {
	p.Metadata = &m
	return p
}

// Len returns the number of bytes in packet.
func (p Packet) Len() int {
	return len(p.Buffer)
}
