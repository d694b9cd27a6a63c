package stream

import (
	"errors"
	"io"
	"sync"

	"pipelined.dev/stream/metadata"
)

// DefaultQueueCapacity is the number of chunks a queue can hold before
// writers are blocked.
const DefaultQueueCapacity = 16

type (
	// Transformer rewrites packets on their way through a queue. Open
	// returns the output metadata for provided input metadata. Transform
	// receives packets with input metadata attached when it changes and
	// returns packets with output metadata attached when it changes. An
	// empty output buffer is allowed and results in nothing being queued.
	Transformer interface {
		Open(metadata.Metadata) (metadata.Metadata, error)
		Transform(Packet) (Packet, error)
	}

	// Releaser is implemented by sources that can be abandoned by their
	// reader. Release unblocks writers waiting on the source.
	Releaser interface {
		Release()
	}

	// Queue is an in-memory bounded filter. Bytes are passed from the sink
	// side to the source side through a channel of chunks, so a full queue
	// blocks the writer. Metadata travels with the chunks and becomes
	// visible to the reader right before the bytes produced under it.
	//
	// Get must be called from a single goroutine.
	Queue struct {
		meta        MetaState
		transformer Transformer
		chunks      chan Packet
		pending     Packet

		mu       sync.Mutex
		err      error
		closed   bool
		done     chan struct{}
		released chan struct{}
		release  sync.Once
	}

	// QueueOption configures a queue.
	QueueOption func(*Queue)
)

// NewQueue returns a new queue.
func NewQueue(options ...QueueOption) *Queue {
	q := Queue{
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}
	WithCapacity(DefaultQueueCapacity)(&q)
	for _, option := range options {
		option(&q)
	}
	return &q
}

// WithCapacity sets the number of chunks queue holds.
func WithCapacity(n int) QueueOption {
	return func(q *Queue) {
		if n < 1 {
			n = 1
		}
		q.chunks = make(chan Packet, n)
	}
}

// WithTransformer sets transformer applied to every processed packet.
func WithTransformer(t Transformer) QueueOption {
	return func(q *Queue) {
		q.transformer = t
	}
}

// Open sets the output metadata.
func (q *Queue) Open(m metadata.Metadata) error {
	if q.transformer != nil {
		var err error
		if m, err = q.transformer.Open(m); err != nil {
			return err
		}
	}
	q.meta.Update(m)
	return nil
}

// Process transforms the packet and puts it into the queue. It blocks
// while the queue is full.
func (q *Queue) Process(p Packet) error {
	if q.transformer != nil {
		var err error
		if p, err = q.transformer.Transform(p); err != nil {
			return err
		}
	}
	if len(p.Buffer) == 0 && p.Metadata == nil {
		return nil
	}
	return q.Put(p)
}

// Put puts the packet into the queue without transformation. Metadata
// attached to the packet is treated as output metadata. Put is safe for
// concurrent use and returns ErrClosed after the queue is closed or
// released.
func (q *Queue) Put(p Packet) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	// buffer is owned by the caller.
	if len(p.Buffer) > 0 {
		p.Buffer = append([]byte(nil), p.Buffer...)
	}
	select {
	case q.chunks <- p:
		return nil
	case <-q.released:
		return ErrClosed
	case <-q.done:
		return ErrClosed
	}
}

// Write puts a copy of b into the queue.
func (q *Queue) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if err := q.Put(Packet{Buffer: b}); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Get returns up to size bytes from the queue. It blocks until data is
// available. After queue is closed and drained, io.EOF or the close error
// is returned.
func (q *Queue) Get(size int) (Packet, error) {
	for len(q.pending.Buffer) == 0 {
		var p Packet
		select {
		case p = <-q.chunks:
		case <-q.done:
			// chunks queued before close are still delivered.
			select {
			case p = <-q.chunks:
			default:
				return Packet{}, q.closeErr()
			}
		}
		// metadata-only chunks are merged into the next packet.
		if p.Metadata != nil && q.meta.Update(*p.Metadata) {
			q.pending.Metadata = p.Metadata
		}
		q.pending.Buffer = p.Buffer
	}

	var out Packet
	out.Metadata, q.pending.Metadata = q.pending.Metadata, nil
	if size <= 0 || size >= len(q.pending.Buffer) {
		out.Buffer, q.pending.Buffer = q.pending.Buffer, nil
		return out, nil
	}
	out.Buffer = q.pending.Buffer[:size]
	q.pending.Buffer = q.pending.Buffer[size:]
	return out, nil
}

// Metadata returns the output metadata.
func (q *Queue) Metadata() metadata.Metadata {
	m, _ := q.meta.Current()
	return m
}

// CurrentMetadata returns the output metadata and true if queue was
// opened.
func (q *Queue) CurrentMetadata() (metadata.Metadata, bool) {
	return q.meta.Current()
}

// Subscribe adds callback for output metadata changes.
func (q *Queue) Subscribe(fn func(metadata.Metadata)) (cancel func()) {
	return q.meta.Subscribe(fn)
}

// Close closes the queue. Readers receive io.EOF after remaining chunks
// are drained.
func (q *Queue) Close() error {
	return q.CloseWithError(nil)
}

// CloseWithError closes the queue. Readers receive provided error after
// remaining chunks are drained. Only the first close has effect.
func (q *Queue) CloseWithError(err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	if err != nil && !errors.Is(err, io.EOF) {
		q.err = err
	}
	close(q.done)
	q.meta.Close()
	return nil
}

func (q *Queue) closeErr() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	return io.EOF
}

// Release unblocks writers. It's called when the reader abandons the
// queue.
func (q *Queue) Release() {
	q.release.Do(func() {
		close(q.released)
	})
}
