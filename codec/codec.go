// Package codec provides filters that convert a stream from one encoding
// to another. The conversion runs in its own goroutine and reads and writes
// plain byte streams, so both in-process decoders and external encoder
// processes fit in.
package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"pipelined.dev/stream"
	"pipelined.dev/stream/log"
	"pipelined.dev/stream/metadata"
)

// ErrPrecondition is returned from Open when input metadata can't be
// converted.
var ErrPrecondition = errors.New("codec precondition failed")

type (
	// Transformer converts bytes read from in and writes them to out. It
	// returns when in is exhausted, the context is done or conversion
	// fails.
	Transformer interface {
		Transform(ctx context.Context, in io.Reader, out io.Writer) error
	}

	// Opener is implemented by transformers that depend on input
	// metadata. Open is called before the transformation starts.
	Opener interface {
		Open(metadata.Metadata) error
	}

	// Func is an in-process transformer.
	Func func(ctx context.Context, in io.Reader, out io.Writer) error

	// Filter is a stream filter backed by a transformer.
	Filter struct {
		transformer  Transformer
		precondition func(metadata.Metadata) error
		convert      func(metadata.Metadata) metadata.Metadata
		logger       logrus.FieldLogger

		in     *stream.Queue
		out    *stream.Queue
		cancel context.CancelFunc
		done   chan struct{}

		mu       sync.Mutex
		err      error
		upstream error
	}

	// Option configures filter.
	Option func(*Filter)
)

// Transform calls the function.
func (fn Func) Transform(ctx context.Context, in io.Reader, out io.Writer) error {
	return fn(ctx, in, out)
}

// New returns a filter that runs transformer once it's opened.
func New(t Transformer, options ...Option) *Filter {
	f := Filter{
		transformer: t,
		convert:     func(m metadata.Metadata) metadata.Metadata { return m },
		logger:      log.Discard(),
		in:          stream.NewQueue(),
		out:         stream.NewQueue(),
		done:        make(chan struct{}),
	}
	for _, option := range options {
		option(&f)
	}
	return &f
}

// WithPrecondition sets function that validates input metadata.
func WithPrecondition(fn func(metadata.Metadata) error) Option {
	return func(f *Filter) {
		f.precondition = fn
	}
}

// WithConvert sets function that returns output metadata for input
// metadata.
func WithConvert(fn func(metadata.Metadata) metadata.Metadata) Option {
	return func(f *Filter) {
		f.convert = fn
	}
}

// WithLogger sets logger of filter.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Filter) {
		f.logger = l
	}
}

// RequireEncoding returns precondition that accepts only provided
// encoding.
func RequireEncoding(encoding string) func(metadata.Metadata) error {
	return func(m metadata.Metadata) error {
		if !m.Is(encoding) {
			return fmt.Errorf("expected %s encoding, got %q", encoding, m.Encoding)
		}
		return nil
	}
}

// Open validates input metadata and starts the transformer.
func (f *Filter) Open(m metadata.Metadata) error {
	if f.precondition != nil {
		if err := f.precondition(m); err != nil {
			return fmt.Errorf("%w: %v", ErrPrecondition, err)
		}
	}
	if o, ok := f.transformer.(Opener); ok {
		if err := o.Open(m); err != nil {
			return err
		}
	}
	if err := f.in.Open(m); err != nil {
		return err
	}
	if err := f.out.Open(f.convert(m)); err != nil {
		return err
	}
	var ctx context.Context
	ctx, f.cancel = context.WithCancel(context.Background())
	go f.run(ctx)
	return nil
}

func (f *Filter) run(ctx context.Context) {
	defer close(f.done)
	// content changes are forwarded in order with the bytes read.
	in := stream.NewReader(f.in, func(m metadata.Metadata) {
		converted := f.convert(m)
		if err := f.out.Put(stream.Packet{Metadata: &converted}); err != nil {
			f.logger.WithError(err).Debug("metadata dropped")
		}
	})
	err := f.transformer.Transform(ctx, in, f.out)
	f.cancel()

	f.mu.Lock()
	if f.upstream != nil {
		err = f.upstream
	}
	f.err = err
	f.mu.Unlock()
	if err != nil {
		f.logger.WithError(err).Error("transform failed")
	}
	// unblock writers, they receive the error.
	f.in.Release()
	f.out.CloseWithError(err)
}

// Process passes bytes to the transformer. It blocks while the transformer
// is busy.
func (f *Filter) Process(p stream.Packet) error {
	err := f.in.Put(p)
	if errors.Is(err, stream.ErrClosed) {
		if ferr := f.failure(); ferr != nil {
			return ferr
		}
	}
	return err
}

// Close signals the end of input. The transformer drains it and
// closes the output.
func (f *Filter) Close() error {
	return f.in.Close()
}

// CloseWithError closes input. Readers of the filter receive the error
// once the transformer returns.
func (f *Filter) CloseWithError(err error) error {
	f.mu.Lock()
	f.upstream = err
	f.mu.Unlock()
	return f.in.CloseWithError(err)
}

// Get returns converted bytes.
func (f *Filter) Get(size int) (stream.Packet, error) {
	return f.out.Get(size)
}

// Metadata returns output metadata.
func (f *Filter) Metadata() metadata.Metadata {
	return f.out.Metadata()
}

// Release stops the transformer when the reader abandons the filter.
func (f *Filter) Release() {
	f.out.Release()
	f.in.Release()
	if f.cancel != nil {
		f.cancel()
	}
}

// Done returns a channel that's closed when the transformer returns.
func (f *Filter) Done() <-chan struct{} {
	return f.done
}

func (f *Filter) failure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
