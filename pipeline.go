package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"pipelined.dev/stream/log"
	"pipelined.dev/stream/metric"
)

type (
	// Builder wires sources to sinks. It keeps a write cursor: To appends
	// a sink to the cursor and moves the cursor to the sink if it is a
	// filter. Find relocates the cursor to build forks.
	Builder struct {
		root   Source
		cursor Source
		edges  map[Source][]Sink
		sinks  map[Sink]Source
		err    error
	}

	// Pipeline is an immutable graph of components rooted at a single
	// source. Every source with outgoing edges is served by a connection
	// once pipeline is started.
	Pipeline struct {
		root      Source
		edges     map[Source][]Sink
		order     []Source
		chunkSize int
		logger    logrus.FieldLogger

		mu          sync.Mutex
		started     bool
		connections map[Source]*Connection
		merger      errorMerger
		done        chan struct{}
		err         error
	}

	// Option configures pipeline.
	Option func(*Pipeline)
)

// NewBuilder returns a builder for pipeline rooted at provided source.
func NewBuilder(source Source) *Builder {
	b := Builder{
		root:   source,
		cursor: source,
		edges:  make(map[Source][]Sink),
		sinks:  make(map[Sink]Source),
	}
	if source == nil {
		b.err = errors.New("nil source")
	}
	return &b
}

// To connects sink to the source under cursor. If sink is a filter, the
// cursor moves to it.
func (b *Builder) To(sink Sink) *Builder {
	if b.err != nil {
		return b
	}
	if sink == nil {
		b.err = errors.New("nil sink")
		return b
	}
	if upstream, ok := b.sinks[sink]; ok {
		b.err = fmt.Errorf("sink %s already connected to %s", metric.TypeName(sink), metric.TypeName(upstream))
		return b
	}
	if s, ok := sink.(Source); ok && (s == b.root || b.reaches(s, b.cursor)) {
		b.err = fmt.Errorf("cycle: %s", metric.TypeName(sink))
		return b
	}
	b.edges[b.cursor] = append(b.edges[b.cursor], sink)
	b.sinks[sink] = b.cursor
	if s, ok := sink.(Source); ok {
		b.cursor = s
	}
	return b
}

// Find moves the cursor to provided source. The source must be either the
// root or a filter already added to the builder.
func (b *Builder) Find(source Source) *Builder {
	if b.err != nil {
		return b
	}
	if source == b.root {
		b.cursor = source
		return b
	}
	sink, ok := source.(Sink)
	if !ok {
		b.err = fmt.Errorf("source %s is not in pipeline", metric.TypeName(source))
		return b
	}
	if _, ok := b.sinks[sink]; !ok {
		b.err = fmt.Errorf("source %s is not in pipeline", metric.TypeName(source))
		return b
	}
	b.cursor = source
	return b
}

// reaches reports whether target is reachable from source.
func (b *Builder) reaches(source, target Source) bool {
	if source == target {
		return true
	}
	for _, sink := range b.edges[source] {
		if s, ok := sink.(Source); ok && b.reaches(s, target) {
			return true
		}
	}
	return false
}

// Build returns a pipeline. Builder must not be used after this call.
func (b *Builder) Build(options ...Option) (*Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.edges) == 0 {
		return nil, errors.New("pipeline has no sinks")
	}
	p := Pipeline{
		root:        b.root,
		edges:       b.edges,
		chunkSize:   DefaultChunkSize,
		logger:      log.GetLogger(),
		connections: make(map[Source]*Connection),
		done:        make(chan struct{}),
	}
	for _, option := range options {
		option(&p)
	}
	// breadth-first order of sources.
	queue := []Source{p.root}
	for len(queue) > 0 {
		source := queue[0]
		queue = queue[1:]
		if len(p.edges[source]) == 0 {
			continue
		}
		p.order = append(p.order, source)
		for _, sink := range p.edges[source] {
			if s, ok := sink.(Source); ok {
				queue = append(queue, s)
			}
		}
	}
	return &p, nil
}

// WithChunkSize sets the number of bytes connections pull at once.
func WithChunkSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithLogger sets logger for pipeline connections.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// Start opens all sinks and starts connections. Sinks are opened in
// breadth-first order with metadata of their upstream source, so no sink
// receives data before it's opened. Start can be called only once.
// Cancelling the context stops the pipeline.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrStarted
	}
	p.started = true

	opened := make([]Sink, 0, len(p.edges))
	for _, source := range p.order {
		m := source.Metadata()
		for _, sink := range p.edges[source] {
			if err := sink.Open(m); err != nil {
				for i := len(opened) - 1; i >= 0; i-- {
					if cerr := opened[i].Close(); cerr != nil {
						p.logger.WithError(cerr).Warn("failed to close sink")
					}
				}
				err = fmt.Errorf("open %s: %w", metric.TypeName(sink), err)
				p.err = err
				close(p.done)
				return err
			}
			opened = append(opened, sink)
		}
	}

	for _, source := range p.order {
		c := newConnection(source, p.edges[source], p.chunkSize, p.logger)
		p.connections[source] = c
	}
	for _, source := range p.order {
		p.merger.run(p.connections[source].run)
	}
	go func() {
		err := p.merger.wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()
	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-p.done:
		}
	}()
	return nil
}

// Stop signals all connections to exit after the current chunk. It
// doesn't interrupt blocked reads and writes. Stop is idempotent.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.connections {
		c.Stop()
	}
}

// Wait blocks until all connections are done and returns their errors.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done returns a channel that's closed when all connections are done.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Bytes returns the number of bytes forwarded by provided source.
func (p *Pipeline) Bytes(source Source) int64 {
	p.mu.Lock()
	c, ok := p.connections[source]
	p.mu.Unlock()
	if !ok {
		return 0
	}
	return c.Bytes()
}

// Err returns the last error recorded for provided sink.
func (p *Pipeline) Err(sink Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.connections {
		if c.Has(sink) {
			return c.Err(sink)
		}
	}
	return nil
}

// Connection returns connection that serves provided source.
func (p *Pipeline) Connection(source Source) (*Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.connections[source]
	return c, ok
}
