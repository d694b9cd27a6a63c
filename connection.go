package stream

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/metric"
)

type (
	// Connection pumps bytes from a single source to its direct sinks.
	// With multiple sinks every chunk is delivered concurrently and the
	// connection waits for all deliveries before it pulls the next chunk.
	Connection struct {
		id        xid.ID
		source    Source
		branches  []*branch
		chunkSize int
		bytes     atomic.Int64
		stopped   atomic.Bool
		meter     metric.ResetFunc
		logger    logrus.FieldLogger
	}

	// branch is a sink of connection with its recorded failure.
	branch struct {
		sink   Sink
		name   string
		source string

		mu  sync.Mutex
		err error
	}
)

func newConnection(source Source, sinks []Sink, chunkSize int, logger logrus.FieldLogger) *Connection {
	id := xid.New()
	branches := make([]*branch, 0, len(sinks))
	for _, sink := range sinks {
		branches = append(branches, &branch{
			sink:   sink,
			name:   metric.TypeName(sink),
			source: metric.TypeName(source),
		})
	}
	return &Connection{
		id:        id,
		source:    source,
		branches:  branches,
		chunkSize: chunkSize,
		meter:     metric.Meter(source),
		logger: logger.WithFields(logrus.Fields{
			"connection": id.String(),
			"source":     metric.TypeName(source),
		}),
	}
}

// ID returns unique id of connection.
func (c *Connection) ID() string {
	return c.id.String()
}

// Bytes returns the number of bytes forwarded by connection.
func (c *Connection) Bytes() int64 {
	return c.bytes.Load()
}

// Stop signals connection to exit after the current chunk.
func (c *Connection) Stop() {
	c.stopped.Store(true)
}

// Has reports whether provided sink belongs to connection.
func (c *Connection) Has(sink Sink) bool {
	for _, b := range c.branches {
		if b.sink == sink {
			return true
		}
	}
	return false
}

// Err returns the error recorded for provided sink.
func (c *Connection) Err(sink Sink) error {
	for _, b := range c.branches {
		if b.sink == sink {
			return b.failure()
		}
	}
	return nil
}

// run pulls chunks until the end of stream, failure or stop. All sinks
// are closed on return.
func (c *Connection) run() (err error) {
	c.logger.Debug("connection started")
	last := c.source.Metadata()
	defer func() {
		c.close(err)
		if err != nil {
			c.logger.WithError(err).Error("connection failed")
			return
		}
		c.logger.WithField("bytes", c.Bytes()).Debug("connection done")
	}()

	measure := c.meter()
	for !c.stopped.Load() {
		p, err := c.source.Get(c.chunkSize)
		if err != nil {
			if errors.Is(err, io.EOF) || c.stopped.Load() && errors.Is(err, ErrClosed) {
				return nil
			}
			return &ConnectionError{
				Source: metric.TypeName(c.source),
				Err:    err,
			}
		}
		if len(p.Buffer) == 0 {
			continue
		}

		m := metadataOf(p, c.source.Metadata())
		if m.Equal(last) {
			p.Metadata = nil
		} else {
			p.Metadata = &m
			last = m
			c.logger.WithField("metadata", m.String()).Debug("metadata changed")
		}

		if err := c.deliver(p); err != nil {
			if c.stopped.Load() && errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		c.bytes.Add(int64(len(p.Buffer)))
		measure(int64(len(p.Buffer)))
	}
	return nil
}

// deliver sends packet to all sinks. A single sink is served in the
// calling goroutine.
func (c *Connection) deliver(p Packet) error {
	if len(c.branches) == 1 {
		return c.branches[0].process(p)
	}
	var g errgroup.Group
	for _, b := range c.branches {
		g.Go(func() error {
			return b.process(p)
		})
	}
	return g.Wait()
}

// close closes all sinks. If connection failed, healthy filters are closed
// with the error, so their readers receive it.
func (c *Connection) close(err error) {
	for _, b := range c.branches {
		var cerr error
		if ec, ok := b.sink.(ErrorCloser); ok && err != nil && b.failure() == nil {
			cerr = ec.CloseWithError(err)
		} else {
			cerr = b.sink.Close()
		}
		if cerr != nil {
			c.logger.WithError(cerr).WithField("sink", b.name).Warn("failed to close sink")
		}
	}
	if r, ok := c.source.(Releaser); ok {
		r.Release()
	}
}

func (b *branch) process(p Packet) error {
	if err := b.sink.Process(p); err != nil {
		err = &ConnectionError{
			Source: b.source,
			Sink:   b.name,
			Err:    err,
		}
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *branch) failure() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// String returns connection description.
func (c *Connection) String() string {
	return fmt.Sprintf("connection %s: %s to %d sinks", c.id, metric.TypeName(c.source), len(c.branches))
}

// metadataOf returns metadata of packet or fallback.
func metadataOf(p Packet, fallback metadata.Metadata) metadata.Metadata {
	if p.Metadata != nil {
		return *p.Metadata
	}
	return fallback
}
