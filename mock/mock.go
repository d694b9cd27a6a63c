// Package mock provides mocks for stream components and allows to execute
// integration tests.
package mock

import (
	"fmt"
	"io"
	"sync"
	"time"

	"pipelined.dev/stream"
	"pipelined.dev/stream/metadata"
)

// Source mocks a stream.Source interface. It produces Limit bytes filled
// with Value. Metadata switches to the value from Changes once the number
// of produced bytes reaches the key.
type Source struct {
	counter
	Meta        metadata.Metadata
	Changes     map[int]metadata.Metadata
	Limit       int
	Value       byte
	Interval    time.Duration
	ErrorOnCall error

	mu sync.Mutex
}

// Get implements stream.Source.
func (m *Source) Get(size int) (stream.Packet, error) {
	if m.ErrorOnCall != nil {
		return stream.Packet{}, m.ErrorOnCall
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bytes >= m.Limit {
		return stream.Packet{}, io.EOF
	}
	time.Sleep(m.Interval)

	if meta, ok := m.Changes[m.bytes]; ok {
		m.Meta = meta
	}
	// don't cross the next change.
	bs := size
	if left := m.Limit - m.bytes; left < bs {
		bs = left
	}
	for offset := range m.Changes {
		if offset > m.bytes && offset-m.bytes < bs {
			bs = offset - m.bytes
		}
	}
	b := make([]byte, bs)
	for i := range b {
		b[i] = m.Value
	}
	m.advance(bs)
	return stream.Packet{Buffer: b}, nil
}

// Metadata implements stream.Source.
func (m *Source) Metadata() metadata.Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Meta
}

// Sink mocks up a stream.Sink interface. Buffer is not thread-safe, so it
// should not be checked while pipeline is running.
type Sink struct {
	counter
	Name         string
	Log          *Log
	Discard      bool
	Delay        time.Duration
	ErrorOnOpen  error
	ErrorOnCall  error
	ErrorOnClose error
	// FailAfter makes Process fail with ErrorOnCall only after the
	// provided number of successful calls.
	FailAfter int
	Hooks

	buffer   []byte
	metadata []metadata.Metadata
}

// Open implements stream.Sink.
func (m *Sink) Open(meta metadata.Metadata) error {
	m.Opened = true
	m.OpenedWith = meta
	m.Log.add(m.Name, "open")
	return m.ErrorOnOpen
}

// Process implements stream.Sink.
func (m *Sink) Process(p stream.Packet) error {
	if m.ErrorOnCall != nil && m.messages >= m.FailAfter {
		m.Log.add(m.Name, "fail")
		return m.ErrorOnCall
	}
	time.Sleep(m.Delay)
	if p.Metadata != nil {
		m.metadata = append(m.metadata, *p.Metadata)
	}
	if !m.Discard {
		m.buffer = append(m.buffer, p.Buffer...)
	}
	m.advance(len(p.Buffer))
	m.Log.add(m.Name, fmt.Sprintf("chunk %d", m.messages))
	return nil
}

// Close implements stream.Sink.
func (m *Sink) Close() error {
	m.Closed = true
	m.Log.add(m.Name, "close")
	return m.ErrorOnClose
}

// Buffer returns sink's buffer.
func (m *Sink) Buffer() []byte {
	return m.buffer
}

// Metadata returns metadata attached to processed packets in order of
// arrival.
func (m *Sink) Metadata() []metadata.Metadata {
	return m.metadata
}

// Filter mocks a stream.Filter interface. It passes bytes through a queue
// and counts them.
type Filter struct {
	*stream.Queue
	counter
	Name        string
	Log         *Log
	ErrorOnCall error
	Hooks

	closedWith error
}

// NewFilter returns a new filter with queue of provided capacity.
func NewFilter(name string, capacity int) *Filter {
	return &Filter{
		Queue: stream.NewQueue(stream.WithCapacity(capacity)),
		Name:  name,
	}
}

// Open implements stream.Sink.
func (m *Filter) Open(meta metadata.Metadata) error {
	m.Opened = true
	m.OpenedWith = meta
	m.Log.add(m.Name, "open")
	return m.Queue.Open(meta)
}

// Process implements stream.Sink.
func (m *Filter) Process(p stream.Packet) error {
	if m.ErrorOnCall != nil {
		m.Log.add(m.Name, "fail")
		return m.ErrorOnCall
	}
	m.advance(len(p.Buffer))
	m.Log.add(m.Name, fmt.Sprintf("chunk %d", m.messages))
	return m.Queue.Process(p)
}

// Close implements stream.Sink.
func (m *Filter) Close() error {
	m.Closed = true
	m.Log.add(m.Name, "close")
	return m.Queue.Close()
}

// CloseWithError implements stream.ErrorCloser.
func (m *Filter) CloseWithError(err error) error {
	m.Closed = true
	m.closedWith = err
	m.Log.add(m.Name, "close with error")
	return m.Queue.CloseWithError(err)
}

// ClosedWith returns the error filter was closed with.
func (m *Filter) ClosedWith() error {
	return m.closedWith
}

// Hooks allows to check lifecycle calls of components.
type Hooks struct {
	Opened     bool
	OpenedWith metadata.Metadata
	Closed     bool
}

// Log records events of multiple components in order of arrival. Nil log
// discards events.
type Log struct {
	mu     sync.Mutex
	events []string
}

func (l *Log) add(component, event string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, component+": "+event)
}

// Events returns recorded events.
func (l *Log) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// counter counts messages and bytes.
type counter struct {
	messages int
	bytes    int
}

// advance counter's metrics.
func (c *counter) advance(size int) {
	c.messages++
	c.bytes = c.bytes + size
}

// Count returns messages and bytes metrics.
func (c *counter) Count() (int, int) {
	return c.messages, c.bytes
}
