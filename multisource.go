package stream

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"pipelined.dev/stream/log"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/metric"
)

type (
	// MultiSourceListener is notified about source lifecycle of multi
	// source. Callbacks are called without locks held and may call
	// SetSource.
	MultiSourceListener interface {
		// SourceNeeded is called when the current source reached its end.
		SourceNeeded(*MultiSource)
		// SourceReleased is called with the previous source after it was
		// replaced, so its owner can free resources.
		SourceReleased(Source)
	}

	// MultiSource is a source whose upstream can be replaced while it is
	// read. Readers never observe the end of an upstream source: they block
	// until a new source is set. Only Close ends the stream.
	//
	// MultiSource is not a Sink, so it only heads a pipeline. Upstreams
	// are attached with SetSource, usually filters fed by pipelines of
	// their own.
	MultiSource struct {
		mu        sync.Mutex
		changed   *sync.Cond
		current   Source
		closed    bool
		listeners map[int]MultiSourceListener
		nextID    int
		logger    logrus.FieldLogger
	}

	// MultiSourceOption configures multi source.
	MultiSourceOption func(*MultiSource)

	// ListenerFuncs adapts functions to MultiSourceListener. Nil functions
	// are skipped.
	ListenerFuncs struct {
		Needed   func(*MultiSource)
		Released func(Source)
	}
)

// NewMultiSource returns a multi source without upstream. Reads block until
// a source is set.
func NewMultiSource(options ...MultiSourceOption) *MultiSource {
	ms := MultiSource{
		listeners: make(map[int]MultiSourceListener),
		logger:    log.Discard(),
	}
	ms.changed = sync.NewCond(&ms.mu)
	for _, option := range options {
		option(&ms)
	}
	return &ms
}

// WithMultiSourceLogger sets logger of multi source.
func WithMultiSourceLogger(l logrus.FieldLogger) MultiSourceOption {
	return func(ms *MultiSource) {
		ms.logger = l
	}
}

// WithListener adds listener to multi source.
func WithListener(l MultiSourceListener) MultiSourceOption {
	return func(ms *MultiSource) {
		ms.AddListener(l)
	}
}

// AddListener adds listener and returns function that removes it.
func (ms *MultiSource) AddListener(l MultiSourceListener) (remove func()) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	id := ms.nextID
	ms.nextID++
	ms.listeners[id] = l
	return func() {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		delete(ms.listeners, id)
	}
}

// SetSource replaces the current source. It's a no-op if provided source
// is the current one. If both sources have metadata, their formats must
// match, otherwise ErrFormatMismatch is returned. Waiting readers are woken
// up and listeners are notified that the previous source is released.
func (ms *MultiSource) SetSource(s Source) error {
	if s == nil {
		return errors.New("nil source")
	}
	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return ErrClosed
	}
	previous := ms.current
	if previous == s {
		ms.mu.Unlock()
		return nil
	}
	if previous != nil {
		if err := compatible(previous, s); err != nil {
			ms.mu.Unlock()
			return err
		}
	}
	ms.current = s
	ms.changed.Broadcast()
	listeners := ms.snapshot()
	ms.mu.Unlock()

	ms.logger.WithField("source", metric.TypeName(s)).Info("source switched")
	if previous != nil {
		for _, l := range listeners {
			l.SourceReleased(previous)
		}
	}
	return nil
}

// compatible checks that formats of sources match. Sources that don't
// report metadata yet are always compatible.
func compatible(previous, next Source) error {
	pm, ok := knownMetadata(previous)
	if !ok {
		return nil
	}
	nm, ok := knownMetadata(next)
	if !ok {
		return nil
	}
	if !pm.Format.Equal(nm.Format) {
		return fmt.Errorf("%w: %v and %v", ErrFormatMismatch, pm.Format, nm.Format)
	}
	return nil
}

// metadataReporter is implemented by sources that can tell if metadata is
// already known without blocking.
type metadataReporter interface {
	CurrentMetadata() (metadata.Metadata, bool)
}

func knownMetadata(s Source) (metadata.Metadata, bool) {
	if r, ok := s.(metadataReporter); ok {
		return r.CurrentMetadata()
	}
	m := s.Metadata()
	if m.Format.Equal(metadata.Format{}) || m.Format.Equal(metadata.UnknownFormat()) {
		return m, false
	}
	return m, true
}

// Source returns the current source or nil.
func (ms *MultiSource) Source() Source {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.current
}

// Get reads from the current source. When it ends, listeners are asked for
// a new source and the call blocks until one is set.
func (ms *MultiSource) Get(size int) (Packet, error) {
	for {
		s, err := ms.await(nil)
		if err != nil {
			return Packet{}, err
		}
		p, err := s.Get(size)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, io.EOF) {
			return Packet{}, err
		}
		ms.logger.WithField("source", metric.TypeName(s)).Debug("source ended")
		ms.mu.Lock()
		listeners := ms.snapshot()
		ms.mu.Unlock()
		for _, l := range listeners {
			l.SourceNeeded(ms)
		}
		if _, err := ms.await(s); err != nil {
			return Packet{}, err
		}
	}
}

// await blocks until the current source differs from ended one and
// returns it. Close interrupts the wait with io.EOF.
func (ms *MultiSource) await(ended Source) (Source, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for !ms.closed && (ms.current == nil || ms.current == ended) {
		ms.changed.Wait()
	}
	if ms.closed {
		return nil, io.EOF
	}
	return ms.current, nil
}

// Metadata returns metadata of the current source. It blocks until a source
// is set. Zero metadata is returned if multi source is closed before.
func (ms *MultiSource) Metadata() metadata.Metadata {
	s, err := ms.await(nil)
	if err != nil {
		return metadata.Metadata{}
	}
	return s.Metadata()
}

// CurrentMetadata returns metadata of the current source without blocking.
func (ms *MultiSource) CurrentMetadata() (metadata.Metadata, bool) {
	s := ms.Source()
	if s == nil {
		return metadata.Metadata{}, false
	}
	return knownMetadata(s)
}

// Close ends the stream. Blocked readers receive io.EOF.
func (ms *MultiSource) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closed = true
	ms.changed.Broadcast()
	return nil
}

// snapshot must be called with lock held.
func (ms *MultiSource) snapshot() []MultiSourceListener {
	listeners := make([]MultiSourceListener, 0, len(ms.listeners))
	for _, l := range ms.listeners {
		listeners = append(listeners, l)
	}
	return listeners
}

// SourceNeeded calls Needed function.
func (f ListenerFuncs) SourceNeeded(ms *MultiSource) {
	if f.Needed != nil {
		f.Needed(ms)
	}
}

// SourceReleased calls Released function.
func (f ListenerFuncs) SourceReleased(s Source) {
	if f.Released != nil {
		f.Released(s)
	}
}
