package stream

import (
	"sync"

	"pipelined.dev/stream/metadata"
)

// MetaState holds the current metadata of a component and notifies
// subscribers about changes. Zero value is ready to use.
type MetaState struct {
	mu          sync.Mutex
	cond        *sync.Cond
	current     metadata.Metadata
	set         bool
	closed      bool
	subscribers map[int]func(metadata.Metadata)
	nextID      int
}

// Update stores provided metadata and notifies subscribers. It's a no-op
// if metadata is equal to the current one. Returns true if metadata was
// changed.
func (s *MetaState) Update(m metadata.Metadata) bool {
	s.mu.Lock()
	if s.set && s.current.Equal(m) {
		s.mu.Unlock()
		return false
	}
	s.current = m
	s.set = true
	s.init()
	s.cond.Broadcast()
	subscribers := make([]func(metadata.Metadata), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(m)
	}
	return true
}

// Current returns current metadata and true if it was ever set.
func (s *MetaState) Current() (metadata.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.set
}

// Wait blocks until metadata is set or state is closed. Returns false if
// state was closed before metadata was set.
func (s *MetaState) Wait() (metadata.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	for !s.set && !s.closed {
		s.cond.Wait()
	}
	return s.current, s.set
}

// Close releases all waiters.
func (s *MetaState) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.closed = true
	s.cond.Broadcast()
}

// Subscribe adds a callback that is called on every metadata change. The
// returned function removes the callback.
func (s *MetaState) Subscribe(fn func(metadata.Metadata)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers == nil {
		s.subscribers = make(map[int]func(metadata.Metadata))
	}
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// init must be called with lock held.
func (s *MetaState) init() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
}
