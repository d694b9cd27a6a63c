package stream

import (
	"sync"
)

// errorMerger runs functions in separate goroutines and collects their
// errors.
type errorMerger struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs Errors
}

// run executes fn in a new goroutine.
func (m *errorMerger) run(fn func() error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := fn(); err != nil {
			m.mu.Lock()
			m.errs = append(m.errs, err)
			m.mu.Unlock()
		}
	}()
}

// wait blocks until all functions are done and returns their errors.
func (m *errorMerger) wait() error {
	m.wg.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs.ret()
}
