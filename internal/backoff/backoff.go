// Package backoff retries operations with exponentially growing delays.
package backoff

import (
	"context"
	"time"
)

// Policy describes retries of a single operation. Delays double from
// Initial and are capped by Max. Every operation starts from Initial
// again, so a success resets the delay.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Retries int
}

// Delay returns the wait before retry n. The first retry is 1.
func (p Policy) Delay(n int) time.Duration {
	d := p.Initial
	for i := 1; i < n && d < p.Max; i++ {
		d *= 2
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Retry calls fn until it succeeds or Retries are exhausted. Before each
// retry notify receives the failure. Retry returns the last error of fn,
// or the context error if ctx is done while waiting.
func (p Policy) Retry(ctx context.Context, fn func() error, notify func(retry int, err error)) error {
	err := fn()
	for n := 1; err != nil && n <= p.Retries; n++ {
		if notify != nil {
			notify(n, err)
		}
		t := time.NewTimer(p.Delay(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		err = fn()
	}
	return err
}
