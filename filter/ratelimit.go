package filter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"pipelined.dev/stream"
	"pipelined.dev/stream/metadata"
)

// RateLimit passes bytes not faster than the rate. It turns a source that
// is faster than real time, like a file, into a live one.
type RateLimit struct {
	*stream.Queue
	rate    int
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRateLimit returns filter with rate in bytes per second. Zero rate is
// derived from PCM format on open.
func NewRateLimit(bytesPerSecond int) *RateLimit {
	ctx, cancel := context.WithCancel(context.Background())
	f := RateLimit{
		rate:   bytesPerSecond,
		ctx:    ctx,
		cancel: cancel,
	}
	f.Queue = stream.NewQueue(stream.WithTransformer(rateLimiter{&f}))
	return &f
}

// Rate returns the rate in bytes per second. It's zero until the rate is
// known.
func (f *RateLimit) Rate() int {
	return f.rate
}

// Release stops waiting and releases the queue.
func (f *RateLimit) Release() {
	f.cancel()
	f.Queue.Release()
}

// Close stops waiting and closes the queue.
func (f *RateLimit) Close() error {
	f.cancel()
	return f.Queue.Close()
}

// CloseWithError stops waiting and closes the queue with error.
func (f *RateLimit) CloseWithError(err error) error {
	f.cancel()
	return f.Queue.CloseWithError(err)
}

type rateLimiter struct {
	*RateLimit
}

func (l rateLimiter) Open(m metadata.Metadata) (metadata.Metadata, error) {
	if l.rate == 0 {
		if !m.Is(metadata.PCM) || m.BytesPerSecond() <= 0 {
			return metadata.Metadata{}, fmt.Errorf("%w: rate of %v is unknown", ErrUnsupported, m.Format)
		}
		l.rate = m.BytesPerSecond()
	}
	// a tenth of second can be sent at once.
	burst := max(l.rate/10, 1)
	l.limiter = rate.NewLimiter(rate.Limit(l.rate), burst)
	return m, nil
}

func (l rateLimiter) Transform(p stream.Packet) (stream.Packet, error) {
	burst := l.limiter.Burst()
	for n := len(p.Buffer); n > 0; n -= burst {
		if err := l.limiter.WaitN(l.ctx, min(n, burst)); err != nil {
			if l.ctx.Err() != nil {
				return stream.Packet{}, stream.ErrClosed
			}
			return stream.Packet{}, err
		}
	}
	return p, nil
}
