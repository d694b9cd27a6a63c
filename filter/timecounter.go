package filter

import (
	"fmt"
	"time"

	"pipelined.dev/stream"
	"pipelined.dev/stream/metadata"
)

// DefaultTimeInterval is the minimal interval between comment-only
// updates of time counter.
const DefaultTimeInterval = time.Second

type (
	// TimeCounter passes bytes unchanged and reports elapsed playback time
	// as the comment of output metadata. The counter restarts when the
	// input metadata changes in anything but the comment. PCM time is
	// derived from the number of bytes, other encodings use the clock.
	TimeCounter struct {
		*stream.Queue
		interval time.Duration
		now      func() time.Time

		in      metadata.Metadata
		bytes   int64
		started time.Time
		emitted time.Time
		comment string
	}

	// TimeCounterOption configures time counter.
	TimeCounterOption func(*TimeCounter)
)

// WithTimeInterval sets the minimal interval between comment updates.
func WithTimeInterval(d time.Duration) TimeCounterOption {
	return func(tc *TimeCounter) {
		tc.interval = d
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) TimeCounterOption {
	return func(tc *TimeCounter) {
		tc.now = now
	}
}

// NewTimeCounter returns a new time counter.
func NewTimeCounter(options ...TimeCounterOption) *TimeCounter {
	tc := TimeCounter{
		interval: DefaultTimeInterval,
		now:      time.Now,
	}
	for _, option := range options {
		option(&tc)
	}
	tc.Queue = stream.NewQueue(stream.WithTransformer(timeCounter{&tc}))
	return &tc
}

// Elapsed formats duration as m:ss or h:mm:ss.
func Elapsed(d time.Duration) string {
	s := int64(d / time.Second)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

type timeCounter struct {
	*TimeCounter
}

func (tc timeCounter) Open(m metadata.Metadata) (metadata.Metadata, error) {
	tc.restart(m)
	return tc.output(), nil
}

func (tc timeCounter) Transform(p stream.Packet) (stream.Packet, error) {
	if p.Metadata != nil && !p.Metadata.EqualIgnoreComment(tc.in) {
		tc.restart(*p.Metadata)
		m := tc.advance(len(p.Buffer))
		tc.comment = m.Comment()
		return p.WithMetadata(m), nil
	}
	if p.Metadata != nil {
		tc.in = *p.Metadata
	}
	p.Metadata = nil

	m := tc.advance(len(p.Buffer))
	now := tc.now()
	if m.Comment() != tc.comment && now.Sub(tc.emitted) >= tc.interval {
		tc.comment = m.Comment()
		tc.emitted = now
		return p.WithMetadata(m), nil
	}
	return p, nil
}

func (tc timeCounter) restart(m metadata.Metadata) {
	tc.in = m
	tc.bytes = 0
	tc.started = tc.now()
	tc.emitted = tc.started
	tc.comment = Elapsed(0)
}

// advance counts bytes and returns metadata with the elapsed time. The
// emitted comment is not changed.
func (tc timeCounter) advance(n int) metadata.Metadata {
	tc.bytes += int64(n)
	var elapsed time.Duration
	if bps := tc.in.BytesPerSecond(); tc.in.Is(metadata.PCM) && bps > 0 {
		elapsed = time.Duration(tc.bytes) * time.Second / time.Duration(bps)
	} else {
		elapsed = tc.now().Sub(tc.started)
	}
	return tc.in.WithComment(Elapsed(elapsed))
}

func (tc timeCounter) output() metadata.Metadata {
	return tc.in.WithComment(tc.comment)
}
