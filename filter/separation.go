package filter

import (
	"pipelined.dev/stream"
	"pipelined.dev/stream/controller"
	"pipelined.dev/stream/metadata"
)

// Separation changes stereo width of 16-bit PCM. Width 0 is mono, 1 keeps
// the signal unchanged and 2 doubles the difference between channels.
// Streams with other number of channels pass through.
type Separation struct {
	*stream.Queue
	Width *controller.Controller[float64]
}

// NewSeparation returns filter with width knob at 1.
func NewSeparation() *Separation {
	f := Separation{
		Width: controller.NewKnob("separation", 0, 2),
	}
	f.Queue = stream.NewQueue(stream.WithTransformer(&separation{Separation: &f}))
	return &f
}

// Controllers returns the width knob.
func (f *Separation) Controllers() []controller.Control {
	return []controller.Control{f.Width}
}

type separation struct {
	*Separation
	frames
	channels int
}

func (s *separation) Open(m metadata.Metadata) (metadata.Metadata, error) {
	if err := requirePCM(m); err != nil {
		return m, err
	}
	s.channels = m.Channels
	return m, nil
}

func (s *separation) Transform(p stream.Packet) (stream.Packet, error) {
	if p.Metadata != nil {
		s.channels = p.Metadata.Channels
	}
	if s.channels != 2 {
		return p, nil
	}
	in := s.whole(p.Buffer, 2*sampleSize)
	out := make([]byte, len(in))
	width := s.Width.Value()
	if width == 1 {
		copy(out, in)
		p.Buffer = out
		return p, nil
	}
	for i := 0; i < len(in)/sampleSize; i += 2 {
		l, r := float64(sample(in, i)), float64(sample(in, i+1))
		mid, side := (l+r)/2, (l-r)/2*width
		putSample(out, i, clip(mid+side))
		putSample(out, i+1, clip(mid-side))
	}
	p.Buffer = out
	return p, nil
}
