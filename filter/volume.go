package filter

import (
	"pipelined.dev/stream"
	"pipelined.dev/stream/controller"
	"pipelined.dev/stream/metadata"
)

// Volume scales 16-bit PCM samples. Scaled values are truncated toward
// zero.
type Volume struct {
	*stream.Queue
	Fader *controller.Controller[float64]
	Mute  *controller.Controller[bool]
}

// NewVolume returns volume filter with fader at provided gain in [0, 1].
func NewVolume(gain float64) *Volume {
	f := Volume{
		Fader: controller.New("volume", 0, 1, gain, false),
		Mute:  controller.NewSwitch("mute", false),
	}
	f.Queue = stream.NewQueue(stream.WithTransformer(&volume{Volume: &f}))
	return &f
}

// Controllers returns volume fader and mute switch.
func (f *Volume) Controllers() []controller.Control {
	return []controller.Control{f.Fader, f.Mute}
}

func (f *Volume) gain() float64 {
	if f.Mute.Value() {
		return 0
	}
	return f.Fader.Value()
}

type volume struct {
	*Volume
	frames
}

func (v *volume) Open(m metadata.Metadata) (metadata.Metadata, error) {
	return m, requirePCM(m)
}

func (v *volume) Transform(p stream.Packet) (stream.Packet, error) {
	in := v.whole(p.Buffer, sampleSize)
	out := make([]byte, len(in))
	gain := v.gain()
	for i := 0; i < len(in)/sampleSize; i++ {
		putSample(out, i, clip(float64(sample(in, i))*gain))
	}
	p.Buffer = out
	return p, nil
}
