// Package portaudio plays PCM stream with the default output device.
package portaudio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"pipelined.dev/stream"
	"pipelined.dev/stream/controller"
	"pipelined.dev/stream/metadata"
)

// DefaultFramesPerBuffer is the size of device buffer in frames.
const DefaultFramesPerBuffer = 1024

// ErrUnsupported is returned from Open when stream is not PCM with known
// channels and frequency.
var ErrUnsupported = errors.New("portaudio: unsupported format")

// Sink plays 16-bit little-endian PCM.
type Sink struct {
	Volume          *controller.Controller[float64]
	framesPerBuffer int

	stream   *portaudio.Stream
	buf      []int16
	buffered int
	// odd byte left from the previous packet.
	partial []byte
}

// NewSink returns sink with volume fader at maximum.
func NewSink(framesPerBuffer int) *Sink {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &Sink{
		Volume:          controller.NewFader("volume", 0, 1),
		framesPerBuffer: framesPerBuffer,
	}
}

// Controllers returns the volume fader.
func (s *Sink) Controllers() []controller.Control {
	return []controller.Control{s.Volume}
}

// Open initializes portaudio and starts default output stream.
func (s *Sink) Open(m metadata.Metadata) error {
	if !m.Is(metadata.PCM) || m.Channels <= 0 || m.Frequency <= 0 {
		return fmt.Errorf("%w: %v", ErrUnsupported, m.Format)
	}
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	s.buf = make([]int16, s.framesPerBuffer*m.Channels)
	var err error
	s.stream, err = portaudio.OpenDefaultStream(0, m.Channels, float64(m.Frequency), s.framesPerBuffer, &s.buf)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		portaudio.Terminate()
		return err
	}
	return nil
}

// Process writes samples to the device. It blocks until the device
// accepts the buffer.
func (s *Sink) Process(p stream.Packet) error {
	data := p.Buffer
	if len(s.partial) > 0 {
		data = append(s.partial, data...)
		s.partial = nil
	}
	volume := s.Volume.Value()
	for ; len(data) >= 2; data = data[2:] {
		s.buf[s.buffered] = int16(float64(int16(binary.LittleEndian.Uint16(data))) * volume)
		s.buffered++
		if s.buffered == len(s.buf) {
			if err := s.stream.Write(); err != nil {
				return err
			}
			s.buffered = 0
		}
	}
	if len(data) > 0 {
		s.partial = []byte{data[0]}
	}
	return nil
}

// Close plays buffered samples and terminates portaudio.
func (s *Sink) Close() error {
	if s.stream == nil {
		return nil
	}
	var errs []error
	if s.buffered > 0 {
		clear(s.buf[s.buffered:])
		errs = append(errs, s.stream.Write())
	}
	errs = append(errs, s.stream.Stop(), s.stream.Close(), portaudio.Terminate())
	s.stream = nil
	return errors.Join(errs...)
}
