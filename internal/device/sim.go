package device

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/voicemask/dsp/dither"
)

// renderedMaxSamples bounds the audio each simulated output retains for
// inspection. Older samples roll off, so a long-running session holds a
// fixed-size tail instead of growing without limit.
const renderedMaxSamples = 1 << 18

// SimOpener is an in-memory device backend. Inputs synthesize a sine tone
// through the same int16 quantization a hardware capture path would apply;
// outputs record the most recent rendered audio for inspection. Disconnects
// can be injected to exercise failure handling.
type SimOpener struct {
	// ToneHz is the frequency synthesized by opened inputs.
	ToneHz float64
	// ToneAmplitude is the synthesized tone's peak amplitude.
	ToneAmplitude float64

	// Realtime paces reads and writes to the block period, like hardware
	// endpoints clocked at the sample rate. Off, the devices run as fast
	// as the caller drives them.
	Realtime bool

	// FailOpen makes all Open calls fail, simulating missing hardware.
	FailOpen bool

	mu      sync.Mutex
	inputs  []*SimInput
	outputs []*SimOutput
}

// NewSimOpener creates a simulator producing a 440 Hz tone at half scale.
func NewSimOpener() *SimOpener {
	return &SimOpener{ToneHz: 440, ToneAmplitude: 0.5}
}

// OpenInput opens a simulated capture device.
func (o *SimOpener) OpenInput(id string, sampleRate float64, blockSize int) (InputDevice, error) {
	if o.FailOpen {
		return nil, fmt.Errorf("sim input %q: no such device", id)
	}

	in := &SimInput{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		toneHz:     o.ToneHz,
		amplitude:  o.ToneAmplitude,
		realtime:   o.Realtime,
		pcm:        make([]int16, blockSize),
	}

	o.mu.Lock()
	o.inputs = append(o.inputs, in)
	o.mu.Unlock()

	return in, nil
}

// OpenOutput opens a simulated render device.
func (o *SimOpener) OpenOutput(id string, sampleRate float64, blockSize int) (OutputDevice, error) {
	if o.FailOpen {
		return nil, fmt.Errorf("sim output %q: no such device", id)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// TPDF dither at the 16-bit boundary, seeded per device for
	// reproducible output.
	quant, err := dither.NewQuantizer(16, dither.Triangular, uint64(len(o.outputs))+1)
	if err != nil {
		return nil, fmt.Errorf("sim output %q: %w", id, err)
	}
	out := &SimOutput{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		realtime:   o.Realtime,
		pcm:        make([]int16, blockSize),
		quant:      quant,
	}
	o.outputs = append(o.outputs, out)

	return out, nil
}

// Inputs returns the capture devices opened so far.
func (o *SimOpener) Inputs() []*SimInput {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*SimInput(nil), o.inputs...)
}

// Outputs returns the render devices opened so far.
func (o *SimOpener) Outputs() []*SimOutput {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*SimOutput(nil), o.outputs...)
}

// DisconnectAll makes every open device fail its next call, as if the
// hardware vanished mid-stream.
func (o *SimOpener) DisconnectAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, in := range o.inputs {
		in.disconnected.Store(true)
	}
	for _, out := range o.outputs {
		out.disconnected.Store(true)
	}
}

// SimInput synthesizes a deterministic tone block by block.
type SimInput struct {
	sampleRate float64
	blockSize  int
	toneHz     float64
	amplitude  float64
	realtime   bool

	pcm    []int16
	sample uint64
	epoch  time.Time

	disconnected atomic.Bool
	closed       atomic.Bool
}

// ReadBlock fills dst with the next tone block.
func (s *SimInput) ReadBlock(dst []float64) error {
	if s.disconnected.Load() {
		return ErrDisconnected
	}
	if s.closed.Load() {
		return fmt.Errorf("sim input: read after close")
	}
	if len(dst) != s.blockSize {
		return fmt.Errorf("sim input: block length %d, want %d", len(dst), s.blockSize)
	}

	// Synthesize, quantize to int16, then convert back, matching the
	// precision of a real capture path.
	step := 2 * math.Pi * s.toneHz / s.sampleRate
	for i := range s.pcm {
		v := s.amplitude * math.Sin(step*float64(s.sample+uint64(i)))
		s.pcm[i] = int16(v * 32767)
	}
	s.sample += uint64(s.blockSize)

	Int16ToFloat(dst, s.pcm)
	s.pace(s.sample)
	return nil
}

// pace sleeps until the given absolute sample is due on the device clock.
// The clock starts with the first block, which returns immediately.
func (s *SimInput) pace(sample uint64) {
	if !s.realtime {
		return
	}
	elapsed := time.Duration(float64(sample) / s.sampleRate * float64(time.Second))
	if s.epoch.IsZero() {
		s.epoch = time.Now().Add(-elapsed)
		return
	}
	time.Sleep(time.Until(s.epoch.Add(elapsed)))
}

// Close releases the input.
func (s *SimInput) Close() error {
	s.closed.Store(true)
	return nil
}

// SimOutput records the most recent rendered audio.
type SimOutput struct {
	sampleRate float64
	blockSize  int
	realtime   bool
	pcm        []int16
	quant      *dither.Quantizer

	written uint64
	epoch   time.Time

	mu       sync.Mutex
	rendered []float64

	disconnected atomic.Bool
	closed       atomic.Bool
}

// WriteBlock records src after int16 quantization.
func (s *SimOutput) WriteBlock(src []float64) error {
	if s.disconnected.Load() {
		return ErrDisconnected
	}
	if s.closed.Load() {
		return fmt.Errorf("sim output: write after close")
	}
	if len(src) != s.blockSize {
		return fmt.Errorf("sim output: block length %d, want %d", len(src), s.blockSize)
	}

	for i, v := range src {
		s.pcm[i] = int16(s.quant.ProcessInteger(v))
	}

	s.mu.Lock()
	for _, v := range s.pcm {
		s.rendered = append(s.rendered, float64(v)/32768)
	}
	if extra := len(s.rendered) - renderedMaxSamples; extra > 0 {
		s.rendered = append(s.rendered[:0], s.rendered[extra:]...)
	}
	s.mu.Unlock()

	s.written += uint64(s.blockSize)
	s.pace(s.written)

	return nil
}

// pace sleeps until the given absolute sample is due on the device clock.
func (s *SimOutput) pace(sample uint64) {
	if !s.realtime {
		return
	}
	elapsed := time.Duration(float64(sample) / s.sampleRate * float64(time.Second))
	if s.epoch.IsZero() {
		s.epoch = time.Now().Add(-elapsed)
		return
	}
	time.Sleep(time.Until(s.epoch.Add(elapsed)))
}

// Rendered returns a copy of the retained tail of the written audio, newest
// last, at most renderedMaxSamples long.
func (s *SimOutput) Rendered() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.rendered...)
}

// Close releases the output.
func (s *SimOutput) Close() error {
	s.closed.Store(true)
	return nil
}
