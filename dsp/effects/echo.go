package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/voicemask/dsp/delay"
)

const (
	defaultEchoDelayMs  = 300.0
	defaultEchoFeedback = 0.3
	defaultEchoWet      = 0.3
	maxEchoDelayMs      = 2000.0
)

// Echo is a single-tap feedback delay.
type Echo struct {
	sampleRate float64
	delayMs    float64
	feedback   float64
	wet        float64

	line         *delay.Line
	delaySamples int
}

// NewEcho creates an echo with a 300 ms tap.
func NewEcho(sampleRate float64) (*Echo, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("echo sample rate must be positive and finite: %f", sampleRate)
	}

	maxSamples := int(math.Ceil(maxEchoDelayMs/1000*sampleRate)) + 1
	line, err := delay.New(maxSamples)
	if err != nil {
		return nil, fmt.Errorf("echo: %w", err)
	}

	e := &Echo{
		sampleRate: sampleRate,
		delayMs:    defaultEchoDelayMs,
		feedback:   defaultEchoFeedback,
		wet:        defaultEchoWet,
		line:       line,
	}
	e.delaySamples = e.samplesForMs(e.delayMs)

	return e, nil
}

// SampleRate returns the sample rate in Hz.
func (e *Echo) SampleRate() float64 { return e.sampleRate }

// DelayMs returns the tap delay in milliseconds.
func (e *Echo) DelayMs() float64 { return e.delayMs }

// Feedback returns the feedback amount in [0, 1).
func (e *Echo) Feedback() float64 { return e.feedback }

// Wet returns the wet mix in [0, 1].
func (e *Echo) Wet() float64 { return e.wet }

// SetDelayMs updates the tap delay in (0, 2000] milliseconds.
func (e *Echo) SetDelayMs(ms float64) error {
	if !isFinitePositive(ms) || ms > maxEchoDelayMs {
		return fmt.Errorf("echo delay must be in (0, %f] ms: %f", maxEchoDelayMs, ms)
	}
	e.delayMs = ms
	e.delaySamples = e.samplesForMs(ms)
	return nil
}

// SetFeedback updates the feedback amount. fb must be in [0, 1) for stability.
func (e *Echo) SetFeedback(fb float64) error {
	if fb < 0 || fb >= 1 || !isFinite(fb) {
		return fmt.Errorf("echo feedback must be in [0, 1): %f", fb)
	}
	e.feedback = fb
	return nil
}

// SetWet updates the wet mix. wet must be in [0, 1].
func (e *Echo) SetWet(wet float64) error {
	if wet < 0 || wet > 1 || !isFinite(wet) {
		return fmt.Errorf("echo wet must be in [0, 1]: %f", wet)
	}
	e.wet = wet
	return nil
}

// Name returns the registry name.
func (e *Echo) Name() string { return NameEcho }

// Reset clears the delay line.
func (e *Echo) Reset() {
	e.line.Reset()
}

// ProcessInPlace mixes the delayed signal into buf in place.
func (e *Echo) ProcessInPlace(buf []float64) {
	for i, x := range buf {
		delayed := e.line.Read(e.delaySamples)
		e.line.Write(x + delayed*e.feedback)
		buf[i] = x + delayed*e.wet
	}
}

func (e *Echo) samplesForMs(ms float64) int {
	samples := int(math.Round(ms / 1000 * e.sampleRate))
	if samples < 1 {
		samples = 1
	}
	if samples >= e.line.Len() {
		samples = e.line.Len() - 1
	}
	return samples
}
