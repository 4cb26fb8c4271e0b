// Package stft provides a streaming short-time Fourier transform core for
// block-based spectral effects.
//
// The core maintains a sliding analysis frame over the incoming sample
// stream, invokes a caller-supplied spectrum function once per hop, and
// reconstructs the output by windowed overlap-add. Processing is causal with
// a fixed latency of frameSize-hop samples; all buffers are allocated at
// construction and the per-block path is allocation-free.
package stft

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/voicemask/dsp/window"
)

const (
	// DefaultFrameSize is the analysis frame length in samples.
	DefaultFrameSize = 1024
	// DefaultHop is the analysis hop size (75% overlap).
	DefaultHop = 256

	minFrameSize = 64
	normFloor    = 1e-12
)

// FrameFunc mutates one analysis spectrum in place. Only bins [0, len/2]
// carry information; the core restores conjugate symmetry afterwards.
type FrameFunc func(spectrum []complex128)

// Core is a streaming STFT analysis/resynthesis engine.
//
// It is mono and not safe for concurrent use; each effect stage owns its own
// instance.
type Core struct {
	frameSize int
	hop       int
	latency   int

	plan         *algofft.Plan[complex128]
	windowCoeffs []float64
	olaNorm      []float64 // per-position overlap-add normalization, length hop

	inFIFO    []float64
	outFIFO   []float64
	outAccum  []float64
	spectrum  []complex128
	timeFrame []complex128

	rover int
}

// New creates a streaming STFT core. frameSize must be a power of two and at
// least 64; hop must be in [1, frameSize).
func New(frameSize, hop int) (*Core, error) {
	if frameSize < minFrameSize || !isPowerOf2(frameSize) {
		return nil, fmt.Errorf("stft frame size must be power-of-two and >= %d: %d", minFrameSize, frameSize)
	}
	if hop <= 0 || hop >= frameSize {
		return nil, fmt.Errorf("stft hop must be in [1, %d): %d", frameSize, hop)
	}

	plan, err := algofft.NewPlan64(frameSize)
	if err != nil {
		return nil, fmt.Errorf("stft: failed to create FFT plan: %w", err)
	}

	c := &Core{
		frameSize:    frameSize,
		hop:          hop,
		latency:      frameSize - hop,
		plan:         plan,
		windowCoeffs: window.Generate(window.TypeHann, frameSize, window.WithPeriodic()),
		inFIFO:       make([]float64, frameSize),
		outFIFO:      make([]float64, hop),
		outAccum:     make([]float64, frameSize),
		spectrum:     make([]complex128, frameSize),
		timeFrame:    make([]complex128, frameSize),
		rover:        frameSize - hop,
	}

	// Analysis and synthesis both apply the window, so each output position
	// accumulates sum(w^2) over the overlapping frames. For COLA-compliant
	// window/hop pairs this is constant; compute it per hop position so
	// non-standard hops stay correct.
	c.olaNorm = make([]float64, hop)
	for i := range c.olaNorm {
		acc := 0.0
		for pos := i; pos < frameSize; pos += hop {
			w := c.windowCoeffs[pos]
			acc += w * w
		}
		if acc < normFloor {
			acc = 1
		}
		c.olaNorm[i] = acc
	}

	return c, nil
}

// FrameSize returns the analysis frame length in samples.
func (c *Core) FrameSize() int { return c.frameSize }

// Hop returns the hop size in samples.
func (c *Core) Hop() int { return c.hop }

// Latency returns the fixed input-to-output delay in samples.
func (c *Core) Latency() int { return c.latency }

// Bins returns the number of non-redundant spectrum bins (frameSize/2 + 1).
func (c *Core) Bins() int { return c.frameSize/2 + 1 }

// Reset clears all FIFO and overlap state.
func (c *Core) Reset() {
	for i := range c.inFIFO {
		c.inFIFO[i] = 0
	}
	for i := range c.outFIFO {
		c.outFIFO[i] = 0
	}
	for i := range c.outAccum {
		c.outAccum[i] = 0
	}
	c.rover = c.latency
}

// ProcessBlock streams buf through the core in place, calling frameFn once
// per completed hop. The output is the resynthesized stream delayed by
// Latency() samples; the block length is preserved exactly.
func (c *Core) ProcessBlock(buf []float64, frameFn FrameFunc) error {
	for i, x := range buf {
		c.inFIFO[c.rover] = x
		buf[i] = c.outFIFO[c.rover-c.latency]
		c.rover++
		if c.rover >= c.frameSize {
			c.rover = c.latency
			if err := c.processFrame(frameFn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Core) processFrame(frameFn FrameFunc) error {
	for i := range c.frameSize {
		c.spectrum[i] = complex(c.inFIFO[i]*c.windowCoeffs[i], 0)
	}

	if err := c.plan.Forward(c.spectrum, c.spectrum); err != nil {
		return fmt.Errorf("stft: forward FFT failed: %w", err)
	}

	if frameFn != nil {
		frameFn(c.spectrum)
	}

	// Restore conjugate symmetry for a real-valued resynthesis frame.
	half := c.frameSize / 2
	c.spectrum[0] = complex(real(c.spectrum[0]), 0)
	c.spectrum[half] = complex(real(c.spectrum[half]), 0)
	for k := 1; k < half; k++ {
		v := c.spectrum[k]
		c.spectrum[c.frameSize-k] = complex(real(v), -imag(v))
	}

	if err := c.plan.Inverse(c.timeFrame, c.spectrum); err != nil {
		return fmt.Errorf("stft: inverse FFT failed: %w", err)
	}

	for i := range c.frameSize {
		c.outAccum[i] += real(c.timeFrame[i]) * c.windowCoeffs[i]
	}

	for i := range c.hop {
		c.outFIFO[i] = c.outAccum[i] / c.olaNorm[i]
	}

	copy(c.outAccum, c.outAccum[c.hop:])
	for i := c.frameSize - c.hop; i < c.frameSize; i++ {
		c.outAccum[i] = 0
	}

	copy(c.inFIFO, c.inFIFO[c.hop:])

	return nil
}

func isPowerOf2(v int) bool {
	return v > 0 && (v&(v-1)) == 0
}
