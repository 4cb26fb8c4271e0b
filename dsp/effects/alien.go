package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/voicemask/dsp/delay"
)

const (
	alienWobbleRateHz  = 3.0
	alienWobbleDepth   = 0.3
	alienBaseDelayMs   = 12.0
	alienCombDelayMs   = 5.0
	alienCombFeedback  = 0.6
	alienCombWet       = 0.4
	alienWobbleSpanMs  = 8.0
	alienDelayMarginMs = 4.0
)

// Alien produces an unearthly voice: a slow LFO wobbles a fractional delay
// tap (a vibrato too deep and too fast to sound human), the result rings
// through a short metallic feedback comb, and a chorus thickens the tail.
type Alien struct {
	sampleRate float64

	wobbleLine  *delay.Line
	wobblePhase float64
	wobbleStep  float64
	baseDelay   float64
	wobbleSpan  float64

	combLine  *delay.Line
	combDelay int

	chorus *Chorus
}

// NewAlien creates an alien voice stage.
func NewAlien(sampleRate float64) (*Alien, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("alien sample rate must be positive and finite: %f", sampleRate)
	}

	maxWobble := int(math.Ceil((alienBaseDelayMs + alienWobbleSpanMs + alienDelayMarginMs) / 1000 * sampleRate))
	wobbleLine, err := delay.New(maxWobble)
	if err != nil {
		return nil, fmt.Errorf("alien: %w", err)
	}

	combSamples := int(math.Round(alienCombDelayMs / 1000 * sampleRate))
	if combSamples < 1 {
		combSamples = 1
	}
	combLine, err := delay.New(combSamples + 1)
	if err != nil {
		return nil, fmt.Errorf("alien: %w", err)
	}

	chorus, err := NewChorus(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("alien: %w", err)
	}

	return &Alien{
		sampleRate: sampleRate,
		wobbleLine: wobbleLine,
		wobbleStep: 2 * math.Pi * alienWobbleRateHz / sampleRate,
		baseDelay:  alienBaseDelayMs / 1000 * sampleRate,
		wobbleSpan: alienWobbleDepth * alienWobbleSpanMs / 1000 * sampleRate,
		combLine:   combLine,
		combDelay:  combSamples,
		chorus:     chorus,
	}, nil
}

// SampleRate returns the sample rate in Hz.
func (a *Alien) SampleRate() float64 { return a.sampleRate }

// Name returns the registry name.
func (a *Alien) Name() string { return NameAlien }

// Reset clears delay, comb, LFO, and chorus state.
func (a *Alien) Reset() {
	a.wobbleLine.Reset()
	a.wobblePhase = 0
	a.combLine.Reset()
	a.chorus.Reset()
}

// ProcessInPlace transforms buf in place.
func (a *Alien) ProcessInPlace(buf []float64) {
	for i, x := range buf {
		a.wobbleLine.Write(x)
		d := a.baseDelay + a.wobbleSpan*math.Sin(a.wobblePhase)
		a.wobblePhase += a.wobbleStep
		if a.wobblePhase >= 2*math.Pi {
			a.wobblePhase -= 2 * math.Pi
		}
		wobbled := a.wobbleLine.ReadFractional(d)

		combOut := a.combLine.Read(a.combDelay)
		a.combLine.Write(wobbled + combOut*alienCombFeedback)

		buf[i] = wobbled*(1-alienCombWet) + combOut*alienCombWet
	}

	a.chorus.ProcessInPlace(buf)
}
