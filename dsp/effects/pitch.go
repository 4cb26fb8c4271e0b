package effects

import (
	"fmt"
	"math"

	"github.com/cwbudde/voicemask/dsp/stft"
)

const (
	minPitchRatio    = 0.25
	maxPitchRatio    = 4.0
	pitchIdentityEps = 1e-6
	pitchLockLobe    = 4
)

// PitchShifter performs streaming frequency-domain pitch shifting.
//
// It drives a phase-vocoder STFT core with direct spectral bin shifting
// (Laroche & Dolson 1999): synthesis bins are remapped from analysis bin
// k/ratio with linear interpolation, so analysis and synthesis share one hop
// and no time-domain resampling is needed. Identity phase locking is applied
// around spectral peaks to keep transients coherent.
//
// A ratio within 1e-6 of 1.0 bypasses the spectral path entirely, including
// its latency.
type PitchShifter struct {
	sampleRate float64
	ratio      float64
	active     bool

	core *stft.Core

	omega     []float64
	prevPhase []float64
	sumPhase  []float64

	magnitudes  []float64
	instFreqs   []float64
	shiftedMag  []float64
	shiftedFreq []float64
	peakBins    []int
}

// NewPitchShifter creates a streaming pitch shifter at the given sample rate.
func NewPitchShifter(sampleRate float64) (*PitchShifter, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("pitch shifter sample rate must be positive and finite: %f", sampleRate)
	}

	core, err := stft.New(stft.DefaultFrameSize, stft.DefaultHop)
	if err != nil {
		return nil, fmt.Errorf("pitch shifter: %w", err)
	}

	bins := core.Bins()
	p := &PitchShifter{
		sampleRate:  sampleRate,
		ratio:       1.0,
		core:        core,
		omega:       make([]float64, bins),
		prevPhase:   make([]float64, bins),
		sumPhase:    make([]float64, bins),
		magnitudes:  make([]float64, bins),
		instFreqs:   make([]float64, bins),
		shiftedMag:  make([]float64, bins),
		shiftedFreq: make([]float64, bins),
		peakBins:    make([]int, 0, bins),
	}

	frameSize := float64(core.FrameSize())
	for k := range p.omega {
		p.omega[k] = 2 * math.Pi * float64(k) / frameSize
	}

	return p, nil
}

// SampleRate returns the sample rate in Hz.
func (p *PitchShifter) SampleRate() float64 { return p.sampleRate }

// Ratio returns the current pitch-shift ratio.
func (p *PitchShifter) Ratio() float64 { return p.ratio }

// Latency returns the current input-to-output delay in samples. It is zero
// while the shifter is bypassed.
func (p *PitchShifter) Latency() int {
	if !p.active {
		return 0
	}
	return p.core.Latency()
}

// SetRatio updates the pitch-shift ratio. The update is cheap and preserves
// phase-vocoder state, so it is safe between consecutive blocks.
func (p *PitchShifter) SetRatio(ratio float64) error {
	if !isFinitePositive(ratio) || ratio < minPitchRatio || ratio > maxPitchRatio {
		return fmt.Errorf("pitch ratio must be in [%f, %f]: %f", minPitchRatio, maxPitchRatio, ratio)
	}
	p.ratio = ratio
	return nil
}

// Reset clears STFT and phase tracking state.
func (p *PitchShifter) Reset() {
	p.core.Reset()
	for i := range p.prevPhase {
		p.prevPhase[i] = 0
		p.sumPhase[i] = 0
	}
	p.active = false
}

// ProcessInPlace pitch-shifts one block in place.
func (p *PitchShifter) ProcessInPlace(buf []float64) {
	if len(buf) == 0 {
		return
	}

	if math.Abs(p.ratio-1) <= pitchIdentityEps {
		if p.active {
			// Leaving the spectral path; drop its residue so the next
			// engagement starts clean.
			p.Reset()
		}
		return
	}
	p.active = true

	// FFT errors cannot occur once the plan is built; keep the block dry if
	// one ever does.
	_ = p.core.ProcessBlock(buf, p.processFrame)
}

func (p *PitchShifter) processFrame(spectrum []complex128) {
	half := p.core.FrameSize() / 2
	hopF := float64(p.core.Hop())
	ratio := p.ratio

	// Pass 1: magnitudes and instantaneous frequencies.
	for k := 0; k <= half; k++ {
		re := real(spectrum[k])
		im := imag(spectrum[k])
		p.magnitudes[k] = math.Hypot(re, im)
		phase := math.Atan2(im, re)

		delta := wrapPhase(phase - p.prevPhase[k] - p.omega[k]*hopF)
		p.instFreqs[k] = p.omega[k] + delta/hopF
		p.prevPhase[k] = phase
	}

	// Pass 2: spectral bin shifting with linear interpolation.
	for k := 0; k <= half; k++ {
		srcK := float64(k) / ratio
		if srcK >= float64(half) {
			p.shiftedMag[k] = 0
			p.shiftedFreq[k] = p.omega[k]
			continue
		}
		lo := int(srcK)
		frac := srcK - float64(lo)
		hi := min(lo+1, half)
		p.shiftedMag[k] = p.magnitudes[lo]*(1-frac) + p.magnitudes[hi]*frac
		interpFreq := p.instFreqs[lo]*(1-frac) + p.instFreqs[hi]*frac
		p.shiftedFreq[k] = interpFreq * ratio
	}

	// Pass 3: phase accumulation with identity phase locking near peaks.
	p.peakBins = p.peakBins[:0]
	for k := 1; k < half; k++ {
		if p.shiftedMag[k] >= p.shiftedMag[k-1] && p.shiftedMag[k] > p.shiftedMag[k+1] {
			p.peakBins = append(p.peakBins, k)
		}
	}

	if len(p.peakBins) == 0 {
		for k := 0; k <= half; k++ {
			p.sumPhase[k] += p.shiftedFreq[k] * hopF
			spectrum[k] = complex(
				p.shiftedMag[k]*math.Cos(p.sumPhase[k]),
				p.shiftedMag[k]*math.Sin(p.sumPhase[k]),
			)
		}
		return
	}

	for _, pk := range p.peakBins {
		p.sumPhase[pk] += p.shiftedFreq[pk] * hopF
	}

	peakIdx := 0
	for k := 0; k <= half; k++ {
		for peakIdx+1 < len(p.peakBins) {
			curr := p.peakBins[peakIdx]
			next := p.peakBins[peakIdx+1]
			if absInt(next-k) < absInt(curr-k) {
				peakIdx++
			} else {
				break
			}
		}

		pk := p.peakBins[peakIdx]
		if k != pk {
			// Lock only within the peak's main lobe; analysis phases at
			// remapped positions further out are unreliable.
			dist := absInt(k - pk)
			if dist <= pitchLockLobe && p.shiftedMag[k] > 0 {
				phaseK := interpolatePhase(p.prevPhase, float64(k)/ratio, half)
				phasePk := interpolatePhase(p.prevPhase, float64(pk)/ratio, half)
				p.sumPhase[k] = p.sumPhase[pk] + (phaseK - phasePk)
			} else {
				p.sumPhase[k] += p.shiftedFreq[k] * hopF
			}
		}

		spectrum[k] = complex(
			p.shiftedMag[k]*math.Cos(p.sumPhase[k]),
			p.shiftedMag[k]*math.Sin(p.sumPhase[k]),
		)
	}
}

// interpolatePhase reads a phase value at a fractional bin position by
// interpolating the unwrapped difference between neighbor bins.
func interpolatePhase(phases []float64, pos float64, half int) float64 {
	if pos <= 0 {
		return phases[0]
	}
	if pos >= float64(half) {
		return phases[half]
	}
	lo := int(pos)
	frac := pos - float64(lo)
	hi := min(lo+1, half)
	return phases[lo] + wrapPhase(phases[hi]-phases[lo])*frac
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
