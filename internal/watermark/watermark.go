// Package watermark embeds and detects an inaudible provenance signature in
// transformed audio.
//
// Every processed block carries a spread-spectrum chip sequence derived from
// the session key and the block sequence number, modulated onto a near
// ultrasonic carrier. The signature marks the audio as transformed without
// audibly coloring it; Detector recovers it for auditing.
package watermark

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/cwbudde/voicemask/dsp/filter/biquad"
)

const (
	// CarrierHz is the watermark carrier frequency.
	CarrierHz = 19000.0

	// DetectThreshold is the correlation score above which a signature is
	// considered present.
	DetectThreshold = 0.5

	// Amplitude tracks 2% of the block RMS, floored so silent blocks stay
	// traceable and capped to stay inaudible.
	amplitudeScale = 0.02
	amplitudeMin   = 1e-4
	amplitudeMax   = 1e-3

	// isolationEdgeHz is the high-pass edge the detector uses to strip
	// voice energy below the carrier band before correlating.
	isolationEdgeHz = 18500.0

	seqMixConstant = 0x9e3779b97f4a7c15
)

// NewSessionKey derives a 64-bit watermark key from a random UUID.
func NewSessionKey() uint64 {
	u := uuid.New()
	return binary.BigEndian.Uint64(u[0:8]) ^ binary.BigEndian.Uint64(u[8:16])
}

// Embedder adds the signature to successive blocks. It is not safe for
// concurrent use; the pipeline owns it.
type Embedder struct {
	sampleRate  float64
	key         uint64
	seq         uint64
	sampleIndex uint64
}

// NewEmbedder creates an embedder for one session.
func NewEmbedder(sampleRate float64, key uint64) (*Embedder, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("watermark sample rate must be positive and finite: %f", sampleRate)
	}
	if CarrierHz >= sampleRate/2 {
		return nil, fmt.Errorf("watermark carrier %g Hz requires a sample rate above %g Hz", CarrierHz, 2*CarrierHz)
	}
	return &Embedder{sampleRate: sampleRate, key: key}, nil
}

// Key returns the session key.
func (e *Embedder) Key() uint64 { return e.key }

// State returns the sequence number of the next block to be embedded.
func (e *Embedder) State() uint64 { return e.seq }

// Reset rewinds the sequence counter and carrier phase to the session start.
func (e *Embedder) Reset() {
	e.seq = 0
	e.sampleIndex = 0
}

// ProcessInPlace embeds the signature for one block and advances the
// sequence counter. The carrier phase is continuous in the absolute sample
// index, so block boundaries leave no spectral clicks.
func (e *Embedder) ProcessInPlace(buf []float64) {
	if len(buf) == 0 {
		return
	}

	amp := clampAmplitude(blockRMS(buf) * amplitudeScale)
	step := 2 * math.Pi * CarrierHz / e.sampleRate

	chips := newChipStream(e.key, e.seq)
	for i := range buf {
		phase := step * float64(e.sampleIndex+uint64(i))
		buf[i] += chips.next() * amp * math.Sin(phase)
	}

	e.sampleIndex += uint64(len(buf))
	e.seq++
}

// Detector recomputes expected signatures for auditing. It assumes the fixed
// block size the pipeline uses.
type Detector struct {
	sampleRate float64
	key        uint64
	blockSize  int
}

// NewDetector creates a detector for the given session key and block size.
func NewDetector(sampleRate float64, key uint64, blockSize int) (*Detector, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("watermark sample rate must be positive and finite: %f", sampleRate)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("watermark block size must be positive: %d", blockSize)
	}
	return &Detector{sampleRate: sampleRate, key: key, blockSize: blockSize}, nil
}

// Score returns the normalized correlation in [-1, 1] between the signal and
// the signature expected from the given starting block sequence number. The
// signal must begin on a block boundary.
//
// Both the signal and the reference are high-passed at the carrier band
// first, so voice energy far below the carrier cannot swamp the
// normalization. The two filters are identical, which keeps the surviving
// signature component phase-aligned with the filtered reference.
func (d *Detector) Score(signal []float64, fromSeq uint64) float64 {
	if len(signal) == 0 {
		return 0
	}

	sig := append([]float64(nil), signal...)
	ref := d.reference(len(signal), fromSeq)
	isolateCarrierBand(sig, d.sampleRate)
	isolateCarrierBand(ref, d.sampleRate)

	var dot, sigEnergy, refEnergy float64
	for i := range sig {
		dot += sig[i] * ref[i]
		sigEnergy += sig[i] * sig[i]
		refEnergy += ref[i] * ref[i]
	}

	denom := math.Sqrt(sigEnergy * refEnergy)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// reference synthesizes n samples of the expected signature at unit chip
// amplitude, starting at block sequence number fromSeq.
func (d *Detector) reference(n int, fromSeq uint64) []float64 {
	step := 2 * math.Pi * CarrierHz / d.sampleRate
	startSample := fromSeq * uint64(d.blockSize)

	ref := make([]float64, n)
	seq := fromSeq
	chips := newChipStream(d.key, seq)
	for i := range ref {
		if i > 0 && i%d.blockSize == 0 {
			seq++
			chips = newChipStream(d.key, seq)
		}
		phase := step * float64(startSample+uint64(i))
		ref[i] = chips.next() * math.Sin(phase)
	}
	return ref
}

// isolateCarrierBand strips everything below the carrier band in place with
// a fourth-order Butterworth high-pass.
func isolateCarrierBand(buf []float64, sampleRate float64) {
	chain := biquad.NewChain(
		biquad.Highpass(isolationEdgeHz, biquad.ButterworthQ, sampleRate),
		biquad.Highpass(isolationEdgeHz, biquad.ButterworthQ, sampleRate),
	)
	chain.ProcessBlock(buf)
}

// Detected reports whether the score passes the detection threshold.
func (d *Detector) Detected(signal []float64, fromSeq uint64) bool {
	return d.Score(signal, fromSeq) >= DetectThreshold
}

// chipStream yields the deterministic +-1 chip sequence for one block.
type chipStream struct {
	state uint64
	word  uint64
	bits  int
}

func newChipStream(key, seq uint64) chipStream {
	return chipStream{state: key ^ seq*seqMixConstant}
}

func (c *chipStream) next() float64 {
	if c.bits == 0 {
		c.word = splitmix64(&c.state)
		c.bits = 64
	}
	bit := c.word & 1
	c.word >>= 1
	c.bits--
	if bit == 1 {
		return 1
	}
	return -1
}

// splitmix64 advances the state and returns the next mixed output word.
func splitmix64(state *uint64) uint64 {
	*state += seqMixConstant
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func blockRMS(buf []float64) float64 {
	sum := 0.0
	for _, v := range buf {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(buf)))
}

func clampAmplitude(amp float64) float64 {
	if amp < amplitudeMin {
		return amplitudeMin
	}
	if amp > amplitudeMax {
		return amplitudeMax
	}
	return amp
}
