package effects

import (
	"fmt"
	"math"
)

const (
	defaultCompThresholdDB = -20.0
	defaultCompRatio       = 4.0
	defaultCompAttackMs    = 10.0
	defaultCompReleaseMs   = 100.0

	compEnvelopeFloor = 1e-6
)

// Compression is a feed-forward compressor with a peak envelope detector.
// The radio-announcer profile uses it to even out the broadcast voice; a
// static makeup gain recovers half the reduction applied at full scale.
type Compression struct {
	sampleRate  float64
	thresholdDB float64
	ratio       float64

	attackCoeff  float64
	releaseCoeff float64
	makeup       float64

	envelope float64
}

// NewCompression creates a compressor with broadcast-style settings.
func NewCompression(sampleRate float64) (*Compression, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("compression sample rate must be positive and finite: %f", sampleRate)
	}

	c := &Compression{
		sampleRate:   sampleRate,
		thresholdDB:  defaultCompThresholdDB,
		ratio:        defaultCompRatio,
		attackCoeff:  onePoleCoeff(defaultCompAttackMs, sampleRate),
		releaseCoeff: onePoleCoeff(defaultCompReleaseMs, sampleRate),
	}
	c.updateMakeup()

	return c, nil
}

// SampleRate returns the sample rate in Hz.
func (c *Compression) SampleRate() float64 { return c.sampleRate }

// ThresholdDB returns the threshold in dBFS.
func (c *Compression) ThresholdDB() float64 { return c.thresholdDB }

// Ratio returns the compression ratio.
func (c *Compression) Ratio() float64 { return c.ratio }

// SetThresholdDB updates the threshold. It must be in [-60, 0].
func (c *Compression) SetThresholdDB(threshold float64) error {
	if threshold < -60 || threshold > 0 || !isFinite(threshold) {
		return fmt.Errorf("compression threshold must be in [-60, 0] dB: %f", threshold)
	}
	c.thresholdDB = threshold
	c.updateMakeup()
	return nil
}

// SetRatio updates the compression ratio. It must be >= 1.
func (c *Compression) SetRatio(ratio float64) error {
	if ratio < 1 || !isFinite(ratio) {
		return fmt.Errorf("compression ratio must be >= 1: %f", ratio)
	}
	c.ratio = ratio
	c.updateMakeup()
	return nil
}

// Name returns the registry name.
func (c *Compression) Name() string { return NameCompression }

// Reset clears the envelope detector.
func (c *Compression) Reset() {
	c.envelope = 0
}

// ProcessInPlace compresses buf in place.
func (c *Compression) ProcessInPlace(buf []float64) {
	for i, x := range buf {
		level := x
		if level < 0 {
			level = -level
		}
		coeff := c.releaseCoeff
		if level > c.envelope {
			coeff = c.attackCoeff
		}
		c.envelope = level + coeff*(c.envelope-level)

		gain := 1.0
		levelDB := 20 * math.Log10(c.envelope+compEnvelopeFloor)
		if levelDB > c.thresholdDB {
			overDB := levelDB - c.thresholdDB
			reducedDB := overDB - overDB/c.ratio
			gain = math.Pow(10, -reducedDB/20)
		}

		buf[i] = x * gain * c.makeup
	}
}

func (c *Compression) updateMakeup() {
	fullScaleReduction := -c.thresholdDB * (1 - 1/c.ratio)
	c.makeup = math.Pow(10, fullScaleReduction/2/20)
}
