package watermark

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate      = 44100.0
	testBlockSize = 1024
)

func TestEmbedderValidation(t *testing.T) {
	_, err := NewEmbedder(0, 1)
	assert.Error(t, err)

	_, err = NewEmbedder(16000, 1)
	assert.Error(t, err, "carrier above Nyquist must be rejected")

	_, err = NewDetector(testRate, 1, 0)
	assert.Error(t, err)
}

func TestEmbedderStaysInaudible(t *testing.T) {
	e, err := NewEmbedder(testRate, NewSessionKey())
	require.NoError(t, err)

	buf := make([]float64, testBlockSize)
	for i := range buf {
		buf[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/testRate)
	}
	original := append([]float64(nil), buf...)

	e.ProcessInPlace(buf)

	for i := range buf {
		assert.LessOrEqual(t, math.Abs(buf[i]-original[i]), 1e-3+1e-12,
			"sample %d deviates audibly", i)
	}
}

func TestSequenceAdvances(t *testing.T) {
	e, err := NewEmbedder(testRate, 42)
	require.NoError(t, err)

	assert.EqualValues(t, 0, e.State())

	buf := make([]float64, testBlockSize)
	e.ProcessInPlace(buf)
	e.ProcessInPlace(buf)

	assert.EqualValues(t, 2, e.State())

	e.Reset()
	assert.EqualValues(t, 0, e.State())
}

func TestRoundTripDetection(t *testing.T) {
	key := uint64(0xdeadbeefcafe1234)

	e, err := NewEmbedder(testRate, key)
	require.NoError(t, err)

	// Embed into silence over several blocks so the detector sees the
	// pure signature.
	const blocks = 8
	signal := make([]float64, blocks*testBlockSize)
	for b := range blocks {
		e.ProcessInPlace(signal[b*testBlockSize : (b+1)*testBlockSize])
	}

	d, err := NewDetector(testRate, key, testBlockSize)
	require.NoError(t, err)

	score := d.Score(signal, 0)
	assert.Greater(t, score, 0.99, "pure signature should correlate almost perfectly")
	assert.True(t, d.Detected(signal, 0))
}

func TestDetectionRejectsWrongKey(t *testing.T) {
	e, err := NewEmbedder(testRate, 1111)
	require.NoError(t, err)

	const blocks = 8
	signal := make([]float64, blocks*testBlockSize)
	for b := range blocks {
		e.ProcessInPlace(signal[b*testBlockSize : (b+1)*testBlockSize])
	}

	d, err := NewDetector(testRate, 2222, testBlockSize)
	require.NoError(t, err)

	score := d.Score(signal, 0)
	assert.Less(t, math.Abs(score), 0.2, "wrong key should not correlate")
	assert.False(t, d.Detected(signal, 0))
}

func TestDetectionRejectsWrongSequence(t *testing.T) {
	key := uint64(777)

	e, err := NewEmbedder(testRate, key)
	require.NoError(t, err)

	const blocks = 8
	signal := make([]float64, blocks*testBlockSize)
	for b := range blocks {
		e.ProcessInPlace(signal[b*testBlockSize : (b+1)*testBlockSize])
	}

	d, err := NewDetector(testRate, key, testBlockSize)
	require.NoError(t, err)

	score := d.Score(signal, 3)
	assert.Less(t, math.Abs(score), 0.2, "shifted sequence should not correlate")
}

func TestDetectionSurvivesVoiceBackground(t *testing.T) {
	key := uint64(31415)

	e, err := NewEmbedder(testRate, key)
	require.NoError(t, err)

	// Voiced energy dwarfs the signature in the full band; band isolation
	// must still recover it.
	const blocks = 32
	signal := make([]float64, blocks*testBlockSize)
	for i := range signal {
		signal[i] = 0.3 * math.Sin(2*math.Pi*220*float64(i)/testRate)
	}
	for b := range blocks {
		e.ProcessInPlace(signal[b*testBlockSize : (b+1)*testBlockSize])
	}

	d, err := NewDetector(testRate, key, testBlockSize)
	require.NoError(t, err)

	score := d.Score(signal, 0)
	assert.Greater(t, score, DetectThreshold,
		"signature must survive a loud voiced background")
	assert.True(t, d.Detected(signal, 0))

	wrong, err := NewDetector(testRate, key+1, testBlockSize)
	require.NoError(t, err)
	assert.False(t, wrong.Detected(signal, 0))
}

func TestNewSessionKeyVaries(t *testing.T) {
	a := NewSessionKey()
	b := NewSessionKey()
	assert.NotEqual(t, a, b)
}
