package device

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt16RoundTrip(t *testing.T) {
	pcm := []int16{-32768, -1, 0, 1, 16384, 32767}
	floats := make([]float64, len(pcm))
	Int16ToFloat(floats, pcm)

	back := make([]int16, len(pcm))
	FloatToInt16(back, floats)

	for i := range pcm {
		assert.InDelta(t, pcm[i], back[i], 1, "sample %d", i)
	}
}

func TestFloatToInt16Clamps(t *testing.T) {
	dst := make([]int16, 4)
	FloatToInt16(dst, []float64{2, -2, 1.0001, -1.0001})

	assert.EqualValues(t, 32767, dst[0])
	assert.EqualValues(t, -32768, dst[1])
	assert.EqualValues(t, 32767, dst[2])
	assert.EqualValues(t, -32768, dst[3])
}

func TestSimInputTone(t *testing.T) {
	opener := NewSimOpener()

	in, err := opener.OpenInput("", 44100, 1024)
	require.NoError(t, err)

	buf := make([]float64, 1024)
	require.NoError(t, in.ReadBlock(buf))

	// The tone is continuous across blocks.
	buf2 := make([]float64, 1024)
	require.NoError(t, in.ReadBlock(buf2))

	want := 0.5 * math.Sin(2*math.Pi*440*1024/44100)
	assert.InDelta(t, want, buf2[0], 1e-3)

	peak := 0.0
	for _, v := range buf {
		peak = math.Max(peak, math.Abs(v))
	}
	assert.InDelta(t, 0.5, peak, 0.01)
}

func TestSimOutputRecords(t *testing.T) {
	opener := NewSimOpener()

	out, err := opener.OpenOutput("", 44100, 4)
	require.NoError(t, err)

	simOut := out.(*SimOutput)
	require.NoError(t, out.WriteBlock([]float64{0.25, -0.25, 0.5, -0.5}))

	rendered := simOut.Rendered()
	require.Len(t, rendered, 4)
	assert.InDelta(t, 0.25, rendered[0], 1e-3)
	assert.InDelta(t, -0.5, rendered[3], 1e-3)
}

func TestSimOutputRetainsBoundedTail(t *testing.T) {
	opener := NewSimOpener()

	const blockSize = 4096
	out, err := opener.OpenOutput("", 44100, blockSize)
	require.NoError(t, err)
	simOut := out.(*SimOutput)

	block := make([]float64, blockSize)
	blocks := renderedMaxSamples/blockSize + 4
	for b := range blocks {
		for i := range block {
			block[i] = float64(b) / float64(blocks)
		}
		require.NoError(t, out.WriteBlock(block))
	}

	rendered := simOut.Rendered()
	require.LessOrEqual(t, len(rendered), renderedMaxSamples)
	// The last written block must still be present at the tail.
	want := float64(blocks-1) / float64(blocks)
	assert.InDelta(t, want, rendered[len(rendered)-1], 1e-3)
}

func TestSimRealtimePacing(t *testing.T) {
	opener := NewSimOpener()
	opener.Realtime = true

	// 64 samples at 16 kHz is a 4 ms block period.
	in, err := opener.OpenInput("", 16000, 64)
	require.NoError(t, err)

	buf := make([]float64, 64)
	require.NoError(t, in.ReadBlock(buf))

	start := time.Now()
	for range 4 {
		require.NoError(t, in.ReadBlock(buf))
	}
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond,
		"paced reads must track the device clock")
}

func TestDisconnectPropagates(t *testing.T) {
	opener := NewSimOpener()

	in, err := opener.OpenInput("", 44100, 64)
	require.NoError(t, err)
	out, err := opener.OpenOutput("", 44100, 64)
	require.NoError(t, err)

	opener.DisconnectAll()

	buf := make([]float64, 64)
	assert.ErrorIs(t, in.ReadBlock(buf), ErrDisconnected)
	assert.ErrorIs(t, out.WriteBlock(buf), ErrDisconnected)
}

func TestFailOpen(t *testing.T) {
	opener := NewSimOpener()
	opener.FailOpen = true

	_, err := opener.OpenInput("mic0", 44100, 1024)
	assert.Error(t, err)

	_, err = opener.OpenOutput("spk0", 44100, 1024)
	assert.Error(t, err)
}

func TestBlockLengthChecked(t *testing.T) {
	opener := NewSimOpener()

	in, err := opener.OpenInput("", 44100, 128)
	require.NoError(t, err)
	assert.Error(t, in.ReadBlock(make([]float64, 64)))

	out, err := opener.OpenOutput("", 44100, 128)
	require.NoError(t, err)
	assert.Error(t, out.WriteBlock(make([]float64, 64)))
}
