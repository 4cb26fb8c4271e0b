package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/voicemask/dsp/effects"
	"github.com/cwbudde/voicemask/internal/profile"
	"github.com/cwbudde/voicemask/internal/watermark"
)

const (
	testRate      = 44100.0
	testBlockSize = 1024
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(testRate, testBlockSize, 12345)
	require.NoError(t, err)
	return p
}

func sineBlock(freq float64, offset int) []float64 {
	buf := make([]float64, testBlockSize)
	for i := range buf {
		buf[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(offset+i)/testRate)
	}
	return buf
}

func rms(buf []float64) float64 {
	sum := 0.0
	for _, v := range buf {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(buf)))
}

func TestProcessRejectsWrongBlockLength(t *testing.T) {
	p := newTestPipeline(t)
	assert.Error(t, p.Process(make([]float64, 512)))
}

func TestUnityProfileNearIdentity(t *testing.T) {
	p := newTestPipeline(t)

	store := profile.NewStore()
	original, err := store.Get("original")
	require.NoError(t, err)
	require.NoError(t, p.SetProfile(original))

	for block := range 8 {
		buf := sineBlock(440, block*testBlockSize)
		want := append([]float64(nil), buf...)

		require.NoError(t, p.Process(buf))

		require.Len(t, buf, testBlockSize)
		for i := range buf {
			// Only the watermark separates output from input.
			assert.LessOrEqual(t, math.Abs(buf[i]-want[i]), 1e-3+1e-12,
				"block %d sample %d", block, i)
		}
	}
}

func TestBlockLengthAlwaysPreserved(t *testing.T) {
	p := newTestPipeline(t)

	store := profile.NewStore()
	for _, prof := range store.List() {
		require.NoError(t, p.SetProfile(prof))
		buf := sineBlock(220, 0)
		require.NoError(t, p.Process(buf))
		assert.Len(t, buf, testBlockSize, "profile %s", prof.ID)

		for i, v := range buf {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0),
				"profile %s produced non-finite sample at %d", prof.ID, i)
		}
	}
}

func TestOutputBounded(t *testing.T) {
	p := newTestPipeline(t)

	store := profile.NewStore()
	monster, err := store.Get("monster")
	require.NoError(t, err)
	require.NoError(t, p.SetProfile(monster))

	for block := range 16 {
		buf := sineBlock(220, block*testBlockSize)
		for i := range buf {
			buf[i] *= 1.9
		}
		require.NoError(t, p.Process(buf))

		// The guard clamps to full scale; only the watermark may sit on top.
		for i, v := range buf {
			require.LessOrEqual(t, math.Abs(v), 1.0+1e-3, "block %d sample %d", block, i)
		}
	}
}

func TestSetProfileRejectsInvalid(t *testing.T) {
	p := newTestPipeline(t)

	assert.Error(t, p.SetProfile(nil))

	bad := &profile.Profile{
		ID: "bad", DisplayName: "Bad", PitchRatio: -1, FormantRatio: 1,
	}
	assert.ErrorIs(t, p.SetProfile(bad), profile.ErrInvalidParameters)
}

func TestProfileSwitchKeepsSharedStageState(t *testing.T) {
	p := newTestPipeline(t)

	store := profile.NewStore()
	announcer, err := store.Get("radio-announcer")
	require.NoError(t, err)
	child, err := store.Get("child")
	require.NoError(t, err)

	require.NoError(t, p.SetProfile(announcer))
	for block := range 4 {
		require.NoError(t, p.Process(sineBlock(330, block*testBlockSize)))
	}

	// announcer and child share the brightness stage; switching must not
	// disturb the stream.
	require.NoError(t, p.SetProfile(child))
	assert.Equal(t, "child", p.Profile().ID)

	buf := sineBlock(330, 4*testBlockSize)
	require.NoError(t, p.Process(buf))
	assert.Greater(t, rms(buf), 0.0)
}

func TestSetProfileSelectsWithoutAllocating(t *testing.T) {
	p := newTestPipeline(t)

	store := profile.NewStore()
	robot, err := store.Get("robot")
	require.NoError(t, err)
	whisper, err := store.Get("whisper")
	require.NoError(t, err)

	require.NoError(t, p.SetProfile(robot))
	require.NoError(t, p.SetProfile(whisper))

	// Every registered stage is built in New; a switch only selects from
	// the pool, so it must not allocate on the audio goroutine.
	allocs := testing.AllocsPerRun(50, func() {
		if err := p.SetProfile(robot); err != nil {
			t.Error(err)
		}
		if err := p.SetProfile(whisper); err != nil {
			t.Error(err)
		}
	})
	assert.Zero(t, allocs, "profile switch allocated on the audio path")
}

func TestMidStreamSwitchStaysFinite(t *testing.T) {
	p := newTestPipeline(t)

	store := profile.NewStore()
	deep, err := store.Get("deep-male")
	require.NoError(t, err)
	child, err := store.Get("child")
	require.NoError(t, err)

	require.NoError(t, p.SetProfile(deep))
	for block := range 8 {
		buf := sineBlock(220, block*testBlockSize)
		require.NoError(t, p.Process(buf))
	}

	require.NoError(t, p.SetProfile(child))
	for block := 8; block < 16; block++ {
		buf := sineBlock(220, block*testBlockSize)
		require.NoError(t, p.Process(buf))
		for i, v := range buf {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0),
				"sample %d after switch", i)
		}
	}
}

func TestEmotionLayersOnPitchRatio(t *testing.T) {
	p := newTestPipeline(t)

	store := profile.NewStore()
	deep, err := store.Get("deep-male")
	require.NoError(t, err)
	require.NoError(t, p.SetProfile(deep))

	require.NoError(t, p.SetEmotion(effects.EmotionHappiness, 1))

	// 0.7 * 1.1 = 0.77: still a downward shift, but measurably higher
	// than the plain profile.
	const inputHz = 440.0
	output := make([]float64, 0, 48*testBlockSize)
	for block := range 48 {
		buf := sineBlock(inputHz, block*testBlockSize)
		require.NoError(t, p.Process(buf))
		output = append(output, buf...)
	}

	tail := output[len(output)/2:]
	gotHz := zeroCrossingFrequency(tail, float64(len(tail))/testRate)
	assert.InDelta(t, inputHz*0.77, gotHz, 0.1*inputHz*0.77)
}

func TestEmotionValidation(t *testing.T) {
	p := newTestPipeline(t)
	assert.Error(t, p.SetEmotion("rage", 0.5))
	assert.Error(t, p.SetEmotion(effects.EmotionFear, 2))
}

func TestWatermarkAlwaysEmbedded(t *testing.T) {
	p := newTestPipeline(t)

	store := profile.NewStore()
	original, err := store.Get("original")
	require.NoError(t, err)
	require.NoError(t, p.SetProfile(original))

	const blocks = 8
	signal := make([]float64, 0, blocks*testBlockSize)
	for range blocks {
		buf := make([]float64, testBlockSize)
		require.NoError(t, p.Process(buf))
		signal = append(signal, buf...)
	}

	assert.EqualValues(t, blocks, p.WatermarkState())

	d, err := watermark.NewDetector(testRate, 12345, testBlockSize)
	require.NoError(t, err)
	assert.True(t, d.Detected(signal, 0), "silence blocks must still carry the signature")
}

func TestResetRewindsWatermark(t *testing.T) {
	p := newTestPipeline(t)

	store := profile.NewStore()
	original, err := store.Get("original")
	require.NoError(t, err)
	require.NoError(t, p.SetProfile(original))

	require.NoError(t, p.Process(make([]float64, testBlockSize)))
	require.EqualValues(t, 1, p.WatermarkState())

	p.Reset()
	assert.EqualValues(t, 0, p.WatermarkState())
	assert.Equal(t, "original", p.Profile().ID)
}

func zeroCrossingFrequency(buf []float64, seconds float64) float64 {
	crossings := 0
	for i := 1; i < len(buf); i++ {
		if buf[i-1] <= 0 && buf[i] > 0 {
			crossings++
		}
	}
	return float64(crossings) / seconds
}
