package session

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/voicemask/dsp/effects"
	"github.com/cwbudde/voicemask/dsp/spectrum"
	"github.com/cwbudde/voicemask/internal/device"
	"github.com/cwbudde/voicemask/internal/profile"
)

func testConfig() Config {
	return Config{
		SampleRate:   44100,
		BlockSize:    1024,
		RingCapacity: 8,
		WatermarkKey: 12345,
	}
}

func newTestSession(t *testing.T) (*Session, *device.SimOpener) {
	t.Helper()
	opener := device.NewSimOpener()
	// Paced devices keep the loops in lockstep, like hardware endpoints.
	opener.Realtime = true
	sess, err := New(testConfig(), profile.NewStore(), opener, nil, nil)
	require.NoError(t, err)
	return sess, opener
}

// tonePower measures the spectral power of buf at the given frequency.
func tonePower(t *testing.T, buf []float64, freq float64) float64 {
	t.Helper()
	power, err := spectrum.AnalyzeBlock(buf, freq, 44100)
	require.NoError(t, err)
	return power
}

func waitBlocks(t *testing.T, sess *Session, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sess.Status().BlocksProcessed >= n
	}, 5*time.Second, time.Millisecond)
}

func TestNewValidation(t *testing.T) {
	opener := device.NewSimOpener()
	store := profile.NewStore()

	_, err := New(Config{SampleRate: 0, BlockSize: 1024}, store, opener, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{SampleRate: 44100, BlockSize: 0}, store, opener, nil, nil)
	assert.Error(t, err)

	_, err = New(testConfig(), nil, opener, nil, nil)
	assert.Error(t, err)

	_, err = New(testConfig(), store, nil, nil, nil)
	assert.Error(t, err)
}

func TestStartUnknownProfile(t *testing.T) {
	sess, opener := newTestSession(t)

	err := sess.Start("no-such-voice")
	require.ErrorIs(t, err, ErrProfileNotFound)
	assert.Equal(t, StateIdle, sess.State())
	assert.Empty(t, opener.Inputs(), "no device may be opened on a failed start")
}

func TestStartDeviceUnavailable(t *testing.T) {
	opener := device.NewSimOpener()
	opener.FailOpen = true
	sess, err := New(testConfig(), profile.NewStore(), opener, nil, nil)
	require.NoError(t, err)

	err = sess.Start("robot")
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, StateIdle, sess.State())
}

// outputFailOpener opens inputs normally but has no output device,
// exercising the no-partial-allocation guarantee.
type outputFailOpener struct {
	*device.SimOpener
}

func (o outputFailOpener) OpenOutput(id string, sampleRate float64, blockSize int) (device.OutputDevice, error) {
	_, err := (&device.SimOpener{FailOpen: true}).OpenOutput(id, sampleRate, blockSize)
	return nil, err
}

func TestStartReleasesInputWhenOutputFails(t *testing.T) {
	opener := outputFailOpener{device.NewSimOpener()}
	sess, err := New(testConfig(), profile.NewStore(), opener, nil, nil)
	require.NoError(t, err)

	err = sess.Start("robot")
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, StateIdle, sess.State())

	inputs := opener.Inputs()
	require.Len(t, inputs, 1)
	assert.Error(t, inputs[0].ReadBlock(make([]float64, 1024)), "input must be closed after a failed start")
}

func TestStartTwice(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.Start("original"))
	defer sess.Stop() //nolint:errcheck

	assert.ErrorIs(t, sess.Start("original"), ErrSessionActive)
}

func TestRobotSineScenario(t *testing.T) {
	sess, opener := newTestSession(t)
	require.NoError(t, sess.Start("robot"))

	waitBlocks(t, sess, 32)
	require.NoError(t, sess.Stop())
	assert.Equal(t, StateIdle, sess.State())

	outputs := opener.Outputs()
	require.Len(t, outputs, 1)
	rendered := outputs[0].Rendered()
	require.NotEmpty(t, rendered)

	var peak float64
	for _, v := range rendered {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	assert.Greater(t, peak, 0.01, "robot output should carry signal")
	assert.LessOrEqual(t, peak, 1.0)
}

func TestSwitchProfileMidStream(t *testing.T) {
	sess, opener := newTestSession(t)
	require.NoError(t, sess.Start("deep-male"))

	waitBlocks(t, sess, 16)
	require.NoError(t, sess.SwitchProfile("child"))
	require.Eventually(t, func() bool {
		return sess.Status().Profile == "child"
	}, 5*time.Second, time.Millisecond)
	waitBlocks(t, sess, sess.Status().BlocksProcessed+24)
	require.NoError(t, sess.Stop())

	rendered := opener.Outputs()[0].Rendered()
	require.NotEmpty(t, rendered)
	for _, v := range rendered {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}

	// The 440 Hz input tone lands at 440*1.6 = 704 Hz under child and at
	// 440*0.7 = 308 Hz under deep-male. Well after the switch the output
	// must carry the child fundamental, not the old one.
	require.GreaterOrEqual(t, len(rendered), 8192)
	tail := rendered[len(rendered)-8192:]
	childPower := tonePower(t, tail, 440*1.6)
	malePower := tonePower(t, tail, 440*0.7)
	assert.Greater(t, childPower, 3*malePower,
		"post-switch output must reflect the child pitch ratio")
	assert.Greater(t, childPower, 0.0)
}

func TestSustainedOverloadCountsDrops(t *testing.T) {
	// A free-running input floods the capture ring faster than the
	// transform drains it, so the ring overwrites oldest and the dropped
	// counter climbs monotonically.
	opener := device.NewSimOpener()
	sess, err := New(testConfig(), profile.NewStore(), opener, nil, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Start("original"))

	require.Eventually(t, func() bool {
		return sess.Status().DroppedBlocks > 0
	}, 5*time.Second, time.Millisecond)

	first := sess.Status().DroppedBlocks
	require.Eventually(t, func() bool {
		return sess.Status().DroppedBlocks > first
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, sess.Stop())
}

func TestSwitchProfileUnknown(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.Start("original"))
	defer sess.Stop() //nolint:errcheck

	err := sess.SwitchProfile("no-such-voice")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.Equal(t, "original", sess.Status().Profile)
}

func TestDoubleStop(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.Start("original"))

	require.NoError(t, sess.Stop())
	require.NoError(t, sess.Stop())
	assert.Equal(t, StateIdle, sess.State())
}

func TestStopIdleIsNoOp(t *testing.T) {
	sess, _ := newTestSession(t)
	assert.NoError(t, sess.Stop())
}

func TestDisconnectReportedOnce(t *testing.T) {
	sess, opener := newTestSession(t)
	require.NoError(t, sess.Start("original"))

	waitBlocks(t, sess, 8)
	opener.DisconnectAll()

	require.Eventually(t, func() bool {
		return sess.State() == StateIdle
	}, 5*time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		return sess.Status().Err != nil
	}, time.Second, time.Millisecond)
	// The snapshot above consumed the error.
	assert.NoError(t, sess.Status().Err)
}

func TestStatusSnapshot(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.Start("original"))
	waitBlocks(t, sess, 8)

	st := sess.Status()
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, "original", st.Profile)
	assert.GreaterOrEqual(t, st.BlocksProcessed, uint64(8))
	// The simulated tone is a half-scale sine, RMS 0.5/sqrt(2).
	assert.InDelta(t, 0.5/math.Sqrt2, st.InputLevel, 0.05)
	assert.False(t, math.IsNaN(st.OutputLevel))

	require.NoError(t, sess.Stop())
}

func TestSetEmotion(t *testing.T) {
	sess, _ := newTestSession(t)

	assert.Error(t, sess.SetEmotion("boredom", 0.5))
	assert.Error(t, sess.SetEmotion(effects.EmotionHappiness, 1.5))
	require.NoError(t, sess.SetEmotion(effects.EmotionHappiness, 0.6))

	require.NoError(t, sess.Start("original"))
	waitBlocks(t, sess, 16)
	require.NoError(t, sess.SetEmotion(effects.EmotionNeutral, 0))
	waitBlocks(t, sess, sess.Status().BlocksProcessed+8)
	require.NoError(t, sess.Stop())
}

func TestRestartAfterStop(t *testing.T) {
	sess, _ := newTestSession(t)

	require.NoError(t, sess.Start("original"))
	waitBlocks(t, sess, 4)
	require.NoError(t, sess.Stop())

	require.NoError(t, sess.Start("robot"))
	waitBlocks(t, sess, 4)
	require.NoError(t, sess.Stop())
	assert.Equal(t, "robot", sess.Status().Profile)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "state(9)", State(9).String())
}
