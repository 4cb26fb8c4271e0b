// Package session runs the real-time voice masking loop over a pair of
// audio devices.
//
// A session owns three goroutines while Running: a capture loop clocked by
// the input device, the processing loop that transforms blocks, and a
// render loop clocked by the output device. The two block rings decouple
// them, so a slow stage overwrites oldest on the capture side and the
// render side substitutes silence when starved. Control operations (Start,
// Stop, SwitchProfile, SetEmotion) run on the caller's goroutine and
// communicate with the processing loop through atomics only, so the hot
// path never takes a lock.
package session

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cwbudde/voicemask/dsp/effects"
	"github.com/cwbudde/voicemask/internal/blockring"
	"github.com/cwbudde/voicemask/internal/device"
	"github.com/cwbudde/voicemask/internal/metrics"
	"github.com/cwbudde/voicemask/internal/pipeline"
	"github.com/cwbudde/voicemask/internal/profile"
	"github.com/cwbudde/voicemask/internal/vecmath"
	"github.com/cwbudde/voicemask/internal/watermark"
)

// Typed session errors.
var (
	// ErrSessionActive is returned by Start when the session is not Idle.
	ErrSessionActive = errors.New("session already active")
	// ErrDeviceUnavailable wraps a device open failure. The session stays
	// Idle and holds no device.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrProfileNotFound is returned when a profile id does not resolve in
	// the store.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrDeviceDisconnected is reported through Status once after a device
	// vanishes mid-stream. The session has already returned to Idle.
	ErrDeviceDisconnected = errors.New("audio device disconnected")
)

// State is the session lifecycle state.
type State int32

// Session lifecycle states.
const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config fixes the audio format and device selection for one session.
type Config struct {
	SampleRate   float64
	BlockSize    int
	RingCapacity int
	InputDevice  string
	OutputDevice string
	// WatermarkKey pins the watermark session key. Zero draws a random key.
	WatermarkKey uint64
}

// Status is a point-in-time snapshot of the session.
type Status struct {
	ID               string
	State            State
	Profile          string
	BlocksProcessed  uint64
	DroppedBlocks    uint64
	DeadlineOverruns uint64
	InputLevel       float64
	OutputLevel      float64
	// Err carries a fatal stream error exactly once after the session fell
	// back to Idle on its own.
	Err error
}

type emotionSetting struct {
	emotion   effects.Emotion
	intensity float64
}

// Session is an audio masking session. Create with New, drive with Start,
// SwitchProfile and Stop. All methods are safe for concurrent use.
type Session struct {
	id      uuid.UUID
	cfg     Config
	store   *profile.Store
	opener  device.Opener
	logger  *zap.Logger
	metrics *metrics.Collector

	mu   sync.Mutex
	in   device.InputDevice
	out  device.OutputDevice
	pipe *pipeline.Pipeline
	done chan struct{}

	capture *blockring.Ring
	render  *blockring.Ring

	captureReady chan struct{}
	renderReady  chan struct{}

	state   atomic.Int32
	stop    atomic.Bool
	active  atomic.Pointer[profile.Profile]
	emotion atomic.Pointer[emotionSetting]
	fatal   atomic.Pointer[error]

	blocksProcessed  atomic.Uint64
	deadlineOverruns atomic.Uint64
	inputLevel       atomic.Uint64
	outputLevel      atomic.Uint64
}

// New creates an Idle session over the given profile store and device
// backend. A nil logger logs nowhere; a nil collector records into a
// private registry.
func New(cfg Config, store *profile.Store, opener device.Opener, logger *zap.Logger, collector *metrics.Collector) (*Session, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("session: sample rate must be positive: %f", cfg.SampleRate)
	}
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("session: block size must be positive: %d", cfg.BlockSize)
	}
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = 8
	}
	if store == nil {
		return nil, fmt.Errorf("session: profile store must not be nil")
	}
	if opener == nil {
		return nil, fmt.Errorf("session: device opener must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewCollector("voicemask", prometheus.NewRegistry())
	}

	s := &Session{
		id:      uuid.New(),
		cfg:     cfg,
		store:   store,
		opener:  opener,
		logger:  logger,
		metrics: collector,
	}
	s.emotion.Store(&emotionSetting{emotion: effects.EmotionNeutral})
	return s, nil
}

// ID returns the session handle.
func (s *Session) ID() string { return s.id.String() }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Start opens the configured devices, activates profileID and launches the
// audio goroutine. On any failure the session stays Idle holding no device.
func (s *Session) Start(profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if State(s.state.Load()) != StateIdle {
		return ErrSessionActive
	}
	s.state.Store(int32(StateStarting))

	prof, err := s.store.Get(profileID)
	if err != nil {
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("%w: %q", ErrProfileNotFound, profileID)
	}

	key := s.cfg.WatermarkKey
	if key == 0 {
		key = watermark.NewSessionKey()
	}
	pipe, err := pipeline.New(s.cfg.SampleRate, s.cfg.BlockSize, key)
	if err != nil {
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("session: build pipeline: %w", err)
	}
	if err := pipe.SetProfile(prof); err != nil {
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("session: activate profile: %w", err)
	}
	em := s.emotion.Load()
	if err := pipe.SetEmotion(em.emotion, em.intensity); err != nil {
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("session: apply emotion: %w", err)
	}

	in, err := s.opener.OpenInput(s.cfg.InputDevice, s.cfg.SampleRate, s.cfg.BlockSize)
	if err != nil {
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("%w: input %q: %v", ErrDeviceUnavailable, s.cfg.InputDevice, err)
	}
	out, err := s.opener.OpenOutput(s.cfg.OutputDevice, s.cfg.SampleRate, s.cfg.BlockSize)
	if err != nil {
		_ = in.Close()
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("%w: output %q: %v", ErrDeviceUnavailable, s.cfg.OutputDevice, err)
	}

	capture, err := blockring.New(s.cfg.RingCapacity, s.cfg.BlockSize)
	if err != nil {
		_ = in.Close()
		_ = out.Close()
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("session: capture ring: %w", err)
	}
	render, err := blockring.New(s.cfg.RingCapacity, s.cfg.BlockSize)
	if err != nil {
		_ = in.Close()
		_ = out.Close()
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("session: render ring: %w", err)
	}

	s.in = in
	s.out = out
	s.pipe = pipe
	s.capture = capture
	s.render = render
	s.captureReady = make(chan struct{}, 1)
	s.renderReady = make(chan struct{}, 1)
	s.done = make(chan struct{})
	s.stop.Store(false)
	s.fatal.Store(nil)
	s.active.Store(prof)

	s.metrics.SessionsActive.Inc()
	s.metrics.ProfileSwitches.WithLabelValues(prof.ID).Inc()
	s.logger.Info("session started",
		zap.String("session", s.id.String()),
		zap.String("profile", prof.ID),
		zap.Float64("sample_rate", s.cfg.SampleRate),
		zap.Int("block_size", s.cfg.BlockSize))

	s.state.Store(int32(StateRunning))
	go s.run()
	return nil
}

// Stop asks the audio goroutine to exit and waits for the devices to be
// released. Stopping an Idle session is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch State(s.state.Load()) {
	case StateIdle, StateStopping:
		return nil
	}
	s.state.Store(int32(StateStopping))
	s.stop.Store(true)
	<-s.done
	s.state.Store(int32(StateIdle))

	s.logger.Info("session stopped", zap.String("session", s.id.String()))
	return nil
}

// SwitchProfile resolves id in the store and publishes it to the audio
// goroutine. The switch takes effect at the next block boundary.
func (s *Session) SwitchProfile(id string) error {
	prof, err := s.store.Get(id)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrProfileNotFound, id)
	}
	s.active.Store(prof)
	s.metrics.ProfileSwitches.WithLabelValues(prof.ID).Inc()
	s.logger.Info("profile switched",
		zap.String("session", s.id.String()),
		zap.String("profile", prof.ID))
	return nil
}

// SetEmotion publishes an emotion overlay. Intensity 0 or EmotionNeutral
// disables it.
func (s *Session) SetEmotion(emotion effects.Emotion, intensity float64) error {
	// Validate eagerly so the audio goroutine never sees a bad setting.
	probe, err := effects.NewEmotionModulator(s.cfg.SampleRate)
	if err != nil {
		return err
	}
	if err := probe.SetEmotion(emotion, intensity); err != nil {
		return err
	}
	s.emotion.Store(&emotionSetting{emotion: emotion, intensity: intensity})
	return nil
}

// Status returns a snapshot of the session. A fatal stream error is
// reported in exactly one snapshot.
func (s *Session) Status() Status {
	st := Status{
		ID:               s.id.String(),
		State:            State(s.state.Load()),
		BlocksProcessed:  s.blocksProcessed.Load(),
		DeadlineOverruns: s.deadlineOverruns.Load(),
		InputLevel:       math.Float64frombits(s.inputLevel.Load()),
		OutputLevel:      math.Float64frombits(s.outputLevel.Load()),
	}
	if prof := s.active.Load(); prof != nil {
		st.Profile = prof.ID
	}
	if capture, render := s.captureRing(), s.renderRing(); capture != nil {
		st.DroppedBlocks = capture.Dropped() + capture.Underruns() +
			render.Dropped() + render.Underruns()
	}
	if errp := s.fatal.Swap(nil); errp != nil {
		st.Err = *errp
	}
	return st
}

func (s *Session) captureRing() *blockring.Ring {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

func (s *Session) renderRing() *blockring.Ring {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.render
}

// run supervises the capture, processing and render loops. It exits when
// all three have returned on the stop flag or a failure, releases the
// devices and drops the state back to Idle.
func (s *Session) run() {
	blockPeriod := time.Duration(float64(s.cfg.BlockSize) / s.cfg.SampleRate * float64(time.Second))

	errs := make(chan error, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); errs <- s.captureLoop() }()
	go func() { defer wg.Done(); errs <- s.processLoop(blockPeriod) }()
	go func() { defer wg.Done(); errs <- s.renderLoop(blockPeriod) }()
	wg.Wait()
	close(errs)

	var streamErr error
	for err := range errs {
		if err != nil && streamErr == nil {
			streamErr = err
		}
	}
	s.teardown(streamErr)
}

// captureLoop is clocked by the input device. Each captured block is pushed
// into the capture ring; a full ring overwrites the oldest unread block and
// the ring counts the drop.
func (s *Session) captureLoop() error {
	block := make([]float64, s.cfg.BlockSize)

	for !s.stop.Load() {
		if err := s.in.ReadBlock(block); err != nil {
			s.stop.Store(true)
			return err
		}
		level := vecmath.RMS(block)
		s.inputLevel.Store(math.Float64bits(level))
		s.metrics.InputLevel.Set(level)

		if err := s.capture.Push(block); err != nil {
			s.stop.Store(true)
			return err
		}
		select {
		case s.captureReady <- struct{}{}:
		default:
		}
	}
	return nil
}

// processLoop is the audio transform goroutine. It drains the capture ring
// whenever blocks arrive, applies published profile and emotion changes at
// block boundaries, and feeds the render ring. The timer wake bounds how
// long a stop request can go unobserved.
func (s *Session) processLoop(blockPeriod time.Duration) error {
	block := make([]float64, s.cfg.BlockSize)
	applied := s.active.Load()
	appliedEmotion := s.emotion.Load()

	wake := time.NewTimer(blockPeriod)
	defer wake.Stop()

	for {
		select {
		case <-s.captureReady:
		case <-wake.C:
		}
		wake.Reset(blockPeriod)

		if s.stop.Load() {
			return nil
		}

		dropsBefore := s.dropCount()

		for s.capture.Len() > 0 {
			started := time.Now()
			if _, err := s.capture.Pop(block); err != nil {
				s.stop.Store(true)
				return err
			}

			if prof := s.active.Load(); prof != applied {
				if err := s.pipe.SetProfile(prof); err == nil {
					applied = prof
				}
			}
			if em := s.emotion.Load(); em != appliedEmotion {
				if err := s.pipe.SetEmotion(em.emotion, em.intensity); err == nil {
					appliedEmotion = em
				}
			}

			if err := s.pipe.Process(block); err != nil {
				s.stop.Store(true)
				return err
			}

			if err := s.render.Push(block); err != nil {
				s.stop.Store(true)
				return err
			}
			select {
			case s.renderReady <- struct{}{}:
			default:
			}

			s.blocksProcessed.Add(1)
			s.metrics.BlocksProcessed.Inc()
			if time.Since(started) > blockPeriod {
				s.deadlineOverruns.Add(1)
				s.metrics.DeadlineOverruns.Inc()
			}
		}

		if delta := s.dropCount() - dropsBefore; delta > 0 {
			s.metrics.BlocksDropped.Add(float64(delta))
		}
	}
}

// renderLoop is clocked by the output device. When no block arrives within
// two block periods it emits silence, so a starved pipeline keeps the
// output clock running instead of stalling it.
func (s *Session) renderLoop(blockPeriod time.Duration) error {
	block := make([]float64, s.cfg.BlockSize)

	wake := time.NewTimer(2 * blockPeriod)
	defer wake.Stop()

	for {
		starved := false
		select {
		case <-s.renderReady:
		case <-wake.C:
			starved = true
		}
		wake.Reset(2 * blockPeriod)

		if s.stop.Load() {
			return nil
		}

		if starved && s.render.Len() == 0 {
			// Pop on the empty ring zeroes the block and counts the
			// underrun.
			if _, err := s.render.Pop(block); err != nil {
				s.stop.Store(true)
				return err
			}
			if err := s.writeOut(block); err != nil {
				return err
			}
			continue
		}

		for s.render.Len() > 0 {
			if _, err := s.render.Pop(block); err != nil {
				s.stop.Store(true)
				return err
			}
			if err := s.writeOut(block); err != nil {
				return err
			}
		}
	}
}

// writeOut renders one block and records the output level.
func (s *Session) writeOut(block []float64) error {
	if err := s.out.WriteBlock(block); err != nil {
		s.stop.Store(true)
		return err
	}
	level := vecmath.RMS(block)
	s.outputLevel.Store(math.Float64bits(level))
	s.metrics.OutputLevel.Set(level)
	return nil
}

// dropCount sums the overwrite and underrun counters of both rings.
func (s *Session) dropCount() uint64 {
	return s.capture.Dropped() + s.capture.Underruns() +
		s.render.Dropped() + s.render.Underruns()
}

// teardown releases the devices and returns the session to Idle. Called
// exactly once per run, after all three loops have returned.
func (s *Session) teardown(streamErr error) {
	_ = s.in.Close()
	_ = s.out.Close()
	s.metrics.SessionsActive.Dec()

	if streamErr != nil {
		fatal := streamErr
		if errors.Is(streamErr, device.ErrDisconnected) {
			fatal = fmt.Errorf("%w: %v", ErrDeviceDisconnected, streamErr)
		}
		s.fatal.Store(&fatal)
		s.logger.Warn("session stream failed",
			zap.String("session", s.id.String()),
			zap.Error(streamErr))
	}

	s.state.Store(int32(StateIdle))
	close(s.done)
}
