// Package device abstracts block-oriented audio capture and render devices.
//
// Devices speak 16-bit PCM at the fixed session sample rate; conversion to
// the float64 processing domain happens at this boundary. Real hardware
// backends implement Opener; the in-memory simulator in sim.go backs tests
// and the loopback mode.
package device

import (
	"errors"
)

// ErrDisconnected is returned by a device once its underlying endpoint is
// gone. The session treats it as fatal for the running stream.
var ErrDisconnected = errors.New("audio device disconnected")

// InputDevice captures one block of samples per call.
type InputDevice interface {
	// ReadBlock fills dst with the next captured block, converting from
	// the device's 16-bit representation. It blocks until a full block is
	// available or the device fails.
	ReadBlock(dst []float64) error
	// Close releases the capture endpoint. Close is idempotent.
	Close() error
}

// OutputDevice renders one block of samples per call.
type OutputDevice interface {
	// WriteBlock renders src, converting to the device's 16-bit
	// representation.
	WriteBlock(src []float64) error
	// Close releases the render endpoint. Close is idempotent.
	Close() error
}

// Opener creates device endpoints by id. An empty id selects the backend's
// default device.
type Opener interface {
	OpenInput(id string, sampleRate float64, blockSize int) (InputDevice, error)
	OpenOutput(id string, sampleRate float64, blockSize int) (OutputDevice, error)
}

// Int16ToFloat converts 16-bit PCM samples to the [-1, 1) float64 domain.
func Int16ToFloat(dst []float64, src []int16) {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = float64(src[i]) / 32768
	}
}

// FloatToInt16 converts float64 samples to 16-bit PCM with clamping.
func FloatToInt16(dst []int16, src []float64) {
	n := min(len(dst), len(src))
	for i := range n {
		v := src[i] * 32767
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		dst[i] = int16(v)
	}
}
