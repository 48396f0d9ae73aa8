// Package audio defines the capability interfaces for audio device access
// within Cadenza.
//
// The two primary abstractions are:
//
//   - [MicrophoneSource] — opens a capture stream on an input device and
//     delivers [Frame] values.
//   - [Sink] — loads a song file and plays it back with a sample-accurate
//     position clock.
//
// Implementations are provided by device-specific adapter packages
// (audio/portaudio, audio/beepsink). The interfaces are intentionally narrow
// so the scoring engine and the session controller can be tested against the
// mock package without touching real hardware.
package audio

import (
	"context"
	"errors"
)

// Capture errors surfaced by [MicrophoneSource.Open]. These are
// fatal-to-start conditions: the caller reports them and does not retry.
var (
	// ErrNoInputDevice indicates no usable microphone was found.
	ErrNoInputDevice = errors.New("audio: no input device available")

	// ErrDeviceBusy indicates the input device is claimed by another process.
	ErrDeviceBusy = errors.New("audio: input device busy")
)

// CaptureConfig describes the desired capture format.
type CaptureConfig struct {
	// SampleRate is the capture rate in Hz. Must be a rate the device
	// supports; 16000 is the usual choice for speech pipelines.
	SampleRate int

	// FrameSize is the number of samples per delivered [Frame]. Smaller
	// frames lower analysis latency at the cost of more wakeups.
	FrameSize int
}

// CaptureStream is an open microphone stream. Exactly one consumer should
// range over Frames. Close stops the device and closes the channel; it is
// safe to call more than once.
type CaptureStream interface {
	// Frames returns the channel delivering captured audio. The channel is
	// closed when the stream ends, whether by Close or by device failure.
	Frames() <-chan Frame

	// Close stops capture and releases the device.
	Close() error
}

// MicrophoneSource opens capture streams on an input device.
//
// Implementations must be safe for concurrent use, but a device usually
// supports only one open stream at a time; a second Open while a stream is
// active returns [ErrDeviceBusy].
type MicrophoneSource interface {
	// Open starts capturing with the given format. The returned stream is
	// live immediately. Open fails with [ErrNoInputDevice] when no
	// microphone exists and [ErrDeviceBusy] when the device is taken.
	Open(ctx context.Context, cfg CaptureConfig) (CaptureStream, error)
}
