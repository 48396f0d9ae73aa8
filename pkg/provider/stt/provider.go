// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription engine (e.g., a local whisper.cpp
// model) and exposes a uniform streaming interface. The central abstraction
// is [SessionHandle]: once opened, a session accepts raw PCM audio frames and
// emits two streams of [Transcript] values — low-latency interims for live
// display and authoritative finals that drive scoring.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech is reported by providers that give up on a silent stream. It is
// a recoverable condition: callers reattach a fresh session after a short
// cooldown rather than failing.
var ErrNoSpeech = errors.New("stt: no speech detected")

// StreamConfig describes the audio format and recognition hints for a new
// session. All fields must be compatible with what the underlying provider
// supports.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 is the usual choice
	// for speech pipelines.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// engines). Implementors may downmix internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// Empty lets the provider auto-detect, if supported.
	Language string
}

// SessionHandle represents an open streaming transcription session. It is an
// interface so test code can supply mock implementations without a live
// engine.
//
// Callers must call Close when the session is no longer needed; failing to do
// so may leak goroutines inside the provider. All methods must be safe for
// concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw little-endian 16-bit PCM for
	// transcription. The chunk must match the SampleRate and Channels agreed
	// in StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Interims returns a read-only channel emitting still-resolving
	// Transcript values. Interims may be superseded by later interims or by
	// a final for the same utterance; they are for live display only and
	// must never trigger scoring. The channel is closed when the session
	// ends.
	Interims() <-chan Transcript

	// Finals returns a read-only channel emitting authoritative Transcript
	// values once the provider commits to a recognition result. These are
	// the values handed to the scoring engine. The channel is closed when
	// the session ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes pending audio, and releases all
	// associated resources. After Close returns, the Interims and Finals
	// channels are closed. Calling Close more than once is safe and returns
	// nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the session cannot be established (model not
	// loaded, unsupported configuration, or ctx already cancelled). The
	// caller owns the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
