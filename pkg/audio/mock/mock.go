// Package mock provides test doubles for the audio package interfaces.
//
// Use [Microphone] to script captured frames into a pipeline under test and
// [Sink] to drive the playback clock with a controllable position, without
// touching real audio hardware.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/cadenza-audio/cadenza/pkg/audio"
)

// Microphone is a mock implementation of [audio.MicrophoneSource].
type Microphone struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// OpenCalls records the CaptureConfig of every Open call in order.
	OpenCalls []audio.CaptureConfig

	// stream is the last stream handed out by Open.
	stream *CaptureStream
}

// Open records the call and returns a fresh [CaptureStream], or OpenErr.
func (m *Microphone) Open(_ context.Context, cfg audio.CaptureConfig) (audio.CaptureStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls = append(m.OpenCalls, cfg)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.stream = NewCaptureStream()
	return m.stream, nil
}

// Stream returns the stream created by the most recent Open, or nil.
func (m *Microphone) Stream() *CaptureStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

var _ audio.MicrophoneSource = (*Microphone)(nil)

// CaptureStream is a scriptable [audio.CaptureStream]. Tests push frames with
// [CaptureStream.Push] and end the stream with Close.
type CaptureStream struct {
	frames chan audio.Frame

	mu     sync.Mutex
	closed bool

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewCaptureStream returns an open stream with a buffered frame channel.
func NewCaptureStream() *CaptureStream {
	return &CaptureStream{frames: make(chan audio.Frame, 64)}
}

// Push delivers a frame to the consumer. Returns false if the stream is closed.
func (s *CaptureStream) Push(f audio.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.frames <- f
	return true
}

// Frames returns the frame channel.
func (s *CaptureStream) Frames() <-chan audio.Frame { return s.frames }

// Close ends the stream and closes the frame channel.
func (s *CaptureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *CaptureStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ audio.CaptureStream = (*CaptureStream)(nil)

// Sink is a mock implementation of [audio.Sink] with a test-controlled
// position clock.
type Sink struct {
	mu sync.Mutex

	// LoadErr, if non-nil, is returned by Load (and latched as Err).
	LoadErr error

	// PlayErr, if non-nil, is returned by Play.
	PlayErr error

	// TotalDuration is returned by Duration after a successful Load.
	TotalDuration time.Duration

	// NotReady forces Ready to report false even after a successful Load.
	NotReady bool

	// LoadCalls records the URL of every Load call in order.
	LoadCalls []string

	loaded  bool
	playing bool
	pos     time.Duration
	volume  float64
	muted   bool
	err     error
	onEnded func()

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Load records the call; on success the sink becomes loaded and ready.
func (s *Sink) Load(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadCalls = append(s.LoadCalls, url)
	if s.LoadErr != nil {
		s.loaded = false
		s.err = s.LoadErr
		return s.LoadErr
	}
	s.loaded = true
	s.err = nil
	s.pos = 0
	return nil
}

// Play transitions to playing, or returns PlayErr / [audio.ErrNoSource].
func (s *Sink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return audio.ErrNoSource
	}
	if s.PlayErr != nil {
		return s.PlayErr
	}
	s.playing = true
	return nil
}

// Pause halts playback.
func (s *Sink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	return nil
}

// Seek moves the mock position.
func (s *Sink) Seek(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return audio.ErrNoSource
	}
	s.pos = pos
	return nil
}

// SetPosition lets a test move the playback clock directly.
func (s *Sink) SetPosition(pos time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
}

// Position returns the mock position.
func (s *Sink) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Duration returns TotalDuration when loaded.
func (s *Sink) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return 0
	}
	return s.TotalDuration
}

// SetVolume stores the volume.
func (s *Sink) SetVolume(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
	return nil
}

// SetMuted stores the mute flag.
func (s *Sink) SetMuted(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
	return nil
}

// Volume returns the last value passed to SetVolume.
func (s *Sink) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Muted returns the last value passed to SetMuted.
func (s *Sink) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Playing reports whether the sink is in the playing state.
func (s *Sink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Ready reports readiness per the [audio.Sink] contract.
func (s *Sink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded && s.err == nil && !s.NotReady
}

// Err returns the latched error.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// OnEnded stores cb, replacing any previous registration.
func (s *Sink) OnEnded(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = cb
}

// FireEnded invokes the registered ended callback, simulating natural end of
// playback.
func (s *Sink) FireEnded() {
	s.mu.Lock()
	cb := s.onEnded
	s.playing = false
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Close records the call and unloads the source.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	s.loaded = false
	s.playing = false
	return nil
}

var _ audio.Sink = (*Sink)(nil)
