package audio

import (
	"context"
	"errors"
	"time"
)

// Playback errors surfaced by [Sink] implementations.
var (
	// ErrNoSource indicates Play or Seek was called before a successful Load.
	ErrNoSource = errors.New("audio: no source loaded")

	// ErrOutputBlocked indicates the output device refused playback (claimed
	// by another process, or the platform requires explicit user action).
	ErrOutputBlocked = errors.New("audio: output device blocked")
)

// Sink is a single-track audio output. One song is loaded at a time; loading
// a new source replaces the previous one.
//
// All position and duration values are reported in [time.Duration]. Callers
// that need milliseconds convert at their own boundary — the sink never deals
// in seconds. Implementations must be safe for concurrent use.
type Sink interface {
	// Load fetches and decodes the audio at url (http(s) URL or local file
	// path), replacing any previously loaded source. A failed Load leaves
	// the sink with no source and a latched error readable via Err.
	Load(ctx context.Context, url string) error

	// Play starts or resumes playback. Returns [ErrNoSource] when nothing is
	// loaded and [ErrOutputBlocked] when the device cannot be acquired.
	Play() error

	// Pause halts playback, keeping the current position.
	Pause() error

	// Seek moves the playback position.
	Seek(pos time.Duration) error

	// Position returns the current playback position.
	Position() time.Duration

	// Duration returns the total length of the loaded source, or 0 when no
	// source is loaded.
	Duration() time.Duration

	// SetVolume sets the output gain in [0, 1].
	SetVolume(v float64) error

	// SetMuted silences output without altering the stored volume.
	SetMuted(muted bool) error

	// Ready reports whether a source is loaded, decoded far enough to play,
	// and no error is latched.
	Ready() bool

	// Err returns the latched load/decode error, or nil.
	Err() error

	// OnEnded registers cb to be invoked once when the loaded source plays
	// to its natural end. Only one callback is registered at a time;
	// subsequent calls replace the previous registration. The callback runs
	// on an internal goroutine and must not block.
	OnEnded(cb func())

	// Close releases the output device and any decoded audio. The sink is
	// unusable afterwards. Safe to call more than once.
	Close() error
}
