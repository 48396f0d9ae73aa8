// Package beepsink implements [audio.Sink] on top of the beep playback
// library. MP3 sources are fully fetched and decoded on Load; the speaker
// device is acquired lazily on the first Play so that a missing or busy
// output device surfaces as a playback error, not a load error.
package beepsink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"

	"github.com/cadenza-audio/cadenza/pkg/audio"
)

// speakerBuffer is the mixing buffer length handed to speaker.Init. 100 ms
// keeps pause/seek latency low without audible underruns.
const speakerBuffer = 100 * time.Millisecond

// Sink plays one MP3 track at a time through the default output device.
// All methods are safe for concurrent use.
type Sink struct {
	mu sync.Mutex

	client *http.Client

	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume

	loaded     bool
	device     bool // speaker initialised and streamer queued
	vol        float64
	muted      bool
	err        error
	onEnded    func()
	generation int // invalidates ended callbacks from replaced sources
}

var _ audio.Sink = (*Sink)(nil)

// New returns an idle sink. The optional client is used for http(s) sources;
// pass nil for http.DefaultClient.
func New(client *http.Client) *Sink {
	if client == nil {
		client = http.DefaultClient
	}
	return &Sink{client: client, vol: 1}
}

// Load fetches and decodes the MP3 at url, replacing any current source.
// url may be an http(s) URL or a local file path.
func (s *Sink) Load(ctx context.Context, url string) error {
	data, err := s.fetch(ctx, url)
	if err != nil {
		s.latch(fmt.Errorf("beepsink: fetch %q: %w", url, err))
		return s.Err()
	}

	streamer, format, err := mp3.Decode(nopSeekCloser{bytes.NewReader(data)})
	if err != nil {
		s.latch(fmt.Errorf("beepsink: decode %q: %w", url, err))
		return s.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropSourceLocked()
	s.generation++
	gen := s.generation

	s.streamer = streamer
	s.format = format
	s.ctrl = &beep.Ctrl{
		// The callback fires on the speaker goroutine while it holds the
		// speaker lock; dispatch asynchronously to avoid lock inversion with
		// Position and Seek.
		Streamer: beep.Seq(streamer, beep.Callback(func() { go s.ended(gen) })),
		Paused:   true,
	}
	s.volume = &effects.Volume{Streamer: s.ctrl, Base: 2}
	s.applyVolumeLocked()
	s.loaded = true
	s.device = false
	s.err = nil
	return nil
}

// Play starts or resumes playback, acquiring the output device on first use.
func (s *Sink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return audio.ErrNoSource
	}
	if s.err != nil {
		return fmt.Errorf("beepsink: source in error state: %w", s.err)
	}
	if !s.device {
		if err := speaker.Init(s.format.SampleRate, s.format.SampleRate.N(speakerBuffer)); err != nil {
			return fmt.Errorf("%w: %v", audio.ErrOutputBlocked, err)
		}
		speaker.Play(s.volume)
		s.device = true
	}
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// Pause halts playback, keeping position.
func (s *Sink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || !s.device {
		return nil
	}
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

// Seek moves the playback position.
func (s *Sink) Seek(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return audio.ErrNoSource
	}
	n := s.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	if l := s.streamer.Len(); n > l {
		n = l
	}
	if s.device {
		speaker.Lock()
		defer speaker.Unlock()
	}
	if err := s.streamer.Seek(n); err != nil {
		return fmt.Errorf("beepsink: seek: %w", err)
	}
	return nil
}

// Position returns the current playback position.
func (s *Sink) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return 0
	}
	if s.device {
		speaker.Lock()
		defer speaker.Unlock()
	}
	return s.format.SampleRate.D(s.streamer.Position())
}

// Duration returns the length of the loaded source.
func (s *Sink) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return 0
	}
	return s.format.SampleRate.D(s.streamer.Len())
}

// SetVolume sets the output gain in [0, 1]. The beep volume effect works in
// powers of Base, so the linear gain is mapped through log2.
func (s *Sink) SetVolume(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vol = math.Max(0, math.Min(1, v))
	s.applyVolumeLocked()
	return nil
}

// SetMuted silences output without altering the stored volume.
func (s *Sink) SetMuted(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
	s.applyVolumeLocked()
	return nil
}

// Ready reports whether a decoded source is available for playback.
func (s *Sink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded && s.err == nil
}

// Err returns the latched load/decode error, or nil.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// OnEnded registers cb for natural end of playback, replacing any previous
// registration.
func (s *Sink) OnEnded(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = cb
}

// Close releases the source. Safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.dropSourceLocked()
	return nil
}

func (s *Sink) dropSourceLocked() {
	if s.device {
		speaker.Clear()
		s.device = false
	}
	if s.streamer != nil {
		_ = s.streamer.Close()
		s.streamer = nil
	}
	s.ctrl = nil
	s.volume = nil
	s.loaded = false
}

func (s *Sink) applyVolumeLocked() {
	if s.volume == nil {
		return
	}
	if s.device {
		speaker.Lock()
		defer speaker.Unlock()
	}
	if s.muted || s.vol == 0 {
		s.volume.Silent = true
		return
	}
	s.volume.Silent = false
	s.volume.Volume = math.Log2(s.vol)
}

func (s *Sink) latch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropSourceLocked()
	s.err = err
}

// ended runs on the speaker goroutine when the queued streamer drains.
func (s *Sink) ended(gen int) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	cb := s.onEnded
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (s *Sink) fetch(ctx context.Context, url string) ([]byte, error) {
	if !strings.Contains(url, "://") {
		return os.ReadFile(url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// nopSeekCloser adapts a bytes.Reader to the io.ReadCloser the MP3 decoder
// expects while preserving seekability.
type nopSeekCloser struct{ *bytes.Reader }

func (nopSeekCloser) Close() error { return nil }
