// Package player implements the playback clock: it drives an [audio.Sink],
// keeps the parsed lyric timeline alongside it, and answers all "what should
// be sung right now" queries against the sink's position. The session
// controller is its only consumer.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cadenza-audio/cadenza/internal/lyrics"
	"github.com/cadenza-audio/cadenza/pkg/audio"
)

const (
	// readyTimeout bounds how long Play waits for the sink to finish
	// decoding before giving up.
	readyTimeout = 5 * time.Second
	readyPoll    = 50 * time.Millisecond

	tickInterval = 250 * time.Millisecond
)

// ErrReadyTimeout indicates the sink did not become playable within the
// readiness window.
var ErrReadyTimeout = errors.New("player: source not ready within timeout")

// Player couples one audio sink with the lyric timeline of the loaded song.
// Methods are safe for concurrent use. Callbacks are single-slot: each
// registration replaces the previous one.
type Player struct {
	sink         audio.Sink
	log          *slog.Logger
	http         *http.Client
	readyTimeout time.Duration
	tickInterval time.Duration

	mu       sync.Mutex
	timeline lyrics.Timeline
	words    []lyrics.Word
	loaded   bool

	onTick  func(pos time.Duration)
	onPlay  func()
	onPause func()
	onEnded func()

	tickStop chan struct{}
	tickWG   sync.WaitGroup
}

// Option configures a Player.
type Option func(*Player)

// WithHTTPClient overrides the client used to fetch lyric files.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Player) { p.http = c }
}

// WithReadyTimeout overrides how long Play waits for the sink to become
// ready.
func WithReadyTimeout(d time.Duration) Option {
	return func(p *Player) { p.readyTimeout = d }
}

// WithTickInterval overrides the position tick interval.
func WithTickInterval(d time.Duration) Option {
	return func(p *Player) { p.tickInterval = d }
}

// New builds a Player around sink. The sink's end-of-track event is relayed
// to the OnEnded callback and stops the tick loop.
func New(sink audio.Sink, log *slog.Logger, opts ...Option) *Player {
	p := &Player{
		sink:         sink,
		log:          log,
		http:         &http.Client{Timeout: 15 * time.Second},
		readyTimeout: readyTimeout,
		tickInterval: tickInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	sink.OnEnded(p.handleEnded)
	return p
}

// Load prepares a song for playback: the audio source and the lyric file are
// fetched concurrently. Audio failure fails the load; lyric failure degrades
// to an empty timeline with a warning, since playback without a lyric
// display is still a usable session. An empty lyricURL skips the fetch.
func (p *Player) Load(ctx context.Context, audioURL, lyricURL string) error {
	p.stopTicker()

	var timeline lyrics.Timeline
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.sink.Load(gctx, audioURL); err != nil {
			return fmt.Errorf("player: load audio: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if lyricURL == "" {
			return nil
		}
		content, err := p.fetchLyrics(gctx, lyricURL)
		if err != nil {
			p.log.Warn("lyrics unavailable, continuing without timeline",
				"url", lyricURL, "error", err)
			return nil
		}
		timeline = lyrics.Parse(content)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	p.mu.Lock()
	p.timeline = timeline
	p.words = timeline.WordsForScoring()
	p.loaded = true
	p.mu.Unlock()

	p.log.Info("song loaded",
		"audio", audioURL,
		"lyricLines", len(timeline.Lines),
		"duration", p.Duration())
	return nil
}

// Play starts or resumes playback. It waits up to five seconds for the sink
// to report readiness, then surfaces the sink's own error if one is latched.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	loaded := p.loaded
	p.mu.Unlock()
	if !loaded {
		return audio.ErrNoSource
	}

	deadline := time.NewTimer(p.readyTimeout)
	defer deadline.Stop()
	for !p.sink.Ready() {
		if err := p.sink.Err(); err != nil {
			return fmt.Errorf("player: source failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrReadyTimeout
		case <-time.After(readyPoll):
		}
	}

	if err := p.sink.Play(); err != nil {
		return err
	}
	p.startTicker()
	p.mu.Lock()
	cb := p.onPlay
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

// Pause halts playback at the current position.
func (p *Player) Pause() error {
	if err := p.sink.Pause(); err != nil {
		return err
	}
	p.stopTicker()
	p.mu.Lock()
	cb := p.onPause
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

// Stop pauses playback and rewinds to the start.
func (p *Player) Stop() error {
	if err := p.Pause(); err != nil {
		return err
	}
	return p.sink.Seek(0)
}

// Seek moves the playback position.
func (p *Player) Seek(pos time.Duration) error { return p.sink.Seek(pos) }

// SetVolume sets output gain in [0, 1].
func (p *Player) SetVolume(v float64) error { return p.sink.SetVolume(v) }

// SetMuted toggles output muting without changing the stored volume.
func (p *Player) SetMuted(m bool) error { return p.sink.SetMuted(m) }

// Position returns the current playback position.
func (p *Player) Position() time.Duration { return p.sink.Position() }

// Duration returns the sink-reported track length, falling back to the
// lyric-derived estimate when the sink cannot tell (streaming sources).
func (p *Player) Duration() time.Duration {
	if d := p.sink.Duration(); d > 0 {
		return d
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.timeline.Lines) == 0 {
		return 0
	}
	last := p.timeline.Lines[len(p.timeline.Lines)-1]
	return last.Time + 4*time.Second
}

// ReadyToPlay reports whether a source is loaded and decoded enough to start.
func (p *Player) ReadyToPlay() bool {
	p.mu.Lock()
	loaded := p.loaded
	p.mu.Unlock()
	return loaded && p.sink.Ready()
}

// CurrentLyric returns the line being sung at the current position.
func (p *Player) CurrentLyric() (lyrics.Line, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeline.CurrentLine(p.sink.Position())
}

// UpcomingLyrics returns the next n lines after the current position.
func (p *Player) UpcomingLyrics(n int) []lyrics.Line {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeline.UpcomingLines(p.sink.Position(), n)
}

// PreviousLyrics returns the last n lines before the current position.
func (p *Player) PreviousLyrics(n int) []lyrics.Line {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeline.PreviousLines(p.sink.Position(), n)
}

// WordsForScoring returns the word-level timing approximation for the loaded
// song. The slice is shared; callers must not mutate it.
func (p *Player) WordsForScoring() []lyrics.Word {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.words
}

// OnTick registers cb to receive the playback position at a steady interval
// while playing. Replaces any previous registration.
func (p *Player) OnTick(cb func(pos time.Duration)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTick = cb
}

// OnPlay registers cb to run after playback starts or resumes.
func (p *Player) OnPlay(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPlay = cb
}

// OnPause registers cb to run after playback pauses.
func (p *Player) OnPause(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPause = cb
}

// OnEnded registers cb to run when the track plays to its natural end.
func (p *Player) OnEnded(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEnded = cb
}

// Close stops the tick loop and releases the sink.
func (p *Player) Close() error {
	p.stopTicker()
	return p.sink.Close()
}

func (p *Player) handleEnded() {
	p.stopTicker()
	p.mu.Lock()
	cb := p.onEnded
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (p *Player) startTicker() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	p.tickStop = stop
	p.tickWG.Add(1)
	go p.tickLoop(stop)
}

func (p *Player) stopTicker() {
	p.mu.Lock()
	stop := p.tickStop
	p.tickStop = nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	p.tickWG.Wait()
}

func (p *Player) tickLoop(stop chan struct{}) {
	defer p.tickWG.Done()
	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			cb := p.onTick
			p.mu.Unlock()
			if cb != nil {
				cb(p.sink.Position())
			}
		}
	}
}

// fetchLyrics reads the lyric file from an http(s) URL or a local path.
func (p *Player) fetchLyrics(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		b, err := os.ReadFile(url)
		if err != nil {
			return "", fmt.Errorf("player: read lyric file: %w", err)
		}
		return string(b), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("player: build lyric request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("player: fetch lyrics: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("player: fetch lyrics: unexpected status %s", resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("player: read lyric body: %w", err)
	}
	return string(b), nil
}
