// Package session implements the gameplay session: the state machine tying
// playback, microphone capture, voice analysis, streaming transcription, and
// scoring into one live karaoke run, plus the running score aggregate.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cadenza-audio/cadenza/internal/catalog"
	"github.com/cadenza-audio/cadenza/internal/lyrics"
	"github.com/cadenza-audio/cadenza/internal/observe"
	"github.com/cadenza-audio/cadenza/internal/player"
	"github.com/cadenza-audio/cadenza/internal/pitch"
	"github.com/cadenza-audio/cadenza/internal/scorestore"
	"github.com/cadenza-audio/cadenza/internal/scoring"
	"github.com/cadenza-audio/cadenza/internal/voice"
	"github.com/cadenza-audio/cadenza/pkg/audio"
	"github.com/cadenza-audio/cadenza/pkg/provider/stt"
)

// State is the lifecycle phase of a session.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StatePlaying
	StatePaused
	StateStopped
	StateEnded
)

// String returns the lower-case state name used in logs and API payloads.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Precondition errors for session operations.
var (
	ErrNoSongLoaded  = errors.New("session: no song loaded")
	ErrAlreadyActive = errors.New("session: already playing or paused")
	ErrNotPlaying    = errors.New("session: not playing")
	ErrNotPaused     = errors.New("session: not paused")
)

const (
	defaultWindow          = time.Second
	defaultReattachBackoff = time.Second
)

// Controller drives one karaoke session end to end. All exported methods are
// safe for concurrent use; callbacks run on internal goroutines and must not
// block.
type Controller struct {
	log     *slog.Logger
	player  *player.Player
	mic     audio.MicrophoneSource
	stt     stt.Provider
	store   scorestore.Store
	metrics *observe.Metrics
	monitor *voice.Monitor
	scores  ScoreState

	captureCfg   audio.CaptureConfig
	streamCfg    stt.StreamConfig
	providerName string
	window       time.Duration
	reattach     time.Duration
	clock        func() time.Time
	monitorOpts  []voice.Option

	mu            sync.Mutex
	state         State
	song          catalog.Song
	handle        stt.SessionHandle
	cancel        context.CancelFunc
	closers       []func() error
	sessionStart  time.Time
	pausedAt      time.Time
	pausedTotal   time.Duration
	lastWindowEnd time.Duration
	lastInterim   string
	persisted     bool

	onScore func(scoring.Result)
	onState func(State)

	wg sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithWindow sets the scoring window length attributed to each final.
// Default: 1s.
func WithWindow(d time.Duration) Option {
	return func(c *Controller) { c.window = d }
}

// WithCaptureConfig sets the microphone capture parameters.
func WithCaptureConfig(cfg audio.CaptureConfig) Option {
	return func(c *Controller) { c.captureCfg = cfg }
}

// WithStreamConfig sets the transcription stream parameters.
func WithStreamConfig(cfg stt.StreamConfig) Option {
	return func(c *Controller) { c.streamCfg = cfg }
}

// WithMetrics wires the observability instruments. Nil metrics are safe.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithProviderName sets the provider label attached to transcription metrics.
func WithProviderName(name string) Option {
	return func(c *Controller) { c.providerName = name }
}

// WithReattachBackoff sets the cooldown before a dead transcription stream is
// reattached. Default: 1s.
func WithReattachBackoff(d time.Duration) Option {
	return func(c *Controller) { c.reattach = d }
}

// WithClockFunc substitutes the wall clock. Tests use this to make the
// session clock deterministic.
func WithClockFunc(now func() time.Time) Option {
	return func(c *Controller) { c.clock = now }
}

// WithMonitorOptions forwards extra options (activity threshold, pitch
// cadence) to the internal voice monitor.
func WithMonitorOptions(opts ...voice.Option) Option {
	return func(c *Controller) { c.monitorOpts = opts }
}

// NewController builds a Controller over its collaborators. The player's
// end-of-track event drives the natural session end.
func NewController(log *slog.Logger, p *player.Player, mic audio.MicrophoneSource,
	provider stt.Provider, store scorestore.Store, opts ...Option) *Controller {

	c := &Controller{
		log:          log,
		player:       p,
		mic:          mic,
		stt:          provider,
		store:        store,
		captureCfg:   audio.CaptureConfig{SampleRate: 16000, FrameSize: 1024},
		streamCfg:    stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"},
		providerName: "stt",
		window:       defaultWindow,
		reattach:     defaultReattachBackoff,
		clock:        time.Now,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	monitorOpts := append([]voice.Option{}, c.monitorOpts...)
	monitorOpts = append(monitorOpts, voice.WithPitchFunc(func(p pitch.Result) {
		c.metrics.RecordPitch(context.Background(), p.Hz)
	}))
	c.monitor = voice.NewMonitor(monitorOpts...)
	p.OnEnded(c.handleTrackEnded)
	return c
}

// OnScore registers cb to receive every folded segment result. Only one
// callback is registered at a time.
func (c *Controller) OnScore(cb func(scoring.Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onScore = cb
}

// OnStateChange registers cb to receive every state transition.
func (c *Controller) OnStateChange(cb func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = cb
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LoadSong prepares song for a run. Reloading the already-loaded song is a
// no-op, so repeated UI requests stay cheap. Loading a different song while
// a run is active stops the run first.
func (c *Controller) LoadSong(ctx context.Context, song catalog.Song) error {
	c.mu.Lock()
	if c.song.ID == song.ID && c.state != StateIdle {
		c.mu.Unlock()
		c.log.Debug("song already loaded", "song", song.ID)
		return nil
	}
	active := c.state == StatePlaying || c.state == StatePaused
	c.mu.Unlock()

	if active {
		if err := c.Stop(); err != nil {
			return fmt.Errorf("session: stop before reload: %w", err)
		}
	}

	if err := c.player.Load(ctx, song.AudioURL, song.LyricURL); err != nil {
		return fmt.Errorf("session: load song %s: %w", song.ID, err)
	}

	c.scores.Reset()
	c.mu.Lock()
	c.song = song
	c.lastWindowEnd = 0
	c.lastInterim = ""
	c.mu.Unlock()
	c.setState(StateLoaded)

	c.log.Info("song loaded", "song", song.ID, "title", song.Title, "artist", song.Artist)
	return nil
}

// Start begins the run: microphone and transcription streams open, playback
// starts, and the session clock begins. Starting an already-active session
// returns [ErrAlreadyActive].
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StatePlaying, StatePaused:
		c.mu.Unlock()
		return ErrAlreadyActive
	case StateIdle:
		c.mu.Unlock()
		return ErrNoSongLoaded
	}
	c.mu.Unlock()

	// Session resources outlive the request; their lifetime is bound to the
	// run, not to ctx.
	runCtx, cancel := context.WithCancel(context.Background())

	var closers []func() error
	fail := func(err error) error {
		cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]() //nolint:errcheck
		}
		return err
	}

	stream, err := c.mic.Open(runCtx, c.captureCfg)
	if err != nil {
		return fail(fmt.Errorf("session: open microphone: %w", err))
	}
	closers = append(closers, stream.Close)

	handle, err := c.stt.StartStream(runCtx, c.streamCfg)
	if err != nil {
		c.metrics.RecordProviderError(ctx, c.providerName, "start")
		return fail(fmt.Errorf("session: start transcription: %w", err))
	}
	closers = append(closers, handle.Close)

	if err := c.player.Seek(0); err != nil {
		return fail(fmt.Errorf("session: rewind: %w", err))
	}
	if err := c.player.Play(ctx); err != nil {
		return fail(fmt.Errorf("session: start playback: %w", err))
	}

	c.monitor.Reset()
	c.scores.Reset()

	c.mu.Lock()
	c.cancel = cancel
	c.closers = closers
	c.handle = handle
	c.sessionStart = c.clock()
	c.pausedTotal = 0
	c.lastWindowEnd = 0
	c.lastInterim = ""
	c.persisted = false
	c.mu.Unlock()

	c.wg.Add(2)
	go c.micPump(runCtx, stream)
	go c.transcriptPump(runCtx, handle)

	c.setState(StatePlaying)
	c.metrics.SessionStarted(ctx)
	c.log.Info("session started", "song", c.songID(), "window", c.window)
	return nil
}

// Pause suspends playback and freezes the session clock. The capture and
// transcription streams stay open so Resume is instant.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return ErrNotPlaying
	}
	c.pausedAt = c.clock()
	c.mu.Unlock()

	if err := c.player.Pause(); err != nil {
		return fmt.Errorf("session: pause playback: %w", err)
	}
	c.setState(StatePaused)
	return nil
}

// Resume continues a paused run. Time spent paused is excluded from the
// session clock so scoring windows stay aligned with the song position.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StatePaused {
		c.mu.Unlock()
		return ErrNotPaused
	}
	c.pausedTotal += c.clock().Sub(c.pausedAt)
	c.mu.Unlock()

	if err := c.player.Play(ctx); err != nil {
		return fmt.Errorf("session: resume playback: %w", err)
	}
	c.setState(StatePlaying)
	return nil
}

// Stop ends the run early: session resources are released in reverse
// acquisition order, playback rewinds, and the aggregate score is persisted
// if any segment was scored.
func (c *Controller) Stop() error {
	c.mu.Lock()
	prev := c.state
	if prev != StatePlaying && prev != StatePaused && prev != StateEnded {
		c.mu.Unlock()
		return ErrNotPlaying
	}
	c.mu.Unlock()

	c.teardown()
	if err := c.player.Stop(); err != nil {
		c.log.Warn("stop playback", "error", err)
	}
	c.persist()
	c.setState(StateStopped)
	if prev != StateEnded {
		c.metrics.SessionEnded(context.Background())
	}
	c.log.Info("session stopped", "song", c.songID())
	return nil
}

// Reset returns the controller to idle, discarding the loaded song and all
// accumulated scores.
func (c *Controller) Reset() error {
	c.mu.Lock()
	active := c.state == StatePlaying || c.state == StatePaused || c.state == StateEnded
	c.mu.Unlock()
	if active {
		if err := c.Stop(); err != nil {
			return err
		}
	}

	c.scores.Reset()
	c.monitor.Reset()
	c.mu.Lock()
	c.song = catalog.Song{}
	c.lastWindowEnd = 0
	c.lastInterim = ""
	c.mu.Unlock()
	c.setState(StateIdle)
	return nil
}

// Close stops any active run and releases the player.
func (c *Controller) Close() error {
	c.mu.Lock()
	active := c.state == StatePlaying || c.state == StatePaused || c.state == StateEnded
	c.mu.Unlock()
	if active {
		if err := c.Stop(); err != nil {
			c.log.Warn("stop on close", "error", err)
		}
	}
	return c.player.Close()
}

// Scores returns a snapshot of the running score aggregate.
func (c *Controller) Scores() ScoreSnapshot {
	return c.scores.Snapshot()
}

// handleTrackEnded fires when the song plays to its natural end.
func (c *Controller) handleTrackEnded() {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.teardown()
	c.persist()
	c.setState(StateEnded)
	c.metrics.SessionEnded(context.Background())
	c.log.Info("session ended", "song", c.songID(), "finalScore", c.scores.Snapshot().Score)
}

// teardown cancels the run context, closes session resources in reverse
// acquisition order, and waits for the pumps to drain.
func (c *Controller) teardown() {
	c.mu.Lock()
	cancel := c.cancel
	closers := c.closers
	c.cancel = nil
	c.closers = nil
	c.handle = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			c.log.Warn("close session resource", "error", err)
		}
	}
	c.wg.Wait()
}

// persist saves the final aggregate when at least one segment was scored.
// Saves at most once per run, so a Stop after a natural end is harmless.
func (c *Controller) persist() {
	c.mu.Lock()
	already := c.persisted
	c.persisted = true
	c.mu.Unlock()

	snap := c.scores.Snapshot()
	if already || snap.Segments == 0 || c.store == nil {
		return
	}
	perf := &scorestore.Performance{
		SongID:       c.songID(),
		Score:        snap.Score,
		Accuracy:     snap.Accuracy,
		Timing:       snap.Timing,
		Pitch:        snap.Pitch,
		BestStreak:   snap.BestStreak,
		PerfectNotes: snap.PerfectNotes,
		Segments:     snap.Segments,
	}
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	if err := c.store.Save(ctx, perf); err != nil {
		c.log.Error("persist performance", "song", perf.SongID, "error", err)
		return
	}
	c.log.Info("performance saved", "song", perf.SongID, "id", perf.ID, "score", perf.Score)
}

// micPump feeds captured frames to the voice monitor and the transcription
// stream until the capture stream closes.
func (c *Controller) micPump(ctx context.Context, stream audio.CaptureStream) {
	defer c.wg.Done()
	for frame := range stream.Frames() {
		c.monitor.Process(frame)

		handle := c.currentHandle()
		if handle == nil {
			continue
		}
		if err := handle.SendAudio(frame.Bytes()); err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, stt.ErrNoSpeech) {
				continue
			}
			c.metrics.RecordProviderError(ctx, c.providerName, "send")
			c.log.Warn("send audio to transcriber", "error", err)
		}
	}
}

// transcriptPump consumes interim and final transcripts. When the provider
// gives up on a stream (silence, internal error) the pump reattaches a fresh
// one after a cooldown, as long as the run is still live.
func (c *Controller) transcriptPump(ctx context.Context, handle stt.SessionHandle) {
	defer c.wg.Done()
	interims, finals := handle.Interims(), handle.Finals()
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-interims:
			if !ok {
				interims = nil
				continue
			}
			c.mu.Lock()
			c.lastInterim = tr.Text
			c.mu.Unlock()
		case tr, ok := <-finals:
			if !ok {
				next := c.reattachStream(ctx)
				if next == nil {
					return
				}
				interims, finals = next.Interims(), next.Finals()
				continue
			}
			c.handleFinal(ctx, tr)
		}
	}
}

// reattachStream replaces a dead transcription stream, retrying after the
// cooldown until a stream comes up. Returns nil only when the run has ended;
// a failing provider never silently stops transcription mid-song.
func (c *Controller) reattachStream(ctx context.Context) stt.SessionHandle {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reattach):
		}

		handle, err := c.stt.StartStream(ctx, c.streamCfg)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.metrics.RecordProviderError(ctx, c.providerName, "reattach")
			c.log.Warn("reattach transcription stream, retrying",
				"provider", c.providerName, "error", err)
			continue
		}
		if ctx.Err() != nil {
			handle.Close() //nolint:errcheck
			return nil
		}

		c.mu.Lock()
		c.handle = handle
		c.closers = append(c.closers, handle.Close)
		c.mu.Unlock()
		c.log.Info("transcription stream reattached", "provider", c.providerName)
		return handle
	}
}

// handleFinal scores one finalised transcript segment and folds the result
// into the running aggregate.
func (c *Controller) handleFinal(ctx context.Context, tr stt.Transcript) {
	began := time.Now()

	c.mu.Lock()
	segEnd := c.elapsedLocked()
	segStart := segEnd - c.window
	if segStart < 0 {
		segStart = 0
	}
	// Finals can arrive out of order relative to the session clock; never
	// re-score time already attributed to an earlier segment.
	if segStart < c.lastWindowEnd {
		segStart = c.lastWindowEnd
	}
	c.lastWindowEnd = segEnd
	c.lastInterim = ""
	c.mu.Unlock()

	if segStart >= segEnd {
		c.log.Debug("empty scoring window, skipping final", "text", tr.Text)
		return
	}

	ctx, span := observe.StartSegmentSpan(ctx, c.songID(), segStart, segEnd)
	defer span.End()

	userWords := c.userWords(tr, segStart, segEnd)

	var expected []lyrics.Word
	for _, w := range c.player.WordsForScoring() {
		if w.Start >= segStart && w.Start <= segEnd {
			expected = append(expected, w)
		}
	}

	result := scoring.Score(expected, tr.Text, userWords, c.monitor.LatestPitch().Hz)
	c.scores.Fold(result)
	span.SetAttributes(observe.AttrSegmentScore.Int(result.TotalScore))

	c.metrics.RecordFinal(ctx, c.providerName)
	c.metrics.RecordSegment(ctx, time.Since(began), result.TotalScore)
	c.log.Debug("segment scored",
		"text", tr.Text,
		"window", segEnd-segStart,
		"total", result.TotalScore,
		"accuracy", result.Accuracy,
		"timing", result.Timing,
		"pitch", result.Pitch)

	c.mu.Lock()
	cb := c.onScore
	c.mu.Unlock()
	if cb != nil {
		cb(result)
	}
}

// userWords derives the recognised words with timing. Providers with
// word-level detail supply it directly (offsets are utterance-relative);
// otherwise the transcript is split evenly across the window.
func (c *Controller) userWords(tr stt.Transcript, segStart, segEnd time.Duration) []scoring.UserWord {
	if len(tr.Words) == 0 {
		return scoring.ParseTranscript(tr.Text, segStart, segEnd)
	}
	out := make([]scoring.UserWord, len(tr.Words))
	for i, w := range tr.Words {
		out[i] = scoring.UserWord{
			Word:       w.Word,
			Start:      segStart + w.Start,
			End:        segStart + w.End,
			Confidence: w.Confidence,
		}
	}
	return out
}

// elapsedLocked returns the session clock: wall time since start minus time
// spent paused. Callers must hold c.mu.
func (c *Controller) elapsedLocked() time.Duration {
	if c.state == StatePaused {
		return c.pausedAt.Sub(c.sessionStart) - c.pausedTotal
	}
	return c.clock().Sub(c.sessionStart) - c.pausedTotal
}

func (c *Controller) currentHandle() stt.SessionHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

func (c *Controller) songID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.song.ID
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	cb := c.onState
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}
