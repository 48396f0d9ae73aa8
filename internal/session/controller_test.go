package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cadenza-audio/cadenza/internal/catalog"
	"github.com/cadenza-audio/cadenza/internal/player"
	"github.com/cadenza-audio/cadenza/internal/scorestore"
	"github.com/cadenza-audio/cadenza/internal/session"
	"github.com/cadenza-audio/cadenza/pkg/audio"
	audiomock "github.com/cadenza-audio/cadenza/pkg/audio/mock"
	"github.com/cadenza-audio/cadenza/pkg/provider/stt"
	sttmock "github.com/cadenza-audio/cadenza/pkg/provider/stt/mock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type harness struct {
	ctrl  *session.Controller
	sink  *audiomock.Sink
	mic   *audiomock.Microphone
	sess  *sttmock.Session
	prov  *sttmock.Provider
	store *scorestore.MemoryStore
	clock *fakeClock
	song  catalog.Song
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()

	lyricPath := filepath.Join(t.TempDir(), "song.lrc")
	if err := os.WriteFile(lyricPath, []byte("[00:03.00]Hello world\n"), 0o644); err != nil {
		t.Fatalf("write lyric file: %v", err)
	}

	h := &harness{
		sink:  &audiomock.Sink{TotalDuration: 30 * time.Second},
		mic:   &audiomock.Microphone{},
		sess:  sttmock.NewSession(),
		store: scorestore.NewMemoryStore(),
		clock: &fakeClock{now: time.Unix(1_700_000_000, 0)},
		song: catalog.Song{
			ID:       "sng-1",
			Title:    "Hello World",
			Artist:   "The Examples",
			AudioURL: "song.mp3",
			LyricURL: lyricPath,
		},
	}
	h.prov = &sttmock.Provider{Session: h.sess}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := player.New(h.sink, log)
	opts = append([]session.Option{
		session.WithClockFunc(h.clock.Now),
		session.WithReattachBackoff(20 * time.Millisecond),
	}, opts...)
	h.ctrl = session.NewController(log, p, h.mic, h.prov, h.store, opts...)
	t.Cleanup(func() { h.ctrl.Close() })
	return h
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestController_Preconditions(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.Start(ctx); !errors.Is(err, session.ErrNoSongLoaded) {
		t.Errorf("Start before load = %v, want ErrNoSongLoaded", err)
	}
	if err := h.ctrl.Pause(); !errors.Is(err, session.ErrNotPlaying) {
		t.Errorf("Pause while idle = %v, want ErrNotPlaying", err)
	}
	if err := h.ctrl.Resume(ctx); !errors.Is(err, session.ErrNotPaused) {
		t.Errorf("Resume while idle = %v, want ErrNotPaused", err)
	}

	if err := h.ctrl.LoadSong(ctx, h.song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.ctrl.Start(ctx); !errors.Is(err, session.ErrAlreadyActive) {
		t.Errorf("double Start = %v, want ErrAlreadyActive", err)
	}
}

func TestController_Lifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	var states []session.State
	var statesMu sync.Mutex
	h.ctrl.OnStateChange(func(s session.State) {
		statesMu.Lock()
		states = append(states, s)
		statesMu.Unlock()
	})

	if err := h.ctrl.LoadSong(ctx, h.song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.ctrl.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if h.sink.Playing() {
		t.Error("sink still playing after Pause")
	}
	if err := h.ctrl.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []session.State{
		session.StateLoaded, session.StatePlaying, session.StatePaused,
		session.StatePlaying, session.StateStopped,
	}
	statesMu.Lock()
	defer statesMu.Unlock()
	if len(states) != len(want) {
		t.Fatalf("state transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state transitions = %v, want %v", states, want)
		}
	}
}

func TestController_ScoresFinalAgainstLyricWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, session.WithWindow(3*time.Second))
	ctx := context.Background()

	if err := h.ctrl.LoadSong(ctx, h.song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The only line sits at 3s; its two words span 3.0–6.0s. A final landing
	// at session time 5s with a 3s window covers both.
	h.clock.Advance(5 * time.Second)
	h.sess.PushFinal(stt.Transcript{Text: "hello world", IsFinal: true, Confidence: 0.9})

	waitFor(t, func() bool { return h.ctrl.Scores().Segments == 1 }, "final never scored")

	scores := h.ctrl.Scores()
	if scores.Accuracy != 100 {
		t.Errorf("accuracy = %d, want 100 for exact match", scores.Accuracy)
	}
	if scores.Score <= 0 {
		t.Errorf("score = %d, want positive", scores.Score)
	}
	if len(scores.Feedback) == 0 {
		t.Error("no feedback after scored segment")
	}
}

func TestController_MicFramesReachMonitorAndTranscriber(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.LoadSong(ctx, h.song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stream := h.mic.Stream()
	if stream == nil {
		t.Fatal("microphone never opened")
	}
	pcm := make([]int16, 512)
	for i := range pcm {
		pcm[i] = 8000
	}
	stream.Push(audio.Frame{PCM: pcm, SampleRate: 16000})

	waitFor(t, func() bool { return h.sess.SendAudioCount() > 0 },
		"audio never forwarded to transcriber")

	waitFor(t, func() bool { return h.ctrl.Snapshot().VoiceLevel > 0 }, "voice level never observed")
}

func TestController_StopReleasesResources(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.LoadSong(ctx, h.song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if !h.mic.Stream().Closed() {
		t.Error("capture stream not closed on Stop")
	}
	if !h.sess.Closed() {
		t.Error("transcription session not closed on Stop")
	}
	if got := h.sink.Position(); got != 0 {
		t.Errorf("position after Stop = %v, want rewind to 0", got)
	}
}

func TestController_NaturalEndPersistsOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, session.WithWindow(3*time.Second))
	ctx := context.Background()

	if err := h.ctrl.LoadSong(ctx, h.song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.clock.Advance(5 * time.Second)
	h.sess.PushFinal(stt.Transcript{Text: "hello world", IsFinal: true})
	waitFor(t, func() bool { return h.ctrl.Scores().Segments == 1 }, "final never scored")

	h.sink.FireEnded()
	waitFor(t, func() bool { return h.ctrl.State() == session.StateEnded }, "session never ended")

	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop after natural end: %v", err)
	}

	perfs, err := h.store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(perfs) != 1 {
		t.Fatalf("persisted %d performances, want exactly 1", len(perfs))
	}
	if perfs[0].SongID != "sng-1" || perfs[0].Segments != 1 {
		t.Errorf("performance = %+v", perfs[0])
	}
}

func TestController_ReattachesDeadStream(t *testing.T) {
	t.Parallel()

	h := newHarness(t, session.WithWindow(3*time.Second))
	ctx := context.Background()

	if err := h.ctrl.LoadSong(ctx, h.song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Swap in the replacement session before killing the first stream.
	replacement := sttmock.NewSession()
	h.prov.SetSession(replacement)
	h.sess.Close()

	waitFor(t, func() bool { return h.prov.StartStreamCount() == 2 },
		"stream never reattached")

	h.clock.Advance(5 * time.Second)
	replacement.PushFinal(stt.Transcript{Text: "hello world", IsFinal: true})
	waitFor(t, func() bool { return h.ctrl.Scores().Segments == 1 }, "final on reattached stream never scored")
}

func TestController_ReattachRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, session.WithWindow(3*time.Second))
	ctx := context.Background()

	if err := h.ctrl.LoadSong(ctx, h.song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if err := h.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The first two reattach attempts fail; transcription must survive them
	// and come back on the third.
	replacement := sttmock.NewSession()
	h.prov.SetSession(replacement)
	h.prov.FailStartStreams(2, errors.New("transcriber unavailable"))
	h.sess.Close()

	waitFor(t, func() bool { return h.prov.StartStreamCount() == 4 },
		"stream never reattached after failures")

	h.clock.Advance(5 * time.Second)
	replacement.PushFinal(stt.Transcript{Text: "hello world", IsFinal: true})
	waitFor(t, func() bool { return h.ctrl.Scores().Segments == 1 },
		"final after retried reattach never scored")
}

func TestController_LoadSameSongIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.LoadSong(ctx, h.song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if err := h.ctrl.LoadSong(ctx, h.song); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := len(h.sink.LoadCalls); got != 1 {
		t.Errorf("sink loads = %d, want 1 (same song cached)", got)
	}
}

func TestController_Snapshot(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	snap := h.ctrl.Snapshot()
	if snap.State != "idle" || snap.Feedback != "Keep singing!" {
		t.Errorf("idle snapshot = %+v", snap)
	}

	if err := h.ctrl.LoadSong(ctx, h.song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	h.sink.SetPosition(3500 * time.Millisecond)

	snap = h.ctrl.Snapshot()
	if snap.State != "loaded" || snap.SongID != "sng-1" || snap.SongTitle != "Hello World" {
		t.Errorf("snapshot song fields = %+v", snap)
	}
	if snap.PositionMS != 3500 {
		t.Errorf("positionMs = %d, want 3500", snap.PositionMS)
	}
	if snap.DurationMS != 30_000 {
		t.Errorf("durationMs = %d, want 30000", snap.DurationMS)
	}
	if snap.CurrentLine != "Hello world" {
		t.Errorf("currentLine = %q, want the 3s line", snap.CurrentLine)
	}
}
