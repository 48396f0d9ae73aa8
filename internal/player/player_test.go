package player_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cadenza-audio/cadenza/internal/player"
	"github.com/cadenza-audio/cadenza/pkg/audio"
	"github.com/cadenza-audio/cadenza/pkg/audio/mock"
)

const sampleLRC = "[ti:Test Song]\n[00:01.00]Hello world\n[00:03.50]Second line\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lyricServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPlayer_LoadWithLyrics(t *testing.T) {
	t.Parallel()

	srv := lyricServer(t, http.StatusOK, sampleLRC)
	sink := &mock.Sink{TotalDuration: 30 * time.Second}
	p := player.New(sink, discardLogger())
	defer p.Close()

	if err := p.Load(context.Background(), "song.mp3", srv.URL); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sink.LoadCalls) != 1 || sink.LoadCalls[0] != "song.mp3" {
		t.Errorf("sink load calls = %v, want [song.mp3]", sink.LoadCalls)
	}
	if !p.ReadyToPlay() {
		t.Error("ReadyToPlay = false after successful load")
	}

	sink.SetPosition(2 * time.Second)
	line, ok := p.CurrentLyric()
	if !ok || line.Text != "Hello world" {
		t.Errorf("CurrentLyric = %+v/%v, want Hello world", line, ok)
	}
	up := p.UpcomingLyrics(5)
	if len(up) != 1 || up[0].Text != "Second line" {
		t.Errorf("UpcomingLyrics = %v, want [Second line]", up)
	}
	if got := len(p.WordsForScoring()); got != 4 {
		t.Errorf("WordsForScoring has %d words, want 4", got)
	}
}

func TestPlayer_LoadDegradesWithoutLyrics(t *testing.T) {
	t.Parallel()

	srv := lyricServer(t, http.StatusNotFound, "gone")
	sink := &mock.Sink{}
	p := player.New(sink, discardLogger())
	defer p.Close()

	if err := p.Load(context.Background(), "song.mp3", srv.URL); err != nil {
		t.Fatalf("Load with missing lyrics should degrade, got %v", err)
	}
	if _, ok := p.CurrentLyric(); ok {
		t.Error("CurrentLyric reported a line with no timeline loaded")
	}
	if !p.ReadyToPlay() {
		t.Error("playback should still be possible without lyrics")
	}
}

func TestPlayer_LoadAudioFailure(t *testing.T) {
	t.Parallel()

	sink := &mock.Sink{LoadErr: errors.New("decode failed")}
	p := player.New(sink, discardLogger())
	defer p.Close()

	if err := p.Load(context.Background(), "song.mp3", ""); err == nil {
		t.Fatal("Load with failing sink returned nil")
	}
	if p.ReadyToPlay() {
		t.Error("ReadyToPlay = true after failed load")
	}
}

func TestPlayer_PlayWithoutLoad(t *testing.T) {
	t.Parallel()

	p := player.New(&mock.Sink{}, discardLogger())
	defer p.Close()

	if err := p.Play(context.Background()); !errors.Is(err, audio.ErrNoSource) {
		t.Errorf("Play before Load = %v, want ErrNoSource", err)
	}
}

func TestPlayer_PlayReadyTimeout(t *testing.T) {
	t.Parallel()

	sink := &mock.Sink{NotReady: true}
	p := player.New(sink, discardLogger(), player.WithReadyTimeout(60*time.Millisecond))
	defer p.Close()

	if err := p.Load(context.Background(), "song.mp3", ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := p.Play(context.Background()); !errors.Is(err, player.ErrReadyTimeout) {
		t.Errorf("Play on never-ready sink = %v, want ErrReadyTimeout", err)
	}
}

func TestPlayer_StopRewinds(t *testing.T) {
	t.Parallel()

	sink := &mock.Sink{}
	p := player.New(sink, discardLogger())
	defer p.Close()

	if err := p.Load(context.Background(), "song.mp3", ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	sink.SetPosition(12 * time.Second)

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sink.Playing() {
		t.Error("sink still playing after Stop")
	}
	if got := sink.Position(); got != 0 {
		t.Errorf("position after Stop = %v, want 0", got)
	}
}

func TestPlayer_Callbacks(t *testing.T) {
	t.Parallel()

	sink := &mock.Sink{}
	p := player.New(sink, discardLogger(), player.WithTickInterval(10*time.Millisecond))
	defer p.Close()

	var played, paused, ended, ticks atomic.Int32
	p.OnPlay(func() { played.Add(1) })
	p.OnPause(func() { paused.Add(1) })
	p.OnEnded(func() { ended.Add(1) })
	p.OnTick(func(time.Duration) { ticks.Add(1) })

	if err := p.Load(context.Background(), "song.mp3", ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if err := p.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	if played.Load() != 1 || paused.Load() != 1 {
		t.Errorf("play/pause callbacks = %d/%d, want 1/1", played.Load(), paused.Load())
	}
	if ticks.Load() == 0 {
		t.Error("no tick callbacks while playing")
	}
	before := ticks.Load()
	time.Sleep(40 * time.Millisecond)
	if got := ticks.Load(); got != before {
		t.Errorf("tick count advanced while paused: %d -> %d", before, got)
	}

	sink.FireEnded()
	if ended.Load() != 1 {
		t.Errorf("ended callbacks = %d, want 1", ended.Load())
	}
}

func TestPlayer_DurationFallsBackToLyrics(t *testing.T) {
	t.Parallel()

	srv := lyricServer(t, http.StatusOK, sampleLRC)
	sink := &mock.Sink{} // reports zero duration
	p := player.New(sink, discardLogger())
	defer p.Close()

	if err := p.Load(context.Background(), "song.mp3", srv.URL); err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Last line at 3.5s plus the outro buffer.
	if got := p.Duration(); got != 7500*time.Millisecond {
		t.Errorf("Duration = %v, want 7.5s", got)
	}
}
