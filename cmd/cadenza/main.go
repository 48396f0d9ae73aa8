// Command cadenza is the main entry point for the Cadenza karaoke server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cadenza-audio/cadenza/internal/catalog"
	"github.com/cadenza-audio/cadenza/internal/config"
	"github.com/cadenza-audio/cadenza/internal/gateway"
	"github.com/cadenza-audio/cadenza/internal/health"
	"github.com/cadenza-audio/cadenza/internal/observe"
	"github.com/cadenza-audio/cadenza/internal/player"
	"github.com/cadenza-audio/cadenza/internal/scorestore"
	"github.com/cadenza-audio/cadenza/internal/session"
	"github.com/cadenza-audio/cadenza/internal/voice"
	"github.com/cadenza-audio/cadenza/pkg/audio"
	"github.com/cadenza-audio/cadenza/pkg/audio/beepsink"
	audiomock "github.com/cadenza-audio/cadenza/pkg/audio/mock"
	paudio "github.com/cadenza-audio/cadenza/pkg/audio/portaudio"
	"github.com/cadenza-audio/cadenza/pkg/provider/stt"
	sttmock "github.com/cadenza-audio/cadenza/pkg/provider/stt/mock"
	"github.com/cadenza-audio/cadenza/pkg/provider/stt/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "cadenza: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "cadenza: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("cadenza starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "cadenza",
		ServiceVersion: version,
		STTBackend:     cfg.STT.Name,
		Microphone:     cfg.Audio.Microphone,
		Sink:           cfg.Audio.Sink,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// closers accumulates teardown functions, run in reverse on exit.
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("close error", "err", err)
			}
		}
	}()

	// ── Backend registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	mic, err := reg.CreateMicrophone(cfg.Audio)
	if err != nil {
		slog.Error("failed to create microphone backend", "name", cfg.Audio.Microphone, "err", err)
		return 1
	}
	sink, err := reg.CreateSink(cfg.Audio)
	if err != nil {
		slog.Error("failed to create sink backend", "name", cfg.Audio.Sink, "err", err)
		return 1
	}
	closers = append(closers, sink.Close)

	sttProvider, err := reg.CreateSTT(cfg.STT)
	if err != nil {
		slog.Error("failed to create stt backend", "name", cfg.STT.Name, "err", err)
		return 1
	}
	if c, ok := sttProvider.(interface{ Close() error }); ok {
		closers = append(closers, c.Close)
	}
	slog.Info("backends created",
		"microphone", cfg.Audio.Microphone,
		"sink", cfg.Audio.Sink,
		"stt", cfg.STT.Name,
	)

	// ── Stores ────────────────────────────────────────────────────────────────
	cat, err := catalog.OpenSQLite(cfg.Catalog.SQLitePath)
	if err != nil {
		slog.Error("failed to open song catalog", "path", cfg.Catalog.SQLitePath, "err", err)
		return 1
	}
	closers = append(closers, cat.Close)

	if cfg.Catalog.SeedFile != "" {
		n, err := catalog.SeedFromFile(ctx, cat, cfg.Catalog.SeedFile)
		if err != nil {
			slog.Error("failed to seed catalog", "path", cfg.Catalog.SeedFile, "err", err)
			return 1
		}
		slog.Info("catalog seeded", "songs", n)
	}

	scores, err := newScoreStore(ctx, cfg.Scores)
	if err != nil {
		slog.Error("failed to open score store", "driver", cfg.Scores.Driver, "err", err)
		return 1
	}
	closers = append(closers, scores.Close)

	// ── Session pipeline ──────────────────────────────────────────────────────
	p := player.New(sink, logger)
	closers = append(closers, p.Close)

	ctrl := session.NewController(logger, p, mic, sttProvider, scores,
		session.WithWindow(time.Duration(cfg.Game.WindowMS)*time.Millisecond),
		session.WithCaptureConfig(audio.CaptureConfig{
			SampleRate: cfg.Audio.SampleRate,
			FrameSize:  cfg.Audio.FrameSize,
		}),
		session.WithStreamConfig(stt.StreamConfig{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   1,
			Language:   cfg.STT.Language,
		}),
		session.WithMetrics(metrics),
		session.WithProviderName(cfg.STT.Name),
		session.WithMonitorOptions(
			voice.WithThreshold(cfg.Game.ActivityThreshold),
			voice.WithPitchEvery(cfg.Game.PitchEveryFrames),
		),
	)
	closers = append(closers, ctrl.Close)

	// ── HTTP gateway ──────────────────────────────────────────────────────────
	checks := health.New(
		health.Ping("catalog", func(ctx context.Context) error {
			_, err := cat.Songs(ctx)
			return err
		}),
		health.Ping("scores", func(ctx context.Context) error {
			_, err := scores.Recent(ctx, 1)
			return err
		}),
	)
	srv := gateway.New(logger, ctrl, cat, scores,
		gateway.WithMetrics(metrics),
		gateway.WithHealth(checks),
	)

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.Server.TLS != nil {
			err = httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		errCh <- err
	}()

	slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBuiltinBackends wires the backend factories that ship with Cadenza
// into reg. The mock backends let the server run on machines without audio
// hardware or a speech model.
func registerBuiltinBackends(reg *config.Registry) {
	// ── Microphones ───────────────────────────────────────────────────────────

	reg.RegisterMicrophone("portaudio", func(_ config.AudioConfig) (audio.MicrophoneSource, error) {
		return paudio.New(), nil
	})
	reg.RegisterMicrophone("mock", func(_ config.AudioConfig) (audio.MicrophoneSource, error) {
		return &audiomock.Microphone{}, nil
	})

	// ── Sinks ─────────────────────────────────────────────────────────────────

	reg.RegisterSink("beep", func(_ config.AudioConfig) (audio.Sink, error) {
		return beepsink.New(nil), nil
	})
	reg.RegisterSink("mock", func(_ config.AudioConfig) (audio.Sink, error) {
		return &audiomock.Sink{TotalDuration: 3 * time.Minute}, nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithLanguage(entry.Language)}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, whisper.WithSampleRate(rate))
		}
		if flush := optInt(entry.Options, "silence_flush_ms"); flush > 0 {
			opts = append(opts, whisper.WithSilenceFlush(time.Duration(flush)*time.Millisecond))
		}
		return whisper.New(entry.ModelPath, opts...)
	})
	reg.RegisterSTT("mock", func(_ config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})
}

// newScoreStore opens the performance store selected by cfg.
func newScoreStore(ctx context.Context, cfg config.ScoresConfig) (scorestore.Store, error) {
	switch cfg.Driver {
	case config.ScoreDriverPostgres:
		return scorestore.NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return scorestore.NewMemoryStore(), nil
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optInt extracts an int value from a backend Options map[string]any. Returns
// 0 if the map is nil, the key is absent, or the value is not an int.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	v, ok := opts[key]
	if !ok {
		return 0
	}
	n, ok := v.(int)
	if !ok {
		return 0
	}
	return n
}
