package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known backend names per registry kind.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "mock"},
	"microphone": {"portaudio", "mock"},
	"sink":       {"beep", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Audio
	if cfg.Audio.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is below the 8000 Hz minimum", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	// Backend name validation — warn for unknown names, they may be
	// registered by a wrapping binary.
	validateBackendName("stt", cfg.STT.Name)
	validateBackendName("microphone", cfg.Audio.Microphone)
	validateBackendName("sink", cfg.Audio.Sink)

	if cfg.STT.Name == "whisper" && cfg.STT.ModelPath == "" {
		errs = append(errs, errors.New("stt.model_path is required when stt.name is whisper"))
	}

	// Scores
	if !cfg.Scores.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("scores.driver %q is invalid; valid values: memory, postgres", cfg.Scores.Driver))
	}
	if cfg.Scores.Driver == ScoreDriverPostgres && cfg.Scores.PostgresDSN == "" {
		errs = append(errs, errors.New("scores.postgres_dsn is required when scores.driver is postgres"))
	}
	if cfg.Scores.Driver == ScoreDriverMemory {
		slog.Debug("scores.driver is memory; performance history is lost on restart")
	}

	// Game
	if cfg.Game.WindowMS < 100 {
		errs = append(errs, fmt.Errorf("game.window_ms %d is below the 100 ms minimum", cfg.Game.WindowMS))
	}
	if cfg.Game.ActivityThreshold < 0 || cfg.Game.ActivityThreshold > 1 {
		errs = append(errs, fmt.Errorf("game.activity_threshold %.3f is out of range [0, 1]", cfg.Game.ActivityThreshold))
	}
	if cfg.Game.PitchEveryFrames <= 0 {
		errs = append(errs, fmt.Errorf("game.pitch_every_frames %d must be positive", cfg.Game.PitchEveryFrames))
	}

	return errors.Join(errs...)
}

// validateBackendName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateBackendName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown backend name — may be a typo or third-party backend",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
