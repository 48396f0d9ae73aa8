// Package voice implements the voice-activity monitor: per-frame RMS energy,
// a 0–100 volume level, an active/inactive classification against a
// configurable threshold, and a rolling "latest pitch" estimate for the
// scoring engine.
//
// The monitor is driven by whoever pumps microphone frames (the session
// controller); it holds no goroutine of its own, so stopping the pump stops
// all analysis immediately.
package voice

import (
	"math"
	"sync"

	"github.com/cadenza-audio/cadenza/internal/pitch"
	"github.com/cadenza-audio/cadenza/pkg/audio"
)

const (
	// defaultThreshold is the raw RMS level (samples normalised to [-1, 1])
	// above which a frame counts as vocalising. Calibrated empirically for
	// conversational microphone gain.
	defaultThreshold = 0.02

	// defaultPitchEvery runs the autocorrelation pass on every Nth frame.
	// Volume/activity is still computed per frame; pitch is the expensive
	// stage and one estimate per ~2 frames is fresh enough for scoring.
	defaultPitchEvery = 2

	// volumeScale maps raw RMS onto the 0–100 display level. Singing at
	// normal microphone gain sits around RMS 0.05–0.25.
	volumeScale = 400
)

// Activity is one voice-activity observation.
type Activity struct {
	// Active reports whether the RMS level exceeded the threshold.
	Active bool

	// Level is the 0–100 volume level.
	Level float64
}

// Option is a functional option for configuring a [Monitor].
type Option func(*Monitor)

// WithThreshold sets the raw RMS activity threshold. Default: 0.02.
func WithThreshold(threshold float64) Option {
	return func(m *Monitor) { m.threshold = threshold }
}

// WithPitchEvery sets how often the pitch detector runs: once per n frames.
// Default: 2. Values < 1 are treated as 1.
func WithPitchEvery(n int) Option {
	return func(m *Monitor) {
		if n < 1 {
			n = 1
		}
		m.pitchEvery = n
	}
}

// WithActivityFunc registers cb to receive every activity observation.
// Only one callback is registered at a time.
func WithActivityFunc(cb func(Activity)) Option {
	return func(m *Monitor) { m.onActivity = cb }
}

// WithPitchFunc registers cb to receive every pitch estimate.
// Only one callback is registered at a time.
func WithPitchFunc(cb func(pitch.Result)) Option {
	return func(m *Monitor) { m.onPitch = cb }
}

// Monitor classifies voice activity and tracks the most recent pitch
// estimate. Process is called from a single pump goroutine; the snapshot
// accessors are safe to call from any goroutine.
type Monitor struct {
	threshold  float64
	pitchEvery int
	onActivity func(Activity)
	onPitch    func(pitch.Result)

	mu         sync.Mutex
	frameCount int
	latest     Activity
	lastPitch  pitch.Result
}

// NewMonitor returns a Monitor configured with the supplied options.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		threshold:  defaultThreshold,
		pitchEvery: defaultPitchEvery,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Process analyses one captured frame: computes RMS, classifies activity,
// and (on every Nth frame) refreshes the pitch estimate. Callbacks fire
// synchronously on the caller's goroutine.
func (m *Monitor) Process(frame audio.Frame) {
	samples := frame.Float64s()
	rms := RMS(samples)

	act := Activity{
		Active: rms > m.threshold,
		Level:  math.Min(100, rms*volumeScale),
	}

	m.mu.Lock()
	m.frameCount++
	m.latest = act
	runPitch := m.frameCount%m.pitchEvery == 0
	m.mu.Unlock()

	if m.onActivity != nil {
		m.onActivity(act)
	}

	if runPitch {
		var p pitch.Result
		if act.Active {
			p = pitch.Detect(samples, frame.SampleRate)
		}
		m.mu.Lock()
		m.lastPitch = p
		m.mu.Unlock()
		if m.onPitch != nil {
			m.onPitch(p)
		}
	}
}

// Latest returns the most recent activity observation.
func (m *Monitor) Latest() Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// LatestPitch returns the most recent pitch estimate. The zero Result means
// no pitch is currently detected.
func (m *Monitor) LatestPitch() pitch.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPitch
}

// Reset clears accumulated state so a new capture stream starts clean.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameCount = 0
	m.latest = Activity{}
	m.lastPitch = pitch.Result{}
}

// RMS returns the root-mean-square of samples normalised to [-1, 1].
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
