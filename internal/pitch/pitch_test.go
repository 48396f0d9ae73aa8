package pitch_test

import (
	"math"
	"testing"

	"github.com/cadenza-audio/cadenza/internal/pitch"
)

// sine generates a pure tone at the given frequency.
func sine(hz float64, sampleRate, n int) []float64 {
	buf := make([]float64, n)
	for i := range buf {
		buf[i] = math.Sin(2 * math.Pi * hz * float64(i) / float64(sampleRate))
	}
	return buf
}

func TestDetect_PureTones(t *testing.T) {
	t.Parallel()

	const sampleRate = 16000
	for _, hz := range []float64{110, 220, 440} {
		got := pitch.Detect(sine(hz, sampleRate, 2048), sampleRate)
		if got.Hz <= 0 {
			t.Fatalf("Detect(%vHz sine): no pitch detected", hz)
		}
		// Period quantisation limits precision; 3% is enough to confirm
		// the right period while rejecting octave errors.
		if ratio := got.Hz / hz; ratio < 0.97 || ratio > 1.03 {
			t.Errorf("Detect(%vHz sine) = %vHz, want within 3%%", hz, got.Hz)
		}
	}
}

func TestDetect_SilenceAndEmpty(t *testing.T) {
	t.Parallel()

	if got := pitch.Detect(make([]float64, 2048), 16000); got.Hz != 0 || got.Note != "" {
		t.Errorf("Detect(silence) = %+v, want zero result", got)
	}
	if got := pitch.Detect(nil, 16000); got.Hz != 0 {
		t.Errorf("Detect(nil) = %+v, want zero result", got)
	}
	if got := pitch.Detect(sine(220, 16000, 2048), 0); got.Hz != 0 {
		t.Errorf("Detect with zero sample rate = %+v, want zero result", got)
	}
}

func TestNoteName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hz   float64
		want string
	}{
		{440, "A4"},
		{880, "A5"},
		{220, "A3"},
		{466.16, "A#4"},
		{0, ""},
		{-10, ""},
	}
	for _, tt := range tests {
		if got := pitch.NoteName(tt.hz); got != tt.want {
			t.Errorf("NoteName(%v) = %q, want %q", tt.hz, got, tt.want)
		}
	}
}
