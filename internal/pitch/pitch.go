// Package pitch estimates the fundamental frequency of a short audio buffer
// using time-domain autocorrelation, restricted to the plausible human voice
// band (roughly 80–800 Hz), and names the nearest musical note.
//
// This is a heuristic estimator tuned for monophonic singing at microphone
// quality, not a ground-truth pitch tracker. Octave errors and occasional
// voiced/unvoiced misclassification are expected imprecision.
package pitch

import (
	"fmt"
	"math"
)

// Voice band limits used to bound the autocorrelation period search.
const (
	maxVoiceHz = 800
	minVoiceHz = 80
)

// noteNames lists the 12 chromatic note names starting at A, matching the
// A4 = 440 Hz reference used by [NoteName].
var noteNames = [12]string{"A", "A#", "B", "C", "C#", "D", "D#", "E", "F", "F#", "G", "G#"}

// Result is one pitch estimate.
type Result struct {
	// Hz is the estimated fundamental frequency, or 0 when no pitch was
	// detected.
	Hz float64

	// Note is the nearest note name with octave (e.g., "A4"), or empty when
	// Hz is 0.
	Note string
}

// Detect estimates the fundamental frequency of the buffer. For each
// candidate period in sampleRate/800 … sampleRate/80 samples it computes the
// unnormalised autocorrelation Σ buf[i]·buf[i+period] and picks the period
// with maximum correlation; the pitch is sampleRate/bestPeriod. Returns a
// zero Result when the buffer is too short or no positive correlation exists.
func Detect(buf []float64, sampleRate int) Result {
	if sampleRate <= 0 || len(buf) == 0 {
		return Result{}
	}

	minPeriod := sampleRate / maxVoiceHz
	maxPeriod := sampleRate / minVoiceHz
	if minPeriod < 1 {
		minPeriod = 1
	}

	bestPeriod := 0
	bestCorrelation := 0.0
	for period := minPeriod; period < maxPeriod && period < len(buf); period++ {
		var correlation float64
		for i := 0; i < len(buf)-period; i++ {
			correlation += buf[i] * buf[i+period]
		}
		if correlation > bestCorrelation {
			bestCorrelation = correlation
			bestPeriod = period
		}
	}

	if bestPeriod == 0 {
		return Result{}
	}
	hz := float64(sampleRate) / float64(bestPeriod)
	return Result{Hz: hz, Note: NoteName(hz)}
}

// NoteName returns the nearest chromatic note with octave for a frequency,
// using A4 = 440 Hz as reference: 12·log2(hz/440) semitones from A4, note
// letter from the offset modulo 12, octave from the whole-octave distance.
// Returns "" for hz ≤ 0.
func NoteName(hz float64) string {
	if hz <= 0 {
		return ""
	}
	semitones := 12 * math.Log2(hz/440)
	idx := int(math.Round(semitones)) % 12
	if idx < 0 {
		idx += 12
	}
	octave := int(math.Floor(math.Log2(hz/440) + 4))
	return fmt.Sprintf("%s%d", noteNames[idx], octave)
}
