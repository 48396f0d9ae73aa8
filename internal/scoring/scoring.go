// Package scoring implements the performance-scoring engine: given the
// expected lyric words for a time window and a freshly finalised transcript
// segment, it computes word accuracy, timing accuracy, and pitch accuracy,
// combines them into a weighted total, and produces human-readable feedback.
//
// Score is a pure function — one call per finalised transcript segment, no
// state between calls. The session controller owns all accumulation.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/cadenza-audio/cadenza/internal/lyrics"
)

const (
	// similarityFloor is the normalised edit-distance similarity above which
	// a mismatched word still earns partial credit ("singin" vs "singing").
	similarityFloor = 0.8

	// maxTimingError is the per-word timing error that maps to a zero
	// timing score; errors scale linearly below it.
	maxTimingError = 500 * time.Millisecond

	// Plausible fundamental-frequency band for a singing human voice.
	minVoiceHz = 80
	maxVoiceHz = 800

	// Weights for the combined total.
	accuracyWeight = 0.5
	timingWeight   = 0.3
	pitchWeight    = 0.2
)

// UserWord is one recognised word with its attributed timing window and the
// provider's confidence in it.
type UserWord struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Breakdown itemises the sub-scores that built a [Result].
type Breakdown struct {
	WordAccuracy   int `json:"wordAccuracy"`
	TimingAccuracy int `json:"timingAccuracy"`
	PitchAccuracy  int `json:"pitchAccuracy"`
}

// Result is the score for one finalised transcript segment. Never mutated
// after creation; the session controller folds it into running state.
type Result struct {
	// TotalScore is the weighted combination of the three sub-scores,
	// rounded once at the end.
	TotalScore int `json:"totalScore"`

	// Accuracy, Timing, and Pitch are 0–100 rounded percentages.
	Accuracy int `json:"accuracy"`
	Timing   int `json:"timing"`
	Pitch    int `json:"pitch"`

	Breakdown Breakdown `json:"breakdown"`

	// Feedback holds rule-based coaching strings; always non-empty.
	Feedback []string `json:"feedback"`
}

// Score evaluates one finalised transcript segment against the expected
// lyric words for its window. detectedPitchHz is the most recent pitch
// estimate at the moment the segment finalised; pass 0 when none was
// detected.
func Score(expected []lyrics.Word, transcript string, userWords []UserWord, detectedPitchHz float64) Result {
	expectedTexts := make([]string, len(expected))
	for i, w := range expected {
		expectedTexts[i] = w.Text
	}
	spokenTexts := strings.Fields(transcript)

	accuracy := AccuracyScore(expectedTexts, spokenTexts)
	timing := TimingScore(expected, userWords)
	pitchScore := PitchScore(userWords, detectedPitchHz)

	total := accuracy*accuracyWeight + timing*timingWeight + pitchScore*pitchWeight

	return Result{
		TotalScore: int(math.Round(total)),
		Accuracy:   int(math.Round(accuracy)),
		Timing:     int(math.Round(timing)),
		Pitch:      int(math.Round(pitchScore)),
		Breakdown: Breakdown{
			WordAccuracy:   int(math.Round(accuracy)),
			TimingAccuracy: int(math.Round(timing)),
			PitchAccuracy:  int(math.Round(pitchScore)),
		},
		Feedback: feedback(accuracy, timing, pitchScore),
	}
}

// AccuracyScore compares expected and recognised words positionally —
// index-aligned, not re-aligned by content — and returns a 0–100 percentage
// over max(len(expected), len(user)). An exact case-insensitive match scores
// a full point; a near-miss above the similarity floor earns its similarity
// as partial credit. Returns 0 when no words were expected.
func AccuracyScore(expected, user []string) float64 {
	if len(expected) == 0 {
		return 0
	}
	total := len(expected)
	if len(user) > total {
		total = len(user)
	}

	var correct float64
	n := len(expected)
	if len(user) < n {
		n = len(user)
	}
	for i := 0; i < n; i++ {
		e := strings.ToLower(strings.TrimSpace(expected[i]))
		u := strings.ToLower(strings.TrimSpace(user[i]))
		if e == u {
			correct++
			continue
		}
		if sim := wordSimilarity(e, u); sim > similarityFloor {
			correct += sim
		}
	}
	return correct / float64(total) * 100
}

// TimingScore compares word timing positionally: for each aligned pair the
// error is the mean of the absolute start and end deltas, mapped linearly so
// that 0 ms scores 100 and ≥500 ms scores 0, then averaged over all pairs.
// Returns 0 when either side is empty.
func TimingScore(expected []lyrics.Word, user []UserWord) float64 {
	if len(expected) == 0 || len(user) == 0 {
		return 0
	}
	n := len(expected)
	if len(user) < n {
		n = len(user)
	}

	var sum float64
	for i := 0; i < n; i++ {
		startErr := absDuration(expected[i].Start - user[i].Start)
		endErr := absDuration(expected[i].End - user[i].End)
		avgErr := float64(startErr+endErr) / 2

		score := 100 - avgErr/float64(maxTimingError)*100
		if score < 0 {
			score = 0
		}
		sum += score
	}
	return sum / float64(n)
}

// PitchScore rates the segment's pitch. With no detected pitch it falls back
// to a confidence-derived estimate; a pitch outside the plausible voice band
// scores a fixed 50; otherwise a stability heuristic applies.
//
// This is a placeholder for true melody matching: no per-note reference data
// exists for songs, so the engine cannot compare against the actual tune.
func PitchScore(user []UserWord, detectedPitchHz float64) float64 {
	if detectedPitchHz <= 0 {
		base := 70.0
		if len(user) == 0 {
			return base
		}
		var confSum float64
		for _, w := range user {
			confSum += w.Confidence
		}
		return math.Min(100, base+confSum/float64(len(user))*30)
	}

	if detectedPitchHz < minVoiceHz || detectedPitchHz > maxVoiceHz {
		return 50
	}

	quality := math.Min(20, math.Abs(detectedPitchHz-220)/10)
	return math.Min(100, 80+quality)
}

// wordSimilarity returns 1 − normalised Levenshtein distance between two
// words, in [0, 1].
func wordSimilarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	return float64(maxLen-dist) / float64(maxLen)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
