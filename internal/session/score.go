package session

import (
	"math"
	"sync"

	"github.com/cadenza-audio/cadenza/internal/scoring"
)

// Thresholds for the running streak and perfect-note counters.
const (
	streakThreshold  = 80
	perfectThreshold = 95
)

// ScoreState is the running aggregate of all segment scores produced during
// one session. The session score is the plain sum of every segment total;
// the accuracy, timing, and pitch components are running means over the
// number of scored segments, so early segments and late segments weigh
// equally.
type ScoreState struct {
	mu sync.Mutex

	segments     int
	score        int
	accuracy     float64
	timing       float64
	pitch        float64
	streak       int
	bestStreak   int
	perfectNotes int
	lastFeedback []string
}

// ScoreSnapshot is a point-in-time copy of the aggregate, safe to hand to
// the gateway or persist.
type ScoreSnapshot struct {
	Segments     int      `json:"segments"`
	Score        int      `json:"score"`
	Accuracy     int      `json:"accuracy"`
	Timing       int      `json:"timing"`
	Pitch        int      `json:"pitch"`
	Streak       int      `json:"streak"`
	BestStreak   int      `json:"bestStreak"`
	PerfectNotes int      `json:"perfectNotes"`
	Feedback     []string `json:"feedback,omitempty"`
}

// Fold merges one segment result into the running aggregate. The segment
// total accumulates into the session score; each component average moves by
// newAvg = oldAvg·n/(n+1) + value/(n+1). A segment above the streak
// threshold extends the streak; one at or below it resets the streak to zero.
func (s *ScoreState) Fold(r scoring.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := float64(s.segments)
	s.score += r.TotalScore
	s.accuracy = s.accuracy*n/(n+1) + float64(r.Accuracy)/(n+1)
	s.timing = s.timing*n/(n+1) + float64(r.Timing)/(n+1)
	s.pitch = s.pitch*n/(n+1) + float64(r.Pitch)/(n+1)
	s.segments++

	if r.TotalScore > streakThreshold {
		s.streak++
		if s.streak > s.bestStreak {
			s.bestStreak = s.streak
		}
	} else {
		s.streak = 0
	}
	if r.TotalScore > perfectThreshold {
		s.perfectNotes++
	}
	s.lastFeedback = r.Feedback
}

// Snapshot returns a copy of the current aggregate with rounded scores.
func (s *ScoreState) Snapshot() ScoreSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	fb := make([]string, len(s.lastFeedback))
	copy(fb, s.lastFeedback)

	return ScoreSnapshot{
		Segments:     s.segments,
		Score:        s.score,
		Accuracy:     int(math.Round(s.accuracy)),
		Timing:       int(math.Round(s.timing)),
		Pitch:        int(math.Round(s.pitch)),
		Streak:       s.streak,
		BestStreak:   s.bestStreak,
		PerfectNotes: s.perfectNotes,
		Feedback:     fb,
	}
}

// Reset clears the aggregate back to its zero state.
func (s *ScoreState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = 0
	s.score = 0
	s.accuracy = 0
	s.timing = 0
	s.pitch = 0
	s.streak = 0
	s.bestStreak = 0
	s.perfectNotes = 0
	s.lastFeedback = nil
}
