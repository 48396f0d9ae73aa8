package session

import (
	"time"
)

// fallbackFeedback is shown before any segment has been scored.
const fallbackFeedback = "Keep singing!"

// Snapshot is the full live game state pushed to clients. Positions and
// durations cross the API boundary in milliseconds.
type Snapshot struct {
	State          string        `json:"state"`
	SongID         string        `json:"songId,omitempty"`
	SongTitle      string        `json:"songTitle,omitempty"`
	SongArtist     string        `json:"songArtist,omitempty"`
	PositionMS     int64         `json:"positionMs"`
	DurationMS     int64         `json:"durationMs"`
	CurrentLine    string        `json:"currentLine,omitempty"`
	UpcomingLines  []string      `json:"upcomingLines,omitempty"`
	PreviousLines  []string      `json:"previousLines,omitempty"`
	LiveTranscript string        `json:"liveTranscript,omitempty"`
	Score          ScoreSnapshot `json:"score"`
	VoiceActive    bool          `json:"voiceActive"`
	VoiceLevel     float64       `json:"voiceLevel"`
	PitchHz        float64       `json:"pitchHz,omitempty"`
	PitchNote      string        `json:"pitchNote,omitempty"`
	Feedback       string        `json:"feedback"`
}

// Snapshot assembles the current game state from the player, voice monitor,
// and score aggregate.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	state := c.state
	song := c.song
	interim := c.lastInterim
	c.mu.Unlock()

	snap := Snapshot{
		State:          state.String(),
		SongID:         song.ID,
		SongTitle:      song.Title,
		SongArtist:     song.Artist,
		PositionMS:     c.player.Position().Milliseconds(),
		DurationMS:     c.player.Duration().Milliseconds(),
		LiveTranscript: interim,
		Score:          c.scores.Snapshot(),
	}

	if line, ok := c.player.CurrentLyric(); ok {
		snap.CurrentLine = line.Text
	}
	for _, l := range c.player.UpcomingLyrics(2) {
		snap.UpcomingLines = append(snap.UpcomingLines, l.Text)
	}
	for _, l := range c.player.PreviousLyrics(2) {
		snap.PreviousLines = append(snap.PreviousLines, l.Text)
	}

	act := c.monitor.Latest()
	snap.VoiceActive = act.Active
	snap.VoiceLevel = act.Level
	if p := c.monitor.LatestPitch(); p.Hz > 0 {
		snap.PitchHz = p.Hz
		snap.PitchNote = p.Note
	}

	snap.Feedback = fallbackFeedback
	if len(snap.Score.Feedback) > 0 {
		snap.Feedback = snap.Score.Feedback[0]
	}
	return snap
}

// Position returns the playback position of the loaded song.
func (c *Controller) Position() time.Duration { return c.player.Position() }

// Seek moves the playback position. The session clock is unaffected; scoring
// windows keep following wall time.
func (c *Controller) Seek(pos time.Duration) error { return c.player.Seek(pos) }

// SetVolume sets playback gain in [0, 1].
func (c *Controller) SetVolume(v float64) error { return c.player.SetVolume(v) }

// SetMuted toggles playback muting.
func (c *Controller) SetMuted(m bool) error { return c.player.SetMuted(m) }
