package scoring

import (
	"strings"
	"time"
)

// defaultConfidence is assigned to transcript-derived words when the
// provider reports no per-word confidence.
const defaultConfidence = 0.8

// ParseTranscript splits a transcript into [UserWord] values by dividing the
// (start, end) window evenly across the words in order. Each word receives
// the default confidence; providers with word-level detail bypass this and
// build UserWords directly.
func ParseTranscript(transcript string, start, end time.Duration) []UserWord {
	words := strings.Fields(transcript)
	if len(words) == 0 {
		return nil
	}

	perWord := (end - start) / time.Duration(len(words))
	out := make([]UserWord, len(words))
	for i, w := range words {
		ws := start + time.Duration(i)*perWord
		out[i] = UserWord{
			Word:       w,
			Start:      ws,
			End:        ws + perWord,
			Confidence: defaultConfidence,
		}
	}
	return out
}
