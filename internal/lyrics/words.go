package lyrics

import (
	"strings"
	"time"
	"unicode"
)

const (
	// minLineDuration floors a line's length so very tight line spacing
	// still leaves singable word windows.
	minLineDuration = time.Second

	// lastLineDuration is assumed for the final line, which has no successor
	// to measure against.
	lastLineDuration = 3 * time.Second
)

// Word is a lyric word with its approximated timing window. Words within one
// line are contiguous and non-overlapping: each word's End equals the next
// word's Start.
type Word struct {
	// Text is the word with punctuation stripped, for matching against
	// recognised speech.
	Text string

	// Start and End bound the word's approximated window in the song.
	Start time.Duration
	End   time.Duration
}

// WordsForScoring derives the word-level timing approximation from the
// timeline: each line's duration (distance to the next line, floored at one
// second; a fixed three seconds for the last line) is distributed evenly
// across its whitespace-delimited words. The derivation is a pure function of
// the timeline.
func (tl Timeline) WordsForScoring() []Word {
	var words []Word

	for i, line := range tl.Lines {
		if strings.TrimSpace(line.Text) == "" {
			continue
		}
		tokens := strings.Fields(line.Text)
		if len(tokens) == 0 {
			continue
		}

		lineDuration := lastLineDuration
		if i+1 < len(tl.Lines) {
			lineDuration = tl.Lines[i+1].Time - line.Time
			if lineDuration < minLineDuration {
				lineDuration = minLineDuration
			}
		}
		perWord := lineDuration / time.Duration(len(tokens))

		for w, token := range tokens {
			start := line.Time + time.Duration(w)*perWord
			words = append(words, Word{
				Text:  stripPunctuation(token),
				Start: start,
				End:   start + perWord,
			})
		}
	}
	return words
}

// stripPunctuation removes everything except letters, digits, underscores,
// and spaces, mirroring how recognised speech is tokenised.
func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == ' ' {
			return r
		}
		return -1
	}, s)
}
