package lyrics

import (
	"math"
	"time"
)

// outroBuffer is added to the last lyric's timestamp when estimating song
// duration, leaving room for the instrumental outro.
const outroBuffer = 4 * time.Second

// CurrentLine returns the last line with Time ≤ t and non-empty text. The
// second return value is false when no line qualifies. Lines are scanned in
// ascending order and the scan stops at the first line with Time > t — the
// timeline is assumed sorted, which [Parse] guarantees.
func (tl Timeline) CurrentLine(t time.Duration) (Line, bool) {
	var (
		current Line
		found   bool
	)
	for _, line := range tl.Lines {
		if line.Time > t {
			break
		}
		if line.Text != "" {
			current = line
			found = true
		}
	}
	return current, found
}

// UpcomingLines returns the first n lines with Time > t and non-empty text,
// in order.
func (tl Timeline) UpcomingLines(t time.Duration, n int) []Line {
	var out []Line
	for _, line := range tl.Lines {
		if len(out) == n {
			break
		}
		if line.Time > t && line.Text != "" {
			out = append(out, line)
		}
	}
	return out
}

// PreviousLines returns the last n lines with Time < t and non-empty text,
// in order.
func (tl Timeline) PreviousLines(t time.Duration, n int) []Line {
	var out []Line
	for _, line := range tl.Lines {
		if line.Time >= t {
			break
		}
		if line.Text != "" {
			out = append(out, line)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// DurationEstimate parses content and estimates the song length: the
// timestamp of the last non-empty line, rounded up to a whole second, plus a
// fixed outro buffer. When no line has text, the last raw timestamp is used
// with no buffer. Returns 0 for content with no timed lines.
func DurationEstimate(content string) time.Duration {
	tl := Parse(content)
	if len(tl.Lines) == 0 {
		return 0
	}

	var lastWithText *Line
	for i := range tl.Lines {
		if tl.Lines[i].Text != "" {
			lastWithText = &tl.Lines[i]
		}
	}
	if lastWithText == nil {
		last := tl.Lines[len(tl.Lines)-1]
		return ceilSeconds(last.Time)
	}
	return ceilSeconds(lastWithText.Time) + outroBuffer
}

func ceilSeconds(d time.Duration) time.Duration {
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}
