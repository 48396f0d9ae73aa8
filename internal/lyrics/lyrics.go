// Package lyrics implements the LRC-style lyric timeline model: parsing
// line-timed lyric text, querying the current and surrounding lines for a
// playback position, and deriving the word-level timing approximation used by
// the scoring engine.
//
// The format is line-oriented. Metadata lines carry [ti:], [ar:], or [al:]
// tags; content lines are prefixed with a [mm:ss.xx] timestamp. Anything else
// is ignored. Parsing is deterministic: the same input always yields the same
// timeline, with lines sorted ascending by time regardless of input order.
package lyrics

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Line is a single timestamped lyric line. Immutable once parsed. Empty Text
// is permitted and treated as a gap — such lines are never returned as the
// current line.
type Line struct {
	// Time is the line's position in the song.
	Time time.Duration

	// Text is the lyric content, possibly empty.
	Text string
}

// Timeline is the ordered sequence of timestamped lines for one song, plus
// any metadata tags found in the source. Lines are sorted ascending by Time.
type Timeline struct {
	Title  string
	Artist string
	Album  string
	Lines  []Line
}

// timestampRe matches the [mm:ss.xx] prefix of a timed lyric line.
var timestampRe = regexp.MustCompile(`^\[(\d{2}):(\d{2})\.(\d{2})\]`)

// Parse converts LRC-formatted text into a [Timeline]. Unrecognised lines are
// skipped without error; output lines are sorted ascending by time.
func Parse(content string) Timeline {
	var tl Timeline

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "[ti:"):
			tl.Title = trimTag(line)
			continue
		case strings.HasPrefix(line, "[ar:"):
			tl.Artist = trimTag(line)
			continue
		case strings.HasPrefix(line, "[al:"):
			tl.Album = trimTag(line)
			continue
		}

		m := timestampRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		tl.Lines = append(tl.Lines, Line{
			Time: parseTimestamp(m),
			Text: strings.TrimSpace(line[len(m[0]):]),
		})
	}

	sort.SliceStable(tl.Lines, func(i, j int) bool {
		return tl.Lines[i].Time < tl.Lines[j].Time
	})
	return tl
}

// parseTimestamp converts matched [mm:ss.xx] groups to a duration:
// (mm*60+ss) seconds plus xx hundredths.
func parseTimestamp(m []string) time.Duration {
	mm, _ := strconv.Atoi(m[1])
	ss, _ := strconv.Atoi(m[2])
	xx, _ := strconv.Atoi(m[3])
	return time.Duration(mm*60+ss)*time.Second + time.Duration(xx)*10*time.Millisecond
}

// trimTag strips the 4-byte tag prefix ("[ti:" etc.) and the closing bracket.
func trimTag(line string) string {
	s := line[4:]
	s = strings.TrimSuffix(s, "]")
	return strings.TrimSpace(s)
}
