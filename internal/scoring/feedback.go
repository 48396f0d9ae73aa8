package scoring

// Feedback thresholds: below needsWork earns a coaching tip for that
// category, above excellent earns praise. Scores in between get neither.
const (
	needsWork = 70.0
	excellent = 90.0
)

// feedback builds the rule-based coaching strings for one scoring result.
// Multiple tips may co-occur; when nothing triggers, a generic positive
// message is returned so the list is never empty.
func feedback(accuracy, timing, pitchScore float64) []string {
	var out []string

	if accuracy < needsWork {
		out = append(out, "Work on pronunciation and word clarity")
	} else if accuracy > excellent {
		out = append(out, "Excellent word accuracy!")
	}

	if timing < needsWork {
		out = append(out, "Try to match the song's rhythm better")
	} else if timing > excellent {
		out = append(out, "Perfect timing!")
	}

	if pitchScore < needsWork {
		out = append(out, "Focus on hitting the right notes")
	} else if pitchScore > excellent {
		out = append(out, "Great pitch control!")
	}

	if len(out) == 0 {
		out = append(out, "Good overall performance!")
	}
	return out
}
