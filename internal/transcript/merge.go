package transcript

import (
	"sort"

	"scribe/internal/diarize"
	"scribe/internal/stt"
)

// Align attributes each recognition result to the diarization speaker whose
// turn overlaps it the most. Results with no overlapping turn are labeled
// UNKNOWN. Every result keeps its timing row: no-speech entries carry empty
// text and errored entries are marked Failed.
func Align(results []stt.Result, turns []diarize.Segment) []Entry {
	sorted := append([]stt.Result(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartMillis < sorted[j].StartMillis })

	entries := make([]Entry, 0, len(sorted))
	for _, result := range sorted {
		start := float64(result.StartMillis) / 1000.0
		end := float64(result.EndMillis) / 1000.0

		entry := Entry{
			Start:   start,
			End:     end,
			Speaker: speakerFor(start, end, turns),
		}
		switch result.Kind {
		case stt.KindText:
			entry.Text = result.Text
		case stt.KindError:
			entry.Failed = true
		}
		entries = append(entries, entry)
	}
	return entries
}

// speakerFor picks the turn with the largest time overlap against [start, end].
func speakerFor(start, end float64, turns []diarize.Segment) string {
	best := "UNKNOWN"
	var bestOverlap float64
	for _, turn := range turns {
		overlap := min(end, turn.End) - max(start, turn.Start)
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = turn.Speaker
		}
	}
	return best
}
