package transcript

import (
	"testing"

	"scribe/internal/diarize"
	"scribe/internal/stt"
)

var turns = []diarize.Segment{
	{Start: 0, End: 5, Speaker: "SPEAKER_00"},
	{Start: 5, End: 12, Speaker: "SPEAKER_01"},
}

func TestAlignAttributesByLargestOverlap(t *testing.T) {
	results := []stt.Result{
		{Index: 0, StartMillis: 0, EndMillis: 4000, Kind: stt.KindText, Text: "hello there"},
		{Index: 1, StartMillis: 4000, EndMillis: 9000, Kind: stt.KindText, Text: "general kenobi"},
	}

	entries := Align(results, turns)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Speaker != "SPEAKER_00" {
		t.Errorf("first speaker = %q, want SPEAKER_00", entries[0].Speaker)
	}
	// [4s,9s] overlaps SPEAKER_00 for 1s and SPEAKER_01 for 4s.
	if entries[1].Speaker != "SPEAKER_01" {
		t.Errorf("second speaker = %q, want SPEAKER_01", entries[1].Speaker)
	}
}

func TestAlignKeepsTimingForEmptyAndFailedResults(t *testing.T) {
	results := []stt.Result{
		{Index: 0, StartMillis: 0, EndMillis: 2000, Kind: stt.KindText, Text: "spoken"},
		{Index: 1, StartMillis: 2000, EndMillis: 4000, Kind: stt.KindNoSpeech},
		{Index: 2, StartMillis: 4000, EndMillis: 6000, Kind: stt.KindError},
	}

	entries := Align(results, turns)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want all 3 timing rows", len(entries))
	}
	if entries[1].Text != "" || entries[1].Failed {
		t.Errorf("no-speech entry wrong: %+v", entries[1])
	}
	if !entries[2].Failed {
		t.Errorf("errored entry not marked: %+v", entries[2])
	}
	if entries[2].Start != 4.0 || entries[2].End != 6.0 {
		t.Errorf("timing lost on failed entry: %+v", entries[2])
	}
}

func TestAlignSortsByStartTime(t *testing.T) {
	results := []stt.Result{
		{Index: 1, StartMillis: 6000, EndMillis: 8000, Kind: stt.KindText, Text: "second"},
		{Index: 0, StartMillis: 0, EndMillis: 2000, Kind: stt.KindText, Text: "first"},
	}

	entries := Align(results, turns)
	if entries[0].Text != "first" || entries[1].Text != "second" {
		t.Errorf("entries out of order: %+v", entries)
	}
}

func TestAlignLabelsUncoveredAudioUnknown(t *testing.T) {
	results := []stt.Result{
		{Index: 0, StartMillis: 20000, EndMillis: 22000, Kind: stt.KindText, Text: "late"},
	}
	entries := Align(results, turns)
	if entries[0].Speaker != "UNKNOWN" {
		t.Errorf("speaker = %q, want UNKNOWN", entries[0].Speaker)
	}
}

func TestSummarizeCountsOutcomes(t *testing.T) {
	doc := &Document{Entries: []Entry{
		{Text: "a"},
		{Text: ""},
		{Failed: true},
		{Text: "b"},
	}}
	stats := doc.Summarize()
	if stats.Total != 4 || stats.Spoken != 2 || stats.Failed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if got := stats.FailureRatio(); got != 0.25 {
		t.Errorf("failure ratio = %v, want 0.25", got)
	}
}
