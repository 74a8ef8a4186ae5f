package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderSRTFormat(t *testing.T) {
	entries := []Entry{
		{Start: 0, End: 4.2, Speaker: "SPEAKER_00", Text: "hello there"},
		{Start: 4.2, End: 9.879, Speaker: "SPEAKER_01", Text: "hi"},
	}

	out := RenderSRT(entries)
	if !strings.HasPrefix(out, "\uFEFF") {
		t.Error("missing UTF-8 BOM")
	}

	body := strings.TrimPrefix(out, "\uFEFF")
	want := "1\n00:00:00,000 --> 00:00:04,200\n[SPEAKER_00]: hello there\n\n" +
		"2\n00:00:04,200 --> 00:00:09,879\n[SPEAKER_01]: hi\n\n"
	if body != want {
		t.Errorf("rendered SRT mismatch:\ngot:\n%q\nwant:\n%q", body, want)
	}
}

func TestWriteAndValidateSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	entries := []Entry{
		{Start: 0, End: 2, Speaker: "SPEAKER_00", Text: "one"},
		{Start: 2, End: 4, Speaker: "SPEAKER_00", Text: ""},
		{Start: 4, End: 6, Speaker: "SPEAKER_01", Text: "three"},
	}
	if err := WriteSRT(path, entries); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}

	if issues := ValidateSRT(path); len(issues) != 0 {
		t.Errorf("unexpected issues: %v", issues)
	}
}

func TestValidateSRTFlagsProblems(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.srt")
	_ = os.WriteFile(empty, []byte("\uFEFF  \n"), 0o644)
	if issues := ValidateSRT(empty); len(issues) == 0 {
		t.Error("empty file not flagged")
	}

	inverted := filepath.Join(dir, "inverted.srt")
	_ = os.WriteFile(inverted, []byte("1\n00:00:05,000 --> 00:00:01,000\n[S]: x\n"), 0o644)
	found := false
	for _, issue := range ValidateSRT(inverted) {
		if strings.HasPrefix(issue, "inverted_range") {
			found = true
		}
	}
	if !found {
		t.Error("inverted range not flagged")
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"00:00:04,200", 4.2, true},
		{"01:02:03,450", 3723.45, true},
		{"00:00:04.200", 4.2, true},
		{"garbage", 0, false},
		{"00:04,200", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in)
		if tc.ok != (err == nil) {
			t.Errorf("%q: err = %v, ok = %v", tc.in, err, tc.ok)
			continue
		}
		if tc.ok && got != tc.want {
			t.Errorf("%q = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDocumentRoundTripAndPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	doc := &Document{
		SourceName: "talk.mp4",
		Language:   "en",
		Entries: []Entry{
			{Start: 0, End: 2, Speaker: "SPEAKER_00", Text: "hello"},
			{Start: 2, End: 4, Speaker: "SPEAKER_01", Text: ""},
			{Start: 4, End: 6, Speaker: "SPEAKER_01", Text: "bye", Failed: false},
		},
	}
	if err := doc.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SourceName != "talk.mp4" || len(loaded.Entries) != 3 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}

	text := loaded.PlainText()
	if !strings.Contains(text, "00:00:00.000 [SPEAKER_00]: hello") {
		t.Errorf("plain text missing line: %q", text)
	}
	if strings.Contains(text, "SPEAKER_01]: \n") {
		t.Errorf("empty entry leaked into plain text: %q", text)
	}
}
