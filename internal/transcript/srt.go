package transcript

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"scribe/internal/timefmt"
)

// utf8BOM keeps players that sniff encoding from mangling non-ASCII text.
const utf8BOM = "\ufeff"

// RenderSRT formats the entries as an SRT subtitle stream. Cues are numbered
// from 1 and every entry keeps its slot, so cue numbering lines up with the
// transcript even when recognition came back empty.
func RenderSRT(entries []Entry) string {
	var b strings.Builder
	b.WriteString(utf8BOM)
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", timefmt.SRT(entry.Start), timefmt.SRT(entry.End))
		fmt.Fprintf(&b, "[%s]: %s\n\n", entry.Speaker, strings.TrimSpace(entry.Text))
	}
	return b.String()
}

// WriteSRT writes the entries to path as an SRT file with a UTF-8 BOM.
func WriteSRT(path string, entries []Entry) error {
	if err := os.WriteFile(path, []byte(RenderSRT(entries)), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

// ValidateSRT checks a rendered SRT file for structural problems. Returns a
// list of issues found; empty means the file looks sane.
func ValidateSRT(path string) []string {
	var issues []string

	data, err := os.ReadFile(path)
	if err != nil {
		return append(issues, fmt.Sprintf("read_error: %v", err))
	}
	content := strings.TrimPrefix(string(data), utf8BOM)
	content = strings.TrimSpace(content)
	if content == "" {
		return append(issues, "empty_subtitle_file")
	}

	var lastEnd float64
	cues := 0
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		cues++
		lines := strings.SplitN(block, "\n", 3)
		if len(lines) < 2 || !strings.Contains(lines[1], "-->") {
			issues = append(issues, fmt.Sprintf("malformed_cue: %d", cues))
			continue
		}
		parts := strings.Split(lines[1], "-->")
		start, errStart := ParseTimestamp(parts[0])
		end, errEnd := ParseTimestamp(parts[1])
		if errStart != nil || errEnd != nil {
			issues = append(issues, fmt.Sprintf("bad_timestamp: cue %d", cues))
			continue
		}
		if end < start {
			issues = append(issues, fmt.Sprintf("inverted_range: cue %d", cues))
		}
		if start < lastEnd {
			issues = append(issues, fmt.Sprintf("overlapping_cues: cue %d", cues))
		}
		lastEnd = end
	}
	if cues == 0 {
		issues = append(issues, "no_cues")
	}
	return issues
}

// ParseTimestamp converts an SRT timestamp (HH:MM:SS,mmm) to seconds. A
// period separator is tolerated.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}
