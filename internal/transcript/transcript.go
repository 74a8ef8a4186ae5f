// Package transcript merges recognition and diarization output into a single
// speaker-attributed document and renders it as SRT subtitles.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"scribe/internal/timefmt"
)

// Entry is one speaker-attributed line with timing in seconds.
type Entry struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	// Failed marks an entry whose recognition errored out. The timing row is
	// kept so the document still covers the full audio span.
	Failed bool `json:"failed,omitempty"`
}

// Document is the persisted transcript for one queue item.
type Document struct {
	SourceName string  `json:"source_name"`
	Language   string  `json:"language,omitempty"`
	Entries    []Entry `json:"entries"`
}

// Save writes the document as JSON to path.
func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// Load reads a document previously written by Save.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return &doc, nil
}

// PlainText renders the document as timestamped lines for prompting and
// display. Empty and failed entries are skipped.
func (d *Document) PlainText() string {
	var b strings.Builder
	for _, entry := range d.Entries {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s [%s]: %s\n", timefmt.Clock(entry.Start), entry.Speaker, text)
	}
	return b.String()
}

// Stats summarizes recognition quality for failure-ratio policies.
type Stats struct {
	Total  int
	Spoken int
	Failed int
}

// FailureRatio reports the share of entries that errored, in [0, 1].
func (s Stats) FailureRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Total)
}

// Summarize counts entry outcomes across the document.
func (d *Document) Summarize() Stats {
	var stats Stats
	for _, entry := range d.Entries {
		stats.Total++
		if entry.Failed {
			stats.Failed++
			continue
		}
		if strings.TrimSpace(entry.Text) != "" {
			stats.Spoken++
		}
	}
	return stats
}
