package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending      Status = "pending"
	StatusExtracting   Status = "extracting"
	StatusConverting   Status = "converting"
	StatusDiarizing    Status = "diarizing"
	StatusTranscribing Status = "transcribing"
	StatusMerging      Status = "merging"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusReview       Status = "review"
)

// DaemonStopReason is the error message set when items are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusExtracting,
	StatusConverting,
	StatusDiarizing,
	StatusTranscribing,
	StatusMerging,
	StatusCompleted,
	StatusFailed,
	StatusReview,
}

var processingStatuses = map[Status]struct{}{
	StatusExtracting:   {},
	StatusConverting:   {},
	StatusDiarizing:    {},
	StatusTranscribing: {},
	StatusMerging:      {},
}

// Item represents one uploaded file moving through the pipeline,
// persisted in SQLite.
type Item struct {
	ID              int64
	ChatID          int64
	MessageID       int
	SourceName      string
	SourcePath      string
	AudioPath       string
	WavPath         string
	TranscriptPath  string
	SubtitlePath    string
	Language        string
	HasVideo        bool
	Status          Status
	ErrorMessage    string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	NeedsReview     bool
	ReviewReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Processing reports whether the item is mid-pipeline.
func (i *Item) Processing() bool {
	_, ok := processingStatuses[i.Status]
	return ok
}

// Terminal reports whether the item reached a final state.
func (i *Item) Terminal() bool {
	switch i.Status {
	case StatusCompleted, StatusFailed, StatusReview:
		return true
	}
	return false
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// HealthSummary describes aggregated queue counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// Message is one turn of a transcript chat conversation.
type Message struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
