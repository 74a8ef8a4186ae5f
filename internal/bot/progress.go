package bot

import (
	"fmt"
	"strings"

	"scribe/internal/queue"
)

const progressCells = 10

var stageSteps = map[queue.Status]int{
	queue.StatusExtracting:   1,
	queue.StatusConverting:   2,
	queue.StatusDiarizing:    3,
	queue.StatusTranscribing: 4,
	queue.StatusMerging:      5,
}

const totalSteps = 5

// progressBar renders percent as a fixed 10-cell bar, e.g. "■■■□□□□□□□".
func progressBar(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * progressCells)
	return strings.Repeat("■", filled) + strings.Repeat("□", progressCells-filled)
}

// progressText renders the user-facing progress message for one queue item.
func progressText(item *queue.Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transcribing %s\n", item.SourceName)
	fmt.Fprintf(&sb, "[%s] %d%%", progressBar(item.ProgressPercent), int(item.ProgressPercent))

	switch item.Status {
	case queue.StatusPending:
		sb.WriteString("\nWaiting in queue")
	case queue.StatusCompleted:
		sb.WriteString("\nDone")
	case queue.StatusFailed, queue.StatusReview:
		sb.WriteString("\nStopped")
	default:
		if step, ok := stageSteps[item.Status]; ok {
			fmt.Fprintf(&sb, "\nStep %d/%d", step, totalSteps)
			if item.ProgressMessage != "" {
				fmt.Fprintf(&sb, ": %s", item.ProgressMessage)
			}
		}
	}
	return sb.String()
}
