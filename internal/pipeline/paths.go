// Package pipeline implements the per-item processing stages: audio
// extraction, WAV conversion, speaker diarization, speech recognition, and
// the final transcript merge.
package pipeline

import (
	"fmt"
	"path/filepath"

	"scribe/internal/config"
	"scribe/internal/queue"
)

// WorkDir returns the scratch directory for one queue item. The workflow
// manager removes it after the item reaches a terminal state.
func WorkDir(cfg *config.Config, item *queue.Item) string {
	return filepath.Join(cfg.Paths.WorkDir, fmt.Sprintf("item-%d", item.ID))
}

func workDir(cfg *config.Config, item *queue.Item) string {
	return WorkDir(cfg, item)
}

func audioPath(cfg *config.Config, item *queue.Item) string {
	return filepath.Join(workDir(cfg, item), "audio.mka")
}

func wavPath(cfg *config.Config, item *queue.Item) string {
	return filepath.Join(workDir(cfg, item), "audio.wav")
}

func segmentsDir(cfg *config.Config, item *queue.Item) string {
	return filepath.Join(workDir(cfg, item), "segments")
}

func diarizationDir(cfg *config.Config, item *queue.Item) string {
	return filepath.Join(workDir(cfg, item), "diarization")
}

func diarizationPath(cfg *config.Config, item *queue.Item) string {
	return filepath.Join(workDir(cfg, item), "diarization.json")
}

func recognitionPath(cfg *config.Config, item *queue.Item) string {
	return filepath.Join(workDir(cfg, item), "recognition.json")
}

func transcriptPath(cfg *config.Config, item *queue.Item) string {
	return filepath.Join(cfg.Paths.WorkDir, fmt.Sprintf("item-%d.transcript.json", item.ID))
}

func subtitlePath(cfg *config.Config, item *queue.Item) string {
	return filepath.Join(cfg.Paths.WorkDir, fmt.Sprintf("item-%d.srt", item.ID))
}

func sourceID(item *queue.Item) string {
	return fmt.Sprintf("item%d", item.ID)
}
