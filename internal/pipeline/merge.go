package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
	"scribe/internal/transcript"
)

// MergeStage aligns recognition output with speaker turns and renders the
// final transcript and SRT subtitle file.
type MergeStage struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewMergeStage(cfg *config.Config, logger *slog.Logger) *MergeStage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MergeStage{cfg: cfg, logger: logging.NewComponentLogger(logger, "merge")}
}

func (s *MergeStage) Prepare(ctx context.Context, item *queue.Item) error {
	item.ProgressStage = "merge"
	item.ProgressMessage = "building transcript"
	return nil
}

func (s *MergeStage) Execute(ctx context.Context, item *queue.Item) error {
	turns, err := loadDiarization(s.cfg, item)
	if err != nil {
		return err
	}
	results, err := loadRecognition(s.cfg, item)
	if err != nil {
		return err
	}

	entries := transcript.Align(results, turns)
	doc := &transcript.Document{
		SourceName: item.SourceName,
		Language:   item.Language,
		Entries:    entries,
	}

	docPath := transcriptPath(s.cfg, item)
	if err := doc.Save(docPath); err != nil {
		return services.Wrap(nil, "merge", "transcript", "", err)
	}
	item.TranscriptPath = docPath

	srtPath := subtitlePath(s.cfg, item)
	if err := transcript.WriteSRT(srtPath, entries); err != nil {
		return services.Wrap(nil, "merge", "subtitles", "", err)
	}
	item.SubtitlePath = srtPath

	if issues := transcript.ValidateSRT(srtPath); len(issues) > 0 {
		item.NeedsReview = true
		item.ReviewReason = "subtitle validation: " + strings.Join(issues, ", ")
		s.logger.Warn("subtitle validation flagged issues",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String("issues", strings.Join(issues, ", ")))
	}

	stats := doc.Summarize()
	item.ProgressPercent = 100
	item.ProgressMessage = "transcript ready"
	s.logger.Info("transcript merged",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.Int("entries", stats.Total),
		logging.Int("spoken", stats.Spoken),
		logging.Int("failed", stats.Failed))
	return nil
}

func (s *MergeStage) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("merge")
}
