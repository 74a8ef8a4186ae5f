package pipeline

import (
	"context"
	"log/slog"
	"os"
	"os/exec"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
)

// ExtractStage validates the uploaded file and pulls the audio stream out of
// video containers.
type ExtractStage struct {
	cfg    *config.Config
	proc   *media.Processor
	logger *slog.Logger
}

func NewExtractStage(cfg *config.Config, proc *media.Processor, logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ExtractStage{cfg: cfg, proc: proc, logger: logging.NewComponentLogger(logger, "extract")}
}

func (s *ExtractStage) Prepare(ctx context.Context, item *queue.Item) error {
	if _, err := os.Stat(item.SourcePath); err != nil {
		return services.Wrap(services.ErrNotFound, "extract", "source", item.SourcePath, err)
	}
	if err := os.MkdirAll(workDir(s.cfg, item), 0o755); err != nil {
		return services.Wrap(nil, "extract", "workdir", "", err)
	}

	info, err := s.proc.Probe(ctx, item.SourcePath)
	if err != nil {
		return err
	}
	item.HasVideo = info.HasVideo
	item.ProgressStage = "extract"
	item.ProgressMessage = "inspecting upload"
	return nil
}

func (s *ExtractStage) Execute(ctx context.Context, item *queue.Item) error {
	if !item.HasVideo {
		// Pure audio uploads go straight to conversion.
		item.AudioPath = item.SourcePath
		item.ProgressPercent = 10
		return nil
	}

	dest := audioPath(s.cfg, item)
	if err := s.proc.ExtractAudio(ctx, item.SourcePath, dest); err != nil {
		return err
	}
	item.AudioPath = dest
	item.ProgressPercent = 10
	item.ProgressMessage = "audio track extracted"

	s.logger.Info("audio extracted",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("source", item.SourceName))
	return nil
}

func (s *ExtractStage) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(s.cfg.FFmpegBinary()); err != nil {
		return stage.Unhealthy("extract", "ffmpeg not found")
	}
	if _, err := exec.LookPath(s.cfg.FFprobeBinary()); err != nil {
		return stage.Unhealthy("extract", "ffprobe not found")
	}
	return stage.Healthy("extract")
}
