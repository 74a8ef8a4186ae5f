package pipeline

import (
	"context"
	"log/slog"
	"os/exec"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
)

// ConvertStage normalizes the extracted audio to mono 16kHz PCM WAV.
type ConvertStage struct {
	cfg    *config.Config
	proc   *media.Processor
	logger *slog.Logger
}

func NewConvertStage(cfg *config.Config, proc *media.Processor, logger *slog.Logger) *ConvertStage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ConvertStage{cfg: cfg, proc: proc, logger: logging.NewComponentLogger(logger, "convert")}
}

func (s *ConvertStage) Prepare(ctx context.Context, item *queue.Item) error {
	if item.AudioPath == "" {
		return services.Wrap(services.ErrValidation, "convert", "input", "no audio path on item", nil)
	}
	item.ProgressStage = "convert"
	item.ProgressMessage = "normalizing audio"
	return nil
}

func (s *ConvertStage) Execute(ctx context.Context, item *queue.Item) error {
	dest := wavPath(s.cfg, item)
	if err := s.proc.ConvertToWAV(ctx, item.AudioPath, dest); err != nil {
		return err
	}
	item.WavPath = dest
	item.ProgressPercent = 25
	item.ProgressMessage = "audio normalized"

	s.logger.Info("audio converted",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("wav", dest))
	return nil
}

func (s *ConvertStage) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(s.cfg.FFmpegBinary()); err != nil {
		return stage.Unhealthy("convert", "ffmpeg not found")
	}
	return stage.Healthy("convert")
}
