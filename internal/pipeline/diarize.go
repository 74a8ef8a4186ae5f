package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"

	"scribe/internal/config"
	"scribe/internal/diarize"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
)

// DiarizeStage attributes speaker turns across the normalized audio and
// persists them for the merge stage.
type DiarizeStage struct {
	cfg     *config.Config
	service *diarize.Service
	logger  *slog.Logger
}

func NewDiarizeStage(cfg *config.Config, service *diarize.Service, logger *slog.Logger) *DiarizeStage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DiarizeStage{cfg: cfg, service: service, logger: logging.NewComponentLogger(logger, "diarize")}
}

func (s *DiarizeStage) Prepare(ctx context.Context, item *queue.Item) error {
	if item.WavPath == "" {
		return services.Wrap(services.ErrValidation, "diarize", "input", "no wav path on item", nil)
	}
	item.ProgressStage = "diarize"
	item.ProgressMessage = "attributing speakers"
	return nil
}

func (s *DiarizeStage) Execute(ctx context.Context, item *queue.Item) error {
	segments, err := s.service.Diarize(ctx, item.WavPath, diarizationDir(s.cfg, item))
	if err != nil {
		return err
	}

	data, err := json.Marshal(segments)
	if err != nil {
		return services.Wrap(nil, "diarize", "encode", "", err)
	}
	if err := os.WriteFile(diarizationPath(s.cfg, item), data, 0o644); err != nil {
		return services.Wrap(nil, "diarize", "persist", "", err)
	}

	item.ProgressPercent = 45
	item.ProgressMessage = "speakers attributed"
	s.logger.Info("diarization persisted",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.Int("turns", len(segments)))
	return nil
}

func (s *DiarizeStage) HealthCheck(ctx context.Context) stage.Health {
	if s.cfg.Diarization.HFToken == "" {
		return stage.Unhealthy("diarize", "Hugging Face token not configured")
	}
	if _, err := exec.LookPath("uvx"); err != nil {
		return stage.Unhealthy("diarize", "uvx not found")
	}
	return stage.Healthy("diarize")
}

// loadDiarization reads the speaker turns persisted by Execute.
func loadDiarization(cfg *config.Config, item *queue.Item) ([]diarize.Segment, error) {
	data, err := os.ReadFile(diarizationPath(cfg, item))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "merge", "diarization", "missing diarization output", err)
	}
	var segments []diarize.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, services.Wrap(services.ErrValidation, "merge", "diarization", "corrupt diarization output", err)
	}
	return segments, nil
}
