package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"scribe/internal/audio"
	"scribe/internal/config"
	"scribe/internal/language"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
	"scribe/internal/stt"
)

// recognitionRecord is the serializable form of one segment outcome, written
// for the merge stage.
type recognitionRecord struct {
	Index       int    `json:"index"`
	StartMillis int    `json:"start_millis"`
	EndMillis   int    `json:"end_millis"`
	Text        string `json:"text"`
	Kind        string `json:"kind"`
	Error       string `json:"error,omitempty"`
}

const (
	recordKindText     = "text"
	recordKindNoSpeech = "no_speech"
	recordKindError    = "error"
)

// TranscribeStage splits the normalized audio into speech chunks and runs
// each through the recognizer.
type TranscribeStage struct {
	cfg       *config.Config
	segmenter *audio.Segmenter
	processor *stt.Processor
	store     *queue.Store
	logger    *slog.Logger
}

func NewTranscribeStage(cfg *config.Config, segmenter *audio.Segmenter, processor *stt.Processor, store *queue.Store, logger *slog.Logger) *TranscribeStage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TranscribeStage{
		cfg:       cfg,
		segmenter: segmenter,
		processor: processor,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "transcribe"),
	}
}

func (s *TranscribeStage) Prepare(ctx context.Context, item *queue.Item) error {
	if item.WavPath == "" {
		return services.Wrap(services.ErrValidation, "transcribe", "input", "no wav path on item", nil)
	}
	item.ProgressStage = "transcribe"
	item.ProgressMessage = "recognizing speech"
	return nil
}

func (s *TranscribeStage) Execute(ctx context.Context, item *queue.Item) error {
	files, err := s.segmenter.Segment(item.WavPath, sourceID(item), segmentsDir(s.cfg, item))
	if err != nil {
		return err
	}
	defer cleanupSegments(files)

	lang := language.ToISO2(item.Language)
	results := s.processor.Transcribe(ctx, files, lang, func(done, total int) {
		// Recognition owns the 45-90% band of the progress bar.
		item.ProgressPercent = 45 + 45*float64(done)/float64(total)
		item.ProgressMessage = fmt.Sprintf("segment %d/%d", done, total)
		if err := s.store.Update(ctx, item); err != nil {
			s.logger.Warn("progress update failed", logging.Error(err))
		}
	})

	failed := 0
	records := make([]recognitionRecord, 0, len(results))
	for _, result := range results {
		record := recognitionRecord{
			Index:       result.Index,
			StartMillis: result.StartMillis,
			EndMillis:   result.EndMillis,
			Text:        result.Text,
		}
		switch result.Kind {
		case stt.KindText:
			record.Kind = recordKindText
		case stt.KindNoSpeech:
			record.Kind = recordKindNoSpeech
		case stt.KindError:
			record.Kind = recordKindError
			failed++
			if result.Err != nil {
				record.Error = result.Err.Error()
			}
		}
		records = append(records, record)
	}

	if len(results) > 0 {
		ratio := float64(failed) / float64(len(results))
		if ratio > s.cfg.Workflow.MaxSegmentFailureRatio {
			return services.Wrap(services.ErrTransient, "transcribe", "quality",
				fmt.Sprintf("%d of %d segments failed recognition", failed, len(results)), nil)
		}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return services.Wrap(nil, "transcribe", "encode", "", err)
	}
	if err := os.WriteFile(recognitionPath(s.cfg, item), data, 0o644); err != nil {
		return services.Wrap(nil, "transcribe", "persist", "", err)
	}

	item.ProgressPercent = 90
	item.ProgressMessage = "speech recognized"
	s.logger.Info("recognition complete",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.Int("segments", len(results)),
		logging.Int("failed", failed))
	return nil
}

func (s *TranscribeStage) HealthCheck(ctx context.Context) stage.Health {
	if s.cfg.STT.APIKey == "" {
		return stage.Unhealthy("transcribe", "STT API key not configured")
	}
	return stage.Healthy("transcribe")
}

func cleanupSegments(files []audio.SegmentFile) {
	for _, file := range files {
		_ = os.Remove(file.Path)
	}
}

// loadRecognition reads the per-segment outcomes persisted by Execute and
// converts them back into processor results for alignment.
func loadRecognition(cfg *config.Config, item *queue.Item) ([]stt.Result, error) {
	data, err := os.ReadFile(recognitionPath(cfg, item))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "merge", "recognition", "missing recognition output", err)
	}
	var records []recognitionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, services.Wrap(services.ErrValidation, "merge", "recognition", "corrupt recognition output", err)
	}

	results := make([]stt.Result, 0, len(records))
	for _, record := range records {
		result := stt.Result{
			Index:       record.Index,
			StartMillis: record.StartMillis,
			EndMillis:   record.EndMillis,
			Text:        record.Text,
		}
		switch record.Kind {
		case recordKindText:
			result.Kind = stt.KindText
		case recordKindError:
			result.Kind = stt.KindError
		default:
			result.Kind = stt.KindNoSpeech
		}
		results = append(results, result)
	}
	return results, nil
}
