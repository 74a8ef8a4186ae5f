package diarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"scribe/internal/logging"
	"scribe/internal/services"
)

const (
	uvxCommand   = "uvx"
	pypiIndexURL = "https://pypi.org/simple"
	cudaIndexURL = "https://download.pytorch.org/whl/cu128"

	// DefaultModel is the pinned diarization pipeline.
	DefaultModel = "pyannote/speaker-diarization-3.1"
)

// Segment is one speaker turn with absolute timing in seconds.
type Segment struct {
	Start   float64
	End     float64
	Speaker string
}

// Config tunes the diarization run.
type Config struct {
	HFToken        string
	Model          string
	CUDAEnabled    bool
	TimeoutSeconds int
}

// Service runs speaker diarization over a WAV file by shelling out to
// whisperx via uvx.
type Service struct {
	cfg           Config
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)
	lookPath      func(name string) (string, error)
}

func NewService(cfg Config, logger *slog.Logger) *Service {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "diarize")),
		lookPath: exec.LookPath,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) *Service {
	s.commandRunner = runner
	return s
}

// WithLookPath overrides binary discovery (for testing).
func (s *Service) WithLookPath(lookPath func(name string) (string, error)) *Service {
	s.lookPath = lookPath
	return s
}

// Diarize runs speaker attribution over the WAV at source and returns speaker
// turns ordered by start time. A missing Hugging Face token aborts before any
// tool is launched: the pinned pipeline is gated and would fail mid-run.
func (s *Service) Diarize(ctx context.Context, source, outputDir string) ([]Segment, error) {
	if s.cfg.HFToken == "" {
		return nil, services.Wrap(services.ErrConfiguration, "diarize", "credentials",
			"Hugging Face token required for "+s.cfg.Model, nil)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(nil, "diarize", "mkdir", outputDir, err)
	}

	device := "cpu"
	if s.cfg.CUDAEnabled && s.cudaAvailable() {
		device = "cuda"
	}

	args := s.buildArgs(source, outputDir, device)
	started := time.Now()
	s.logger.Info("diarization started",
		logging.String("source", filepath.Base(source)),
		logging.String("device", device),
		logging.String("model", s.cfg.Model))

	if _, err := s.run(ctx, uvxCommand, args...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "whisperx", source, err)
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	segments, err := LoadSegments(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "output", jsonPath, err)
	}

	s.logger.Info("diarization complete",
		logging.Int("segments", len(segments)),
		logging.Duration("elapsed", time.Since(started)))
	return segments, nil
}

func (s *Service) buildArgs(source, outputDir, device string) []string {
	args := make([]string, 0, 24)
	if device == "cuda" {
		args = append(args, "--index-url", cudaIndexURL, "--extra-index-url", pypiIndexURL)
	} else {
		args = append(args, "--index-url", pypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--diarize",
		"--diarize_model", s.cfg.Model,
		"--hf_token", s.cfg.HFToken,
		"--output_dir", outputDir,
		"--output_format", "json",
		"--device", device,
	)
	if device == "cpu" {
		args = append(args, "--compute_type", "int8")
	}
	return args
}

func (s *Service) cudaAvailable() bool {
	_, err := s.lookPath("nvidia-smi")
	return err == nil
}

func (s *Service) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	if s.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking
	// pyannote checkpoint loading. Force legacy behavior.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

type whisperXPayload struct {
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
	} `json:"segments"`
}

// LoadSegments parses speaker turns from a whisperx JSON output file.
// Segments without speaker attribution are labeled UNKNOWN.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse diarization json: %w", err)
	}

	segments := make([]Segment, 0, len(payload.Segments))
	for _, seg := range payload.Segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "UNKNOWN"
		}
		segments = append(segments, Segment{Start: seg.Start, End: seg.End, Speaker: speaker})
	}
	return segments, nil
}
