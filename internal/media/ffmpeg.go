package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"scribe/internal/services"
)

// CommandRunner executes an external tool and returns its combined output.
// Injectable so tests never exec real binaries.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

// Processor wraps ffmpeg and ffprobe for the extract and convert stages.
type Processor struct {
	ffmpegBinary  string
	ffprobeBinary string
	runner        CommandRunner
}

func NewProcessor(ffmpegBinary, ffprobeBinary string) *Processor {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	if ffprobeBinary == "" {
		ffprobeBinary = "ffprobe"
	}
	return &Processor{
		ffmpegBinary:  ffmpegBinary,
		ffprobeBinary: ffprobeBinary,
		runner:        defaultRunner,
	}
}

// WithRunner sets a custom command runner (for testing).
func (p *Processor) WithRunner(runner CommandRunner) *Processor {
	p.runner = runner
	return p
}

// Info describes the media container as reported by ffprobe.
type Info struct {
	DurationSeconds float64
	HasAudio        bool
	HasVideo        bool
	AudioCodec      string
}

type probePayload struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// Probe inspects the file and reports stream layout and duration.
func (p *Processor) Probe(ctx context.Context, path string) (Info, error) {
	var info Info
	output, err := p.runner(ctx, p.ffprobeBinary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return info, services.Wrap(services.ErrExternalTool, "probe", "ffprobe", path, err)
	}

	var payload probePayload
	if err := json.Unmarshal(output, &payload); err != nil {
		return info, services.Wrap(services.ErrExternalTool, "probe", "parse", path, err)
	}

	if payload.Format.Duration != "" {
		if seconds, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil {
			info.DurationSeconds = seconds
		}
	}
	for _, stream := range payload.Streams {
		switch stream.CodecType {
		case "audio":
			info.HasAudio = true
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
			}
		case "video":
			info.HasVideo = true
		}
	}

	if !info.HasAudio {
		return info, services.Wrap(services.ErrValidation, "probe", "streams", "no audio stream in "+path, nil)
	}
	return info, nil
}

// ExtractAudio pulls the first audio stream out of a video container without
// re-encoding it.
func (p *Processor) ExtractAudio(ctx context.Context, source, dest string) error {
	_, err := p.runner(ctx, p.ffmpegBinary,
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-c:a", "copy",
		dest,
	)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "extract", "ffmpeg", source, err)
	}
	return nil
}

// ConvertToWAV transcodes any audio input to the mono 16kHz PCM WAV the
// segmenter and recognizers expect.
func (p *Processor) ConvertToWAV(ctx context.Context, source, dest string) error {
	_, err := p.runner(ctx, p.ffmpegBinary,
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "convert", "ffmpeg", source, err)
	}
	return nil
}
