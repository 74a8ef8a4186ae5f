package stt

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"scribe/internal/services"
)

// Recognizer converts one WAV segment to text. Implementations signal a
// confidently empty segment with services.ErrNoSpeech and transient transport
// problems with services.ErrTransient or services.ErrTimeout so the processor
// can decide whether to retry.
type Recognizer interface {
	Recognize(ctx context.Context, wavPath, language string) (string, error)
}

// Settings tunes the remote recognizer and the retry policy around it.
type Settings struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	MaxRetry       int
	Workers        int

	// EnergyThreshold, DynamicEnergy and PauseThreshold are advisory VAD
	// hints. The Whisper API ignores them; local backends may not.
	EnergyThreshold float64
	DynamicEnergy   bool
	PauseThreshold  float64
}

// WhisperRecognizer sends segments to a Whisper-compatible transcription API.
type WhisperRecognizer struct {
	client *openai.Client
	model  string
}

func NewWhisperRecognizer(settings Settings) (*WhisperRecognizer, error) {
	if settings.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "stt", "credentials", "API key required", nil)
	}
	cfg := openai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		cfg.BaseURL = settings.BaseURL
	}
	model := settings.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperRecognizer{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Recognize uploads the WAV and returns the transcribed text.
func (r *WhisperRecognizer) Recognize(ctx context.Context, wavPath, language string) (string, error) {
	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		FilePath: wavPath,
		Language: language,
	})
	if err != nil {
		return "", classifyAPIError(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", services.ErrNoSpeech
	}
	return text, nil
}

// classifyAPIError maps transport and API failures onto the package's retry
// sentinels.
func classifyAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "stt", "recognize", "", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests,
			apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "stt", "recognize", "", err)
		case apiErr.HTTPStatusCode == http.StatusRequestTimeout:
			return services.Wrap(services.ErrTimeout, "stt", "recognize", "", err)
		default:
			return services.Wrap(services.ErrValidation, "stt", "recognize", "", err)
		}
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return services.Wrap(services.ErrTimeout, "stt", "recognize", "", err)
	}
	return services.Wrap(services.ErrTransient, "stt", "recognize", "", err)
}

// requestTimeout returns the per-call deadline for a recognizer invocation.
func (s Settings) requestTimeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}
