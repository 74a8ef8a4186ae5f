package stt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/audio"
	"scribe/internal/logging"
	"scribe/internal/services"
)

// MinTranscribableMillis is the shortest segment worth sending to a
// recognizer. Anything shorter is recorded as empty without a network call.
const MinTranscribableMillis = 800

// ResultKind distinguishes how a segment's transcription ended.
type ResultKind int

const (
	// KindText means the recognizer returned usable text.
	KindText ResultKind = iota
	// KindNoSpeech means the segment confidently contained no speech, or was
	// too short to transcribe. The segment keeps its timing row with empty
	// text.
	KindNoSpeech
	// KindError means recognition failed after exhausting retries. The
	// segment keeps its timing row so downstream alignment stays intact.
	KindError
)

// Result is the outcome for one audio segment, in source order.
type Result struct {
	Index       int
	StartMillis int
	EndMillis   int
	Text        string
	Kind        ResultKind
	Err         error
}

// Progress is invoked after each segment completes, with done counting from 1.
type Progress func(done, total int)

// Processor fans segment files out to a recognizer with bounded concurrency
// and a capped exponential backoff retry policy.
type Processor struct {
	recognizer Recognizer
	settings   Settings
	logger     *slog.Logger
	sleep      func(time.Duration)
}

func NewProcessor(recognizer Recognizer, settings Settings, logger *slog.Logger) *Processor {
	if settings.MaxRetry <= 0 {
		settings.MaxRetry = 3
	}
	if settings.Workers <= 0 {
		settings.Workers = 4
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		recognizer: recognizer,
		settings:   settings,
		logger:     logger.With(logging.String(logging.FieldComponent, "stt")),
		sleep:      time.Sleep,
	}
}

// WithSleeper overrides the backoff sleep (for testing).
func (p *Processor) WithSleeper(sleep func(time.Duration)) *Processor {
	p.sleep = sleep
	return p
}

// Transcribe processes every segment and returns one Result per segment in
// the original order. Individual failures never abort the batch.
func (p *Processor) Transcribe(ctx context.Context, files []audio.SegmentFile, language string, progress Progress) []Result {
	results := make([]Result, len(files))
	sem := make(chan struct{}, p.settings.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for i, file := range files {
		wg.Add(1)
		go func(index int, file audio.SegmentFile) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[index] = p.transcribeOne(ctx, index, file, language)

			if progress != nil {
				mu.Lock()
				done++
				progress(done, len(files))
				mu.Unlock()
			}
		}(i, file)
	}
	wg.Wait()
	return results
}

func (p *Processor) transcribeOne(ctx context.Context, index int, file audio.SegmentFile, language string) Result {
	result := Result{Index: index, StartMillis: file.StartMillis, EndMillis: file.EndMillis}

	if file.EndMillis-file.StartMillis < MinTranscribableMillis {
		result.Kind = KindNoSpeech
		return result
	}

	var lastErr error
	for attempt := 0; attempt < p.settings.MaxRetry; attempt++ {
		if attempt > 0 {
			p.sleep(time.Duration(1<<attempt) * time.Second)
		}

		callCtx, cancel := context.WithTimeout(ctx, p.settings.requestTimeout())
		text, err := p.recognizer.Recognize(callCtx, file.Path, language)
		cancel()

		if err == nil {
			result.Kind = KindText
			result.Text = text
			return result
		}
		if services.Retryable(err) {
			lastErr = err
			p.logger.Warn("recognition attempt failed",
				logging.Int("segment", index+1),
				logging.Int("attempt", attempt+1),
				logging.Error(err))
			continue
		}
		// Non-retryable: either benign no-speech or a hard failure.
		if isNoSpeech(err) {
			result.Kind = KindNoSpeech
			return result
		}
		result.Kind = KindError
		result.Err = err
		return result
	}

	result.Kind = KindError
	result.Err = lastErr
	p.logger.Error("recognition gave up",
		logging.Int("segment", index+1),
		logging.Int("attempts", p.settings.MaxRetry),
		logging.Error(lastErr))
	return result
}

func isNoSpeech(err error) bool {
	return errors.Is(err, services.ErrNoSpeech) || errors.Is(err, services.ErrSegmentTooShort)
}
