// Package notifications pushes operator-facing events to ntfy when a topic is
// configured. Without a topic every call is a no-op.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const userAgent = "Scribe/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyTranscriptionStarted(ctx context.Context, sourceName string) error
	NotifyTranscriptionCompleted(ctx context.Context, sourceName string, segments int, elapsed time.Duration) error
	NotifyTranscriptionFailed(ctx context.Context, sourceName, reason string) error
	NotifyReviewRequired(ctx context.Context, sourceName, reason string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		sendCompletions: cfg.Notifications.Completion,
		sendErrors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint        string
	client          *http.Client
	sendCompletions bool
	sendErrors      bool
}

func (n *ntfyService) NotifyTranscriptionStarted(ctx context.Context, sourceName string) error {
	if !n.sendCompletions {
		return nil
	}
	return n.send(ctx, payload{
		title:   "Scribe - Processing",
		message: fmt.Sprintf("Started transcribing: %s", strings.TrimSpace(sourceName)),
		tags:    []string{"scribe", "transcribe", "started"},
	})
}

func (n *ntfyService) NotifyTranscriptionCompleted(ctx context.Context, sourceName string, segments int, elapsed time.Duration) error {
	if !n.sendCompletions {
		return nil
	}
	elapsed = elapsed.Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	return n.send(ctx, payload{
		title:    "Scribe - Complete",
		message:  fmt.Sprintf("Transcript ready: %s (%d segments in %s)", strings.TrimSpace(sourceName), segments, elapsed),
		tags:     []string{"scribe", "transcribe", "completed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyTranscriptionFailed(ctx context.Context, sourceName, reason string) error {
	if !n.sendErrors {
		return nil
	}
	return n.send(ctx, payload{
		title:    "Scribe - Failed",
		message:  fmt.Sprintf("Transcription failed: %s\n%s", strings.TrimSpace(sourceName), strings.TrimSpace(reason)),
		tags:     []string{"scribe", "transcribe", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyReviewRequired(ctx context.Context, sourceName, reason string) error {
	if !n.sendErrors {
		return nil
	}
	return n.send(ctx, payload{
		title:   "Scribe - Review Required",
		message: fmt.Sprintf("Needs attention: %s\n%s", strings.TrimSpace(sourceName), strings.TrimSpace(reason)),
		tags:    []string{"scribe", "review"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.sendErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "Scribe - Error",
		message:  builder.String(),
		tags:     []string{"scribe", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Scribe - Test",
		message:  "Notification system test",
		tags:     []string{"scribe", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyTranscriptionStarted(context.Context, string) error { return nil }
func (noopService) NotifyTranscriptionCompleted(context.Context, string, int, time.Duration) error {
	return nil
}
func (noopService) NotifyTranscriptionFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyReviewRequired(context.Context, string, string) error      { return nil }
func (noopService) NotifyError(context.Context, error, string) error                { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
