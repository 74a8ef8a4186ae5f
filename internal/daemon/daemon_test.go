package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"scribe/internal/config"
	"scribe/internal/notifications"
	"scribe/internal/queue"
	"scribe/internal/stage"
	"scribe/internal/testsupport"
	"scribe/internal/workflow"
)

type idleStage struct{ name string }

func (s *idleStage) Prepare(ctx context.Context, item *queue.Item) error { return nil }
func (s *idleStage) Execute(ctx context.Context, item *queue.Item) error { return nil }
func (s *idleStage) HealthCheck(ctx context.Context) stage.Health        { return stage.Healthy(s.name) }

func newTestDaemon(t *testing.T) (*Daemon, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	stages := workflow.StageSet{
		Extract:    &idleStage{name: "extract"},
		Convert:    &idleStage{name: "convert"},
		Diarize:    &idleStage{name: "diarize"},
		Transcribe: &idleStage{name: "transcribe"},
		Merge:      &idleStage{name: "merge"},
	}
	manager := workflow.NewManager(cfg, store, stages, notifications.NewService(cfg), nil)
	d, err := New(cfg, store, manager, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, cfg
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status(context.Background())
	if !status.Running {
		t.Error("daemon not reported running")
	}
	if len(status.Stages) != 5 {
		t.Errorf("stage health entries = %d, want 5", len(status.Stages))
	}
	d.Stop()
	if d.Status(context.Background()).Running {
		t.Error("daemon still reported running after Stop")
	}
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	first, cfg := newTestDaemon(t)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	store := testsupport.MustOpenStore(t, cfg)
	stages := workflow.StageSet{
		Extract:    &idleStage{name: "extract"},
		Convert:    &idleStage{name: "convert"},
		Diarize:    &idleStage{name: "diarize"},
		Transcribe: &idleStage{name: "transcribe"},
		Merge:      &idleStage{name: "merge"},
	}
	manager := workflow.NewManager(cfg, store, stages, notifications.NewService(cfg), nil)
	second, err := New(cfg, store, manager, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance acquired the lock")
	}
}

func TestAddFileValidation(t *testing.T) {
	d, cfg := newTestDaemon(t)
	ctx := context.Background()

	if _, err := d.AddFile(ctx, "", ""); err == nil {
		t.Error("empty path accepted")
	}
	if _, err := d.AddFile(ctx, cfg.Paths.WorkDir, ""); err == nil {
		t.Error("directory accepted")
	}

	unsupported := filepath.Join(cfg.Paths.IncomingDir, "notes.txt")
	if err := os.WriteFile(unsupported, []byte("text"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := d.AddFile(ctx, unsupported, ""); err == nil {
		t.Error("unsupported extension accepted")
	}

	audioFile := filepath.Join(cfg.Paths.IncomingDir, "talk.mp3")
	if err := os.WriteFile(audioFile, []byte("mp3"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	item, err := d.AddFile(ctx, audioFile, "en")
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if item.HasVideo || item.Language != "en" || item.SourceName != "talk.mp3" {
		t.Errorf("item = %+v", item)
	}

	videoFile := filepath.Join(cfg.Paths.IncomingDir, "lecture.mkv")
	if err := os.WriteFile(videoFile, []byte("mkv"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	video, err := d.AddFile(ctx, videoFile, "")
	if err != nil {
		t.Fatalf("AddFile video: %v", err)
	}
	if !video.HasVideo {
		t.Error("video extension not flagged")
	}
}
