package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/notifications"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
	"scribe/internal/testsupport"
)

type stubStage struct {
	name     string
	executed atomic.Int32
	fail     error
	onExec   func(item *queue.Item)
}

func (s *stubStage) Prepare(ctx context.Context, item *queue.Item) error { return nil }

func (s *stubStage) Execute(ctx context.Context, item *queue.Item) error {
	s.executed.Add(1)
	if s.onExec != nil {
		s.onExec(item)
	}
	return s.fail
}

func (s *stubStage) HealthCheck(ctx context.Context) stage.Health { return stage.Healthy(s.name) }

func stubStages() (StageSet, []*stubStage) {
	extract := &stubStage{name: "extract"}
	convert := &stubStage{name: "convert"}
	diarize := &stubStage{name: "diarize"}
	transcribe := &stubStage{name: "transcribe"}
	merge := &stubStage{name: "merge"}
	return StageSet{
		Extract:    extract,
		Convert:    convert,
		Diarize:    diarize,
		Transcribe: transcribe,
		Merge:      merge,
	}, []*stubStage{extract, convert, diarize, transcribe, merge}
}

type recordingEvents struct {
	mu        sync.Mutex
	completed []int64
	failed    []int64
	done      chan struct{}
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{done: make(chan struct{}, 16)}
}

func (e *recordingEvents) ItemCompleted(ctx context.Context, item *queue.Item) {
	e.mu.Lock()
	e.completed = append(e.completed, item.ID)
	e.mu.Unlock()
	e.done <- struct{}{}
}

func (e *recordingEvents) ItemFailed(ctx context.Context, item *queue.Item) {
	e.mu.Lock()
	e.failed = append(e.failed, item.ID)
	e.mu.Unlock()
	e.done <- struct{}{}
}

func waitForEvent(t *testing.T, events *recordingEvents) {
	t.Helper()
	select {
	case <-events.done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for item to finish")
	}
}

func newTestManager(t *testing.T, stages StageSet) (*Manager, *queue.Store, *config.Config, *recordingEvents) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := NewManager(cfg, store, stages, notifications.NewService(cfg), nil)
	events := newRecordingEvents()
	manager.SetEvents(events)
	return manager, store, cfg, events
}

func TestManagerRunsAllStagesToCompletion(t *testing.T) {
	stages, handlers := stubStages()
	manager, store, _, events := newTestManager(t, stages)

	item, err := store.NewUpload(context.Background(), 1, 0, "talk.mp3", "/tmp/talk.mp3", "en", false)
	if err != nil {
		t.Fatalf("NewUpload: %v", err)
	}

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()
	waitForEvent(t, events)

	for _, handler := range handlers {
		if handler.executed.Load() != 1 {
			t.Errorf("stage %s executed %d times, want 1", handler.name, handler.executed.Load())
		}
	}

	got, err := store.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.completed) != 1 || events.completed[0] != item.ID {
		t.Errorf("completion events = %v", events.completed)
	}
}

func TestManagerStopsSequenceOnStageFailure(t *testing.T) {
	stages, handlers := stubStages()
	handlers[2].fail = services.Wrap(services.ErrExternalTool, "diarize", "whisperx", "boom", nil)
	manager, store, _, events := newTestManager(t, stages)

	item, _ := store.NewUpload(context.Background(), 1, 0, "x.mp3", "/tmp/x.mp3", "", false)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()
	waitForEvent(t, events)

	if handlers[3].executed.Load() != 0 || handlers[4].executed.Load() != 0 {
		t.Error("stages after the failure should not run")
	}

	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Status != queue.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("error message not persisted")
	}
}

func TestManagerRoutesConfigurationErrorsToReview(t *testing.T) {
	stages, handlers := stubStages()
	handlers[2].fail = services.Wrap(services.ErrConfiguration, "diarize", "credentials", "token missing", nil)
	manager, store, _, events := newTestManager(t, stages)

	item, _ := store.NewUpload(context.Background(), 1, 0, "x.mp3", "/tmp/x.mp3", "", false)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()
	waitForEvent(t, events)

	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Status != queue.StatusReview {
		t.Errorf("status = %q, want review", got.Status)
	}
	if !got.NeedsReview || got.ReviewReason == "" {
		t.Errorf("review fields not set: %+v", got)
	}
}

func TestManagerProcessesQueuedItemsSequentiallyWithOneSlot(t *testing.T) {
	stages, _ := stubStages()
	var inFlight, maxInFlight atomic.Int32
	slow := &stubStage{name: "extract", onExec: func(*queue.Item) {
		now := inFlight.Add(1)
		for {
			seen := maxInFlight.Load()
			if now <= seen || maxInFlight.CompareAndSwap(seen, now) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
	}}
	stages.Extract = slow

	cfg := testsupport.NewConfig(t, func(cfg *config.Config) {
		cfg.Workflow.MaxConcurrentJobs = 1
	})
	store := testsupport.MustOpenStore(t, cfg)
	manager := NewManager(cfg, store, stages, notifications.NewService(cfg), nil)
	events := newRecordingEvents()
	manager.SetEvents(events)

	for i := 0; i < 3; i++ {
		if _, err := store.NewUpload(context.Background(), 1, 0, "x.mp3", "/tmp/x.mp3", "", false); err != nil {
			t.Fatalf("NewUpload: %v", err)
		}
	}

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()
	for i := 0; i < 3; i++ {
		waitForEvent(t, events)
	}

	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent executions = %d, want 1", got)
	}
}

func TestManagerStartFailsWithoutHandlers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := NewManager(cfg, store, StageSet{}, notifications.NewService(cfg), nil)
	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing stage handlers")
	}
}

func TestManagerRecoversStrandedItemsOnStart(t *testing.T) {
	stages, _ := stubStages()
	manager, store, _, events := newTestManager(t, stages)

	item, _ := store.NewUpload(context.Background(), 1, 0, "x.mp3", "/tmp/x.mp3", "", false)
	item.Status = queue.StatusTranscribing
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()
	waitForEvent(t, events)

	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Status != queue.StatusCompleted {
		t.Errorf("stranded item not reprocessed: status = %q", got.Status)
	}
}

func TestManagerDoubleStartRejected(t *testing.T) {
	stages, _ := stubStages()
	manager, _, _, _ := newTestManager(t, stages)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()
	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
}
