// Package workflow drives queue items through the processing stages with
// bounded concurrency.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
	"scribe/internal/transcript"
)

// StageSet bundles the concrete handlers the manager orchestrates.
type StageSet struct {
	Extract    stage.Handler
	Convert    stage.Handler
	Diarize    stage.Handler
	Transcribe stage.Handler
	Merge      stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	processingStatus queue.Status
}

// Events receives item lifecycle callbacks, used by the bot to push results
// back to the originating chat.
type Events interface {
	ItemCompleted(ctx context.Context, item *queue.Item)
	ItemFailed(ctx context.Context, item *queue.Item)
}

// Manager polls the queue and runs each claimed item through the stage
// sequence in its own goroutine, capped at MaxConcurrentJobs.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	stages       []pipelineStage
	pollInterval time.Duration
	maxJobs      int
	events       Events

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  map[int64]struct{}
	lastErr error
}

func NewManager(cfg *config.Config, store *queue.Store, stages StageSet, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxJobs := cfg.Workflow.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 1
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		notifier:     notifier,
		pollInterval: pollInterval,
		maxJobs:      maxJobs,
		active:       make(map[int64]struct{}),
		stages: []pipelineStage{
			{name: "extract", handler: stages.Extract, processingStatus: queue.StatusExtracting},
			{name: "convert", handler: stages.Convert, processingStatus: queue.StatusConverting},
			{name: "diarize", handler: stages.Diarize, processingStatus: queue.StatusDiarizing},
			{name: "transcribe", handler: stages.Transcribe, processingStatus: queue.StatusTranscribing},
			{name: "merge", handler: stages.Merge, processingStatus: queue.StatusMerging},
		},
	}
}

// SetEvents registers lifecycle callbacks. Must be called before Start.
func (m *Manager) SetEvents(events Events) {
	m.events = events
}

// Start recovers stranded items and begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	for _, stg := range m.stages {
		if stg.handler == nil {
			m.mu.Unlock()
			return errors.New("workflow stage " + stg.name + " not configured")
		}
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	if count, err := m.store.ResetStuck(runCtx); err != nil {
		m.logger.Warn("failed to reset stranded items", logging.Error(err))
	} else if count > 0 {
		m.logger.Info("stranded items returned to pending", logging.Int64("count", count))
	}

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for in-flight items.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, claimed := m.claimNext(ctx)
		if !claimed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.pollInterval):
			}
			continue
		}

		m.wg.Add(1)
		go func(item *queue.Item) {
			defer m.wg.Done()
			defer m.release(item.ID)
			m.processItem(ctx, item)
		}(item)
	}
}

// claimNext returns the oldest pending item when a worker slot is free.
func (m *Manager) claimNext(ctx context.Context) (*queue.Item, bool) {
	m.mu.Lock()
	if len(m.active) >= m.maxJobs {
		m.mu.Unlock()
		return nil, false
	}
	exclude := make([]int64, 0, len(m.active))
	for id := range m.active {
		exclude = append(exclude, id)
	}
	m.mu.Unlock()

	item, err := m.store.NextPending(ctx, exclude...)
	if errors.Is(err, queue.ErrNoPending) {
		return nil, false
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.setLastError(err)
			m.logger.Error("failed to fetch next queue item", logging.Error(err))
		}
		return nil, false
	}

	m.mu.Lock()
	m.active[item.ID] = struct{}{}
	m.mu.Unlock()
	return item, true
}

func (m *Manager) release(id int64) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func (m *Manager) processItem(ctx context.Context, item *queue.Item) {
	itemCtx := services.WithRequestID(services.WithItemID(ctx, item.ID), uuid.NewString())
	logger := logging.WithContext(itemCtx, m.logger)
	started := time.Now()

	logger.Info("processing started", logging.String("source", item.SourceName))
	_ = m.notifier.NotifyTranscriptionStarted(itemCtx, item.SourceName)

	for _, stg := range m.stages {
		if err := m.runStage(itemCtx, stg, item); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Debug("processing interrupted by shutdown")
				return
			}
			m.failItem(itemCtx, stg.name, item, err)
			return
		}
	}

	item.Status = queue.StatusCompleted
	item.ErrorMessage = ""
	if err := m.store.Update(itemCtx, item); err != nil {
		logger.Error("failed to persist completion", logging.Error(err))
		m.setLastError(err)
		return
	}

	segments := 0
	if doc, err := transcript.Load(item.TranscriptPath); err == nil {
		segments = doc.Summarize().Total
	}
	logger.Info("processing completed",
		logging.String("source", item.SourceName),
		logging.Int("segments", segments),
		logging.Duration("elapsed", time.Since(started)))
	_ = m.notifier.NotifyTranscriptionCompleted(itemCtx, item.SourceName, segments, time.Since(started))

	m.cleanupWorkDir(item)
	if m.events != nil {
		m.events.ItemCompleted(itemCtx, item)
	}
}

func (m *Manager) runStage(ctx context.Context, stg pipelineStage, item *queue.Item) error {
	stageCtx := services.WithStage(ctx, stg.name)
	logger := logging.WithContext(stageCtx, m.logger)
	stageStart := time.Now()

	item.Status = stg.processingStatus
	if err := m.store.Update(stageCtx, item); err != nil {
		return err
	}

	if err := stg.handler.Prepare(stageCtx, item); err != nil {
		return err
	}
	if err := m.store.Update(stageCtx, item); err != nil {
		return err
	}

	if err := stg.handler.Execute(stageCtx, item); err != nil {
		return err
	}
	if err := m.store.Update(stageCtx, item); err != nil {
		return err
	}

	logger.Info("stage completed",
		logging.String("source", item.SourceName),
		logging.Duration("stage_duration", time.Since(stageStart)))
	return nil
}

func (m *Manager) failItem(ctx context.Context, stageName string, item *queue.Item, stageErr error) {
	logger := logging.WithContext(ctx, m.logger)
	m.setLastError(stageErr)

	item.Status = services.FailureStatus(stageErr)
	item.ErrorMessage = stageErr.Error()
	if item.Status == queue.StatusReview {
		item.NeedsReview = true
		item.ReviewReason = stageErr.Error()
	}
	if err := m.store.Update(ctx, item); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}

	logger.Error("stage failed",
		logging.String("stage", stageName),
		logging.String("source", item.SourceName),
		logging.String("resolved_status", string(item.Status)),
		logging.Error(stageErr))

	if item.Status == queue.StatusReview {
		_ = m.notifier.NotifyReviewRequired(ctx, item.SourceName, item.ErrorMessage)
	} else {
		_ = m.notifier.NotifyTranscriptionFailed(ctx, item.SourceName, item.ErrorMessage)
	}

	m.cleanupWorkDir(item)
	if m.events != nil {
		m.events.ItemFailed(ctx, item)
	}
}

func (m *Manager) cleanupWorkDir(item *queue.Item) {
	fileutil.RemoveQuiet(pipeline.WorkDir(m.cfg, item))
}

// Health reports the readiness of every configured stage.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	health := make([]stage.Health, 0, len(m.stages))
	for _, stg := range m.stages {
		health = append(health, stg.handler.HealthCheck(ctx))
	}
	return health
}

// LastError returns the most recent processing error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
