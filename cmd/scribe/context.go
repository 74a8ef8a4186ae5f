package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"scribe/internal/agent"
	"scribe/internal/audio"
	"scribe/internal/bot"
	"scribe/internal/config"
	"scribe/internal/daemon"
	"scribe/internal/diarize"
	"scribe/internal/media"
	"scribe/internal/notifications"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/stt"
	"scribe/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the queue store for the duration of one command.
func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// buildStages wires the processing stage handlers from configuration.
func buildStages(cfg *config.Config, store *queue.Store, logger *slog.Logger) (workflow.StageSet, error) {
	proc := media.NewProcessor(cfg.FFmpegBinary(), cfg.FFprobeBinary())

	segmenter := audio.NewSegmenter(audio.Options{
		MinSilenceMillis:   cfg.Segmenter.MinSilenceMillis,
		SilenceThresholdDB: cfg.Segmenter.SilenceThresholdDB,
		KeepSilenceMillis:  cfg.Segmenter.KeepSilenceMillis,
		MaxSegmentMillis:   cfg.Segmenter.MaxSegmentMillis,
		TargetMillis:       cfg.Segmenter.TargetMillis,
		MinChunkMillis:     cfg.Segmenter.MinChunkMillis,
	}, logger)

	settings := stt.Settings{
		APIKey:          cfg.STT.APIKey,
		BaseURL:         cfg.STT.BaseURL,
		Model:           cfg.STT.Model,
		TimeoutSeconds:  cfg.STT.TimeoutSeconds,
		MaxRetry:        cfg.STT.MaxRetry,
		Workers:         cfg.STT.Workers,
		EnergyThreshold: float64(cfg.STT.EnergyThreshold),
		DynamicEnergy:   cfg.STT.DynamicEnergy,
		PauseThreshold:  cfg.STT.PauseThreshold,
	}
	recognizer, err := stt.NewWhisperRecognizer(settings)
	if err != nil {
		return workflow.StageSet{}, fmt.Errorf("configure recognizer: %w", err)
	}

	diarizer := diarize.NewService(diarize.Config{
		HFToken:        cfg.Diarization.HFToken,
		Model:          cfg.Diarization.Model,
		CUDAEnabled:    cfg.Diarization.CUDAEnabled,
		TimeoutSeconds: cfg.Diarization.TimeoutSeconds,
	}, logger)

	return workflow.StageSet{
		Extract:    pipeline.NewExtractStage(cfg, proc, logger),
		Convert:    pipeline.NewConvertStage(cfg, proc, logger),
		Diarize:    pipeline.NewDiarizeStage(cfg, diarizer, logger),
		Transcribe: pipeline.NewTranscribeStage(cfg, segmenter, stt.NewProcessor(recognizer, settings, logger), store, logger),
		Merge:      pipeline.NewMergeStage(cfg, logger),
	}, nil
}

// buildDaemon assembles the full daemon. withBot controls whether the
// Telegram surface is dialed; queue-only commands leave it off.
func buildDaemon(cfg *config.Config, logger *slog.Logger, withBot bool) (*daemon.Daemon, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	stages, err := buildStages(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	manager := workflow.NewManager(cfg, store, stages, notifications.NewService(cfg), logger)

	var tgBot *bot.Bot
	if withBot {
		agentClient := agent.NewClient(agent.Config{
			APIKey:         cfg.Agent.APIKey,
			BaseURL:        cfg.Agent.BaseURL,
			Model:          cfg.Agent.Model,
			Temperature:    cfg.Agent.Temperature,
			TimeoutSeconds: cfg.Agent.TimeoutSeconds,
		})
		tgBot, err = bot.New(cfg, store, agentClient, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	d, err := daemon.New(cfg, store, manager, tgBot, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return d, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
