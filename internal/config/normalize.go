package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTelegram()
	c.normalizeSTT()
	c.normalizeDiarization()
	c.normalizeAgent()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.IncomingDir, err = expandPath(c.Paths.IncomingDir); err != nil {
		return fmt.Errorf("paths.incoming_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTelegram() {
	if c.Telegram.Token == "" {
		c.Telegram.Token = strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN"))
	}
	if c.Telegram.RequestTimeout <= 0 {
		c.Telegram.RequestTimeout = defaultTelegramRequestTimeout
	}
}

func (c *Config) normalizeSTT() {
	if c.STT.APIKey == "" {
		c.STT.APIKey = strings.TrimSpace(os.Getenv("STT_API_KEY"))
	}
	if strings.TrimSpace(c.STT.BaseURL) == "" {
		c.STT.BaseURL = defaultSTTBaseURL
	}
	if strings.TrimSpace(c.STT.Model) == "" {
		c.STT.Model = defaultSTTModel
	}
	c.STT.Language = strings.ToLower(strings.TrimSpace(c.STT.Language))
	if c.STT.Language == "" {
		c.STT.Language = defaultSTTLanguage
	}
	if c.STT.TimeoutSeconds <= 0 {
		c.STT.TimeoutSeconds = defaultSTTTimeoutSeconds
	}
	if c.STT.MaxRetry <= 0 {
		c.STT.MaxRetry = defaultSTTMaxRetry
	}
	if c.STT.Workers <= 0 {
		c.STT.Workers = defaultSTTWorkers
	}
	if c.STT.EnergyThreshold <= 0 {
		c.STT.EnergyThreshold = defaultEnergyThreshold
	}
	if c.STT.PauseThreshold <= 0 {
		c.STT.PauseThreshold = defaultPauseThreshold
	}
}

func (c *Config) normalizeDiarization() {
	if c.Diarization.HFToken == "" {
		c.Diarization.HFToken = strings.TrimSpace(os.Getenv("HUGGINGFACE_TOKEN"))
	}
	if strings.TrimSpace(c.Diarization.Model) == "" {
		c.Diarization.Model = defaultDiarizationModel
	}
	if c.Diarization.TimeoutSeconds <= 0 {
		c.Diarization.TimeoutSeconds = defaultDiarizationTimeoutSeconds
	}
}

func (c *Config) normalizeAgent() {
	if c.Agent.APIKey == "" {
		c.Agent.APIKey = strings.TrimSpace(os.Getenv("AGENT_API_KEY"))
	}
	if strings.TrimSpace(c.Agent.BaseURL) == "" {
		c.Agent.BaseURL = defaultAgentBaseURL
	}
	if strings.TrimSpace(c.Agent.Model) == "" {
		c.Agent.Model = defaultAgentModel
	}
	if c.Agent.TimeoutSeconds <= 0 {
		c.Agent.TimeoutSeconds = defaultAgentTimeoutSeconds
	}
	if c.Agent.HistoryLimit <= 0 {
		c.Agent.HistoryLimit = defaultAgentHistoryLimit
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.MaxConcurrentJobs <= 0 {
		c.Workflow.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if c.Workflow.DownloadTimeout <= 0 {
		c.Workflow.DownloadTimeout = defaultDownloadTimeout
	}
	if c.Workflow.MaxSegmentFailureRatio <= 0 {
		c.Workflow.MaxSegmentFailureRatio = defaultSegmentFailureRatio
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
