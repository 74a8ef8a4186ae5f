package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable. Credentials are checked where
// they gate a whole subsystem; per-run credential failures surface later as
// configuration errors from the component that needs them.
func (c *Config) Validate() error {
	if err := c.validateSegmenter(); err != nil {
		return err
	}
	if err := c.validateSTT(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSegmenter() error {
	s := c.Segmenter
	if s.MinSilenceMillis <= 0 {
		return errors.New("segmenter.min_silence_millis must be positive")
	}
	if s.SilenceThresholdDB >= 0 {
		return errors.New("segmenter.silence_threshold_db must be negative (dBFS)")
	}
	if s.KeepSilenceMillis < 0 {
		return errors.New("segmenter.keep_silence_millis must not be negative")
	}
	if s.TargetMillis <= 0 {
		return errors.New("segmenter.target_millis must be positive")
	}
	if s.MaxSegmentMillis < s.TargetMillis {
		return fmt.Errorf("segmenter.max_segment_millis (%d) must be at least target_millis (%d)", s.MaxSegmentMillis, s.TargetMillis)
	}
	if s.MinChunkMillis < 0 {
		return errors.New("segmenter.min_chunk_millis must not be negative")
	}
	return nil
}

func (c *Config) validateSTT() error {
	if c.STT.MaxRetry < 1 {
		return errors.New("stt.max_retry must be at least 1")
	}
	if c.STT.Workers < 1 {
		return errors.New("stt.workers must be at least 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxSegmentFailureRatio <= 0 || c.Workflow.MaxSegmentFailureRatio > 1 {
		return errors.New("workflow.max_segment_failure_ratio must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
