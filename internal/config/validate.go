package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateMonitoring(); err != nil {
		return err
	}
	if err := c.validateRecovery(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.MusicDir == "" {
		return errors.New("paths.music_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.AnalyzerBinary == "" {
		return errors.New("analysis.analyzer_binary must be set")
	}
	return ensurePositiveMap(map[string]int{
		"analysis.sample_rate":     c.Analysis.SampleRate,
		"analysis.max_duration":    c.Analysis.MaxDuration,
		"analysis.hop_length":      c.Analysis.HopLength,
		"analysis.extract_timeout": c.Analysis.ExtractTimeout,
	})
}

func (c *Config) validateProcessing() error {
	return ensurePositiveMap(map[string]int{
		"processing.max_workers":         c.Processing.MaxWorkers,
		"processing.queue_limit":         c.Processing.QueueLimit,
		"processing.max_attempts":        c.Processing.MaxAttempts,
		"processing.checkpoint_interval": c.Processing.CheckpointInterval,
		"processing.poll_interval":       c.Processing.PollInterval,
		"processing.feed_interval":       c.Processing.FeedInterval,
		"processing.stop_timeout":        c.Processing.StopTimeout,
	})
}

func (c *Config) validateMonitoring() error {
	if err := ensurePositiveMap(map[string]int{
		"monitoring.stall_timeout":          c.Monitoring.StallTimeout,
		"monitoring.snapshot_interval":      c.Monitoring.SnapshotInterval,
		"monitoring.max_consecutive_stalls": c.Monitoring.MaxConsecutiveStalls,
		"monitoring.history_retention_days": c.Monitoring.HistoryRetentionDays,
	}); err != nil {
		return err
	}
	if c.Monitoring.MinRateThreshold <= 0 {
		return errors.New("monitoring.min_rate_threshold must be positive")
	}
	return nil
}

func (c *Config) validateRecovery() error {
	if err := ensurePositiveMap(map[string]int{
		"recovery.check_interval":           c.Recovery.CheckInterval,
		"recovery.max_consecutive_failures": c.Recovery.MaxConsecutiveFailures,
		"recovery.base_backoff_minutes":     c.Recovery.BaseBackoffMinutes,
		"recovery.max_backoff_minutes":      c.Recovery.MaxBackoffMinutes,
		"recovery.stuck_threshold_minutes":  c.Recovery.StuckThresholdMinutes,
		"recovery.require_manual_after":     c.Recovery.RequireManualAfter,
		"recovery.recovery_timeout_minutes": c.Recovery.RecoveryTimeoutMinutes,
	}); err != nil {
		return err
	}
	if c.Recovery.MaxBackoffMinutes < c.Recovery.BaseBackoffMinutes {
		return errors.New("recovery.max_backoff_minutes must be at least recovery.base_backoff_minutes")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays <= 0 {
		return errors.New("logging.retention_days must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
