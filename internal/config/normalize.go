package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAnalysis()
	c.normalizeProcessing()
	c.normalizeMonitoring()
	c.normalizeRecovery()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.MusicDir, err = expandPath(c.Paths.MusicDir); err != nil {
		return fmt.Errorf("paths.music_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.AnalyzerBinary = strings.TrimSpace(c.Analysis.AnalyzerBinary)
	if c.Analysis.AnalyzerBinary == "" {
		c.Analysis.AnalyzerBinary = defaultAnalyzerBinary
	}
	if c.Analysis.SampleRate <= 0 {
		c.Analysis.SampleRate = defaultSampleRate
	}
	if c.Analysis.MaxDuration <= 0 {
		c.Analysis.MaxDuration = defaultMaxDuration
	}
	if c.Analysis.HopLength <= 0 {
		c.Analysis.HopLength = defaultHopLength
	}
	if c.Analysis.ExtractTimeout <= 0 {
		c.Analysis.ExtractTimeout = defaultExtractTimeout
	}
}

func (c *Config) normalizeProcessing() {
	if c.Processing.MaxWorkers <= 0 {
		c.Processing.MaxWorkers = defaultMaxWorkers
	}
	if c.Processing.QueueLimit <= 0 {
		c.Processing.QueueLimit = defaultQueueLimit
	}
	if c.Processing.MaxAttempts <= 0 {
		c.Processing.MaxAttempts = defaultMaxAttempts
	}
	if c.Processing.CheckpointInterval <= 0 {
		c.Processing.CheckpointInterval = defaultCheckpointInterval
	}
	if c.Processing.PollInterval <= 0 {
		c.Processing.PollInterval = defaultPollInterval
	}
	if c.Processing.FeedInterval <= 0 {
		c.Processing.FeedInterval = defaultFeedInterval
	}
	if c.Processing.StopTimeout <= 0 {
		c.Processing.StopTimeout = defaultStopTimeout
	}
}

func (c *Config) normalizeMonitoring() {
	if c.Monitoring.StallTimeout <= 0 {
		c.Monitoring.StallTimeout = defaultStallTimeout
	}
	if c.Monitoring.SnapshotInterval <= 0 {
		c.Monitoring.SnapshotInterval = defaultSnapshotInterval
	}
	if c.Monitoring.MinRateThreshold <= 0 {
		c.Monitoring.MinRateThreshold = defaultMinRateThreshold
	}
	if c.Monitoring.MaxConsecutiveStalls <= 0 {
		c.Monitoring.MaxConsecutiveStalls = defaultMaxConsecutiveStalls
	}
	if c.Monitoring.HistoryRetentionDays <= 0 {
		c.Monitoring.HistoryRetentionDays = defaultHistoryRetentionDays
	}
}

func (c *Config) normalizeRecovery() {
	if c.Recovery.CheckInterval <= 0 {
		c.Recovery.CheckInterval = defaultRecoveryCheckLapse
	}
	if c.Recovery.MaxConsecutiveFailures <= 0 {
		c.Recovery.MaxConsecutiveFailures = defaultMaxRecoveryFailures
	}
	if c.Recovery.BaseBackoffMinutes <= 0 {
		c.Recovery.BaseBackoffMinutes = defaultBaseBackoffMinutes
	}
	if c.Recovery.MaxBackoffMinutes <= 0 {
		c.Recovery.MaxBackoffMinutes = defaultMaxBackoffMinutes
	}
	if c.Recovery.StuckThresholdMinutes <= 0 {
		c.Recovery.StuckThresholdMinutes = defaultStuckThreshold
	}
	if c.Recovery.RequireManualAfter <= 0 {
		c.Recovery.RequireManualAfter = defaultRequireManualAfter
	}
	if c.Recovery.RecoveryTimeoutMinutes <= 0 {
		c.Recovery.RecoveryTimeoutMinutes = defaultRecoveryTimeout
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
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
