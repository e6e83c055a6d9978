package config

const (
	defaultMusicDir             = "~/music"
	defaultLogDir               = "~/.local/share/cadence/logs"
	defaultAnalyzerBinary       = "cadence-analyzer"
	defaultSampleRate           = 8000
	defaultMaxDuration          = 60
	defaultHopLength            = 512
	defaultExtractTimeout       = 300
	defaultMaxWorkers           = 1
	defaultQueueLimit           = 1000
	defaultMaxAttempts          = 3
	defaultCheckpointInterval   = 50
	defaultPollInterval         = 1
	defaultFeedInterval         = 5
	defaultStopTimeout          = 10
	defaultStallTimeout         = 300
	defaultSnapshotInterval     = 60
	defaultMinRateThreshold     = 0.1
	defaultMaxConsecutiveStalls = 3
	defaultHistoryRetentionDays = 7
	defaultRecoveryCheckLapse   = 60
	defaultMaxRecoveryFailures  = 3
	defaultBaseBackoffMinutes   = 5
	defaultMaxBackoffMinutes    = 60
	defaultStuckThreshold       = 10
	defaultRequireManualAfter   = 5
	defaultRecoveryTimeout      = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			MusicDir: defaultMusicDir,
			LogDir:   defaultLogDir,
		},
		Analysis: Analysis{
			AnalyzerBinary: defaultAnalyzerBinary,
			SampleRate:     defaultSampleRate,
			MaxDuration:    defaultMaxDuration,
			HopLength:      defaultHopLength,
			ExtractTimeout: defaultExtractTimeout,
		},
		Processing: Processing{
			MaxWorkers:         defaultMaxWorkers,
			QueueLimit:         defaultQueueLimit,
			MaxAttempts:        defaultMaxAttempts,
			CheckpointInterval: defaultCheckpointInterval,
			PollInterval:       defaultPollInterval,
			FeedInterval:       defaultFeedInterval,
			StopTimeout:        defaultStopTimeout,
		},
		Monitoring: Monitoring{
			StallTimeout:         defaultStallTimeout,
			SnapshotInterval:     defaultSnapshotInterval,
			MinRateThreshold:     defaultMinRateThreshold,
			MaxConsecutiveStalls: defaultMaxConsecutiveStalls,
			HistoryRetentionDays: defaultHistoryRetentionDays,
		},
		Recovery: Recovery{
			Enabled:                true,
			CheckInterval:          defaultRecoveryCheckLapse,
			MaxConsecutiveFailures: defaultMaxRecoveryFailures,
			BaseBackoffMinutes:     defaultBaseBackoffMinutes,
			MaxBackoffMinutes:      defaultMaxBackoffMinutes,
			StuckThresholdMinutes:  defaultStuckThreshold,
			RequireManualAfter:     defaultRequireManualAfter,
			RecoveryTimeoutMinutes: defaultRecoveryTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
