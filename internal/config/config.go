package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	MusicDir string `toml:"music_dir"`
	LogDir   string `toml:"log_dir"`
}

// Analysis contains configuration for the external feature-extraction tool.
type Analysis struct {
	AnalyzerBinary string `toml:"analyzer_binary"`
	SampleRate     int    `toml:"sample_rate"`
	MaxDuration    int    `toml:"max_duration"`
	HopLength      int    `toml:"hop_length"`
	ExtractTimeout int    `toml:"extract_timeout"`
}

// Processing contains worker pool and queue configuration.
type Processing struct {
	MaxWorkers         int `toml:"max_workers"`
	QueueLimit         int `toml:"queue_limit"`
	MaxAttempts        int `toml:"max_attempts"`
	CheckpointInterval int `toml:"checkpoint_interval"`
	PollInterval       int `toml:"poll_interval"`
	FeedInterval       int `toml:"feed_interval"`
	StopTimeout        int `toml:"stop_timeout"`
}

// Monitoring contains progress monitor thresholds and intervals.
type Monitoring struct {
	StallTimeout         int     `toml:"stall_timeout"`
	SnapshotInterval     int     `toml:"snapshot_interval"`
	MinRateThreshold     float64 `toml:"min_rate_threshold"`
	MaxConsecutiveStalls int     `toml:"max_consecutive_stalls"`
	HistoryRetentionDays int     `toml:"history_retention_days"`
}

// Recovery contains auto-recovery controller configuration.
type Recovery struct {
	Enabled                bool `toml:"enabled"`
	CheckInterval          int  `toml:"check_interval"`
	MaxConsecutiveFailures int  `toml:"max_consecutive_failures"`
	BaseBackoffMinutes     int  `toml:"base_backoff_minutes"`
	MaxBackoffMinutes      int  `toml:"max_backoff_minutes"`
	StuckThresholdMinutes  int  `toml:"stuck_threshold_minutes"`
	RequireManualAfter     int  `toml:"require_manual_after"`
	RecoveryTimeoutMinutes int  `toml:"recovery_timeout_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for cadence.
//
// Configuration sections by subsystem:
//   - Paths: music library root and log directory
//   - Analysis: external analyzer tool settings
//   - Processing: worker pool sizing, retry limits, checkpointing
//   - Monitoring: stall detection thresholds and snapshot cadence
//   - Recovery: automatic restart policy and backoff
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Analysis   Analysis   `toml:"analysis"`
	Processing Processing `toml:"processing"`
	Monitoring Monitoring `toml:"monitoring"`
	Recovery   Recovery   `toml:"recovery"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cadence/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return is
// the resolved path; the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cadence.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// MusicDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	if strings.TrimSpace(c.Paths.MusicDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.MusicDir, 0o755)
	}
	return nil
}

// DatabasePath returns the path of the SQLite library database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.LogDir, "library.db")
}

// SocketPath returns the path of the daemon IPC socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "cadence.sock")
}

// CheckpointPath returns the path of the advisory processor checkpoint file.
func (c *Config) CheckpointPath() string {
	return filepath.Join(c.Paths.LogDir, "processor_checkpoint.json")
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
