package ipc

import (
	"time"

	"cadence/internal/api"
	"cadence/internal/processor"
)

// StartRequest asks the daemon to start its background services.
type StartRequest struct{}

// StartResponse reports the outcome of a start request.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest asks the daemon to stop its background services.
type StopRequest struct{}

// StopResponse reports the outcome of a stop request.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest retrieves daemon status.
type StatusRequest struct{}

// StatusResponse describes the daemon and its worker pool.
type StatusResponse struct {
	Running    bool                `json:"running"`
	PID        int                 `json:"pid"`
	DBPath     string              `json:"db_path"`
	LockPath   string              `json:"lock_path"`
	Processing processor.Status    `json:"processing"`
	Library    api.ProgressSummary `json:"library"`
}

// ProcessStartRequest loads the analysis backlog and starts the worker pool.
type ProcessStartRequest struct {
	Limit int `json:"limit"`
}

// ProcessStartResponse reports how many jobs were queued.
type ProcessStartResponse struct {
	Queued  int    `json:"queued"`
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// ProcessStopRequest stops the worker pool.
type ProcessStopRequest struct{}

// ProcessStopResponse reports the outcome of a pool stop.
type ProcessStopResponse struct {
	Stopped bool `json:"stopped"`
}

// HealthRequest retrieves the composite health report.
type HealthRequest struct{}

// HealthResponse mirrors the monitor's health report for the CLI.
type HealthResponse struct {
	Status              string                `json:"current_status"`
	Timestamp           time.Time             `json:"timestamp"`
	Progress            api.ProgressSummary   `json:"progress"`
	ProcessingRate      *float64              `json:"processing_rate,omitempty"`
	EstimatedCompletion *time.Time            `json:"estimated_completion,omitempty"`
	Stalled             bool                  `json:"stalled"`
	ConsecutiveStalls   int                   `json:"consecutive_stalls"`
	Anomalies           []string              `json:"anomalies,omitempty"`
	Recommendations     []string              `json:"recommendations,omitempty"`
	RecentHistory       []api.SnapshotSummary `json:"recent_history,omitempty"`
}

// StallRequest retrieves the stall diagnostic view.
type StallRequest struct{}

// StallResponse mirrors the monitor's stall analysis for the CLI.
type StallResponse struct {
	Indicators        []string              `json:"stall_indicators,omitempty"`
	PendingTracks     int                   `json:"pending_tracks"`
	AnalyzingTracks   int                   `json:"analyzing_tracks"`
	TotalTracks       int                   `json:"total_tracks"`
	Probability       string                `json:"stall_probability"`
	RecommendedAction string                `json:"recommended_action"`
	Factors           []string              `json:"stall_factors,omitempty"`
	RecentHistory     []api.SnapshotSummary `json:"recent_history,omitempty"`
}

// RecoveryStatusRequest retrieves recovery controller state.
type RecoveryStatusRequest struct{}

// RecoveryStatusResponse describes the auto-recovery controller.
type RecoveryStatusResponse struct {
	State                      string     `json:"status"`
	Enabled                    bool       `json:"enabled"`
	ConsecutiveFailures        int        `json:"consecutive_failures"`
	BackoffMultiplier          float64    `json:"backoff_multiplier"`
	NextRecoveryAvailable      *time.Time `json:"next_recovery_available,omitempty"`
	AttemptCount               int        `json:"recovery_attempts_count"`
	LastAttempt                *time.Time `json:"last_recovery_attempt,omitempty"`
	RequiresManualIntervention bool       `json:"requires_manual_intervention"`
	MonitoringActive           bool       `json:"monitoring_active"`
}

// RecoveryHistoryRequest retrieves recent recovery attempts.
type RecoveryHistoryRequest struct {
	Limit int `json:"limit"`
}

// RecoveryAttempt is one recorded recovery attempt.
type RecoveryAttempt struct {
	Timestamp    time.Time `json:"timestamp"`
	Reason       string    `json:"reason"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Duration     float64   `json:"recovery_time,omitempty"`
}

// RecoveryHistoryResponse lists recovery attempts, oldest first.
type RecoveryHistoryResponse struct {
	Attempts []RecoveryAttempt `json:"attempts"`
}

// ForceRecoveryRequest triggers an immediate recovery attempt.
type ForceRecoveryRequest struct{}

// ForceRecoveryResponse reports whether the forced attempt succeeded.
type ForceRecoveryResponse struct {
	Success bool `json:"success"`
}

// ResetRecoveryRequest clears recovery escalation state.
type ResetRecoveryRequest struct{}

// ResetRecoveryResponse acknowledges the reset.
type ResetRecoveryResponse struct {
	Reset bool `json:"reset"`
}

// TrackListRequest lists tracks, optionally filtered by status.
type TrackListRequest struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// TrackListResponse carries matching tracks.
type TrackListResponse struct {
	Tracks []api.TrackSummary `json:"tracks"`
}

// TrackDescribeRequest fetches one track and its features.
type TrackDescribeRequest struct {
	ID int64 `json:"id"`
}

// TrackDescribeResponse carries the track and its flattened features.
type TrackDescribeResponse struct {
	Track    api.TrackSummary `json:"track"`
	Features [][2]string      `json:"features,omitempty"`
}

// TrackRetryRequest resets errored tracks back to pending. With explicit
// IDs, skipped tracks are eligible too.
type TrackRetryRequest struct {
	IDs []int64 `json:"ids,omitempty"`
}

// TrackRetryResponse reports how many tracks were reset.
type TrackRetryResponse struct {
	Updated int `json:"updated"`
}

// TrackResetRequest releases tracks wedged in analyzing back to pending.
type TrackResetRequest struct{}

// TrackResetResponse reports how many tracks were released.
type TrackResetResponse struct {
	Updated int `json:"updated"`
}

// TrackClearRequest removes tracks in the named statuses, or all tracks
// when none are given.
type TrackClearRequest struct {
	Statuses []string `json:"statuses,omitempty"`
}

// TrackClearResponse reports how many tracks were removed.
type TrackClearResponse struct {
	Removed int `json:"removed"`
}

// ScanRequest walks the music directory for new audio files.
type ScanRequest struct{}

// ScanResponse summarizes a scan.
type ScanResponse struct {
	Scanned int `json:"scanned"`
	Added   int `json:"added"`
	Known   int `json:"known"`
}

// AddFileRequest registers a single audio file for analysis.
type AddFileRequest struct {
	Path string `json:"path"`
}

// AddFileResponse carries the registered track.
type AddFileResponse struct {
	Track api.TrackSummary `json:"track"`
}

// DatabaseHealthRequest retrieves library database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse describes the library database state.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	TableExists      bool   `json:"table_exists"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalTracks      int    `json:"total_tracks"`
	Error            string `json:"error,omitempty"`
}
