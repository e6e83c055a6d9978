package api

import "time"

// TrackSummary is the wire representation of a library track shared by the
// IPC server and the CLI.
type TrackSummary struct {
	ID                int64      `json:"id"`
	FilePath          string     `json:"file_path"`
	Title             string     `json:"title,omitempty"`
	Artist            string     `json:"artist,omitempty"`
	Album             string     `json:"album,omitempty"`
	Status            string     `json:"status"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	AnalysisStartedAt *time.Time `json:"analysis_started_at,omitempty"`
	AnalyzedAt        *time.Time `json:"analyzed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ProgressSummary aggregates library-wide analysis counts.
type ProgressSummary struct {
	Total      int     `json:"total_tracks"`
	Analyzed   int     `json:"analyzed_tracks"`
	Pending    int     `json:"pending_tracks"`
	Errored    int     `json:"error_tracks"`
	Percentage float64 `json:"progress_percentage"`
}

// SnapshotSummary is one progress-history sample.
type SnapshotSummary struct {
	Timestamp           time.Time  `json:"timestamp"`
	TotalTracks         int        `json:"total_tracks"`
	AnalyzedTracks      int        `json:"analyzed_tracks"`
	PendingTracks       int        `json:"pending_tracks"`
	ErrorTracks         int        `json:"error_tracks"`
	ProgressPercent     float64    `json:"progress_percentage"`
	ProcessingRate      *float64   `json:"processing_rate,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
	HealthStatus        string     `json:"health_status"`
}
