package library

import "time"

// TrackStatus represents the analysis lifecycle of a library track.
type TrackStatus string

const (
	StatusPending   TrackStatus = "pending"
	StatusAnalyzing TrackStatus = "analyzing"
	StatusAnalyzed  TrackStatus = "analyzed"
	StatusError     TrackStatus = "error"
	StatusSkipped   TrackStatus = "skipped"
)

var allStatuses = []TrackStatus{
	StatusPending,
	StatusAnalyzing,
	StatusAnalyzed,
	StatusError,
	StatusSkipped,
}

var statusSet = func() map[TrackStatus]struct{} {
	set := make(map[TrackStatus]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ValidStatus reports whether the given value is a known track status.
func ValidStatus(status TrackStatus) bool {
	_, ok := statusSet[status]
	return ok
}

// Track represents a library track persisted in SQLite.
type Track struct {
	ID                int64
	FilePath          string
	Title             string
	Artist            string
	Album             string
	Status            TrackStatus
	ErrorMessage      string
	AnalysisStartedAt *time.Time
	AnalyzedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Progress aggregates track counts for the whole library.
type Progress struct {
	Total      int
	Analyzed   int
	Pending    int
	Errored    int
	Percentage float64
}

// FailureSummary describes a recently failed track for diagnostics.
type FailureSummary struct {
	TrackID      int64
	FilePath     string
	ErrorMessage string
	UpdatedAt    time.Time
}

// InFlightTrack describes a track currently marked analyzing.
type InFlightTrack struct {
	TrackID   int64
	FilePath  string
	StartedAt *time.Time
}

// Snapshot is one immutable progress-history row. ProcessingRate and
// EstimatedCompletion are nil when they could not be derived at capture time.
type Snapshot struct {
	ID                  int64
	Timestamp           time.Time
	TotalTracks         int
	AnalyzedTracks      int
	PendingTracks       int
	ErrorTracks         int
	ProgressPercent     float64
	ProcessingRate      *float64
	EstimatedCompletion *time.Time
	HealthStatus        string
}

// DatabaseHealth captures diagnostic information about the library database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalTracks      int
	Error            string
}
