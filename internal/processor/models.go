package processor

import "time"

// JobStatus identifies the lifecycle stage of a processing job. Jobs move
// pending -> queued -> processing and then to exactly one of completed,
// failed, skipped, or cancelled, possibly cycling through retrying and
// queued along the way.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobRetrying   JobStatus = "retrying"
	JobCancelled  JobStatus = "cancelled"
	JobSkipped    JobStatus = "skipped"
)

// Terminal reports whether the status is a final state for a job.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled, JobSkipped:
		return true
	default:
		return false
	}
}

// Job priorities. Tracks that previously errored jump the queue.
const (
	priorityRetryErrored = 1
	priorityNormal       = 3
)

// Job is one unit of feature-extraction work for a single track.
type Job struct {
	TrackID      int64
	SourcePath   string
	Priority     int
	Status       JobStatus
	Attempts     int
	MaxAttempts  int
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	LastError    string
	ProcessingMS int64
	WorkerID     string

	// Trace records every status the job has passed through, in order.
	Trace []JobStatus
}

func newJob(trackID int64, path string, priority, maxAttempts int) *Job {
	j := &Job{
		TrackID:     trackID,
		SourcePath:  path,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}
	j.transition(JobPending)
	return j
}

func (j *Job) transition(status JobStatus) {
	j.Status = status
	j.Trace = append(j.Trace, status)
}

// ProcessingSeconds returns the wall-clock duration of the successful
// attempt, in seconds.
func (j *Job) ProcessingSeconds() float64 {
	return float64(j.ProcessingMS) / 1000
}

// Stats aggregates pool-level counters since the queue was initialized.
type Stats struct {
	TotalJobs             int
	CompletedJobs         int
	FailedJobs            int
	RetryingJobs          int
	SkippedJobs           int
	StartTime             time.Time
	AverageProcessingTime float64
	SuccessRate           float64
	EstimatedCompletion   *time.Time
}

// Progress is the point-in-time view handed to progress callbacks and
// embedded in Status responses.
type Progress struct {
	TotalJobs             int        `json:"total_jobs"`
	CompletedJobs         int        `json:"completed_jobs"`
	FailedJobs            int        `json:"failed_jobs"`
	RetryingJobs          int        `json:"retrying_jobs"`
	SkippedJobs           int        `json:"skipped_jobs"`
	ProcessingJobs        int        `json:"processing_jobs"`
	ProgressPercentage    float64    `json:"progress_percentage"`
	SuccessRate           float64    `json:"success_rate"`
	AverageProcessingTime float64    `json:"average_processing_time"`
	EstimatedCompletion   *time.Time `json:"estimated_completion,omitempty"`
	ActiveWorkers         int        `json:"active_workers"`
	QueueSize             int        `json:"queue_size"`
}

// Pool states reported by Status.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// Status describes the pool for status queries over IPC.
type Status struct {
	State             string   `json:"state"`
	Progress          Progress `json:"progress"`
	Workers           int      `json:"workers"`
	ActiveJobs        int      `json:"active_jobs"`
	QueueSize         int      `json:"queue_size"`
	ShutdownRequested bool     `json:"shutdown_requested"`
}
