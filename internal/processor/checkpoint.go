package processor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cadence/internal/logging"
)

// Checkpoint is the resume record written alongside the library database.
// A crashed or killed daemon reads it back on the next run to report how
// far the previous session got.
type Checkpoint struct {
	Timestamp      time.Time  `json:"timestamp"`
	SessionID      string     `json:"session_id"`
	TotalJobs      int        `json:"total_jobs"`
	CompletedJobs  int        `json:"completed_jobs"`
	FailedJobs     int        `json:"failed_jobs"`
	SkippedJobs    int        `json:"skipped_jobs"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	LastCheckpoint int        `json:"last_checkpoint"`
}

// saveCheckpointLocked persists current counters. Callers hold p.mu.
func (p *Pool) saveCheckpointLocked() {
	cp := Checkpoint{
		Timestamp:      time.Now().UTC(),
		SessionID:      p.sessionID,
		TotalJobs:      p.stats.TotalJobs,
		CompletedJobs:  p.stats.CompletedJobs,
		FailedJobs:     p.stats.FailedJobs,
		SkippedJobs:    p.stats.SkippedJobs,
		LastCheckpoint: p.stats.CompletedJobs,
	}
	if !p.stats.StartTime.IsZero() {
		start := p.stats.StartTime
		cp.StartTime = &start
	}

	path := p.cfg.CheckpointPath()
	if err := writeCheckpoint(path, cp); err != nil {
		logging.WarnWithContext(p.logger, "failed to save checkpoint", "checkpoint_write_failed",
			logging.Error(err),
			logging.String("path", path),
		)
		return
	}

	p.lastCheckpoint = p.stats.CompletedJobs
	p.logger.Info("checkpoint saved",
		logging.Int("completed", p.stats.CompletedJobs),
		logging.Int("total", p.stats.TotalJobs),
		logging.String(logging.FieldEventType, "checkpoint_saved"),
	)
}

func writeCheckpoint(path string, cp Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	payload, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// ReadCheckpoint loads the last saved checkpoint. Returns nil without
// error when no checkpoint exists.
func ReadCheckpoint(path string) (*Checkpoint, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}
