package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const snapshotColumns = "id, timestamp, total_tracks, analyzed_tracks, pending_tracks, error_tracks, progress_percentage, processing_rate, estimated_completion, health_status"

// AppendSnapshot persists one progress snapshot to the append-only history.
func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	timestamp := snap.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	health := snap.HealthStatus
	if health == "" {
		health = "unknown"
	}
	return s.execWithoutResultRetry(
		ctx,
		`INSERT INTO progress_history (
            timestamp, total_tracks, analyzed_tracks, pending_tracks, error_tracks,
            progress_percentage, processing_rate, estimated_completion, health_status
         ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		timestamp.UTC().Format(time.RFC3339Nano),
		snap.TotalTracks,
		snap.AnalyzedTracks,
		snap.PendingTracks,
		snap.ErrorTracks,
		snap.ProgressPercent,
		nullableFloat(snap.ProcessingRate),
		nullableTime(snap.EstimatedCompletion),
		health,
	)
}

// RecentSnapshots returns the n most recent snapshots, newest first.
func (s *Store) RecentSnapshots(ctx context.Context, n int) ([]Snapshot, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+snapshotColumns+` FROM progress_history ORDER BY timestamp DESC, id DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent snapshots: %w", err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// SnapshotsSince returns snapshots captured at or after t, oldest first.
func (s *Store) SnapshotsSince(ctx context.Context, t time.Time) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+snapshotColumns+` FROM progress_history WHERE timestamp >= ? ORDER BY timestamp, id`,
		t.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshots since: %w", err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// ConsecutiveStalledSnapshots counts how many of the n most recent snapshots,
// starting from the newest, carry the stalled health tag without interruption.
func (s *Store) ConsecutiveStalledSnapshots(ctx context.Context, n int) (int, error) {
	snapshots, err := s.RecentSnapshots(ctx, n)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, snap := range snapshots {
		if snap.HealthStatus != "stalled" {
			break
		}
		count++
	}
	return count, nil
}

// PruneHistory removes snapshots older than the cutoff. Returns the number of
// rows removed.
func (s *Store) PruneHistory(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM progress_history WHERE timestamp < ?`,
		olderThan.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func collectSnapshots(rows *sql.Rows) ([]Snapshot, error) {
	var snapshots []Snapshot
	for rows.Next() {
		var (
			snap         Snapshot
			timestampRaw string
			rate         sql.NullFloat64
			etaRaw       sql.NullString
		)
		if err := rows.Scan(
			&snap.ID,
			&timestampRaw,
			&snap.TotalTracks,
			&snap.AnalyzedTracks,
			&snap.PendingTracks,
			&snap.ErrorTracks,
			&snap.ProgressPercent,
			&rate,
			&etaRaw,
			&snap.HealthStatus,
		); err != nil {
			return nil, err
		}
		if ts, err := parseTimeString(timestampRaw); err == nil {
			snap.Timestamp = ts
		}
		if rate.Valid {
			v := rate.Float64
			snap.ProcessingRate = &v
		}
		if etaRaw.Valid {
			if eta, err := parseTimeString(etaRaw.String); err == nil {
				snap.EstimatedCompletion = &eta
			}
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}
