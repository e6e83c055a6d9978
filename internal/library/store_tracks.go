package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AddTrack inserts a new track awaiting analysis. Re-adding a known path
// returns the existing record untouched.
func (s *Store) AddTrack(ctx context.Context, filePath, title, artist, album string) (*Track, error) {
	if filePath == "" {
		return nil, errors.New("file path is empty")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO tracks (file_path, title, artist, album, analysis_status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(file_path) DO NOTHING`,
		filePath,
		nullableString(title),
		nullableString(artist),
		nullableString(album),
		StatusPending,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert track: %w", err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return s.GetByPath(ctx, filePath)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a track by identifier. Returns nil when not found.
func (s *Store) GetByID(ctx context.Context, id int64) (*Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return track, nil
}

// GetByPath fetches a track by its source path. Returns nil when not found.
func (s *Store) GetByPath(ctx context.Context, filePath string) (*Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE file_path = ?`, filePath)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track by path: %w", err)
	}
	return track, nil
}

// TracksNeedingAnalysis returns up to limit tracks in pending or error status,
// error-status first, then by ID ascending.
func (s *Store) TracksNeedingAnalysis(ctx context.Context, limit int) ([]*Track, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+trackColumns+` FROM tracks
         WHERE analysis_status IN (?, ?)
           AND file_path IS NOT NULL AND file_path != ''
         ORDER BY CASE WHEN analysis_status = ? THEN 1 ELSE 2 END, id
         LIMIT ?`,
		StatusPending,
		StatusError,
		StatusError,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tracks needing analysis: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// UpdateStatus transitions a track's analysis status. The message is only
// persisted for error and skipped statuses; analyzing records a start time,
// analyzed records a completion time and clears any prior error.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status TrackStatus, message string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("invalid track status %q", status)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	switch status {
	case StatusError, StatusSkipped:
		return s.execWithoutResultRetry(
			ctx,
			`UPDATE tracks
             SET analysis_status = ?, analysis_error = ?, analysis_started_at = NULL, updated_at = ?
             WHERE id = ?`,
			status, nullableString(message), now, id,
		)
	case StatusAnalyzing:
		return s.execWithoutResultRetry(
			ctx,
			`UPDATE tracks
             SET analysis_status = ?, analysis_started_at = ?, updated_at = ?
             WHERE id = ?`,
			status, now, now, id,
		)
	case StatusAnalyzed:
		return s.execWithoutResultRetry(
			ctx,
			`UPDATE tracks
             SET analysis_status = ?, analysis_error = NULL, analysis_started_at = NULL,
                 analysis_date = ?, updated_at = ?
             WHERE id = ?`,
			status, now, now, id,
		)
	default:
		return s.execWithoutResultRetry(
			ctx,
			`UPDATE tracks
             SET analysis_status = ?, analysis_error = NULL, analysis_started_at = NULL, updated_at = ?
             WHERE id = ?`,
			status, now, id,
		)
	}
}

// RetryErrored resets the given error or skipped tracks back to pending. With
// no IDs, all error-status tracks are reset. Returns the number of tracks moved.
func (s *Store) RetryErrored(ctx context.Context, ids ...int64) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE tracks
             SET analysis_status = ?, analysis_error = NULL, analysis_started_at = NULL, updated_at = ?
             WHERE analysis_status = ?`,
			StatusPending, now, StatusError,
		)
		if err != nil {
			return 0, fmt.Errorf("retry errored tracks: %w", err)
		}
		affected, _ := res.RowsAffected()
		return int(affected), nil
	}

	args := []any{StatusPending, now, StatusError, StatusSkipped}
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tracks
         SET analysis_status = ?, analysis_error = NULL, analysis_started_at = NULL, updated_at = ?
         WHERE analysis_status IN (?, ?) AND id IN (`+makePlaceholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry errored tracks: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// ResetAnalyzing moves any in-flight tracks back to pending. Used when the
// daemon restarts processing after a crash or stall.
func (s *Store) ResetAnalyzing(ctx context.Context) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tracks
         SET analysis_status = ?, analysis_started_at = NULL, updated_at = ?
         WHERE analysis_status = ?`,
		StatusPending, now, StatusAnalyzing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset analyzing tracks: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// Counts returns the number of tracks per status.
func (s *Store) Counts(ctx context.Context) (map[TrackStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT analysis_status, COUNT(1) FROM tracks GROUP BY analysis_status`)
	if err != nil {
		return nil, fmt.Errorf("track counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[TrackStatus]int)
	for rows.Next() {
		var status TrackStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Progress derives overall analysis progress from the status counts.
func (s *Store) Progress(ctx context.Context) (Progress, error) {
	counts, err := s.Counts(ctx)
	if err != nil {
		return Progress{}, err
	}
	progress := Progress{
		Analyzed: counts[StatusAnalyzed],
		Pending:  counts[StatusPending],
		Errored:  counts[StatusError],
	}
	for _, count := range counts {
		progress.Total += count
	}
	if progress.Total > 0 {
		progress.Percentage = float64(progress.Analyzed) / float64(progress.Total) * 100
	}
	return progress, nil
}

// StuckAnalyzing counts in-flight tracks whose analysis started before the
// cutoff (or never recorded a start time).
func (s *Store) StuckAnalyzing(ctx context.Context, cutoff time.Time) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM tracks
         WHERE analysis_status = ?
           AND (analysis_started_at IS NULL OR analysis_started_at < ?)`,
		StatusAnalyzing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count stuck analyzing: %w", err)
	}
	return count, nil
}

// RecentFailures lists the most recently failed tracks with their messages.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]FailureSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, file_path, COALESCE(analysis_error, ''), updated_at
         FROM tracks
         WHERE analysis_status = ?
         ORDER BY updated_at DESC
         LIMIT ?`,
		StatusError,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent failures: %w", err)
	}
	defer rows.Close()

	var failures []FailureSummary
	for rows.Next() {
		var (
			summary    FailureSummary
			updatedRaw string
		)
		if err := rows.Scan(&summary.TrackID, &summary.FilePath, &summary.ErrorMessage, &updatedRaw); err != nil {
			return nil, err
		}
		if updated, err := parseTimeString(updatedRaw); err == nil {
			summary.UpdatedAt = updated
		}
		failures = append(failures, summary)
	}
	return failures, rows.Err()
}

// LongRunningAnalyzing lists in-flight tracks older than the cutoff.
func (s *Store) LongRunningAnalyzing(ctx context.Context, cutoff time.Time) ([]InFlightTrack, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, file_path, analysis_started_at FROM tracks
         WHERE analysis_status = ?
           AND (analysis_started_at IS NULL OR analysis_started_at < ?)
         ORDER BY analysis_started_at`,
		StatusAnalyzing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("long running analyzing: %w", err)
	}
	defer rows.Close()

	var tracks []InFlightTrack
	for rows.Next() {
		var (
			track      InFlightTrack
			startedRaw sql.NullString
		)
		if err := rows.Scan(&track.TrackID, &track.FilePath, &startedRaw); err != nil {
			return nil, err
		}
		if startedRaw.Valid {
			if started, err := parseTimeString(startedRaw.String); err == nil {
				track.StartedAt = &started
			}
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// List returns tracks filtered by status, newest first. An empty status lists
// every track.
func (s *Store) List(ctx context.Context, status TrackStatus, limit int) ([]*Track, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+trackColumns+` FROM tracks ORDER BY updated_at DESC LIMIT ?`,
			limit,
		)
	} else {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT `+trackColumns+` FROM tracks WHERE analysis_status = ? ORDER BY updated_at DESC LIMIT ?`,
			status,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}
