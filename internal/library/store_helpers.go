package library

import (
	"database/sql"
	"errors"
	"time"
)

const trackColumns = "id, file_path, title, artist, album, analysis_status, analysis_error, analysis_started_at, analysis_date, created_at, updated_at"

func scanTrack(scanner interface{ Scan(dest ...any) error }) (*Track, error) {
	var (
		id           int64
		filePath     string
		title        sql.NullString
		artist       sql.NullString
		album        sql.NullString
		statusStr    string
		errorMessage sql.NullString
		startedRaw   sql.NullString
		analyzedRaw  sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&filePath,
		&title,
		&artist,
		&album,
		&statusStr,
		&errorMessage,
		&startedRaw,
		&analyzedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	track := &Track{
		ID:           id,
		FilePath:     filePath,
		Title:        title.String,
		Artist:       artist.String,
		Album:        album.String,
		Status:       TrackStatus(statusStr),
		ErrorMessage: errorMessage.String,
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			track.AnalysisStartedAt = &started
		}
	}
	if analyzedRaw.Valid {
		if analyzed, err := parseTimeString(analyzedRaw.String); err == nil {
			track.AnalyzedAt = &analyzed
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		track.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		track.UpdatedAt = updated
	}
	return track, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
