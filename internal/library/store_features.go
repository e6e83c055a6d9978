package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FeatureRecord holds the extracted attributes stored for one track.
type FeatureRecord struct {
	TrackID           int64
	Tempo             *float64
	Key               string
	Mode              string
	Energy            *float64
	Danceability      *float64
	Valence           *float64
	Acousticness      *float64
	Instrumentalness  *float64
	Loudness          *float64
	Speechiness       *float64
	SpectralCentroid  *float64
	SpectralRolloff   *float64
	SpectralBandwidth *float64
	Duration          *float64
	SampleRate        *int64
	NumSamples        *int64
	AnalysisVersion   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// StoreFeatures upserts the extracted attributes for a track and atomically
// marks it analyzed, clearing any prior error. The attributes map uses the
// canonical snake_case keys emitted by the analyzer tool; unknown keys are
// ignored and missing keys store NULL.
func (s *Store) StoreFeatures(ctx context.Context, trackID int64, features map[string]any) (err error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin features tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	version := featureString(features, "analysis_version")
	if version == "" {
		version = "1.0"
	}

	if _, err = tx.ExecContext(
		ctx,
		`INSERT INTO audio_features (
            track_id, tempo, key, mode, energy, danceability, valence,
            acousticness, instrumentalness, loudness, speechiness,
            spectral_centroid, spectral_rolloff, spectral_bandwidth,
            duration, sample_rate, num_samples, analysis_version,
            created_at, updated_at
         ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(track_id) DO UPDATE SET
            tempo = excluded.tempo, key = excluded.key, mode = excluded.mode,
            energy = excluded.energy, danceability = excluded.danceability,
            valence = excluded.valence, acousticness = excluded.acousticness,
            instrumentalness = excluded.instrumentalness, loudness = excluded.loudness,
            speechiness = excluded.speechiness, spectral_centroid = excluded.spectral_centroid,
            spectral_rolloff = excluded.spectral_rolloff, spectral_bandwidth = excluded.spectral_bandwidth,
            duration = excluded.duration, sample_rate = excluded.sample_rate,
            num_samples = excluded.num_samples, analysis_version = excluded.analysis_version,
            updated_at = excluded.updated_at`,
		trackID,
		featureFloat(features, "tempo"),
		nullableString(featureString(features, "key")),
		nullableString(featureString(features, "mode")),
		featureFloat(features, "energy"),
		featureFloat(features, "danceability"),
		featureFloat(features, "valence"),
		featureFloat(features, "acousticness"),
		featureFloat(features, "instrumentalness"),
		featureFloat(features, "loudness"),
		featureFloat(features, "speechiness"),
		featureFloat(features, "spectral_centroid"),
		featureFloat(features, "spectral_rolloff"),
		featureFloat(features, "spectral_bandwidth"),
		featureFloat(features, "duration"),
		featureInt(features, "sample_rate"),
		featureInt(features, "num_samples"),
		version,
		now,
		now,
	); err != nil {
		return fmt.Errorf("upsert features: %w", err)
	}

	if _, err = tx.ExecContext(
		ctx,
		`UPDATE tracks
         SET analysis_status = ?, analysis_error = NULL, analysis_started_at = NULL,
             analysis_date = ?, updated_at = ?
         WHERE id = ?`,
		StatusAnalyzed, now, now, trackID,
	); err != nil {
		return fmt.Errorf("mark track analyzed: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit features: %w", err)
	}
	return nil
}

// TrackFeatures returns the stored attributes for a track, or nil when the
// track has none.
func (s *Store) TrackFeatures(ctx context.Context, trackID int64) (*FeatureRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT track_id, tempo, key, mode, energy, danceability, valence,
                acousticness, instrumentalness, loudness, speechiness,
                spectral_centroid, spectral_rolloff, spectral_bandwidth,
                duration, sample_rate, num_samples, analysis_version,
                created_at, updated_at
         FROM audio_features WHERE track_id = ?`,
		trackID,
	)

	var (
		record     FeatureRecord
		key        sql.NullString
		mode       sql.NullString
		version    sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
		floats     [13]sql.NullFloat64
		ints       [2]sql.NullInt64
	)
	err := row.Scan(
		&record.TrackID,
		&floats[0], &key, &mode, &floats[1], &floats[2], &floats[3],
		&floats[4], &floats[5], &floats[6], &floats[7],
		&floats[8], &floats[9], &floats[10],
		&floats[11], &ints[0], &ints[1], &version,
		&createdRaw, &updatedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track features: %w", err)
	}

	record.Key = key.String
	record.Mode = mode.String
	record.AnalysisVersion = version.String
	assignFloat(&record.Tempo, floats[0])
	assignFloat(&record.Energy, floats[1])
	assignFloat(&record.Danceability, floats[2])
	assignFloat(&record.Valence, floats[3])
	assignFloat(&record.Acousticness, floats[4])
	assignFloat(&record.Instrumentalness, floats[5])
	assignFloat(&record.Loudness, floats[6])
	assignFloat(&record.Speechiness, floats[7])
	assignFloat(&record.SpectralCentroid, floats[8])
	assignFloat(&record.SpectralRolloff, floats[9])
	assignFloat(&record.SpectralBandwidth, floats[10])
	assignFloat(&record.Duration, floats[11])
	assignInt(&record.SampleRate, ints[0])
	assignInt(&record.NumSamples, ints[1])
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return &record, nil
}

// PruneFeatures removes superseded feature rows older than the cutoff:
// rows whose track has since left analyzed status, so a fresh extraction
// will replace them. Features of analyzed tracks are never touched.
// Returns the number of rows removed.
func (s *Store) PruneFeatures(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM audio_features
         WHERE created_at < ?
           AND track_id IN (SELECT id FROM tracks WHERE analysis_status != ?)`,
		olderThan.UTC().Format(time.RFC3339Nano),
		StatusAnalyzed,
	)
	if err != nil {
		return 0, fmt.Errorf("prune features: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func featureFloat(features map[string]any, name string) any {
	if features == nil {
		return nil
	}
	switch v := features[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return nil
	}
}

func featureInt(features map[string]any, name string) any {
	if features == nil {
		return nil
	}
	switch v := features[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return nil
	}
}

func featureString(features map[string]any, name string) string {
	if features == nil {
		return ""
	}
	if v, ok := features[name].(string); ok {
		return v
	}
	return ""
}

func assignFloat(dst **float64, value sql.NullFloat64) {
	if value.Valid {
		v := value.Float64
		*dst = &v
	}
}

func assignInt(dst **int64, value sql.NullInt64) {
	if value.Valid {
		v := value.Int64
		*dst = &v
	}
}
