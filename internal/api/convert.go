package api

import (
	"fmt"
	"sort"

	"cadence/internal/library"
)

// FromTrack converts a library track to its wire representation.
func FromTrack(t *library.Track) TrackSummary {
	if t == nil {
		return TrackSummary{}
	}
	return TrackSummary{
		ID:                t.ID,
		FilePath:          t.FilePath,
		Title:             t.Title,
		Artist:            t.Artist,
		Album:             t.Album,
		Status:            string(t.Status),
		ErrorMessage:      t.ErrorMessage,
		AnalysisStartedAt: t.AnalysisStartedAt,
		AnalyzedAt:        t.AnalyzedAt,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

// FromProgress converts library progress counts.
func FromProgress(p library.Progress) ProgressSummary {
	return ProgressSummary{
		Total:      p.Total,
		Analyzed:   p.Analyzed,
		Pending:    p.Pending,
		Errored:    p.Errored,
		Percentage: p.Percentage,
	}
}

// FromSnapshot converts one progress-history row.
func FromSnapshot(s library.Snapshot) SnapshotSummary {
	return SnapshotSummary{
		Timestamp:           s.Timestamp,
		TotalTracks:         s.TotalTracks,
		AnalyzedTracks:      s.AnalyzedTracks,
		PendingTracks:       s.PendingTracks,
		ErrorTracks:         s.ErrorTracks,
		ProgressPercent:     s.ProgressPercent,
		ProcessingRate:      s.ProcessingRate,
		EstimatedCompletion: s.EstimatedCompletion,
		HealthStatus:        s.HealthStatus,
	}
}

// FeaturePairs flattens a feature record into sorted name/value pairs for
// display. Nil fields are omitted.
func FeaturePairs(r *library.FeatureRecord) [][2]string {
	if r == nil {
		return nil
	}
	values := map[string]string{}
	addFloat := func(name string, v *float64) {
		if v != nil {
			values[name] = fmt.Sprintf("%.4f", *v)
		}
	}
	addFloat("tempo", r.Tempo)
	if r.Key != "" {
		values["key"] = r.Key
	}
	if r.Mode != "" {
		values["mode"] = r.Mode
	}
	addFloat("energy", r.Energy)
	addFloat("danceability", r.Danceability)
	addFloat("valence", r.Valence)
	addFloat("acousticness", r.Acousticness)
	addFloat("instrumentalness", r.Instrumentalness)
	addFloat("loudness", r.Loudness)
	addFloat("speechiness", r.Speechiness)
	addFloat("spectral_centroid", r.SpectralCentroid)
	addFloat("spectral_rolloff", r.SpectralRolloff)
	addFloat("spectral_bandwidth", r.SpectralBandwidth)
	addFloat("duration", r.Duration)
	if r.SampleRate != nil {
		values["sample_rate"] = fmt.Sprintf("%d", *r.SampleRate)
	}
	if r.NumSamples != nil {
		values["num_samples"] = fmt.Sprintf("%d", *r.NumSamples)
	}
	if r.AnalysisVersion != "" {
		values["analysis_version"] = r.AnalysisVersion
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([][2]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, [2]string{name, values[name]})
	}
	return pairs
}
