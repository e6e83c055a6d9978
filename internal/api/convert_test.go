package api

import (
	"testing"
	"time"

	"cadence/internal/library"
)

func TestFromTrack(t *testing.T) {
	now := time.Now()
	track := &library.Track{
		ID:           7,
		FilePath:     "/music/a.flac",
		Title:        "A",
		Status:       library.StatusError,
		ErrorMessage: "decode failed",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	got := FromTrack(track)
	if got.ID != 7 || got.Status != "error" || got.ErrorMessage != "decode failed" {
		t.Errorf("FromTrack = %+v", got)
	}
	if zero := FromTrack(nil); zero.ID != 0 {
		t.Errorf("FromTrack(nil) = %+v, want zero value", zero)
	}
}

func TestFeaturePairsSortedAndSparse(t *testing.T) {
	tempo := 120.5
	energy := 0.4
	rate := int64(8000)
	record := &library.FeatureRecord{
		Tempo:           &tempo,
		Energy:          &energy,
		SampleRate:      &rate,
		AnalysisVersion: "1.0",
	}
	pairs := FeaturePairs(record)
	if len(pairs) != 4 {
		t.Fatalf("pairs = %v, want 4 entries", pairs)
	}
	// Sorted by name: analysis_version, energy, sample_rate, tempo.
	if pairs[0][0] != "analysis_version" || pairs[3][0] != "tempo" {
		t.Errorf("pair order = %v", pairs)
	}
	if pairs[3][1] != "120.5000" {
		t.Errorf("tempo rendered as %q", pairs[3][1])
	}

	if got := FeaturePairs(nil); got != nil {
		t.Errorf("FeaturePairs(nil) = %v, want nil", got)
	}
}
