package library_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cadence/internal/library"
	"cadence/internal/testsupport"
)

func TestAddTrackIsIdempotentPerPath(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first, err := store.AddTrack(ctx, "/music/a.flac", "Song A", "Artist", "Album")
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if first.Status != library.StatusPending {
		t.Fatalf("expected pending status, got %s", first.Status)
	}
	if first.Title != "Song A" {
		t.Fatalf("unexpected title: %q", first.Title)
	}

	second, err := store.AddTrack(ctx, "/music/a.flac", "Renamed", "", "")
	if err != nil {
		t.Fatalf("AddTrack duplicate: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same track, got %d and %d", first.ID, second.ID)
	}
	if second.Title != "Song A" {
		t.Fatalf("duplicate insert should not overwrite metadata, got %q", second.Title)
	}
}

func TestTracksNeedingAnalysisOrdersErrorsFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	var errorIDs []int64
	for i := 0; i < 3; i++ {
		track := testsupport.AddTrack(t, store, fmt.Sprintf("/music/err-%d.flac", i))
		if err := store.UpdateStatus(ctx, track.ID, library.StatusError, "extract failed"); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		errorIDs = append(errorIDs, track.ID)
	}
	var pendingIDs []int64
	for i := 0; i < 10; i++ {
		track := testsupport.AddTrack(t, store, fmt.Sprintf("/music/pending-%d.flac", i))
		pendingIDs = append(pendingIDs, track.ID)
	}

	tracks, err := store.TracksNeedingAnalysis(ctx, 5)
	if err != nil {
		t.Fatalf("TracksNeedingAnalysis: %v", err)
	}
	if len(tracks) != 5 {
		t.Fatalf("expected 5 tracks, got %d", len(tracks))
	}
	for i := 0; i < 3; i++ {
		if tracks[i].ID != errorIDs[i] {
			t.Fatalf("position %d: expected error track %d, got %d", i, errorIDs[i], tracks[i].ID)
		}
		if tracks[i].Status != library.StatusError {
			t.Fatalf("position %d: expected error status, got %s", i, tracks[i].Status)
		}
	}
	if tracks[3].ID != pendingIDs[0] || tracks[4].ID != pendingIDs[1] {
		t.Fatalf("expected lowest-ID pending tracks, got %d and %d", tracks[3].ID, tracks[4].ID)
	}
}

func TestUpdateStatusSemantics(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	track := testsupport.AddTrack(t, store, "/music/b.flac")

	if err := store.UpdateStatus(ctx, track.ID, library.StatusAnalyzing, ""); err != nil {
		t.Fatalf("UpdateStatus analyzing: %v", err)
	}
	got, err := store.GetByID(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != library.StatusAnalyzing {
		t.Fatalf("expected analyzing, got %s", got.Status)
	}
	if got.AnalysisStartedAt == nil {
		t.Fatal("expected analysis start time to be recorded")
	}

	if err := store.UpdateStatus(ctx, track.ID, library.StatusError, "corrupted file"); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	got, _ = store.GetByID(ctx, track.ID)
	if got.ErrorMessage != "corrupted file" {
		t.Fatalf("expected error message, got %q", got.ErrorMessage)
	}
	if got.AnalysisStartedAt != nil {
		t.Fatal("expected start time cleared on error")
	}

	if err := store.UpdateStatus(ctx, track.ID, library.StatusAnalyzed, "ignored"); err != nil {
		t.Fatalf("UpdateStatus analyzed: %v", err)
	}
	got, _ = store.GetByID(ctx, track.ID)
	if got.ErrorMessage != "" {
		t.Fatalf("expected error cleared, got %q", got.ErrorMessage)
	}
	if got.AnalyzedAt == nil {
		t.Fatal("expected analysis date to be recorded")
	}

	if err := store.UpdateStatus(ctx, track.ID, "bogus", ""); err == nil {
		t.Fatal("expected invalid status to be rejected")
	}
}

func TestStoreFeaturesMarksAnalyzedAndRoundTrips(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	track := testsupport.AddTrack(t, store, "/music/c.flac")

	features := map[string]any{
		"tempo":       float64(120.5),
		"key":         "C",
		"mode":        "major",
		"energy":      0.8,
		"sample_rate": 8000,
		"duration":    60.0,
	}
	if err := store.StoreFeatures(ctx, track.ID, features); err != nil {
		t.Fatalf("StoreFeatures: %v", err)
	}

	got, err := store.GetByID(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != library.StatusAnalyzed {
		t.Fatalf("expected analyzed status, got %s", got.Status)
	}

	record, err := store.TrackFeatures(ctx, track.ID)
	if err != nil {
		t.Fatalf("TrackFeatures: %v", err)
	}
	if record == nil {
		t.Fatal("expected feature record")
	}
	if record.Tempo == nil || *record.Tempo != 120.5 {
		t.Fatalf("unexpected tempo: %v", record.Tempo)
	}
	if record.Key != "C" || record.Mode != "major" {
		t.Fatalf("unexpected key/mode: %q/%q", record.Key, record.Mode)
	}
	if record.SampleRate == nil || *record.SampleRate != 8000 {
		t.Fatalf("unexpected sample rate: %v", record.SampleRate)
	}
	if record.AnalysisVersion != "1.0" {
		t.Fatalf("unexpected analysis version: %q", record.AnalysisVersion)
	}
	if record.Valence != nil {
		t.Fatal("expected missing attribute to store NULL")
	}

	// Upsert replaces prior values.
	features["tempo"] = 90.0
	if err := store.StoreFeatures(ctx, track.ID, features); err != nil {
		t.Fatalf("StoreFeatures upsert: %v", err)
	}
	record, _ = store.TrackFeatures(ctx, track.ID)
	if record.Tempo == nil || *record.Tempo != 90.0 {
		t.Fatalf("expected updated tempo, got %v", record.Tempo)
	}
}

func TestRetryErroredResetsToPending(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	errored := testsupport.AddTrack(t, store, "/music/d.flac")
	skipped := testsupport.AddTrack(t, store, "/music/e.flac")
	if err := store.UpdateStatus(ctx, errored.ID, library.StatusError, "boom"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := store.UpdateStatus(ctx, skipped.ID, library.StatusSkipped, "file not found"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// Without IDs only error-status tracks reset.
	moved, err := store.RetryErrored(ctx)
	if err != nil {
		t.Fatalf("RetryErrored: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 track moved, got %d", moved)
	}
	got, _ := store.GetByID(ctx, skipped.ID)
	if got.Status != library.StatusSkipped {
		t.Fatalf("skipped track should stay skipped, got %s", got.Status)
	}

	// Explicit IDs may resurrect skipped tracks.
	moved, err = store.RetryErrored(ctx, skipped.ID)
	if err != nil {
		t.Fatalf("RetryErrored by ID: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 track moved, got %d", moved)
	}
	got, _ = store.GetByID(ctx, skipped.ID)
	if got.Status != library.StatusPending {
		t.Fatalf("expected pending after retry, got %s", got.Status)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("expected error cleared, got %q", got.ErrorMessage)
	}
}

func TestStuckAnalyzingAndReset(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	track := testsupport.AddTrack(t, store, "/music/f.flac")
	if err := store.UpdateStatus(ctx, track.ID, library.StatusAnalyzing, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// A cutoff in the past does not flag a freshly started track.
	count, err := store.StuckAnalyzing(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("StuckAnalyzing: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no stuck tracks, got %d", count)
	}

	// A future cutoff flags it.
	count, err = store.StuckAnalyzing(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("StuckAnalyzing: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stuck track, got %d", count)
	}

	inFlight, err := store.LongRunningAnalyzing(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("LongRunningAnalyzing: %v", err)
	}
	if len(inFlight) != 1 || inFlight[0].TrackID != track.ID {
		t.Fatalf("unexpected in-flight listing: %+v", inFlight)
	}

	moved, err := store.ResetAnalyzing(ctx)
	if err != nil {
		t.Fatalf("ResetAnalyzing: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 track reset, got %d", moved)
	}
	got, _ := store.GetByID(ctx, track.ID)
	if got.Status != library.StatusPending {
		t.Fatalf("expected pending after reset, got %s", got.Status)
	}
}

func TestProgressPercentage(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		track := testsupport.AddTrack(t, store, fmt.Sprintf("/music/p-%d.flac", i))
		if i < 2 {
			if err := store.UpdateStatus(ctx, track.ID, library.StatusAnalyzed, ""); err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
		}
	}

	progress, err := store.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if progress.Total != 4 || progress.Analyzed != 2 || progress.Pending != 2 {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if progress.Percentage != 50 {
		t.Fatalf("expected 50%%, got %v", progress.Percentage)
	}
}

func TestSnapshotHistory(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	rate := 1.5
	for i := 0; i < 5; i++ {
		snap := library.Snapshot{
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
			TotalTracks:     100,
			AnalyzedTracks:  10 + i,
			PendingTracks:   90 - i,
			ProgressPercent: float64(10 + i),
			HealthStatus:    "healthy",
		}
		if i >= 3 {
			snap.HealthStatus = "stalled"
			snap.ProcessingRate = &rate
		}
		if err := store.AppendSnapshot(ctx, snap); err != nil {
			t.Fatalf("AppendSnapshot: %v", err)
		}
	}

	recent, err := store.RecentSnapshots(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSnapshots: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(recent))
	}
	if recent[0].AnalyzedTracks != 14 {
		t.Fatalf("expected newest first, got %d", recent[0].AnalyzedTracks)
	}
	if recent[0].ProcessingRate == nil || *recent[0].ProcessingRate != 1.5 {
		t.Fatalf("expected rate 1.5, got %v", recent[0].ProcessingRate)
	}

	since, err := store.SnapshotsSince(ctx, base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("SnapshotsSince: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("expected 2 snapshots since cutoff, got %d", len(since))
	}
	if since[0].AnalyzedTracks != 13 {
		t.Fatalf("expected oldest first, got %d", since[0].AnalyzedTracks)
	}

	stalls, err := store.ConsecutiveStalledSnapshots(ctx, 5)
	if err != nil {
		t.Fatalf("ConsecutiveStalledSnapshots: %v", err)
	}
	if stalls != 2 {
		t.Fatalf("expected 2 consecutive stalls, got %d", stalls)
	}

	pruned, err := store.PruneHistory(ctx, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("PruneHistory: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("expected 2 pruned, got %d", pruned)
	}
}

func TestClearByStatus(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	done := testsupport.AddTrack(t, store, "/music/done.flac")
	if err := store.StoreFeatures(ctx, done.ID, map[string]any{"tempo": 100.0}); err != nil {
		t.Fatalf("StoreFeatures: %v", err)
	}
	testsupport.AddTrack(t, store, "/music/waiting.flac")

	removed, err := store.Clear(ctx, library.StatusAnalyzed)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if record, err := store.TrackFeatures(ctx, done.ID); err != nil || record != nil {
		t.Fatalf("expected cascade to remove features, got %v %v", record, err)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[library.StatusPending] != 1 || counts[library.StatusAnalyzed] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestCheckHealthReportsDatabaseState(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.AddTrack(t, store, "/music/h.flac")

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists {
		t.Fatalf("unexpected health: %+v", health)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
	if health.TotalTracks != 1 {
		t.Fatalf("expected 1 track, got %d", health.TotalTracks)
	}
}
