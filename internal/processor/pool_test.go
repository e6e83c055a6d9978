package processor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cadence/internal/analysis"
	"cadence/internal/library"
	"cadence/internal/logging"
	"cadence/internal/testsupport"
)

type fakeExtractor struct {
	mu    sync.Mutex
	delay time.Duration
	errs  []error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) (analysis.Features, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return analysis.Features{
		"tempo":    120.5,
		"energy":   0.42,
		"duration": 180.0,
	}, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func addTracks(t *testing.T, store *library.Store, dir string, n int) []*library.Track {
	t.Helper()
	tracks := make([]*library.Track, 0, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, "track-"+string(rune('a'+i))+".flac")
		tracks = append(tracks, testsupport.AddTrack(t, store, path))
	}
	return tracks
}

func TestInitializeQueueOrdersErroredFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	pending := addTracks(t, store, cfg.Paths.MusicDir, 10)
	errored := make([]*library.Track, 0, 3)
	for i := 0; i < 3; i++ {
		track := testsupport.AddTrack(t, store, filepath.Join(cfg.Paths.MusicDir, "bad-"+string(rune('a'+i))+".flac"))
		if err := store.UpdateStatus(ctx, track.ID, library.StatusError, "decode failed"); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		errored = append(errored, track)
	}

	pool := NewPool(cfg, store, &fakeExtractor{}, logging.NewNop())
	got := pool.InitializeQueue(ctx, 5)
	if got != 5 {
		t.Fatalf("InitializeQueue = %d, want 5", got)
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()
	if len(pool.queue) != 5 {
		t.Fatalf("queue length = %d, want 5", len(pool.queue))
	}
	for i := 0; i < 3; i++ {
		if pool.queue[i].TrackID != errored[i].ID {
			t.Errorf("queue[%d].TrackID = %d, want errored track %d", i, pool.queue[i].TrackID, errored[i].ID)
		}
		if pool.queue[i].Priority != priorityRetryErrored {
			t.Errorf("queue[%d].Priority = %d, want %d", i, pool.queue[i].Priority, priorityRetryErrored)
		}
	}
	for i := 3; i < 5; i++ {
		if pool.queue[i].TrackID != pending[i-3].ID {
			t.Errorf("queue[%d].TrackID = %d, want pending track %d", i, pool.queue[i].TrackID, pending[i-3].ID)
		}
	}
	for _, job := range pool.queue {
		if job.Status != JobQueued {
			t.Errorf("job %d status = %s, want %s", job.TrackID, job.Status, JobQueued)
		}
	}
}

func TestInitializeQueueStoreErrorReturnsZero(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	pool := NewPool(cfg, store, &fakeExtractor{}, logging.NewNop())
	if got := pool.InitializeQueue(context.Background(), 5); got != 0 {
		t.Fatalf("InitializeQueue on closed store = %d, want 0", got)
	}
}

func TestRetryDelayExponentialWithCap(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{8, 256 * time.Second},
		{9, 300 * time.Second},
		{20, 300 * time.Second},
	}
	for _, tc := range cases {
		if got := retryDelay(tc.attempts); got != tc.want {
			t.Errorf("retryDelay(%d) = %s, want %s", tc.attempts, got, tc.want)
		}
	}
}

func TestStartRefusalConditions(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	pool := NewPool(cfg, store, &fakeExtractor{delay: 200 * time.Millisecond}, logging.NewNop())
	if pool.Start(ctx, nil) {
		t.Fatal("Start with empty queue should return false")
	}

	addTracks(t, store, cfg.Paths.MusicDir, 2)
	if got := pool.InitializeQueue(ctx, 0); got != 2 {
		t.Fatalf("InitializeQueue = %d, want 2", got)
	}
	if !pool.Start(ctx, nil) {
		t.Fatal("Start should succeed with queued jobs")
	}
	defer pool.Stop()

	if pool.Start(ctx, nil) {
		t.Fatal("second Start while running should return false")
	}
}

func TestSingleJobLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	track := testsupport.AddTrack(t, store, filepath.Join(cfg.Paths.MusicDir, "one.flac"))

	extractor := &fakeExtractor{delay: 100 * time.Millisecond}
	pool := NewPool(cfg, store, extractor, logging.NewNop())
	if got := pool.InitializeQueue(ctx, 0); got != 1 {
		t.Fatalf("InitializeQueue = %d, want 1", got)
	}

	pool.mu.Lock()
	job := pool.queue[0]
	pool.mu.Unlock()

	if !pool.Start(ctx, nil) {
		t.Fatal("Start returned false")
	}
	waitFor(t, 5*time.Second, func() bool {
		return pool.Idle() && pool.Status().Progress.CompletedJobs == 1
	})
	if !pool.Stop() {
		t.Fatal("Stop returned false")
	}

	wantTrace := []JobStatus{JobPending, JobQueued, JobProcessing, JobCompleted}
	if len(job.Trace) != len(wantTrace) {
		t.Fatalf("trace = %v, want %v", job.Trace, wantTrace)
	}
	for i, status := range wantTrace {
		if job.Trace[i] != status {
			t.Fatalf("trace = %v, want %v", job.Trace, wantTrace)
		}
	}

	updated, err := store.GetByID(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != library.StatusAnalyzed {
		t.Errorf("track status = %s, want %s", updated.Status, library.StatusAnalyzed)
	}
	record, err := store.TrackFeatures(ctx, track.ID)
	if err != nil {
		t.Fatalf("TrackFeatures: %v", err)
	}
	if record == nil || record.Tempo == nil || *record.Tempo != 120.5 {
		t.Errorf("stored features = %+v, want tempo 120.5", record)
	}

	status := pool.Status()
	if status.State != StateStopped {
		t.Errorf("state after Stop = %q, want %q", status.State, StateStopped)
	}
	avg := status.Progress.AverageProcessingTime
	if avg <= 0.05 || avg > 2 {
		t.Errorf("average processing time = %.3f, want roughly the extractor delay", avg)
	}
	if status.Progress.SuccessRate != 100 {
		t.Errorf("success rate = %.1f, want 100", status.Progress.SuccessRate)
	}
}

func TestFatalErrorSkipsOnFirstFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	track := testsupport.AddTrack(t, store, filepath.Join(cfg.Paths.MusicDir, "gone.flac"))

	extractor := &fakeExtractor{errs: []error{errors.New("analyzer: file not found")}}
	pool := NewPool(cfg, store, extractor, logging.NewNop())
	pool.InitializeQueue(ctx, 0)

	if !pool.Start(ctx, nil) {
		t.Fatal("Start returned false")
	}
	waitFor(t, 5*time.Second, func() bool {
		return pool.Status().Progress.SkippedJobs == 1
	})
	pool.Stop()

	if calls := extractor.callCount(); calls != 1 {
		t.Errorf("extractor calls = %d, want 1 (no retry for fatal errors)", calls)
	}
	updated, err := store.GetByID(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != library.StatusSkipped {
		t.Errorf("track status = %s, want %s", updated.Status, library.StatusSkipped)
	}
	if !strings.Contains(updated.ErrorMessage, "permanently skipped after 1 failures") {
		t.Errorf("skip reason = %q, want permanent-skip message", updated.ErrorMessage)
	}
}

func TestTransientErrorRetriesThenSucceeds(t *testing.T) {
	if testing.Short() {
		t.Skip("retry backoff waits two seconds")
	}
	cfg := testsupport.NewConfig(t, testsupport.WithMaxWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	track := testsupport.AddTrack(t, store, filepath.Join(cfg.Paths.MusicDir, "flaky.flac"))

	extractor := &fakeExtractor{errs: []error{errors.New("analyzer crashed")}}
	pool := NewPool(cfg, store, extractor, logging.NewNop())
	pool.InitializeQueue(ctx, 0)

	if !pool.Start(ctx, nil) {
		t.Fatal("Start returned false")
	}
	waitFor(t, 15*time.Second, func() bool {
		return pool.Status().Progress.CompletedJobs == 1
	})
	pool.Stop()

	if calls := extractor.callCount(); calls != 2 {
		t.Errorf("extractor calls = %d, want 2", calls)
	}
	updated, err := store.GetByID(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != library.StatusAnalyzed {
		t.Errorf("track status = %s, want %s", updated.Status, library.StatusAnalyzed)
	}
}

func TestHandleFailureExhaustsAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	track := testsupport.AddTrack(t, store, filepath.Join(cfg.Paths.MusicDir, "stubborn.flac"))

	pool := NewPool(cfg, store, &fakeExtractor{}, logging.NewNop())
	job := newJob(track.ID, track.FilePath, priorityNormal, 2)

	pool.handleFailure(ctx, pool.logger, job, errors.New("analyzer crashed"))
	if job.Status != JobRetrying {
		t.Fatalf("status after first failure = %s, want %s", job.Status, JobRetrying)
	}
	if pool.scheduler.pending() != 1 {
		t.Fatalf("scheduler pending = %d, want 1", pool.scheduler.pending())
	}

	pool.handleFailure(ctx, pool.logger, job, errors.New("analyzer crashed"))
	if job.Status != JobFailed {
		t.Fatalf("status after exhausting attempts = %s, want %s", job.Status, JobFailed)
	}
	updated, err := store.GetByID(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != library.StatusError {
		t.Errorf("track status = %s, want %s", updated.Status, library.StatusError)
	}
}

func TestRequeueRetrySkipsChangedStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	pool := NewPool(cfg, store, &fakeExtractor{}, logging.NewNop())
	job := newJob(1, "x.flac", priorityNormal, 3)
	job.transition(JobRetrying)
	pool.requeueRetry(job)
	if len(pool.queue) != 1 || job.Status != JobQueued {
		t.Fatalf("retrying job should requeue, queue=%d status=%s", len(pool.queue), job.Status)
	}

	cancelled := newJob(2, "y.flac", priorityNormal, 3)
	cancelled.transition(JobCancelled)
	pool.requeueRetry(cancelled)
	if len(pool.queue) != 1 {
		t.Fatalf("cancelled job must not requeue, queue=%d", len(pool.queue))
	}
}

func TestStopFinishesInFlightJob(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	track := testsupport.AddTrack(t, store, filepath.Join(cfg.Paths.MusicDir, "slow.flac"))

	extractor := &fakeExtractor{delay: 500 * time.Millisecond}
	pool := NewPool(cfg, store, extractor, logging.NewNop())
	pool.InitializeQueue(ctx, 0)
	if !pool.Start(ctx, nil) {
		t.Fatal("Start returned false")
	}

	waitFor(t, 5*time.Second, func() bool {
		return extractor.callCount() == 1
	})
	if !pool.Stop() {
		t.Fatal("Stop returned false")
	}

	status := pool.Status()
	if status.Progress.CompletedJobs != 1 {
		t.Errorf("completed after Stop = %d, want 1 (in-flight job finishes)", status.Progress.CompletedJobs)
	}
	updated, err := store.GetByID(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != library.StatusAnalyzed {
		t.Errorf("track status after Stop = %s, want %s", updated.Status, library.StatusAnalyzed)
	}
	record, err := store.TrackFeatures(ctx, track.ID)
	if err != nil {
		t.Fatalf("TrackFeatures: %v", err)
	}
	if record == nil {
		t.Error("features not stored for job in flight during Stop")
	}
}

func TestInitializeQueueDropsStaleRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	track := testsupport.AddTrack(t, store, filepath.Join(cfg.Paths.MusicDir, "flaky.flac"))

	extractor := &fakeExtractor{errs: []error{errors.New("analyzer crashed")}}
	pool := NewPool(cfg, store, extractor, logging.NewNop())
	pool.InitializeQueue(ctx, 0)
	if !pool.Start(ctx, nil) {
		t.Fatal("Start returned false")
	}
	waitFor(t, 5*time.Second, func() bool {
		return pool.Status().Progress.RetryingJobs == 1
	})
	pool.Stop()

	if got := pool.InitializeQueue(ctx, 0); got != 1 {
		t.Fatalf("InitializeQueue after failed run = %d, want 1", got)
	}
	if pending := pool.scheduler.pending(); pending != 0 {
		t.Fatalf("scheduler pending after reinit = %d, want 0", pending)
	}
	if !pool.Start(ctx, nil) {
		t.Fatal("second Start returned false")
	}
	waitFor(t, 5*time.Second, func() bool {
		return pool.Status().Progress.CompletedJobs == 1
	})
	pool.Stop()

	status := pool.Status()
	if status.Progress.CompletedJobs > status.Progress.TotalJobs {
		t.Errorf("completed %d exceeds total %d", status.Progress.CompletedJobs, status.Progress.TotalJobs)
	}
	if calls := extractor.callCount(); calls != 2 {
		t.Errorf("extractor calls = %d, want 2 (stale retry must not re-run)", calls)
	}
	updated, err := store.GetByID(ctx, track.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != library.StatusAnalyzed {
		t.Errorf("track status = %s, want %s", updated.Status, library.StatusAnalyzed)
	}
}

func TestCheckpointWrittenAndReadBack(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxWorkers(1))
	cfg.Processing.CheckpointInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if cp, err := ReadCheckpoint(cfg.CheckpointPath()); err != nil || cp != nil {
		t.Fatalf("ReadCheckpoint before any run = (%v, %v), want (nil, nil)", cp, err)
	}

	testsupport.AddTrack(t, store, filepath.Join(cfg.Paths.MusicDir, "one.flac"))
	pool := NewPool(cfg, store, &fakeExtractor{}, logging.NewNop())
	pool.InitializeQueue(ctx, 0)
	if !pool.Start(ctx, nil) {
		t.Fatal("Start returned false")
	}
	waitFor(t, 5*time.Second, func() bool {
		return pool.Status().Progress.CompletedJobs == 1
	})
	pool.Stop()

	cp, err := ReadCheckpoint(cfg.CheckpointPath())
	if err != nil {
		t.Fatalf("ReadCheckpoint: %v", err)
	}
	if cp == nil {
		t.Fatal("checkpoint file not written")
	}
	if cp.CompletedJobs != 1 || cp.TotalJobs != 1 {
		t.Errorf("checkpoint = %+v, want 1/1 completed", cp)
	}
	if cp.SessionID != pool.SessionID() {
		t.Errorf("checkpoint session = %q, want %q", cp.SessionID, pool.SessionID())
	}
}
