package recovery

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cadence/internal/config"
	"cadence/internal/library"
	"cadence/internal/logging"
	"cadence/internal/monitor"
	"cadence/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	store   *library.Store
	monitor *monitor.Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return &fixture{
		cfg:     cfg,
		store:   store,
		monitor: monitor.New(cfg, store, logging.NewNop()),
	}
}

func (f *fixture) controller(restart RestartFunc) *Controller {
	return New(f.cfg, f.store, f.monitor, restart, logging.NewNop())
}

func noopRestart(context.Context) error { return nil }

func failingRestart(context.Context) error { return errors.New("restart failed") }

func TestStartMonitoringDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Recovery.Enabled = false

	c := f.controller(noopRestart)
	if c.StartMonitoring() {
		t.Fatal("StartMonitoring with recovery disabled should return false")
	}
	if got := c.Status().State; got != StateDisabled {
		t.Errorf("state = %s, want %s", got, StateDisabled)
	}
}

func TestStartStopMonitoring(t *testing.T) {
	f := newFixture(t)
	c := f.controller(noopRestart)

	if !c.StartMonitoring() {
		t.Fatal("StartMonitoring returned false")
	}
	if c.StartMonitoring() {
		t.Fatal("second StartMonitoring should return false")
	}
	status := c.Status()
	if status.State != StateMonitoring || !status.MonitoringActive {
		t.Errorf("status = %+v, want monitoring/active", status)
	}

	if !c.StopMonitoring() {
		t.Fatal("StopMonitoring returned false")
	}
	status = c.Status()
	if status.State != StateIdle || status.MonitoringActive {
		t.Errorf("status after stop = %+v, want idle/inactive", status)
	}
	if !c.StopMonitoring() {
		t.Fatal("StopMonitoring on stopped controller should still return true")
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	f := newFixture(t)
	f.cfg.Recovery.BaseBackoffMinutes = 5
	f.cfg.Recovery.MaxBackoffMinutes = 60
	c := f.controller(failingRestart)
	ctx := context.Background()

	want := []float64{2, 4, 8, 12, 12}
	for i, expected := range want {
		if c.attemptRecovery(ctx, "test") {
			t.Fatalf("attempt %d: expected failure", i)
		}
		if got := c.Status().BackoffMultiplier; got != expected {
			t.Fatalf("multiplier after %d failures = %.1f, want %.1f", i+1, got, expected)
		}
	}
	if got := c.Status().ConsecutiveFailures; got != len(want) {
		t.Errorf("consecutive failures = %d, want %d", got, len(want))
	}
}

func TestBackoffResetsOnSuccess(t *testing.T) {
	f := newFixture(t)
	c := f.controller(failingRestart)
	ctx := context.Background()

	c.attemptRecovery(ctx, "test")
	c.attemptRecovery(ctx, "test")
	if c.Status().BackoffMultiplier == 1 {
		t.Fatal("multiplier should have grown after failures")
	}

	c.restart = noopRestart
	if !c.attemptRecovery(ctx, "test") {
		t.Fatal("expected successful attempt")
	}
	status := c.Status()
	if status.BackoffMultiplier != 1 || status.ConsecutiveFailures != 0 {
		t.Errorf("after success multiplier=%.1f failures=%d, want 1/0", status.BackoffMultiplier, status.ConsecutiveFailures)
	}
}

func TestResetFailureCountUnconditional(t *testing.T) {
	f := newFixture(t)
	c := f.controller(failingRestart)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c.attemptRecovery(ctx, "test")
	}
	if c.Status().ConsecutiveFailures != 4 {
		t.Fatalf("failures = %d, want 4", c.Status().ConsecutiveFailures)
	}

	c.ResetFailureCount()
	status := c.Status()
	if status.ConsecutiveFailures != 0 || status.BackoffMultiplier != 1 {
		t.Errorf("after reset failures=%d multiplier=%.1f, want 0/1", status.ConsecutiveFailures, status.BackoffMultiplier)
	}
}

func TestShouldAttemptRecoveryPolicy(t *testing.T) {
	f := newFixture(t)
	f.cfg.Monitoring.StallTimeout = 60
	f.cfg.Recovery.StuckThresholdMinutes = 10
	c := f.controller(noopRestart)
	ctx := context.Background()

	// Quiet system: nothing stalled, nothing stuck.
	if c.shouldAttemptRecovery(ctx) {
		t.Fatal("quiet system should not trigger recovery")
	}

	// Stalled: stale snapshot with work pending and in flight.
	stale := library.Snapshot{
		Timestamp:       time.Now().Add(-2 * time.Minute),
		TotalTracks:     10,
		AnalyzedTracks:  4,
		PendingTracks:   5,
		ProgressPercent: 40,
		HealthStatus:    "stalled",
	}
	if err := f.store.AppendSnapshot(ctx, stale); err != nil {
		t.Fatalf("AppendSnapshot: %v", err)
	}
	busy := testsupport.AddTrack(t, f.store, filepath.Join(f.cfg.Paths.MusicDir, "busy.flac"))
	if err := f.store.UpdateStatus(ctx, busy.ID, library.StatusAnalyzing, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	testsupport.AddTrack(t, f.store, filepath.Join(f.cfg.Paths.MusicDir, "waiting.flac"))
	if !c.shouldAttemptRecovery(ctx) {
		t.Fatal("stalled system should trigger recovery")
	}

	// Backoff window suppresses further attempts.
	c.mu.Lock()
	c.lastAttempt = time.Now()
	c.mu.Unlock()
	if c.shouldAttemptRecovery(ctx) {
		t.Fatal("recovery inside backoff window should be suppressed")
	}

	// Escalation past the failure ceiling stands down entirely.
	c.mu.Lock()
	c.lastAttempt = time.Time{}
	c.consecutiveFailures = f.cfg.Recovery.MaxConsecutiveFailures
	c.mu.Unlock()
	if c.shouldAttemptRecovery(ctx) {
		t.Fatal("escalated controller should not attempt recovery")
	}
}

func TestStuckTracksBypassBackoff(t *testing.T) {
	f := newFixture(t)
	f.cfg.Recovery.StuckThresholdMinutes = 0
	c := f.controller(noopRestart)
	ctx := context.Background()

	track := testsupport.AddTrack(t, f.store, filepath.Join(f.cfg.Paths.MusicDir, "wedged.flac"))
	if err := f.store.UpdateStatus(ctx, track.ID, library.StatusAnalyzing, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	// Even with a fresh attempt timestamp, stuck tracks demand action.
	c.mu.Lock()
	c.lastAttempt = time.Now()
	c.mu.Unlock()
	if !c.shouldAttemptRecovery(ctx) {
		t.Fatal("stuck analyzing tracks should trigger recovery regardless of backoff")
	}
}

func TestForceRecoveryAndHistory(t *testing.T) {
	f := newFixture(t)
	c := f.controller(noopRestart)
	ctx := context.Background()

	if !c.ForceRecovery(ctx) {
		t.Fatal("ForceRecovery with working restart should succeed")
	}
	c.restart = failingRestart
	if c.ForceRecovery(ctx) {
		t.Fatal("ForceRecovery with failing restart should report failure")
	}

	history := c.History(10)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if !history[0].Success || history[1].Success {
		t.Errorf("history = %+v, want success then failure", history)
	}
	if history[1].ErrorMessage == "" {
		t.Error("failed attempt should carry an error message")
	}

	if got := c.History(1); len(got) != 1 || got[0].Success {
		t.Errorf("History(1) = %+v, want just the latest failure", got)
	}
}

func TestAttemptWithoutCallbackFails(t *testing.T) {
	f := newFixture(t)
	c := f.controller(nil)

	if c.attemptRecovery(context.Background(), "test") {
		t.Fatal("attempt without restart callback should fail")
	}
	history := c.History(1)
	if len(history) != 1 || history[0].ErrorMessage == "" {
		t.Fatalf("history = %+v, want recorded failure", history)
	}
}
