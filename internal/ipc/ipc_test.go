package ipc_test

import (
	"context"
	"path/filepath"
	"testing"

	"cadence/internal/analysis"
	"cadence/internal/daemon"
	"cadence/internal/ipc"
	"cadence/internal/library"
	"cadence/internal/logging"
	"cadence/internal/testsupport"
)

func startServer(t *testing.T) (*ipc.Client, *daemon.Daemon) {
	t.Helper()

	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedAnalyzer(`{"success": true, "features": {"tempo": 99.0}}`, 0),
	)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	extractor := analysis.NewCommandExtractor(cfg, logging.NewNop())

	d, err := daemon.New(cfg, store, extractor, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	server, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client, d
}

func TestStatusRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("daemon should not report running before Start")
	}
	if status.DBPath == "" || status.LockPath == "" {
		t.Fatalf("status missing paths: %+v", status)
	}
}

func TestAddFileListAndDescribe(t *testing.T) {
	client, d := startServer(t)
	base := filepath.Dir(d.Status(context.Background()).DBPath)
	audio := filepath.Join(base, "Artist", "Album", "Song.mp3")
	testsupport.WriteFile(t, audio, 256)

	added, err := client.AddFile(audio)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if added.Track.ID == 0 || added.Track.Status != string(library.StatusPending) {
		t.Fatalf("unexpected added track: %+v", added.Track)
	}

	list, err := client.TrackList("", 0)
	if err != nil {
		t.Fatalf("TrackList: %v", err)
	}
	if len(list.Tracks) != 1 {
		t.Fatalf("track count = %d, want 1", len(list.Tracks))
	}

	if _, err := client.TrackList("no-such-status", 0); err == nil {
		t.Fatal("expected unknown status filter to error")
	}

	described, err := client.TrackDescribe(added.Track.ID)
	if err != nil {
		t.Fatalf("TrackDescribe: %v", err)
	}
	if described.Track.FilePath != audio {
		t.Fatalf("described path = %q, want %q", described.Track.FilePath, audio)
	}
	if _, err := client.TrackDescribe(added.Track.ID + 999); err == nil {
		t.Fatal("expected describe of missing track to error")
	}
}

func TestProcessStartEmptyQueueMessage(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.ProcessStart(0)
	if err != nil {
		t.Fatalf("ProcessStart: %v", err)
	}
	if resp.Started || resp.Queued != 0 {
		t.Fatalf("ProcessStart on empty library = %+v", resp)
	}
	if resp.Message != "no tracks need analysis" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestHealthAndRecoveryEndpoints(t *testing.T) {
	client, _ := startServer(t)

	health, err := client.Health()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Status == "" {
		t.Fatal("health status should be populated")
	}

	stall, err := client.Stall()
	if err != nil {
		t.Fatalf("Stall: %v", err)
	}
	if stall.Probability == "" {
		t.Fatal("stall probability should be populated")
	}

	recoveryStatus, err := client.RecoveryStatus()
	if err != nil {
		t.Fatalf("RecoveryStatus: %v", err)
	}
	if recoveryStatus.State == "" {
		t.Fatal("recovery state should be populated")
	}

	history, err := client.RecoveryHistory(10)
	if err != nil {
		t.Fatalf("RecoveryHistory: %v", err)
	}
	if len(history.Attempts) != 0 {
		t.Fatalf("expected empty recovery history, got %d", len(history.Attempts))
	}

	reset, err := client.ResetRecoveryFailures()
	if err != nil {
		t.Fatalf("ResetRecoveryFailures: %v", err)
	}
	if !reset.Reset {
		t.Fatal("reset should be acknowledged")
	}
}

func TestDatabaseHealthRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	health, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth: %v", err)
	}
	if !health.DatabaseExists || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected database health: %+v", health)
	}
}
