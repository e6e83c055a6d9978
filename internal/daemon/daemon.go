package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"cadence/internal/analysis"
	"cadence/internal/config"
	"cadence/internal/library"
	"cadence/internal/logging"
	"cadence/internal/monitor"
	"cadence/internal/processor"
	"cadence/internal/recovery"
	"cadence/internal/services"
)

// Daemon owns the long-running services and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *library.Store
	extractor analysis.Extractor
	pool      *processor.Pool
	monitor   *monitor.Monitor
	recovery  *recovery.Controller
	logPath   string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running    bool
	PID        int
	DBPath     string
	LockPath   string
	Processing processor.Status
	Progress   library.Progress
}

// New constructs a daemon with initialized dependencies. The processor,
// monitor, and recovery controller are wired here so recovery can restart
// the pool.
func New(cfg *config.Config, store *library.Store, extractor analysis.Extractor, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || extractor == nil {
		return nil, errors.New("daemon requires config, store, and extractor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		extractor: extractor,
		logPath:   filepath.Join(cfg.Paths.LogDir, "cadence.log"),
		lockPath:  filepath.Join(cfg.Paths.LogDir, "cadenced.lock"),
	}
	d.lock = flock.New(d.lockPath)

	d.pool = processor.NewPool(cfg, store, extractor, logger)
	d.monitor = monitor.New(cfg, store, logger)
	d.pool.SetSnapshotFunc(func(ctx context.Context) {
		d.monitor.CaptureSnapshot(ctx)
	})
	d.recovery = recovery.New(cfg, store, d.monitor, d.RestartProcessing, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the background services: the
// auto-recovery controller and the janitor loop. Processing itself starts
// on demand through StartProcessing.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another cadence daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go d.runJanitor(runCtx)
	d.recovery.StartMonitoring()

	d.running.Store(true)
	d.logger.Info("cadence daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()),
	)
	return nil
}

// Stop halts processing and background services and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.recovery.StopMonitoring()
	d.pool.Stop()

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("cadence daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// StartProcessing loads the backlog and starts the worker pool. Returns
// the number of jobs queued and whether the pool actually started.
func (d *Daemon) StartProcessing(ctx context.Context, limit int) (int, bool) {
	queued := d.pool.InitializeQueue(ctx, limit)
	if queued == 0 {
		return 0, false
	}
	started := d.pool.Start(ctx, nil)
	return queued, started
}

// StopProcessing stops the worker pool gracefully.
func (d *Daemon) StopProcessing() bool {
	return d.pool.Stop()
}

// RestartProcessing is the recovery path: stop the pool, release tracks
// wedged in analyzing back to pending, reload the backlog, and start again.
func (d *Daemon) RestartProcessing(ctx context.Context) error {
	d.logger.Info("restarting processing pipeline",
		logging.String(logging.FieldEventType, "processing_restart"))

	d.pool.Stop()

	released, err := d.store.ResetAnalyzing(ctx)
	if err != nil {
		return fmt.Errorf("reset analyzing tracks: %w", err)
	}
	if released > 0 {
		d.logger.Info("released wedged tracks", logging.Int("released", released))
	}

	queued := d.pool.InitializeQueue(ctx, 0)
	if queued == 0 {
		// Nothing to do is a successful recovery, not a failure.
		return nil
	}
	if !d.pool.Start(ctx, nil) {
		return errors.New("worker pool failed to start")
	}
	return nil
}

// ProcessingStatus reports the worker pool state.
func (d *Daemon) ProcessingStatus() processor.Status {
	return d.pool.Status()
}

// Health produces the composite health report.
func (d *Daemon) Health(ctx context.Context) monitor.HealthReport {
	return d.monitor.HealthReport(ctx)
}

// StallAnalysis produces the stall diagnostic view.
func (d *Daemon) StallAnalysis(ctx context.Context) monitor.StallAnalysis {
	return d.monitor.AnalyzeStall(ctx)
}

// RecoveryStatus reports the auto-recovery controller state.
func (d *Daemon) RecoveryStatus() recovery.Report {
	return d.recovery.Status()
}

// RecoveryHistory returns recent recovery attempts, oldest first.
func (d *Daemon) RecoveryHistory(limit int) []recovery.Attempt {
	return d.recovery.History(limit)
}

// ForceRecovery triggers an immediate recovery attempt.
func (d *Daemon) ForceRecovery(ctx context.Context) bool {
	return d.recovery.ForceRecovery(ctx)
}

// ResetRecoveryFailures clears recovery escalation state.
func (d *Daemon) ResetRecoveryFailures() {
	d.recovery.ResetFailureCount()
}

// ListTracks returns tracks filtered by optional status.
func (d *Daemon) ListTracks(ctx context.Context, status string, limit int) ([]*library.Track, error) {
	if status != "" && !library.ValidStatus(library.TrackStatus(status)) {
		return nil, fmt.Errorf("unknown track status %q", status)
	}
	return d.store.List(ctx, library.TrackStatus(status), limit)
}

// DescribeTrack returns one track and its stored features, if any.
func (d *Daemon) DescribeTrack(ctx context.Context, id int64) (*library.Track, *library.FeatureRecord, error) {
	track, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if track == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "daemon", "describe",
			fmt.Sprintf("track %d not found", id), nil)
	}
	features, err := d.store.TrackFeatures(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return track, features, nil
}

// RetryErrored resets errored (and, for explicit IDs, skipped) tracks back
// to pending.
func (d *Daemon) RetryErrored(ctx context.Context, ids []int64) (int, error) {
	return d.store.RetryErrored(ctx, ids...)
}

// ResetStuck releases tracks wedged in analyzing back to pending.
func (d *Daemon) ResetStuck(ctx context.Context) (int, error) {
	return d.store.ResetAnalyzing(ctx)
}

// ClearTracks removes tracks in the named statuses, or every track when
// none are given.
func (d *Daemon) ClearTracks(ctx context.Context, statuses []string) (int, error) {
	parsed := make([]library.TrackStatus, 0, len(statuses))
	for _, status := range statuses {
		ts := library.TrackStatus(status)
		if !library.ValidStatus(ts) {
			return 0, fmt.Errorf("unknown track status %q", status)
		}
		parsed = append(parsed, ts)
	}
	return d.store.Clear(ctx, parsed...)
}

// DatabaseHealth returns detailed library database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (library.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	progress, err := d.store.Progress(ctx)
	if err != nil {
		d.logger.Warn("failed to read library progress", logging.Error(err))
	}
	return Status{
		Running:    d.running.Load(),
		PID:        os.Getpid(),
		DBPath:     d.cfg.DatabasePath(),
		LockPath:   d.lockPath,
		Processing: d.pool.Status(),
		Progress:   progress,
	}
}
