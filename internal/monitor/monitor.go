package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cadence/internal/config"
	"cadence/internal/library"
	"cadence/internal/logging"
)

// Health states recorded with each snapshot and reported by HealthReport.
type HealthState string

const (
	HealthHealthy HealthState = "healthy"
	HealthWarning HealthState = "warning"
	HealthStalled HealthState = "stalled"
	HealthError   HealthState = "error"
	HealthUnknown HealthState = "unknown"
)

// Monitor observes analysis progress: it captures periodic snapshots into
// the progress history, derives processing rate and completion estimates,
// and classifies overall health. Errors during capture are absorbed so a
// flaky database cannot take down the processing pipeline; the most recent
// suppressed error stays available through LastErr.
type Monitor struct {
	cfg    *config.Config
	store  *library.Store
	logger *slog.Logger

	mu      sync.Mutex
	lastErr error
}

// New constructs a Monitor over the given store.
func New(cfg *config.Config, store *library.Store, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "monitor"),
	}
}

// LastErr returns the most recent error suppressed during capture or
// health evaluation, or nil when the last operation succeeded.
func (m *Monitor) LastErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Monitor) setLastErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// CaptureSnapshot records the current library progress in the history
// table, tagged with a derived health state. On store failure it returns a
// zero-valued snapshot tagged unknown rather than propagating the error.
func (m *Monitor) CaptureSnapshot(ctx context.Context) library.Snapshot {
	progress, err := m.store.Progress(ctx)
	if err != nil {
		m.setLastErr(err)
		logging.WarnWithContext(m.logger, "failed to capture progress snapshot", "snapshot_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check library database access"),
		)
		return library.Snapshot{Timestamp: time.Now(), HealthStatus: string(HealthUnknown)}
	}

	rate := m.processingRate(ctx)
	snap := library.Snapshot{
		Timestamp:           time.Now(),
		TotalTracks:         progress.Total,
		AnalyzedTracks:      progress.Analyzed,
		PendingTracks:       progress.Pending,
		ErrorTracks:         progress.Errored,
		ProgressPercent:     progress.Percentage,
		ProcessingRate:      rate,
		EstimatedCompletion: estimateCompletion(progress.Pending, rate),
	}
	snap.HealthStatus = string(m.healthFor(ctx, snap))

	if err := m.store.AppendSnapshot(ctx, snap); err != nil {
		m.setLastErr(err)
		logging.WarnWithContext(m.logger, "failed to persist progress snapshot", "snapshot_persist_failed",
			logging.Error(err),
		)
		return snap
	}

	m.setLastErr(nil)
	m.logger.Debug("progress snapshot captured",
		logging.Float64("percentage", snap.ProgressPercent),
		logging.String("health", snap.HealthStatus),
	)
	return snap
}

// processingRate derives tracks per minute from the two most recent stored
// snapshots. Returns nil with fewer than two samples, a non-positive
// elapsed interval, or a negative completion delta.
func (m *Monitor) processingRate(ctx context.Context) *float64 {
	snaps, err := m.store.RecentSnapshots(ctx, 2)
	if err != nil {
		m.setLastErr(err)
		return nil
	}
	if len(snaps) < 2 {
		return nil
	}
	current, previous := snaps[0], snaps[1]
	minutes := current.Timestamp.Sub(previous.Timestamp).Minutes()
	delta := current.AnalyzedTracks - previous.AnalyzedTracks
	if minutes <= 0 || delta < 0 {
		return nil
	}
	rate := float64(delta) / minutes
	return &rate
}

func estimateCompletion(pending int, rate *float64) *time.Time {
	if rate == nil || *rate <= 0 || pending <= 0 {
		return nil
	}
	minutes := float64(pending) / *rate
	eta := time.Now().Add(time.Duration(minutes * float64(time.Minute)))
	return &eta
}

// IsStalled reports whether analysis has made no progress for longer than
// the stall timeout while work is both pending and in flight. A quiet
// system with nothing analyzing is stopped, not stalled.
func (m *Monitor) IsStalled(ctx context.Context) bool {
	snaps, err := m.store.RecentSnapshots(ctx, 1)
	if err != nil {
		m.setLastErr(err)
		return false
	}
	if len(snaps) == 0 {
		return false
	}
	if time.Since(snaps[0].Timestamp) < m.stallTimeout() {
		return false
	}

	counts, err := m.store.Counts(ctx)
	if err != nil {
		m.setLastErr(err)
		return false
	}
	if counts[library.StatusAnalyzing] == 0 {
		return false
	}
	return counts[library.StatusPending] > 0
}

// healthFor classifies a snapshot. Precedence: stalled beats everything,
// then a high error share, then a degraded smoothed rate; a complete or
// actively progressing library is healthy; anything else is unknown.
func (m *Monitor) healthFor(ctx context.Context, snap library.Snapshot) HealthState {
	if m.IsStalled(ctx) {
		return HealthStalled
	}
	if snap.ErrorTracks > 0 && snap.TotalTracks > 0 {
		if float64(snap.ErrorTracks)/float64(snap.TotalTracks) > 0.1 {
			return HealthError
		}
	}
	if rate := m.smoothedRate(ctx, snap.ProcessingRate); rate != nil && *rate < m.cfg.Monitoring.MinRateThreshold {
		return HealthWarning
	}
	if snap.ProgressPercent >= 100 {
		return HealthHealthy
	}
	if snap.ProcessingRate != nil && *snap.ProcessingRate > 0 {
		return HealthHealthy
	}
	return HealthUnknown
}

// smoothedRate averages the current rate with the most recent stored
// rates, up to three samples, skipping snapshots where no rate could be
// derived. A single noisy sample then cannot flip the health state.
func (m *Monitor) smoothedRate(ctx context.Context, current *float64) *float64 {
	samples := make([]float64, 0, 3)
	if current != nil {
		samples = append(samples, *current)
	}
	snaps, err := m.store.RecentSnapshots(ctx, 5)
	if err != nil {
		m.setLastErr(err)
	} else {
		for _, snap := range snaps {
			if len(samples) >= 3 {
				break
			}
			if snap.ProcessingRate != nil {
				samples = append(samples, *snap.ProcessingRate)
			}
		}
	}
	if len(samples) == 0 {
		return nil
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))
	return &mean
}

// PruneHistory removes progress history older than the configured
// retention window, returning the number of rows removed.
func (m *Monitor) PruneHistory(ctx context.Context) (int, error) {
	days := m.cfg.Monitoring.HistoryRetentionDays
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	removed, err := m.store.PruneHistory(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.logger.Info("pruned progress history",
			logging.Int("removed", removed),
			logging.Int("retention_days", days),
		)
	}
	return removed, nil
}

func (m *Monitor) stallTimeout() time.Duration {
	if m.cfg.Monitoring.StallTimeout > 0 {
		return time.Duration(m.cfg.Monitoring.StallTimeout) * time.Second
	}
	return 30 * time.Minute
}
