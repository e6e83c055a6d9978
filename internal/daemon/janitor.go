package daemon

import (
	"context"
	"time"

	"cadence/internal/logging"
)

const maintenanceInterval = 24 * time.Hour

// runJanitor takes periodic progress snapshots and performs daily
// housekeeping: snapshot history pruning and log retention.
func (d *Daemon) runJanitor(ctx context.Context) {
	defer d.wg.Done()

	snapshotEvery := time.Duration(d.cfg.Monitoring.SnapshotInterval) * time.Second
	if snapshotEvery <= 0 {
		snapshotEvery = time.Minute
	}
	snapshots := time.NewTicker(snapshotEvery)
	defer snapshots.Stop()
	maintenance := time.NewTicker(maintenanceInterval)
	defer maintenance.Stop()

	d.runMaintenance(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-snapshots.C:
			d.monitor.CaptureSnapshot(ctx)
		case <-maintenance.C:
			d.runMaintenance(ctx)
		}
	}
}

func (d *Daemon) runMaintenance(ctx context.Context) {
	pruned, err := d.monitor.PruneHistory(ctx)
	if err != nil {
		d.logger.Warn("snapshot history prune failed", logging.Error(err))
	} else if pruned > 0 {
		d.logger.Info("pruned snapshot history", logging.Int("pruned", pruned))
	}

	retention := d.cfg.Monitoring.HistoryRetentionDays
	if retention > 0 {
		cutoff := time.Now().AddDate(0, 0, -retention)
		stale, err := d.store.PruneFeatures(ctx, cutoff)
		if err != nil {
			d.logger.Warn("feature prune failed", logging.Error(err))
		} else if stale > 0 {
			d.logger.Info("pruned superseded features", logging.Int("pruned", stale))
		}
	}

	logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays,
		logging.RetentionTarget{
			Dir:     d.cfg.Paths.LogDir,
			Pattern: "*.log",
			Exclude: []string{d.logPath},
		},
	)
}
