package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cadence/internal/library"
)

// HealthReport is the composite health view served over IPC and rendered
// by the CLI.
type HealthReport struct {
	Status              HealthState        `json:"current_status"`
	Timestamp           time.Time          `json:"timestamp"`
	Progress            library.Progress   `json:"progress"`
	ProcessingRate      *float64           `json:"processing_rate,omitempty"`
	EstimatedCompletion *time.Time         `json:"estimated_completion,omitempty"`
	Stalled             bool               `json:"stalled"`
	ConsecutiveStalls   int                `json:"consecutive_stalls"`
	Anomalies           []string           `json:"anomalies,omitempty"`
	Recommendations     []string           `json:"recommendations,omitempty"`
	RecentHistory       []library.Snapshot `json:"recent_history,omitempty"`
}

// HealthReport captures a fresh snapshot and assembles the full health
// view: classification, stall state, consecutive stall count, anomalies,
// and operator recommendations.
func (m *Monitor) HealthReport(ctx context.Context) HealthReport {
	snap := m.CaptureSnapshot(ctx)

	report := HealthReport{
		Status:    HealthState(snap.HealthStatus),
		Timestamp: snap.Timestamp,
		Progress: library.Progress{
			Total:      snap.TotalTracks,
			Analyzed:   snap.AnalyzedTracks,
			Pending:    snap.PendingTracks,
			Errored:    snap.ErrorTracks,
			Percentage: snap.ProgressPercent,
		},
		ProcessingRate:      snap.ProcessingRate,
		EstimatedCompletion: snap.EstimatedCompletion,
		Stalled:             m.IsStalled(ctx),
	}

	if stalls, err := m.store.ConsecutiveStalledSnapshots(ctx, 10); err != nil {
		m.setLastErr(err)
	} else {
		report.ConsecutiveStalls = stalls
	}

	report.Anomalies = m.detectAnomalies(ctx, snap)
	report.Recommendations = m.recommendations(report.Status, report.ConsecutiveStalls, report.Anomalies)

	if history, err := m.store.SnapshotsSince(ctx, time.Now().Add(-24*time.Hour)); err != nil {
		m.setLastErr(err)
	} else {
		report.RecentHistory = history
	}
	return report
}

// detectAnomalies scans recent history for conditions worth surfacing:
// progress regressions, degraded throughput, a high error share, and
// stagnation while work is supposedly in flight.
func (m *Monitor) detectAnomalies(ctx context.Context, snap library.Snapshot) []string {
	var anomalies []string

	if snap.ProgressPercent < 100 {
		if history, err := m.store.SnapshotsSince(ctx, time.Now().Add(-time.Hour)); err != nil {
			m.setLastErr(err)
		} else {
			for i := len(history) - 1; i > 0; i-- {
				drop := history[i-1].ProgressPercent - history[i].ProgressPercent
				if drop > 1.0 {
					anomalies = append(anomalies, fmt.Sprintf("progress dropped by %.1f%% in the last hour", drop))
					break
				}
			}
		}
	}

	if snap.ProcessingRate != nil && *snap.ProcessingRate > 0 && *snap.ProcessingRate < m.cfg.Monitoring.MinRateThreshold {
		anomalies = append(anomalies, fmt.Sprintf("processing rate (%.2f tracks/min) is below the healthy threshold", *snap.ProcessingRate))
	}

	if snap.ErrorTracks > 0 && snap.TotalTracks > 0 {
		errorRate := float64(snap.ErrorTracks) / float64(snap.TotalTracks) * 100
		if errorRate > 5.0 {
			anomalies = append(anomalies, fmt.Sprintf("high error rate: %.1f%% of tracks failed analysis", errorRate))
		}
	}

	if snap.ProgressPercent < 100 {
		if stagnant := m.progressStagnant(ctx, 5); stagnant {
			counts, err := m.store.Counts(ctx)
			if err != nil {
				m.setLastErr(err)
			} else if counts[library.StatusPending] > 0 && counts[library.StatusAnalyzing] > 0 {
				anomalies = append(anomalies, "progress has been stagnant across recent snapshots")
			}
		}
	}
	return anomalies
}

// progressStagnant reports whether the last n snapshots carry an
// effectively identical progress percentage. Requires a full window.
func (m *Monitor) progressStagnant(ctx context.Context, n int) bool {
	snaps, err := m.store.RecentSnapshots(ctx, n)
	if err != nil {
		m.setLastErr(err)
		return false
	}
	if len(snaps) < n {
		return false
	}
	for i := 1; i < len(snaps); i++ {
		if abs(snaps[i].ProgressPercent-snaps[0].ProgressPercent) >= 0.1 {
			return false
		}
	}
	return true
}

func (m *Monitor) recommendations(status HealthState, consecutiveStalls int, anomalies []string) []string {
	var recs []string

	switch status {
	case HealthStalled:
		if consecutiveStalls >= m.maxConsecutiveStalls() {
			recs = append(recs, "analysis has stalled repeatedly; manual intervention recommended")
		} else {
			recs = append(recs, "analysis appears stalled; auto-recovery will be attempted")
		}
	case HealthError:
		recs = append(recs, "high error rate detected; review daemon logs and failing audio files")
	case HealthWarning:
		recs = append(recs, "processing rate is below optimal; watch for further degradation")
	case HealthHealthy:
		recs = append(recs, "analysis is progressing normally")
	}

	for _, anomaly := range anomalies {
		switch {
		case strings.Contains(anomaly, "dropped"):
			recs = append(recs, "progress regression detected; check for database issues or file corruption")
		case strings.Contains(anomaly, "processing rate"):
			recs = append(recs, "low processing rate; consider reducing worker count or checking system load")
		case strings.Contains(anomaly, "error rate"):
			recs = append(recs, "review failed tracks and verify audio file integrity")
		case strings.Contains(anomaly, "stagnant"):
			recs = append(recs, "analysis may be stuck on problematic files")
		}
	}
	return recs
}

func (m *Monitor) maxConsecutiveStalls() int {
	if m.cfg.Monitoring.MaxConsecutiveStalls > 0 {
		return m.cfg.Monitoring.MaxConsecutiveStalls
	}
	return 3
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
