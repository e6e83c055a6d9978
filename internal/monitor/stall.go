package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cadence/internal/library"
)

// StallAnalysis is a diagnostic view of why analysis may have stopped
// making progress.
type StallAnalysis struct {
	Indicators        []string           `json:"stall_indicators"`
	PendingTracks     int                `json:"pending_tracks"`
	AnalyzingTracks   int                `json:"analyzing_tracks"`
	TotalTracks       int                `json:"total_tracks"`
	RecentHistory     []library.Snapshot `json:"recent_history,omitempty"`
	Probability       string             `json:"stall_probability"`
	RecommendedAction string             `json:"recommended_action"`
	Factors           []string           `json:"stall_factors,omitempty"`
}

// Stall probability labels.
const (
	StallLow     = "low"
	StallHigh    = "high"
	StallUnknown = "unknown"
)

// AnalyzeStall inspects recent history and live track counts to judge how
// likely a genuine stall is. Probability is high only when every signal
// agrees: indicators present, work pending and in flight, throughput below
// threshold, and the stall timeout exceeded.
func (m *Monitor) AnalyzeStall(ctx context.Context) StallAnalysis {
	history, err := m.store.RecentSnapshots(ctx, 10)
	if err != nil {
		m.setLastErr(err)
		return StallAnalysis{
			Probability:       StallUnknown,
			RecommendedAction: "unable to determine stall status",
		}
	}

	var indicators []string
	if len(history) >= 2 {
		latest, previous := history[0], history[1]
		if latest.AnalyzedTracks == previous.AnalyzedTracks {
			elapsed := latest.Timestamp.Sub(previous.Timestamp)
			if elapsed > m.stallTimeout() {
				indicators = append(indicators, fmt.Sprintf("no progress for %.1f minutes", elapsed.Minutes()))
			}
		}

		if latest.ProgressPercent < 100 {
			stagnant := 0
			for i := 0; i < len(history)-1; i++ {
				if abs(history[i].ProgressPercent-history[i+1].ProgressPercent) < 0.1 {
					stagnant++
				} else {
					break
				}
			}
			if stagnant >= 3 {
				indicators = append(indicators, fmt.Sprintf("progress stagnant for %d consecutive snapshots", stagnant))
			}
		}
	}

	counts, err := m.store.Counts(ctx)
	if err != nil {
		m.setLastErr(err)
		counts = map[library.TrackStatus]int{}
	}
	pending := counts[library.StatusPending]
	analyzing := counts[library.StatusAnalyzing]
	total := 0
	for _, n := range counts {
		total += n
	}

	var latestRate *float64
	if len(history) > 0 {
		latestRate = history[0].ProcessingRate
	}

	probability := StallLow
	if len(indicators) > 0 && pending > 0 && analyzing > 0 {
		rateLow := latestRate == nil || *latestRate < m.cfg.Monitoring.MinRateThreshold
		if rateLow && m.IsStalled(ctx) {
			probability = StallHigh
		}
	}

	return StallAnalysis{
		Indicators:        indicators,
		PendingTracks:     pending,
		AnalyzingTracks:   analyzing,
		TotalTracks:       total,
		RecentHistory:     history,
		Probability:       probability,
		RecommendedAction: stallRecommendation(indicators, pending),
		Factors:           m.stallFactors(ctx),
	}
}

func stallRecommendation(indicators []string, pending int) string {
	if len(indicators) == 0 {
		return "analysis appears to be progressing normally"
	}
	if pending == 0 {
		return "no pending tracks; analysis may be complete"
	}
	joined := strings.Join(indicators, " ")
	switch {
	case strings.Contains(joined, "no progress"):
		return "analysis appears stalled; consider restarting the processing pipeline"
	case strings.Contains(joined, "stagnant"):
		return "progress is stagnant; check for problematic audio files or system resources"
	default:
		return "multiple stall indicators detected; manual intervention recommended"
	}
}

// stallFactors names conditions that plausibly caused a stall: clustered
// recent failures, tracks stuck in analyzing, degraded throughput, and a
// run of stalled snapshots.
func (m *Monitor) stallFactors(ctx context.Context) []string {
	var factors []string

	if failures, err := m.store.RecentFailures(ctx, 10); err != nil {
		m.setLastErr(err)
	} else if len(failures) >= 2 {
		factors = append(factors, fmt.Sprintf("repeated extraction failures (%d recent)", len(failures)))
	}

	cutoff := time.Now().Add(-5 * time.Minute)
	if stuck, err := m.store.LongRunningAnalyzing(ctx, cutoff); err != nil {
		m.setLastErr(err)
	} else if len(stuck) > 0 {
		factors = append(factors, fmt.Sprintf("%d tracks stuck in analyzing for over five minutes", len(stuck)))
	}

	if snaps, err := m.store.RecentSnapshots(ctx, 1); err != nil {
		m.setLastErr(err)
	} else if len(snaps) > 0 && snaps[0].ProcessingRate != nil && *snaps[0].ProcessingRate < m.cfg.Monitoring.MinRateThreshold {
		factors = append(factors, "processing rate below healthy threshold")
	}

	if stalls, err := m.store.ConsecutiveStalledSnapshots(ctx, 10); err != nil {
		m.setLastErr(err)
	} else if stalls > 0 {
		factors = append(factors, fmt.Sprintf("%d consecutive stalled snapshots", stalls))
	}

	if len(factors) == 0 {
		factors = append(factors, "no specific stall factors identified")
	}
	return factors
}
