package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cadence/internal/ipc"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show analysis pipeline health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				health, err := client.Health()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, health)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Pipeline Health", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Status", healthKind(health.Status), health.Status, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Progress", statusInfo,
					fmt.Sprintf("%s (%d/%d tracks)", formatPercent(health.Progress.Percentage), health.Progress.Analyzed, health.Progress.Total), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Rate", statusInfo, formatRate(health.ProcessingRate), colorize))
				fmt.Fprintln(stdout, renderStatusLine("ETA", statusInfo, formatTimestamp(health.EstimatedCompletion), colorize))
				stalledKind := statusOK
				if health.Stalled {
					stalledKind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine("Stalled", stalledKind, yesNo(health.Stalled), colorize))
				if health.ConsecutiveStalls > 0 {
					fmt.Fprintln(stdout, renderStatusLine("Consecutive stalls", statusWarn, fmt.Sprintf("%d", health.ConsecutiveStalls), colorize))
				}

				if len(health.Anomalies) > 0 {
					fmt.Fprintln(stdout)
					for _, line := range renderSectionHeader("Anomalies", colorize) {
						fmt.Fprintln(stdout, line)
					}
					for _, anomaly := range health.Anomalies {
						fmt.Fprintf(stdout, "  - %s\n", anomaly)
					}
				}
				if len(health.Recommendations) > 0 {
					fmt.Fprintln(stdout)
					for _, line := range renderSectionHeader("Recommendations", colorize) {
						fmt.Fprintln(stdout, line)
					}
					for _, rec := range health.Recommendations {
						fmt.Fprintf(stdout, "  - %s\n", rec)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

func newStallCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stall",
		Short: "Diagnose a suspected analysis stall",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				stall, err := client.Stall()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, stall)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Stall Analysis", colorize) {
					fmt.Fprintln(stdout, line)
				}
				probabilityKind := statusOK
				if stall.Probability == "high" {
					probabilityKind = statusError
				} else if stall.Probability == "unknown" {
					probabilityKind = statusWarn
				}
				fmt.Fprintln(stdout, renderStatusLine("Probability", probabilityKind, stall.Probability, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Pending", statusInfo, fmt.Sprintf("%d", stall.PendingTracks), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Analyzing", statusInfo, fmt.Sprintf("%d", stall.AnalyzingTracks), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Action", statusInfo, stall.RecommendedAction, colorize))

				if len(stall.Indicators) > 0 {
					fmt.Fprintln(stdout)
					for _, line := range renderSectionHeader("Indicators", colorize) {
						fmt.Fprintln(stdout, line)
					}
					for _, indicator := range stall.Indicators {
						fmt.Fprintf(stdout, "  - %s\n", indicator)
					}
				}
				if len(stall.Factors) > 0 {
					fmt.Fprintln(stdout)
					for _, line := range renderSectionHeader("Contributing Factors", colorize) {
						fmt.Fprintln(stdout, line)
					}
					for _, factor := range stall.Factors {
						fmt.Fprintf(stdout, "  - %s\n", factor)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}
