package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cadence/internal/ipc"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Queue pending tracks and start analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProcessStart(limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of tracks to queue (0 uses the configured limit)")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop analysis workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ProcessStop(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Processing stopped")
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show processing and library status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Processing", colorize) {
					fmt.Fprintln(stdout, line)
				}
				stateKind := statusInfo
				if status.Processing.State == "running" {
					stateKind = statusOK
				}
				progress := status.Processing.Progress
				fmt.Fprintln(stdout, renderStatusLine("State", stateKind, status.Processing.State, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d (%d active)", status.Processing.Workers, status.Processing.ActiveJobs), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Queue", statusInfo, fmt.Sprintf("%d waiting", status.Processing.QueueSize), colorize))
				if progress.TotalJobs > 0 {
					fmt.Fprintln(stdout, renderStatusLine("Session", statusInfo,
						fmt.Sprintf("%d/%d done, %d failed, %d skipped", progress.CompletedJobs, progress.TotalJobs, progress.FailedJobs, progress.SkippedJobs), colorize))
					fmt.Fprintln(stdout, renderStatusLine("Success rate", statusInfo, formatPercent(progress.SuccessRate), colorize))
					fmt.Fprintln(stdout, renderStatusLine("Avg track time", statusInfo, formatSeconds(progress.AverageProcessingTime), colorize))
					fmt.Fprintln(stdout, renderStatusLine("ETA", statusInfo, formatTimestamp(progress.EstimatedCompletion), colorize))
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Library", colorize) {
					fmt.Fprintln(stdout, line)
				}
				rows := [][]string{
					{"Total", formatCount(status.Library.Total)},
					{"Analyzed", formatCount(status.Library.Analyzed)},
					{"Pending", formatCount(status.Library.Pending)},
					{"Errored", formatCount(status.Library.Errored)},
					{"Progress", formatPercent(status.Library.Percentage)},
				}
				fmt.Fprint(stdout, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintln(stdout)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}
