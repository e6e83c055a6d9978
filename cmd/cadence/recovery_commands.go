package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cadence/internal/ipc"
)

func newRecoveryCommand(ctx *commandContext) *cobra.Command {
	recoveryCmd := &cobra.Command{
		Use:   "recovery",
		Short: "Inspect and control automatic recovery",
	}

	recoveryCmd.AddCommand(newRecoveryStatusCommand(ctx))
	recoveryCmd.AddCommand(newRecoveryHistoryCommand(ctx))
	recoveryCmd.AddCommand(newRecoveryForceCommand(ctx))
	recoveryCmd.AddCommand(newRecoveryResetCommand(ctx))

	return recoveryCmd
}

func newRecoveryStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recovery controller state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.RecoveryStatus()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Auto-Recovery", colorize) {
					fmt.Fprintln(stdout, line)
				}
				enabledKind := statusWarn
				if status.Enabled {
					enabledKind = statusOK
				}
				fmt.Fprintln(stdout, renderStatusLine("Enabled", enabledKind, yesNo(status.Enabled), colorize))
				fmt.Fprintln(stdout, renderStatusLine("State", statusInfo, status.State, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Monitoring", statusInfo, yesNo(status.MonitoringActive), colorize))
				failureKind := statusOK
				if status.ConsecutiveFailures > 0 {
					failureKind = statusWarn
				}
				fmt.Fprintln(stdout, renderStatusLine("Consecutive failures", failureKind, fmt.Sprintf("%d", status.ConsecutiveFailures), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Backoff multiplier", statusInfo, fmt.Sprintf("%.0fx", status.BackoffMultiplier), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Attempts recorded", statusInfo, fmt.Sprintf("%d", status.AttemptCount), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Last attempt", statusInfo, formatTimestamp(status.LastAttempt), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Next attempt after", statusInfo, formatTimestamp(status.NextRecoveryAvailable), colorize))
				if status.RequiresManualIntervention {
					fmt.Fprintln(stdout, renderStatusLine("Manual intervention", statusError,
						"required; run `cadence recovery reset` after resolving the cause", colorize))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

func newRecoveryHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent recovery attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				history, err := client.RecoveryHistory(limit)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(history.Attempts) == 0 {
					fmt.Fprintln(stdout, "No recovery attempts recorded")
					return nil
				}

				rows := make([][]string, 0, len(history.Attempts))
				for _, attempt := range history.Attempts {
					outcome := "success"
					if !attempt.Success {
						outcome = "failed"
					}
					detail := attempt.Reason
					if attempt.ErrorMessage != "" {
						detail = attempt.ErrorMessage
					}
					rows = append(rows, []string{
						attempt.Timestamp.Local().Format("2006-01-02 15:04:05"),
						outcome,
						formatSeconds(attempt.Duration),
						detail,
					})
				}
				fmt.Fprint(stdout, renderTable(
					[]string{"Time", "Outcome", "Duration", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintln(stdout)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of attempts to show")
	return cmd
}

func newRecoveryForceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "force",
		Short: "Trigger an immediate recovery attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ForceRecovery()
				if err != nil {
					return err
				}
				if resp.Success {
					fmt.Fprintln(cmd.OutOrStdout(), "Recovery attempt succeeded")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Recovery attempt failed; see `cadence recovery history`")
				}
				return nil
			})
		},
	}
}

func newRecoveryResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear recovery failure escalation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ResetRecoveryFailures(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Recovery failure count reset")
				return nil
			})
		},
	}
}
