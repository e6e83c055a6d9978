package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cadence/internal/api"
	"cadence/internal/ipc"
)

func newTracksCommand(ctx *commandContext) *cobra.Command {
	tracksCmd := &cobra.Command{
		Use:   "tracks",
		Short: "Inspect and manage library tracks",
	}

	tracksCmd.AddCommand(newTracksListCommand(ctx))
	tracksCmd.AddCommand(newTracksRetryCommand(ctx))
	tracksCmd.AddCommand(newTracksResetCommand(ctx))
	tracksCmd.AddCommand(newTracksClearCommand(ctx))

	return tracksCmd
}

func newTracksListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TrackList(status, limit)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Tracks) == 0 {
					fmt.Fprintln(stdout, "No tracks found")
					return nil
				}
				fmt.Fprint(stdout, renderTable(
					[]string{"ID", "Title", "Artist", "Status", "Error"},
					buildTrackRows(resp.Tracks),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintln(stdout)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by track status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of tracks to show")
	return cmd
}

func buildTrackRows(tracks []api.TrackSummary) [][]string {
	rows := make([][]string, 0, len(tracks))
	for _, track := range tracks {
		errText := track.ErrorMessage
		if len(errText) > 60 {
			errText = errText[:57] + "..."
		}
		rows = append(rows, []string{
			strconv.FormatInt(track.ID, 10),
			displayName(track.Title, track.FilePath),
			track.Artist,
			track.Status,
			errText,
		})
	}
	return rows
}

func newTracksRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset errored tracks back to pending",
		Long:  "With no arguments every errored track is retried. Explicit IDs also reinstate permanently skipped tracks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid track id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TrackRetry(ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d tracks for retry\n", resp.Updated)
				return nil
			})
		},
	}
	return cmd
}

func newTracksResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Release tracks stuck in analyzing back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TrackReset()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released %d stuck tracks\n", resp.Updated)
				return nil
			})
		},
	}
}

func newTracksClearCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove tracks from the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TrackClear(statuses)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d tracks\n", resp.Removed)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only remove tracks with this status (repeatable)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one track and its extracted features",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid track id %q", args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TrackDescribe(id)
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)
				track := resp.Track

				for _, line := range renderSectionHeader(fmt.Sprintf("Track %d", track.ID), colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Path", statusInfo, track.FilePath, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Title", statusInfo, displayName(track.Title, track.FilePath), colorize))
				if track.Artist != "" {
					fmt.Fprintln(stdout, renderStatusLine("Artist", statusInfo, track.Artist, colorize))
				}
				if track.Album != "" {
					fmt.Fprintln(stdout, renderStatusLine("Album", statusInfo, track.Album, colorize))
				}
				fmt.Fprintln(stdout, renderStatusLine("Status", trackStatusKind(track.Status), track.Status, colorize))
				if track.ErrorMessage != "" {
					fmt.Fprintln(stdout, renderStatusLine("Error", statusError, track.ErrorMessage, colorize))
				}
				fmt.Fprintln(stdout, renderStatusLine("Analyzed at", statusInfo, formatTimestamp(track.AnalyzedAt), colorize))

				if len(resp.Features) > 0 {
					fmt.Fprintln(stdout)
					for _, line := range renderSectionHeader("Features", colorize) {
						fmt.Fprintln(stdout, line)
					}
					rows := make([][]string, 0, len(resp.Features))
					for _, pair := range resp.Features {
						rows = append(rows, []string{pair[0], pair[1]})
					}
					fmt.Fprint(stdout, renderTable([]string{"Feature", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
					fmt.Fprintln(stdout)
				}
				return nil
			})
		},
	}
}

func trackStatusKind(status string) statusKind {
	switch status {
	case "analyzed":
		return statusOK
	case "error", "skipped":
		return statusError
	case "analyzing":
		return statusInfo
	default:
		return statusWarn
	}
}

func newAddFileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add-file <path>",
		Short: "Register an audio file for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AddFile(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added track %d (%s)\n", resp.Track.ID, displayName(resp.Track.Title, resp.Track.FilePath))
				return nil
			})
		},
	}
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the music directory for new audio files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Scan()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d audio files: %d new, %d already known\n",
					resp.Scanned, resp.Added, resp.Known)
				return nil
			})
		},
	}
}
