package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"callscope/internal/calls"
)

func newCallsCommand(ctx *commandContext) *cobra.Command {
	callsCmd := &cobra.Command{
		Use:   "calls",
		Short: "Inspect recorded calls and their analyses",
	}
	callsCmd.AddCommand(newCallsListCommand(ctx))
	callsCmd.AddCommand(newCallsShowCommand(ctx))
	return callsCmd
}

func openStore(ctx *commandContext) (*calls.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return calls.Open(cfg)
}

func newCallsListCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var statuses []string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List calls, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := calls.ListFilter{OwnerID: strings.TrimSpace(owner), Limit: limit}
			for _, raw := range statuses {
				status := calls.Status(strings.ToLower(strings.TrimSpace(raw)))
				switch status {
				case calls.StatusPending, calls.StatusProcessing, calls.StatusCompleted, calls.StatusFailed:
					filter.Status = append(filter.Status, status)
				default:
					return fmt.Errorf("unknown status %q (valid: pending, processing, completed, failed)", raw)
				}
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				if list == nil {
					list = []*calls.Call{}
				}
				return writeJSON(cmd, list)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No calls found")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, call := range list {
				rows = append(rows, []string{
					call.ID,
					call.Title(),
					call.OwnerID,
					string(call.Status),
					formatSeconds(call.DurationSeconds),
					strconv.Itoa(call.SegmentCount),
					formatTimestamp(call.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Owner", "Status", "Duration", "Segments", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Only calls for this owner")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only calls in these statuses (repeatable or comma separated)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of calls (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print calls as JSON")
	return cmd
}

func newCallsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput, transcript bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a call and its analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			call, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			record, err := store.GetAnalysis(cmd.Context(), call.ID)
			if err != nil && !errors.Is(err, calls.ErrNotFound) {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, callDetail{Call: call, Analysis: record})
			}
			out := cmd.OutOrStdout()
			renderCallDetail(out, call, record)
			if record == nil {
				fmt.Fprintln(out, "\nNo analysis recorded yet")
				return nil
			}
			if transcript {
				fmt.Fprintf(out, "\nTranscript:\n%s\n", indent(record.Transcript, "  "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the call and analysis as JSON")
	cmd.Flags().BoolVar(&transcript, "transcript", false, "Include the full transcript")
	return cmd
}
