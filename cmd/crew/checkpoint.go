package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect, restore and prune session checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list [session-id]",
	Short: "List checkpoints, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckpointList,
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <checkpoint-id>",
	Short: "Restore a session from a checkpoint and save it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointRestore,
}

var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete <checkpoint-id>",
	Short: "Delete a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointDelete,
}

var checkpointStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored checkpoints",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointStats,
}

var checkpointCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete checkpoints past the retention window",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointCleanup,
}

func init() {
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
	checkpointCmd.AddCommand(checkpointDeleteCmd)
	checkpointCmd.AddCommand(checkpointStatsCmd)
	checkpointCmd.AddCommand(checkpointCleanupCmd)
}

func runCheckpointList(cmd *cobra.Command, args []string) error {
	var sessionID string
	if len(args) == 1 {
		sessionID = args[0]
	}
	return withStorage(func(a *app) error {
		list, err := a.checkpoints.List(sessionID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No checkpoints.")
			return nil
		}
		for _, m := range list {
			fmt.Fprintf(out, "%s  %-13s %-6s msgs=%-4d %s  %s\n",
				m.ID, m.Type, m.RiskAssessment, m.MessageCount, formatAge(m.CreatedAt), dimStyle.Render(m.Description))
		}
		return nil
	})
}

func runCheckpointRestore(cmd *cobra.Command, args []string) error {
	return withStorage(func(a *app) error {
		s, err := a.checkpoints.Restore(args[0])
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("checkpoint %s not found", args[0])
		}
		if err := a.sessions.Save(s); err != nil {
			return fmt.Errorf("save restored session: %w", err)
		}
		printStatus(cmd.OutOrStdout(), "✓",
			fmt.Sprintf("restored session %s (%d messages)", s.ID, len(s.Messages)), color.FgGreen)
		return nil
	})
}

func runCheckpointDelete(cmd *cobra.Command, args []string) error {
	return withStorage(func(a *app) error {
		ok, err := a.checkpoints.Delete(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("checkpoint %s not found", args[0])
		}
		printStatus(cmd.OutOrStdout(), "✓", "deleted "+args[0], color.FgGreen)
		return nil
	})
}

func runCheckpointStats(cmd *cobra.Command, _ []string) error {
	return withStorage(func(a *app) error {
		st, err := a.checkpoints.Stats()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, st)
		}
		fmt.Fprintln(out, headerStyle.Render("Checkpoints"))
		field(out, "Total", st.Total)
		field(out, "Size", fmt.Sprintf("%d bytes", st.TotalBytes))
		field(out, "Sessions", len(st.BySession))
		for typ, n := range st.ByType {
			field(out, "  "+string(typ), n)
		}
		field(out, "Oldest", formatAge(st.Oldest))
		field(out, "Newest", formatAge(st.Newest))
		return nil
	})
}

func runCheckpointCleanup(cmd *cobra.Command, _ []string) error {
	return withStorage(func(a *app) error {
		n, err := a.checkpoints.CleanupExpired()
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("removed %d expired checkpoints", n), color.FgGreen)
		return nil
	})
}
