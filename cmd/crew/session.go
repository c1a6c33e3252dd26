package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	sessionMaxAge time.Duration
	sessionTail   int
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage persisted sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, most recently updated first",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session's state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionDelete,
}

var sessionSuspendCmd = &cobra.Command{
	Use:   "suspend <id>",
	Short: "Mark a session suspended",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionSuspend,
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Mark a suspended session active again",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionResume,
}

var sessionStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored sessions by status and size",
	Args:  cobra.NoArgs,
	RunE:  runSessionStats,
}

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete sessions not updated within the retention window",
	Args:  cobra.NoArgs,
	RunE:  runSessionCleanup,
}

func init() {
	sessionCleanupCmd.Flags().DurationVar(&sessionMaxAge, "older-than", 0, "Age cutoff (default: session.retention)")
	sessionShowCmd.Flags().IntVar(&sessionTail, "tail", 0, "Also print the last N messages")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionSuspendCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)
	sessionCmd.AddCommand(sessionStatsCmd)
}

// withStorage builds the app with its storage services open and runs fn.
func withStorage(fn func(a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.openStorage(); err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	return fn(a)
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	return withStorage(func(a *app) error {
		summaries, err := a.sessions.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, summaries)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(out, "No sessions.")
			return nil
		}
		for _, s := range summaries {
			line := fmt.Sprintf("%-36s %-10s msgs=%-4d agents=%-2d errors=%-2d %s",
				s.ID, s.Status, s.MessageCount, s.AgentCount, s.ErrorCount, formatAge(s.UpdatedAt))
			printStatus(out, "●", line, statusColor(s.Status))
		}
		return nil
	})
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	return withStorage(func(a *app) error {
		s, err := a.sessions.Load(args[0])
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("session %s not found", args[0])
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, s)
		}
		fmt.Fprintln(out, headerStyle.Render("Session "+s.ID))
		field(out, "Status", color.New(statusColor(s.Status)).Sprint(s.Status))
		field(out, "Created", s.CreatedAt.Format(time.RFC3339))
		field(out, "Updated", formatAge(s.UpdatedAt))
		field(out, "Messages", len(s.Messages))
		field(out, "Agents", joinOr(s.ActiveAgents(), "-"))
		field(out, "Errors", len(s.Errors))
		if s.Workflow != nil && s.Workflow.CurrentStage != "" {
			field(out, "Stage", s.Workflow.CurrentStage)
		}
		if sessionTail > 0 {
			fmt.Fprintln(out)
			for _, m := range s.ConversationSummary(sessionTail) {
				who := m.Role
				if m.AgentID != "" {
					who += "/" + m.AgentID
				}
				fmt.Fprintf(out, "%s %s\n", labelStyle.Render(who), m.Content)
			}
		}
		return nil
	})
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	return withStorage(func(a *app) error {
		ok, err := a.sessions.Delete(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("session %s not found", args[0])
		}
		printStatus(cmd.OutOrStdout(), "✓", "deleted "+args[0], color.FgGreen)
		return nil
	})
}

func runSessionSuspend(cmd *cobra.Command, args []string) error {
	return withStorage(func(a *app) error {
		s, err := a.sessions.Suspend(args[0])
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("session %s not found", args[0])
		}
		printStatus(cmd.OutOrStdout(), "✓", "suspended "+s.ID, color.FgYellow)
		return nil
	})
}

func runSessionResume(cmd *cobra.Command, args []string) error {
	return withStorage(func(a *app) error {
		s, err := a.sessions.Resume(args[0])
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("session %s not found", args[0])
		}
		printStatus(cmd.OutOrStdout(), "✓", "resumed "+s.ID, color.FgGreen)
		return nil
	})
}

func runSessionCleanup(cmd *cobra.Command, _ []string) error {
	return withStorage(func(a *app) error {
		maxAge := sessionMaxAge
		if maxAge <= 0 {
			maxAge = a.cfg.Session.Retention
		}
		n, err := a.sessions.CleanupOld(maxAge)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("removed %d sessions older than %s", n, maxAge), color.FgGreen)
		return nil
	})
}

func runSessionStats(cmd *cobra.Command, _ []string) error {
	return withStorage(func(a *app) error {
		st, err := a.sessions.Statistics()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, st)
		}
		fmt.Fprintln(out, headerStyle.Render("Sessions"))
		field(out, "Total", st.Total)
		field(out, "Active", st.Active)
		field(out, "Suspended", st.Suspended)
		field(out, "Completed", st.Completed)
		field(out, "Messages", st.TotalMessages)
		field(out, "Agents", st.TotalAgents)
		field(out, "Storage", fmt.Sprintf("%.2f MB", float64(st.StorageBytes)/(1<<20)))
		if st.Total > 0 {
			field(out, "Oldest", st.Oldest.Format(time.RFC3339))
			field(out, "Newest", st.Newest.Format(time.RFC3339))
		}
		return nil
	})
}
