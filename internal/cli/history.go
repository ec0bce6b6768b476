package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"taskdesk/taskctl/internal/audit"
)

func newHistoryCommand(rt *runtime) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent entries from the local audit journal",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			journal := audit.NewJournal(rt.cfg.AuditLogFile)
			if !journal.Enabled() {
				rt.printf("Audit journal is disabled (AUDIT_LOG_FILE is empty).\n")
				return nil
			}
			entries, err := journal.Tail(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				rt.printf("No history found.\n")
				return nil
			}

			faint := lipgloss.NewStyle().Foreground(defaultTheme.FaintText)
			failed := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
			for _, e := range entries {
				outcome := e.Outcome
				if outcome != "success" {
					outcome = failed.Render(outcome)
				}
				rt.printf("%s  %-16s %-22s %-8s %s\n", faint.Render(e.At), e.User, e.Action, e.Target, outcome)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}
