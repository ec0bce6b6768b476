package cli

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"taskdesk/taskctl/internal/task"
)

type theme struct {
	StatusPending    lipgloss.Color
	StatusInProgress lipgloss.Color
	StatusDone       lipgloss.Color
	FaintText        lipgloss.Color
	HeaderForeground lipgloss.Color
}

var defaultTheme = theme{
	StatusPending:    lipgloss.Color("214"),
	StatusInProgress: lipgloss.Color("39"),
	StatusDone:       lipgloss.Color("42"),
	FaintText:        lipgloss.Color("245"),
	HeaderForeground: lipgloss.Color("252"),
}

func (t theme) statusColor(s task.Status) lipgloss.Color {
	switch s {
	case task.StatusPending:
		return t.StatusPending
	case task.StatusInProgress:
		return t.StatusInProgress
	case task.StatusDone:
		return t.StatusDone
	default:
		return t.FaintText
	}
}

const statusWidth = 12

func (t theme) badge(s task.Status) string {
	return lipgloss.NewStyle().
		Foreground(t.statusColor(s)).
		Bold(s != task.StatusDone).
		Width(statusWidth).
		Render(s.Display())
}

func renderTaskTable(w io.Writer, tasks []task.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return
	}
	header := lipgloss.NewStyle().Foreground(defaultTheme.HeaderForeground).Bold(true)
	faint := lipgloss.NewStyle().Foreground(defaultTheme.FaintText)

	fmt.Fprintf(w, "%s  %s  %s  %s\n",
		header.Render(fmt.Sprintf("%5s", "ID")),
		header.Width(statusWidth).Render("STATUS"),
		header.Render(fmt.Sprintf("%-10s", "DUE")),
		header.Render("TITLE"))
	for _, t := range tasks {
		fmt.Fprintf(w, "%5d  %s  %-10s  %s\n",
			t.ID,
			defaultTheme.badge(t.Status),
			t.DueDate.Date(),
			truncate(t.Title, 60))
		if d := strings.TrimSpace(t.Description); d != "" {
			fmt.Fprintf(w, "%5s  %s\n", "", faint.Render(truncate(firstLine(d), 72)))
		}
	}
}

func renderTask(w io.Writer, t task.Task) {
	faint := lipgloss.NewStyle().Foreground(defaultTheme.FaintText)
	fmt.Fprintf(w, "#%d %s\n", t.ID, lipgloss.NewStyle().Bold(true).Render(t.Title))
	fmt.Fprintf(w, "  %s %s\n", faint.Render("status: "), defaultTheme.badge(t.Status))
	fmt.Fprintf(w, "  %s %s\n", faint.Render("due:    "), t.DueDate.Date())
	fmt.Fprintf(w, "  %s %s\n", faint.Render("created:"), t.CreatedAt.String())
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
