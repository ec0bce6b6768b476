package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"taskdesk/taskctl/internal/task"
)

func newTasksCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task", "t"},
		Short:   "List and change your tasks",
	}
	cmd.AddCommand(
		newTasksListCommand(rt),
		newTasksShowCommand(rt),
		newTasksCreateCommand(rt),
		newTasksEditCommand(rt),
		newTasksCompleteCommand(rt),
		newTasksDeleteCommand(rt),
	)
	return cmd
}

func newTasksListCommand(rt *runtime) *cobra.Command {
	var (
		status string
		search string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks, optionally filtered by status and text",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := task.ParseStatus(status)
			if err != nil {
				return err
			}
			c, err := rt.authenticated()
			if err != nil {
				return err
			}
			b := c.Board()
			b.SetFilters(st, search)
			visible, err := b.Load(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(rt.opts.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(visible)
			}
			renderTaskTable(rt.opts.Stdout, visible)
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "pending, in_progress or done")
	cmd.Flags().StringVarP(&search, "search", "q", "", "match text in title or description")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newTasksShowCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := rt.authenticated()
			if err != nil {
				return err
			}
			t, err := c.API().GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			renderTask(rt.opts.Stdout, t)
			return nil
		},
	}
}

// formFlags are the task fields accepted by create and edit.
type formFlags struct {
	title       string
	description string
	due         string
	status      string
}

func bindFormFlags(fs *pflag.FlagSet, f *formFlags) {
	fs.StringVarP(&f.title, "title", "t", "", "task title (max 100 characters)")
	fs.StringVarP(&f.description, "description", "d", "", "task description (max 500 characters)")
	fs.StringVar(&f.due, "due", "", "due date, YYYY-MM-DD")
	fs.StringVarP(&f.status, "status", "s", "", "pending, in_progress or done")
}

// apply copies the flags that were set onto form.
func (f formFlags) apply(fs *pflag.FlagSet, form *task.Form) error {
	if fs.Changed("title") {
		form.Title = f.title
	}
	if fs.Changed("description") {
		form.Description = f.description
	}
	if fs.Changed("due") {
		form.DueDate = f.due
	}
	if fs.Changed("status") {
		st, err := task.ParseStatus(f.status)
		if err != nil {
			return err
		}
		form.Status = st
	}
	return nil
}

func newTasksCreateCommand(rt *runtime) *cobra.Command {
	var flags formFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			form := task.NewForm()
			if err := flags.apply(cmd.Flags(), &form); err != nil {
				return err
			}
			if err := form.Validate(); err != nil {
				return err
			}
			c, err := rt.authenticated()
			if err != nil {
				return err
			}
			saved, err := c.Board().Submit(cmd.Context(), form, 0)
			rt.notice(c.Board().Notice(), saved.ID)
			return err
		},
	}
	bindFormFlags(cmd.Flags(), &flags)
	return cmd
}

func newTasksEditCommand(rt *runtime) *cobra.Command {
	var flags formFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := rt.authenticated()
			if err != nil {
				return err
			}
			current, err := c.API().GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			form := task.FormFromTask(current)
			if err := flags.apply(cmd.Flags(), &form); err != nil {
				return err
			}
			_, err = c.Board().Submit(cmd.Context(), form, id)
			rt.notice(c.Board().Notice(), id)
			return err
		},
	}
	bindFormFlags(cmd.Flags(), &flags)
	return cmd
}

func newTasksCompleteCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "complete <id>",
		Aliases: []string{"done"},
		Short:   "Mark a task as done",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := rt.authenticated()
			if err != nil {
				return err
			}
			current, err := c.API().GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			changed, err := c.Board().Complete(cmd.Context(), current)
			if !changed && err == nil {
				rt.printf("Task #%d is already done.\n", id)
				return nil
			}
			rt.notice(c.Board().Notice(), id)
			return err
		},
	}
}

func newTasksDeleteCommand(rt *runtime) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to delete task #%d without --yes", id)
			}
			c, err := rt.authenticated()
			if err != nil {
				return err
			}
			err = c.Board().Delete(cmd.Context(), id)
			rt.notice(c.Board().Notice(), id)
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

// notice prints the board's success message, if the write went through.
func (r *runtime) notice(msg string, id int64) {
	if msg == "" {
		return
	}
	r.printf("%s (#%d)\n", msg, id)
}
