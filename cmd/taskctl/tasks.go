package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"taskctl/internal/app"
	"taskctl/internal/schedule"
	"taskctl/internal/task"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks with their schedule and status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			o := a.Orchestrator()
			tasks := o.LoadTaskInstances(ctx)
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TEMPLATE\tNAME\tSCOPE\tSCHEDULE\tSTATUS")
			for _, inst := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", inst.Template.Key, inst.Name, inst.Scope,
					scheduleColumn(inst.Schedule), o.Status(ctx, inst).Text)
			}
			return w.Flush()
		})
	},
}

// scheduleColumn summarises s for the list table. Only a schedule with
// intervals can be disabled.
func scheduleColumn(s schedule.Schedule) string {
	desc := schedule.DescribeSchedule(s)
	if s.HasIntervals() && !s.Enabled {
		desc += " (disabled)"
	}
	return desc
}

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status [template name]",
	Short: "Show live status and last run of tasks",
	Args:  cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return fmt.Errorf("status takes no arguments or <template> <name>")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			o, p := a.Orchestrator(), a.Poller()
			tasks := o.LoadTaskInstances(ctx)
			if len(args) == 2 {
				inst, err := findTask(ctx, o, args)
				if err != nil {
					return err
				}
				tasks = []*task.Instance{inst}
			}
			show := func() {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TASK\tSTATUS\tLAST RUN")
				for _, inst := range tasks {
					fmt.Fprintf(w, "%s\t%s\t%s\n", inst.ID(), p.StatusFor(inst), p.LastRunFor(inst))
				}
				_ = w.Flush()
			}
			if err := p.RefreshAll(ctx); err != nil {
				return err
			}
			show()
			if !statusWatch {
				return nil
			}

			t, err := a.Config().Timings()
			if err != nil {
				return err
			}
			served := make(chan error, 1)
			go func() { served <- a.Serve(ctx) }()
			ticker := time.NewTicker(t.PollInterval)
			defer ticker.Stop()
			for {
				select {
				case err := <-served:
					return err
				case <-ticker.C:
					fmt.Fprintln(cmd.OutOrStdout())
					show()
				}
			}
		})
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "keep refreshing until interrupted")
}

var runCmd = &cobra.Command{
	Use:   "run <template> <name>",
	Short: "Run a task now and wait for it to finish",
	Long: "Run a task now and wait for it to finish.\n\n" +
		"The wait has no timeout: it ends when the task completes, fails or is disabled.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			o := a.Orchestrator()
			inst, err := findTask(ctx, o, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Running %s...\n", inst.ID())
			final, err := o.RunTaskNow(ctx, inst)
			if err != nil {
				return err
			}
			if final == "" {
				return fmt.Errorf("could not start %s; see log for details", inst.ID())
			}
			fmt.Fprintln(cmd.OutOrStdout(), final)
			return nil
		})
	},
}

// taskAction builds a "<verb> <template> <name>" command around one
// orchestrator operation.
func taskAction(use, short string, op func(ctx context.Context, a *app.App, args []string) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <template> <name>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				ok, err := op(ctx, a, args)
				if err != nil {
					return err
				}
				if err := okOrFail(ok, use); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", use)
				return nil
			})
		},
	}
}

var (
	stopCmd = taskAction("stop", "Stop a running task", func(ctx context.Context, a *app.App, args []string) (bool, error) {
		inst, err := findTask(ctx, a.Orchestrator(), args)
		if err != nil {
			return false, err
		}
		return a.Orchestrator().StopTaskNow(ctx, inst)
	})
	enableCmd = taskAction("enable", "Enable a task's schedule", func(ctx context.Context, a *app.App, args []string) (bool, error) {
		inst, err := findTask(ctx, a.Orchestrator(), args)
		if err != nil {
			return false, err
		}
		return a.Orchestrator().EnableSchedule(ctx, inst)
	})
	disableCmd = taskAction("disable", "Disable a task's schedule", func(ctx context.Context, a *app.App, args []string) (bool, error) {
		inst, err := findTask(ctx, a.Orchestrator(), args)
		if err != nil {
			return false, err
		}
		return a.Orchestrator().DisableSchedule(ctx, inst)
	})
	deleteCmd = taskAction("delete", "Delete a task and its units", func(ctx context.Context, a *app.App, args []string) (bool, error) {
		inst, err := findTask(ctx, a.Orchestrator(), args)
		if err != nil {
			return false, err
		}
		return a.Orchestrator().UnregisterTaskInstance(ctx, inst)
	})
	unscheduleCmd = taskAction("unschedule", "Remove every schedule interval of a task", func(ctx context.Context, a *app.App, args []string) (bool, error) {
		inst, err := findTask(ctx, a.Orchestrator(), args)
		if err != nil {
			return false, err
		}
		return a.Orchestrator().DeleteSchedule(ctx, inst)
	})
)
