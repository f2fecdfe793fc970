package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"taskctl/internal/app"
	"taskctl/internal/param"
	"taskctl/internal/schedule"
	"taskctl/internal/task"
)

var describeScheduleCmd = &cobra.Command{
	Use:   "describe-schedule <file>",
	Short: "Explain a schedule JSON file and preview its next run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readSchedule(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !s.HasIntervals() {
			fmt.Fprintln(out, "No intervals; the task only runs on demand.")
			return nil
		}
		for i, iv := range s.Intervals {
			fmt.Fprintf(out, "%d. %s\n   %s\n", i+1, schedule.Describe(iv), schedule.OnCalendar(iv))
		}
		if next, err := schedule.NextRun(s, time.Now()); err == nil && !next.IsZero() {
			fmt.Fprintf(out, "Next run: %s\n", next.Format("2006-01-02 15:04"))
		}
		if !s.Enabled {
			fmt.Fprintln(out, "Schedule is disabled.")
		}
		return nil
	},
}

var templatesCmd = &cobra.Command{
	Use:   "templates [template]",
	Short: "List task templates, or the parameters of one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		if len(args) == 0 {
			fmt.Fprintln(w, "KEY\tNAME\tSCRIPT")
			for _, t := range task.Templates() {
				script := t.Script
				if script == "" {
					script = "(custom path)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.Key, t.Name, script)
			}
			return w.Flush()
		}
		t, err := task.Lookup(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "PARAMETER\tKIND\tDEFAULT")
		t.Schema().Walk(func(k string, leaf *param.Node) {
			fmt.Fprintf(w, "%s\t%s\t%s\n", k, leaf.Kind, leaf.Value())
		})
		return w.Flush()
	},
}

var providersAdvanced bool

var providersCmd = &cobra.Command{
	Use:   "providers [type [s3-provider]]",
	Short: "List cloud sync providers, or the auth parameters of one",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		if len(args) == 0 {
			fmt.Fprintln(w, "KEY\tTYPE\tNAME")
			for _, p := range task.Providers() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Key, p.Type, p.Name)
			}
			return w.Flush()
		}
		var s3 string
		if len(args) == 2 {
			s3 = args[1]
		}
		auth, err := task.CloudAuthSchema(args[0], s3, providersAdvanced)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "PARAMETER\tKIND\tDEFAULT")
		auth.Walk(func(k string, leaf *param.Node) {
			fmt.Fprintf(w, "%s\t%s\t%s\n", k, leaf.Kind, leaf.Value())
		})
		return w.Flush()
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent task operations from the audit log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			entries, err := a.Orchestrator().History(ctx, historyLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "AT\tACTION\tTASK\tOK\tTOOK\tDETAIL")
			for _, e := range entries {
				detail := e.Detail
				if e.Error != "" {
					detail = e.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%dms\t%s\n",
					e.At.Local().Format(time.DateTime), e.Action, task.ID(e.Template, e.Task), e.OK, e.TookMS, detail)
			}
			return w.Flush()
		})
	},
}

var logsLatest bool

var logsCmd = &cobra.Command{
	Use:   "logs <template> <name>",
	Short: "Print a task's execution log",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			o := a.Orchestrator()
			inst, err := findTask(ctx, o, args)
			if err != nil {
				return err
			}
			unit := o.UnitName(inst)
			out := cmd.OutOrStdout()
			if !logsLatest {
				fmt.Fprintln(out, a.History().EntriesFor(ctx, unit+".service", time.Time{}))
				return nil
			}
			e := a.History().LatestEntryFor(ctx, unit+".service", unit)
			if e.Start.IsZero() && e.Output == "" {
				fmt.Fprintln(out, "Task hasn't run yet.")
				return nil
			}
			fmt.Fprintf(out, "started:  %s\nfinished: %s\nexit:     %d\n\n%s\n",
				stamp(e.Start), stamp(e.Finish), e.ExitCode, e.Output)
			return nil
		})
	},
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func init() {
	providersCmd.Flags().BoolVar(&providersAdvanced, "advanced", false, "include advanced parameters")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries")
	logsCmd.Flags().BoolVar(&logsLatest, "latest", false, "only the most recent run")
}
