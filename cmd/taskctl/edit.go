package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskctl/internal/app"
	"taskctl/internal/schedule"
	"taskctl/internal/task"
)

var createFlags struct {
	template string
	name     string
	sets     []string
	schedule string
	notes    string
	scope    string
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task from a template",
	Example: "  taskctl create --template scrub --name weekly --set scrubConfig_pool_pool=tank --schedule weekly.json\n" +
		"  taskctl create -t rsync -n offsite --set rsyncConfig_target_info_host=10.0.0.5",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flat, err := parseSets(createFlags.sets)
		if err != nil {
			return err
		}
		inst, err := task.New(createFlags.template, createFlags.name, flat)
		if err != nil {
			return err
		}
		if err := inst.Parameters.Validate(); err != nil {
			return err
		}
		inst.Notes = createFlags.notes
		inst.Scope = task.ParseScope(createFlags.scope)
		if createFlags.schedule != "" {
			if inst.Schedule, err = readSchedule(createFlags.schedule); err != nil {
				return err
			}
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ok, err := a.Orchestrator().RegisterTaskInstance(ctx, inst)
			if err != nil {
				return err
			}
			if err := okOrFail(ok, "create"); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", inst.ID(), a.Orchestrator().UnitName(inst))
			return nil
		})
	},
}

var updateFlags struct {
	sets     []string
	rename   string
	notes    string
	setNotes bool
}

var updateCmd = &cobra.Command{
	Use:   "update <template> <name>",
	Short: "Change a task's parameters, name or notes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sets, err := parseSets(updateFlags.sets)
		if err != nil {
			return err
		}
		updateFlags.setNotes = cmd.Flags().Changed("notes")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			o := a.Orchestrator()
			inst, err := findTask(ctx, o, args)
			if err != nil {
				return err
			}
			if len(sets) == 0 && updateFlags.rename == "" {
				if !updateFlags.setNotes {
					return fmt.Errorf("nothing to update")
				}
				inst.Notes = updateFlags.notes
				ok, err := o.UpdateTaskNotes(ctx, inst)
				if err != nil {
					return err
				}
				return okOrFail(ok, "update notes")
			}

			flat := inst.Parameters.Flatten()
			for k, v := range sets {
				flat[k] = v
			}
			params, _ := inst.Template.NewParameters(flat)
			if err := params.Validate(); err != nil {
				return err
			}
			next := *inst
			next.Parameters = params
			if updateFlags.rename != "" {
				next.Name = updateFlags.rename
			}
			if updateFlags.setNotes {
				next.Notes = updateFlags.notes
			}
			ok, err := o.UpdateTaskInstance(ctx, &next, inst.Name)
			if err != nil {
				return err
			}
			if err := okOrFail(ok, "update"); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", next.ID())
			return nil
		})
	},
}

var scheduleFile string

var scheduleCmd = &cobra.Command{
	Use:   "schedule <template> <name>",
	Short: "Replace a task's schedule from a JSON file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readSchedule(scheduleFile)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			o := a.Orchestrator()
			inst, err := findTask(ctx, o, args)
			if err != nil {
				return err
			}
			inst.Schedule = s
			ok, err := o.UpdateSchedule(ctx, inst)
			if err != nil {
				return err
			}
			if err := okOrFail(ok, "schedule"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), schedule.DescribeSchedule(s))
			return nil
		})
	},
}

func readSchedule(path string) (schedule.Schedule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return schedule.Schedule{}, err
	}
	s, err := schedule.Parse(b)
	if err != nil {
		return schedule.Schedule{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return schedule.Schedule{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func init() {
	f := createCmd.Flags()
	f.StringVarP(&createFlags.template, "template", "t", "", "template key or name")
	f.StringVarP(&createFlags.name, "name", "n", "", "task name")
	f.StringArrayVar(&createFlags.sets, "set", nil, "parameter as key=value (repeatable)")
	f.StringVar(&createFlags.schedule, "schedule", "", "schedule JSON file")
	f.StringVar(&createFlags.notes, "notes", "", "free-form notes")
	f.StringVar(&createFlags.scope, "scope", string(task.ScopeSystem), "user or system")
	_ = createCmd.MarkFlagRequired("template")
	_ = createCmd.MarkFlagRequired("name")

	f = updateCmd.Flags()
	f.StringArrayVar(&updateFlags.sets, "set", nil, "parameter as key=value (repeatable)")
	f.StringVar(&updateFlags.rename, "rename", "", "new task name")
	f.StringVar(&updateFlags.notes, "notes", "", "replace notes")

	scheduleCmd.Flags().StringVarP(&scheduleFile, "file", "f", "", "schedule JSON file")
	_ = scheduleCmd.MarkFlagRequired("file")
}
