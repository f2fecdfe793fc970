package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskctl/internal/app"
	"taskctl/internal/orchestrator"
	"taskctl/internal/task"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "taskctl",
	Short:         "Manage scheduled storage maintenance tasks",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config (json or yaml)")

	rootCmd.AddCommand(listCmd, statusCmd, runCmd, stopCmd, enableCmd, disableCmd, deleteCmd)
	rootCmd.AddCommand(createCmd, updateCmd, scheduleCmd, unscheduleCmd)
	rootCmd.AddCommand(describeScheduleCmd, templatesCmd, providersCmd, discoverCmd, historyCmd, logsCmd)
}

// withApp builds the app for one command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, app.Options{ConfigPath: configPath})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(ctx, a)
}

// findTask loads the task list and resolves "<template> <name>".
func findTask(ctx context.Context, o *orchestrator.Orchestrator, args []string) (*task.Instance, error) {
	t, err := task.Lookup(args[0])
	if err != nil {
		return nil, err
	}
	o.LoadTaskInstances(ctx)
	inst, ok := o.Find(t.Key, args[1])
	if !ok {
		return nil, fmt.Errorf("no task %s", task.ID(t.Key, args[1]))
	}
	return inst, nil
}

// parseSets turns repeated key=value flags into a flat parameter map.
func parseSets(sets []string) (map[string]string, error) {
	out := make(map[string]string, len(sets))
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("--set %q: want key=value", s)
		}
		out[k] = v
	}
	return out, nil
}

func okOrFail(ok bool, what string) error {
	if !ok {
		return fmt.Errorf("%s failed; see log for details", what)
	}
	return nil
}
