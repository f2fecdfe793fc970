package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"taskctl/internal/app"
	"taskctl/internal/discovery"
)

var remote discovery.Remote

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Inspect pools, datasets and disks, and test remote access",
}

var discoverPoolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "List ZFS pools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printLines(cmd, a.Discovery().Pools(ctx, remote), "No pools found.")
		})
	},
}

var discoverDatasetsCmd = &cobra.Command{
	Use:   "datasets <pool>",
	Short: "List the datasets of a pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return printLines(cmd, a.Discovery().Datasets(ctx, args[0], remote), "No datasets found.")
		})
	},
}

var discoverDisksCmd = &cobra.Command{
	Use:   "disks",
	Short: "List local disks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			disks := a.Discovery().Disks(ctx)
			if len(disks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No disks found.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDEVICE\tCAPACITY\tMODEL\tSERIAL\tHEALTH\tTEMP")
			for _, d := range disks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", d.Name, d.SdPath, d.Capacity, d.Model, d.Serial, d.Health, d.Temp)
			}
			return w.Flush()
		})
	},
}

var discoverSSHCmd = &cobra.Command{
	Use:   "ssh <user@host>",
	Short: "Test passwordless SSH to a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return reachable(cmd, a.Discovery().TestSSH(ctx, args[0]))
		})
	},
}

var discoverNetcatCmd = &cobra.Command{
	Use:   "netcat <user> <host> <port>",
	Short: "Test a netcat transport to a host",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return reachable(cmd, a.Discovery().TestNetcat(ctx, args[0], args[1], args[2]))
		})
	},
}

func printLines(cmd *cobra.Command, lines []string, empty string) error {
	if len(lines) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), empty)
		return nil
	}
	for _, l := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), l)
	}
	return nil
}

func reachable(cmd *cobra.Command, ok bool) error {
	if !ok {
		return fmt.Errorf("not reachable")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "reachable")
	return nil
}

func init() {
	for _, c := range []*cobra.Command{discoverPoolsCmd, discoverDatasetsCmd} {
		c.Flags().StringVar(&remote.Host, "host", "", "remote host")
		c.Flags().StringVar(&remote.Port, "port", "", "remote ssh port")
		c.Flags().StringVar(&remote.User, "user", "", "remote user")
	}
	discoverCmd.AddCommand(discoverPoolsCmd, discoverDatasetsCmd, discoverDisksCmd, discoverSSHCmd, discoverNetcatCmd)
}
