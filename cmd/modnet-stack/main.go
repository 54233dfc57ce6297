package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	statusFlags := &StatusFlags{}
	logsFlags := &LogsFlags{}
	serveFlags := &ServeFlags{}

	c := command{flags: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(c),
		createStopCommand(c),
		createRestartCommand(c),
		createStatusCommand(c, statusFlags),
		createLogsCommand(c, logsFlags),
		createTestCommand(c),
		createServeCommand(c, serveFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "modnet-stack",
		Short: "Lifecycle manager for the mod-net service stack",
		Long: `modnet-stack starts, stops and monitors the mod-net stack: the chain
node, the storage daemon, the bridge worker and the dashboard. Services
are brought up in dependency order and confirmed healthy before the
command returns.

Examples:
  modnet-stack start                 # whole stack, dependency order
  modnet-stack start storage-daemon  # one service
  modnet-stack status
  modnet-stack logs bridge-worker -f
  modnet-stack test                  # connectivity probes only`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func optionalService(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func createStartCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "start [service]",
		Short: "Start the whole stack or one service",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(optionalService(args))
		},
	}
}

func createStopCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [service]",
		Short: "Stop the whole stack or one service",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(optionalService(args))
		},
	}
}

func createRestartCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "restart [service]",
		Short: "Restart the whole stack or one service",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Restart(optionalService(args))
		},
	}
}

func createStatusCommand(c command, flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [service]",
		Short: "Show fresh per-service status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(optionalService(args), *flags)
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "machine-readable output")
	cmd.Flags().BoolVar(&flags.Detailed, "detailed", false, "include the last recorded lifecycle event per service")
	return cmd
}

func createLogsCommand(c command, flags *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <service>",
		Short: "Print a service's captured output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Logs(args[0], *flags)
		},
	}
	cmd.Flags().BoolVarP(&flags.Follow, "follow", "f", false, "keep tailing until interrupted")
	return cmd
}

func createTestCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "test [service]",
		Short: "Probe service endpoints once, without touching processes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Check(optionalService(args))
		},
	}
}

func createServeCommand(c command, flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Serve(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "listen address (overrides config)")
	return cmd
}
