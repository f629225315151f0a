package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SpiceLabsHQ/tfapi/internal/cli"
	"github.com/SpiceLabsHQ/tfapi/internal/config"
	"github.com/SpiceLabsHQ/tfapi/internal/logging"
)

// NewRootCommand creates the root cobra command with the global persistent
// flags and every subcommand attached.
func NewRootCommand() *cobra.Command {
	return newRootCommandWithClients(nil)
}

// newRootCommandWithClients builds the command tree. Non-nil clients replace
// the AWS SDK clients, for tests.
func newRootCommandWithClients(clients *awsClients) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tfapi",
		Short:         "HTTP API for running terraform with state kept in S3",
		Long:          "Run terraform init/apply/destroy over HTTP for named templates, keeping each template's state files in S3 and cleaning up the buckets it creates.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := cli.NewCLIContext(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(cli.WithContext(ctx, cliCtx))

			if !commandNeedsConfig(cmd) {
				return nil
			}
			if err := loadRuntime(cliCtx); err != nil {
				if cliCtx.JSON {
					writeJSONError(cmd.OutOrStdout(), err)
					return silentExitError{}
				}
				return err
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log at debug level")
	rootCmd.PersistentFlags().Bool("json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().Bool("yes", false, "Skip confirmation on destructive operations")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newServeCommand(clients))
	rootCmd.AddCommand(newCleanupCommand(clients))
	rootCmd.AddCommand(newBucketsCommand(clients))

	return rootCmd
}

// commandNeedsConfig reports whether the command loads configuration and a
// logger before running. Local-only commands skip it so a bad config file
// never blocks `tfapi version`.
func commandNeedsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "version", "help", "completion":
			return false
		}
	}
	return true
}

// loadRuntime loads the config and builds the logger onto cliCtx.
func loadRuntime(cliCtx *cli.CLIContext) error {
	cfg, err := config.Load(cliCtx.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if cliCtx.Debug {
		level = "debug"
	}
	log, err := logging.New(level, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	cliCtx.Config = cfg
	cliCtx.Log = log
	return nil
}

// Execute creates the root command and runs it. Called from main.
func Execute() error {
	return NewRootCommand().Execute()
}
