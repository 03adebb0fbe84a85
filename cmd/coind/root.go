package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"coind/internal/config"
	"coind/internal/daemon"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "coind",
		Short:         "Full-node daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctx.flags = cmd.Flags()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemon.New(daemon.Options{
				Params:  ctx.params(),
				Console: os.Stderr,
			})
			if err != nil {
				return err
			}
			return d.Run(cmd.Context())
		},
	}
	registerOptions(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newStopCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	return rootCmd
}

// commandContext carries the parsed option flags to subcommands.
type commandContext struct {
	flags *pflag.FlagSet
}

// params returns the options the operator set on the command line.
func (c *commandContext) params() *config.Params {
	if c.flags == nil {
		return config.NewParams()
	}
	return collectParams(c.flags)
}

// settings resolves the command line merged with the config file, the same
// way the daemon does at startup.
func (c *commandContext) settings() (*config.Settings, error) {
	p := c.params()
	path, err := config.ConfigPathFor(p)
	if err != nil {
		return nil, err
	}
	if _, err := config.LoadFile(path, p); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	settings, _, err := config.Resolve(p)
	if err != nil {
		return nil, err
	}
	return settings, nil
}
