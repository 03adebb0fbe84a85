package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"coind/internal/daemonctl"
)

func newStopCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration
	var force bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running node and wait for it to exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.settings()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndWait(settings.SocketPath(), settings.PIDFile, "coind stop", wait, force)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "coind is not running")
				return nil
			}
			if err != nil {
				return err
			}
			switch {
			case result.ForcedKill:
				fmt.Fprintf(out, "coind did not exit in %s; killed process %d\n", wait, result.PID)
			case result.StopAcknowledged:
				fmt.Fprintln(out, "coind stopped")
			default:
				fmt.Fprintln(out, "Stop request sent")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "How long to wait for the node to exit")
	cmd.Flags().BoolVar(&force, "force", false, "Kill the node if it has not exited after --wait")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running node's status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.settings()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			status, err := daemonctl.Status(settings.SocketPath())
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, renderStatusLine("Node", statusError, "not running", shouldColorize(out)))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprint(out, renderStatus(status, time.Now(), shouldColorize(out)))
			return nil
		},
	}
}
